package notify

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vjcreations/storefront/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrRender = errors.New("render notification")

var subjects = map[models.NotificationKind]string{
	models.NotifyWelcome:           "Welcome to VJ-Creations",
	models.NotifyProfileUpdated:    "Profile Updated",
	models.NotifyOrderConfirmation: "Order Confirmation",
	models.NotifyOrderDeleted:      "Order Deletion Notification",
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"eventDate": func(s string) string {
		t, err := time.Parse(models.EventDateLayout, s)
		if err != nil {
			return s
		}
		return t.Format("January 2, 2006")
	},
	"eventTime": func(s string) string {
		t, err := time.Parse(models.EventTimeLayout, s)
		if err != nil {
			return s
		}
		return t.Format("03:04 PM")
	},
}

// Renderer turns notifications into email subject and HTML body.
type Renderer struct {
	templates map[models.NotificationKind]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[models.NotificationKind]*template.Template)}
	for kind := range subjects {
		t, err := template.New(string(kind)).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html", "templates/order.html", "templates/"+string(kind)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		r.templates[kind] = t
	}
	return r, nil
}

type Email struct {
	To      models.Recipient
	Subject string
	HTML    string
}

func (r *Renderer) Render(n models.Notification) (Email, error) {
	t, ok := r.templates[n.Kind]
	if !ok {
		return Email{}, fmt.Errorf("%w: unknown kind %q", ErrRender, n.Kind)
	}
	if (n.Kind == models.NotifyOrderConfirmation || n.Kind == models.NotifyOrderDeleted) && n.Order == nil {
		return Email{}, fmt.Errorf("%w: %s without order", ErrRender, n.Kind)
	}

	var body bytes.Buffer
	if err := t.ExecuteTemplate(&body, "layout", n); err != nil {
		return Email{}, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return Email{To: n.To, Subject: subjects[n.Kind], HTML: body.String()}, nil
}
