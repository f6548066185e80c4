// Package server assembles the storefront's HTTP surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/catalog"
	"github.com/vjcreations/storefront/internal/chat"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"github.com/vjcreations/storefront/internal/orders"
	"github.com/vjcreations/storefront/internal/reporting"
	"github.com/vjcreations/storefront/internal/upload"
	"github.com/vjcreations/storefront/internal/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 30 * time.Second

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	ServiceName    string
	AllowedOrigins []string
	PayPalClientID string
}

// Handlers are the route groups mounted by NewRouter.
type Handlers struct {
	Users     *auth.Handler
	Products  *catalog.Handler
	Reporting *reporting.Handler
	Orders    *orders.Handler
	Upload    *upload.Handler
	Chat      *chat.Handler
	Feed      *websocket.Hub
}

// NewRouter mounts every route and wraps the router with tracing and CORS.
func NewRouter(h Handlers, guard *auth.Guard, db Pinger, breakers *circuitbreaker.Manager, opts Options, logger *logrus.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware(logger))
	router.Use(loggingMiddleware(logger))

	router.Handle("/health", NewHealthHandler(db, breakers, logger)).Methods(http.MethodGet)
	router.HandleFunc("/api/keys/paypal", payPalKey(opts.PayPalClientID)).Methods(http.MethodGet)

	h.Users.Register(router, guard)
	h.Products.Register(router, guard)
	h.Reporting.Register(router, guard)
	h.Orders.Register(router, guard)
	h.Upload.Register(router, guard)
	h.Chat.Register(router)
	router.HandleFunc("/ws/orders", h.Feed.HandleWebSocket).Methods(http.MethodGet)

	traced := otelhttp.NewHandler(router, opts.ServiceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && !strings.HasPrefix(r.URL.Path, "/ws/")
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					return r.Method + " " + tpl
				}
			}
			return r.Method + " " + r.URL.Path
		}),
	)
	return corsMiddleware(opts.AllowedOrigins, traced)
}

// payPalKey returns the client id as a bare string, which is what the
// checkout page's PayPal script loader expects.
func payPalKey(clientID string) http.HandlerFunc {
	if clientID == "" {
		clientID = "sb"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(clientID))
	}
}

func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, srv *http.Server, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting storefront API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return err
	}
	logger.Info("Server gracefully stopped")
	return nil
}
