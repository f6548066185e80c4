// Package upload proxies admin image uploads to Cloudinary.
package upload

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL    = "https://api.cloudinary.com/v1_1"
	breakerName       = "cloudinary"
	maxUploadResponse = 1 << 20
)

var (
	ErrNotConfigured = apperr.New(apperr.KindInternal, "Upload is not configured")
	ErrUnavailable   = apperr.New(apperr.KindInternal, "Upload service is unavailable")
)

// rejectedError is a 4xx from Cloudinary. The request was bad, the service is fine.
type rejectedError struct {
	status  int
	message string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("cloudinary rejected upload (%d): %s", e.status, e.message)
}

type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string
}

func (c Config) configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Result is Cloudinary's upload response, passed through as-is.
type Result map[string]interface{}

type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
	now        func() time.Time
}

func BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		MaxFailures: 3,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
		IsFailure: func(err error) bool {
			var rejected *rejectedError
			return !errors.As(err, &rejected) && !errors.Is(err, context.Canceled)
		},
	}
}

func NewClient(config Config, breakers *circuitbreaker.Manager, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breakers.GetOrCreate(breakerName, BreakerConfig()),
		logger:  logger,
		now:     time.Now,
	}
}

// Sign computes Cloudinary's request signature: the params sorted by key,
// joined as k=v with &, the API secret appended, then SHA-1.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// Upload sends one file as a signed upload.
func (c *Client) Upload(ctx context.Context, filename string, file io.Reader) (Result, error) {
	if !c.config.configured() {
		return nil, ErrNotConfigured
	}

	var result Result
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.send(ctx, filename, file)
		return err
	})

	var rejected *rejectedError
	switch {
	case err == nil:
	case errors.As(err, &rejected):
		return nil, apperr.Wrap(apperr.KindValidation, err, rejected.message)
	default:
		return nil, apperr.Internal(err, ErrUnavailable.Message)
	}

	c.logger.WithFields(logrus.Fields{
		"filename":  filename,
		"public_id": result["public_id"],
	}).Info("Image uploaded")
	return result, nil
}

func (c *Client) send(ctx context.Context, filename string, file io.Reader) (Result, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := Sign(map[string]string{"timestamp": timestamp}, c.config.APISecret)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	for k, v := range map[string]string{
		"api_key":   c.config.APIKey,
		"timestamp": timestamp,
		"signature": signature,
	} {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/image/upload", strings.TrimRight(c.config.BaseURL, "/"), c.config.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Cloudinary: %w", err)
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUploadResponse)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode Cloudinary response (%d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("cloudinary returned error status: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &rejectedError{status: resp.StatusCode, message: errorMessage(result)}
	}
	return result, nil
}

// errorMessage digs {"error":{"message":...}} out of a Cloudinary error body.
func errorMessage(result Result) string {
	if e, ok := result["error"].(map[string]interface{}); ok {
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "Upload rejected"
}
