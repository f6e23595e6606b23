package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/kirillkom/virtual-fitting/internal/infrastructure/resilience"
)

const defaultTimeout = 60 * time.Second

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "generation status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("generation %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("generation %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// NewHTTPClient returns a client whose transport negotiates HTTP/2 over TLS.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if err := http2.ConfigureTransport(transport); err != nil {
		slog.Warn("http2_configure_failed", "error", err)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// transport is shared by both protocol adapters.
type transport struct {
	baseURL    string
	httpClient *http.Client
	guard      *resilience.Guard
	contract   *Contract
}

func newTransport(baseURL string, httpClient *http.Client, guard *resilience.Guard) (*transport, error) {
	contract, err := LoadContract()
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(defaultTimeout)
	}
	return &transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		guard:      guard,
		contract:   contract,
	}, nil
}

func (t *transport) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if t.guard == nil {
		err = fn(ctx)
	} else {
		err = t.guard.Execute(ctx, operation, fn, classifyGenerationError)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

func (t *transport) postJSON(ctx context.Context, path string, payload any, schema string, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	return t.call(ctx, operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return t.do(req, schema, out, operation)
	})
}

func (t *transport) getJSON(ctx context.Context, path string, schema string, out any, operation string) error {
	return t.call(ctx, operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Accept", "application/json")
		return t.do(req, schema, out, operation)
	})
}

func (t *transport) do(req *http.Request, schema string, out any, operation string) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("generation %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", operation, err)
	}
	if err := t.contract.Validate(schema, raw); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// resolve makes a relative upload URL absolute against the base URL.
func (t *transport) resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse upload url: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(t.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}
