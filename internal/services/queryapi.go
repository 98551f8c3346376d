package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/models"
)

// QueryAPI is the client of the natural-language-to-SQL server. It centralizes the base URL, the
// default timeout and the JSON content type for every call, and runs every request through a chain
// of request and response interceptors.
type QueryAPI struct {
	baseURL string
	timeout time.Duration

	client *http.Client

	logger *slog.Logger
}

// RequestInterceptor observes an outgoing request before it is sent. The installed defaults never
// fail; a caller-supplied interceptor may return an error to abort the request with it.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor observes the outcome of a request. It must return the response and error it
// was given; interceptors are observation points and never alter the outcome.
type ResponseInterceptor func(req *http.Request, res *http.Response, err error) (*http.Response, error)

// QueryAPIOption configures a QueryAPI.
type QueryAPIOption func(*interceptorTransport)

type askRequest struct {
	Question string `json:"question"`
}

type errorBody struct {
	Detail any `json:"detail"`
}

type interceptorTransport struct {
	base http.RoundTripper

	onRequest  []RequestInterceptor
	onResponse []ResponseInterceptor
}

const (
	// DefaultBaseURL is the address of the question-answering server.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout applies to every call that doesn't override it.
	DefaultTimeout = 30 * time.Second
)

// ErrEmptyQuestion is returned by Ask when the question is empty or whitespace-only.
var ErrEmptyQuestion = errors.New("question is required")

// NewQueryAPI creates a new QueryAPI targeting baseURL. An empty baseURL falls back to DefaultBaseURL
// and a non-positive timeout to DefaultTimeout. The auth placeholder and the error-logging
// interceptors are always installed first, before the ones given through opts.
func NewQueryAPI(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...QueryAPIOption) QueryAPI {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	q := QueryAPI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		logger:  logger.With(slog.String("module", "queryapi")),
	}

	t := &interceptorTransport{base: http.DefaultTransport}
	t.onRequest = append(t.onRequest, attachAuth)
	t.onResponse = append(t.onResponse, logErrors(q.logger))

	for _, opt := range opts {
		opt(t)
	}

	q.client = &http.Client{Transport: t}
	return q
}

// WithRequestInterceptor appends an interceptor that runs before every request.
func WithRequestInterceptor(i RequestInterceptor) QueryAPIOption {
	return func(t *interceptorTransport) {
		t.onRequest = append(t.onRequest, i)
	}
}

// WithResponseInterceptor appends an interceptor that runs after every request.
func WithResponseInterceptor(i ResponseInterceptor) QueryAPIOption {
	return func(t *interceptorTransport) {
		t.onResponse = append(t.onResponse, i)
	}
}

// WithTransport sets the transport the interceptors wrap.
func WithTransport(rt http.RoundTripper) QueryAPIOption {
	return func(t *interceptorTransport) {
		t.base = rt
	}
}

// Ask posts question to the query endpoint and returns the parsed answer. The client's default
// timeout applies only when ctx carries no deadline of its own, which is how callers override it.
// Timeouts wrap models.ErrRequestTimeout and non-2xx responses are returned as *models.APIError.
// Nothing is retried.
func (q QueryAPI) Ask(ctx context.Context, question string) (models.ChatResponse, error) {
	if strings.TrimSpace(question) == "" {
		return models.ChatResponse{}, ErrEmptyQuestion
	}

	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("error marshaling request: %w", err)
	}

	var res models.ChatResponse
	if err := q.do(ctx, http.MethodPost, "/query/", bytes.NewReader(body), &res); err != nil {
		return models.ChatResponse{}, err
	}
	return res, nil
}

// Health probes the health endpoint of the server.
func (q QueryAPI) Health(ctx context.Context) (models.Health, error) {
	var res models.Health
	if err := q.do(ctx, http.MethodGet, "/health", nil, &res); err != nil {
		return models.Health{}, err
	}
	return res, nil
}

func (q QueryAPI) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w", models.ErrRequestTimeout, err)
		}
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &models.APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.Body),
		}
	}

	dec := json.NewDecoder(resp.Body)
	// Result cells keep their exact numeric text instead of going through float64.
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w", models.ErrRequestTimeout, err)
		}
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorDetail extracts FastAPI's "detail" field. Validation errors carry a list instead of a string,
// those are returned as compact JSON.
func errorDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(b) == 0 {
		return ""
	}

	var eb errorBody
	if err := json.Unmarshal(b, &eb); err != nil || eb.Detail == nil {
		return ""
	}
	if s, ok := eb.Detail.(string); ok {
		return s
	}
	d, err := json.Marshal(eb.Detail)
	if err != nil {
		return ""
	}
	return string(d)
}

func (t *interceptorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must not modify the caller's request.
	req = req.Clone(req.Context())
	for _, i := range t.onRequest {
		if err := i(req); err != nil {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, err
		}
	}

	res, err := t.base.RoundTrip(req)
	for _, i := range t.onResponse {
		res, err = i(req, res, err)
	}
	return res, err
}

// attachAuth is where credentials would be attached to outgoing requests. The server requires none,
// so it leaves the request untouched.
func attachAuth(*http.Request) error {
	return nil
}

func logErrors(logger *slog.Logger) ResponseInterceptor {
	return func(req *http.Request, res *http.Response, err error) (*http.Response, error) {
		switch {
		case err != nil:
			logger.Error("API Error",
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
				slog.String(errLoggerKey, err.Error()))
		case res.StatusCode < 200 || res.StatusCode > 299:
			logger.Error("API Error",
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
				slog.Int("status", res.StatusCode))
		}
		return res, err
	}
}
