package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/pkg/domain"
)

const defaultMaxResponseBytes = 1 << 20

// Request is one fully rendered HTTP call.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"-"`
	// TimeoutSeconds is clamped to 1-30; zero means the invoker default.
	TimeoutSeconds int `json:"timeout,omitempty"`
	// BodyFormat records how Body was produced.
	BodyFormat Format `json:"-"`
}

// Result is the outcome of one call. Failures are values, not errors.
type Result struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code"`
	Response   any           `json:"response"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"-"`
}

// Store is the variable set a webhook reads from and binds into.
type Store interface {
	Lookup
	Set(name string, value any)
	Unset(name string)
}

// Invoker executes webhook calls. The same Invoker serves design-time tests and runtime calls.
type Invoker struct {
	client           *http.Client
	logger           *slog.Logger
	defaultTimeout   int
	maxResponseBytes int64
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithHTTPClient replaces the HTTP client. Its own Timeout should be zero; the invoker bounds every call.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Invoker) {
		i.client = c
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// WithDefaultTimeout sets the timeout used when a request does not carry one.
func WithDefaultTimeout(seconds int) Option {
	return func(i *Invoker) {
		i.defaultTimeout = seconds
	}
}

// WithMaxResponseBytes caps the response body. A larger body fails the call.
func WithMaxResponseBytes(n int64) Option {
	return func(i *Invoker) {
		i.maxResponseBytes = n
	}
}

// New creates an Invoker.
func New(opts ...Option) *Invoker {
	i := &Invoker{
		client:           &http.Client{},
		logger:           logging.NewNop(),
		defaultTimeout:   domain.DefaultWebhookTimeoutSeconds,
		maxResponseBytes: defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Prepare renders cfg into a Request. URL and header values accept {{name}} placeholders.
// It returns *MissingPropertiesError when a schema-style body cannot be built.
// GET requests pass the same schema gate; the built body is then discarded.
func (i *Invoker) Prepare(cfg domain.WebhookConfig, vars Lookup, builtins Builtins) (Request, error) {
	req := Request{
		URL:            Substitute(cfg.URL, vars, builtins),
		Method:         cfg.HTTPMethod(),
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
	if len(cfg.Headers) > 0 {
		req.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			req.Headers[k] = Substitute(v, vars, builtins)
		}
	}

	body, err := BuildBody(cfg.BodyTemplate, vars, builtins)
	if err != nil {
		return req, err
	}
	if req.Method == http.MethodGet {
		return req, nil
	}
	req.Body = body.Raw
	req.BodyFormat = body.Format
	if len(body.Raw) > 0 && !hasHeader(req.Headers, "Content-Type") {
		if req.Headers == nil {
			req.Headers = make(map[string]string, 1)
		}
		req.Headers["Content-Type"] = body.ContentType()
	}
	return req, nil
}

// Do executes req. Timeouts, network errors and non-2xx answers produce Success=false.
// There are no retries.
func (i *Invoker) Do(ctx context.Context, req Request) Result {
	start := time.Now()
	res := i.do(ctx, req)
	res.Duration = time.Since(start)

	attrs := []any{"webhook_url", req.URL, "method", req.Method, "status_code", res.StatusCode, "duration", res.Duration}
	if res.Success {
		i.logger.Debug("webhook succeeded", attrs...)
	} else {
		i.logger.Warn("webhook failed", append(attrs, "err", res.Error)...)
	}
	return res
}

func (i *Invoker) do(ctx context.Context, req Request) Result {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	if !domain.ValidMethod(method) {
		return Result{Error: fmt.Sprintf("method %s is not allowed", req.Method)}
	}

	seconds := req.TimeoutSeconds
	if seconds == 0 {
		seconds = i.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(domain.ClampTimeout(seconds))*time.Second)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 && method != http.MethodGet {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Result{Error: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Error: fmt.Sprintf("timed out after %ds", domain.ClampTimeout(seconds))}
		}
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, i.maxResponseBytes+1))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("read response: %v", err)}
	}
	if int64(len(raw)) > i.maxResponseBytes {
		return Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("response exceeds %d bytes", i.maxResponseBytes)}
	}

	res := Result{StatusCode: resp.StatusCode, Response: parseResponse(raw)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return res
	}
	res.Success = true
	return res
}

// Invoke prepares and executes cfg, binding the response under its response variable on success.
// A failed call unbinds the response variable. A blocked schema body returns
// *MissingPropertiesError and sends nothing.
func (i *Invoker) Invoke(ctx context.Context, cfg domain.WebhookConfig, vars Store, builtins Builtins) (Result, error) {
	req, err := i.Prepare(cfg, vars, builtins)
	if err != nil {
		return Result{}, err
	}
	res := i.Do(ctx, req)
	if res.Success {
		vars.Set(cfg.ResponseVar(), res.Response)
	} else {
		vars.Unset(cfg.ResponseVar())
	}
	return res, nil
}

func parseResponse(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err == nil {
		return parsed
	}
	return string(raw)
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
