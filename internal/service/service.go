// Package service is the protocol-independent core behind the CLI, HTTP and
// JSON-RPC adapters. Adapters translate their input into a Request; the
// service routes on method and path only and answers with a Response.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"pmat/internal/cache"
	"pmat/internal/churn"
	"pmat/internal/config"
	pmerrors "pmat/internal/errors"
	"pmat/internal/history"
	"pmat/internal/parser"
	"pmat/internal/pipeline"
	"pmat/internal/provability"
	"pmat/internal/report"
	"pmat/internal/slogutil"
	"pmat/internal/templates"
)

// Extension keys understood on a Request.
const (
	// ExtProtocol tags the adapter a request arrived through. It is logged
	// and never influences routing.
	ExtProtocol = "protocol"
	// ExtRequestID carries a correlation id.
	ExtRequestID = "request_id"
)

// Content types of response bodies.
const (
	ContentJSON     = "application/json"
	ContentMarkdown = "text/markdown; charset=utf-8"
	ContentText     = "text/plain; charset=utf-8"
)

// Request is one protocol-neutral call. Path may carry a query string.
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Extensions map[string]any    `json:"extensions,omitempty"`
}

// Protocol returns the adapter tag, or "" when unset.
func (r *Request) Protocol() string {
	p, _ := r.Extensions[ExtProtocol].(string)
	return p
}

// Response is the answer to a Request.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string { return r.Headers["Content-Type"] }

// IsJSON reports whether the body is JSON.
func (r *Response) IsJSON() bool { return strings.HasPrefix(r.ContentType(), ContentJSON) }

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// ErrorBody is the body of every failed response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code     pmerrors.ErrorCode `json:"code"`
	Message  string             `json:"message"`
	Problems []pmerrors.Problem `json:"problems,omitempty"`
	Details  map[string]any     `json:"details,omitempty"`
}

// Options configures a Service.
type Options struct {
	Logger   *slog.Logger
	Config   *config.Config
	Registry *parser.Registry
	Catalog  *templates.Catalog

	// CacheDir persists caches on disk. Empty keeps them in memory.
	CacheDir string
	// History records analysis runs when set.
	History *history.Store
	// Now overrides the clock used for report timestamps.
	Now func() time.Time
	// Timeout bounds each request. Zero uses the server config.
	Timeout time.Duration
}

// Service answers requests.
type Service struct {
	logger   *slog.Logger
	cfg      *config.Config
	catalog  *templates.Catalog
	registry *parser.Registry
	pipeline *pipeline.Pipeline
	rendered *cache.Persistent[string, *templates.Generated]
	churn    *churn.Analyzer
	proofs   *provability.Analyzer
	history  *history.Store
	now      func() time.Time
	timeout  time.Duration
	routes   []route
}

// New creates a service. Missing options fall back to defaults: the
// embedded template catalog, the tree-sitter registry and the default
// configuration.
func New(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	catalog := opts.Catalog
	if catalog == nil {
		c, err := templates.Default()
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	registry := opts.Registry
	if registry == nil {
		registry = parser.NewRegistry(parser.Limits{
			MaxFileSize: cfg.Parser.MaxFileSize,
			MaxDepth:    cfg.Parser.MaxDepth,
			MaxNodes:    cfg.Parser.MaxNodes,
			Timeout:     cfg.Parser.Timeout(),
		})
	}

	sub := func(name string) string {
		if opts.CacheDir == "" {
			return ""
		}
		return filepath.Join(opts.CacheDir, name)
	}
	views, err := cache.New(cache.FileStrategy[*parser.View]{
		Namespace: "ast",
		Lifetime:  cfg.Cache.TTL("ast", cache.FileTTL),
		Size:      cache.FileMaxSize,
	}, sub("ast"), cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	rendered, err := cache.New(cache.KeyedStrategy[*templates.Generated]{
		Namespace: "template",
		Lifetime:  cfg.Cache.TTL("template", cache.TemplateTTL),
		Size:      cache.SmallMaxSize,
	}, sub("templates"), cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	churnAnalyzer, err := churn.NewAnalyzer(logger, sub("churn"))
	if err != nil {
		return nil, err
	}
	proofs, err := provability.NewAnalyzer(logger, sub("provability"))
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(cfg.Server.TimeoutMs) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		logger:   logger,
		cfg:      cfg,
		catalog:  catalog,
		registry: registry,
		pipeline: pipeline.New(logger, registry, views),
		rendered: rendered,
		churn:    churnAnalyzer,
		proofs:   proofs,
		history:  opts.History,
		now:      now,
		timeout:  timeout,
	}
	s.routes = s.buildRoutes()
	return s, nil
}

// Catalog returns the template catalog.
func (s *Service) Catalog() *templates.Catalog { return s.catalog }

// Config returns the active configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Handle routes req and always returns a response; failures become error
// bodies with the status mapped from the error code.
func (s *Service) Handle(ctx context.Context, req *Request) (resp *Response) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	path, query := splitQuery(req.Path)
	log := s.logger.With("method", req.Method, "path", path, "protocol", req.Protocol())

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in handler", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			resp = errorResponse(pmerrors.Internal("handler panicked", map[string]any{"path": path}), 0)
		}
	}()

	rt, vars, err := s.match(req.Method, path)
	if err != nil {
		status := 0
		if pmerrors.CodeOf(err) == pmerrors.ProtocolError {
			status = http.StatusMethodNotAllowed
		}
		log.Debug("no route", "error", err)
		return errorResponse(err, status)
	}

	c := &call{req: req, query: query, vars: vars}
	resp, err = rt.handle(ctx, c)
	elapsed := time.Since(start)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		err = pmerrors.FromContext(err, rt.name, elapsed)
		log.Warn("request failed", "route", rt.name, "code", pmerrors.CodeOf(err), "error", err, "elapsed", elapsed)
		return errorResponse(err, 0)
	}
	log.Debug("request served", "route", rt.name, "status", resp.Status, "elapsed", elapsed)
	return resp
}

// Call is a convenience for in-process callers: it builds a request from a
// method, path and JSON-encodable body.
func (s *Service) Call(ctx context.Context, method, path string, body any, protocol string) (*Response, error) {
	req := &Request{Method: method, Path: path, Extensions: map[string]any{ExtProtocol: protocol}}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, pmerrors.New(pmerrors.InvalidInput, "encode request body", err)
		}
		req.Body = data
	}
	return s.Handle(ctx, req), nil
}

func jsonResponse(status int, v any) (*Response, error) {
	var b strings.Builder
	if err := report.Encode(&b, v); err != nil {
		return nil, pmerrors.New(pmerrors.InternalError, "encode response", err)
	}
	return &Response{
		Status:  status,
		Headers: map[string]string{"Content-Type": ContentJSON},
		Body:    []byte(b.String()),
	}, nil
}

func textResponse(contentType, body string) *Response {
	return &Response{
		Status:  http.StatusOK,
		Headers: map[string]string{"Content-Type": contentType},
		Body:    []byte(body),
	}
}

// ErrorResponse renders err as an error body. status overrides the
// mapped HTTP status when non-zero.
func ErrorResponse(err error, status int) *Response { return errorResponse(err, status) }

func errorResponse(err error, status int) *Response {
	detail := ErrorDetail{Code: pmerrors.CodeOf(err), Message: err.Error()}
	if pe, ok := pmerrors.As(err); ok {
		detail.Message = pe.Message
		detail.Problems = pe.Problems
		detail.Details = pe.Details
	}
	if status == 0 {
		status = pmerrors.HTTPStatus(detail.Code)
	}
	data, mErr := json.Marshal(ErrorBody{Error: detail})
	if mErr != nil {
		data = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"encode error"}}`)
	}
	return &Response{
		Status:  status,
		Headers: map[string]string{"Content-Type": ContentJSON},
		Body:    data,
	}
}

// DecodeError extracts the error body of a failed response.
func DecodeError(resp *Response) (ErrorDetail, bool) {
	var b ErrorBody
	if resp.OK() || json.Unmarshal(resp.Body, &b) != nil || b.Error.Code == "" {
		return ErrorDetail{}, false
	}
	return b.Error, true
}

// Err returns the typed error of a failed response, or nil.
func (r *Response) Err() error {
	detail, failed := DecodeError(r)
	if !failed {
		if r.OK() {
			return nil
		}
		return pmerrors.New(pmerrors.InternalError, "unexpected status "+http.StatusText(r.Status), nil)
	}
	return &pmerrors.PmatError{
		Code:     detail.Code,
		Message:  detail.Message,
		Details:  detail.Details,
		Problems: detail.Problems,
	}
}
