package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pmerrors "pmat/internal/errors"
)

// API paths.
const (
	PathHealth      = "/health"
	PathTemplates   = "/api/v1/templates"
	PathGenerate    = "/api/v1/generate"
	PathValidate    = "/api/v1/validate"
	PathSearch      = "/api/v1/search"
	PathScaffold    = "/api/v1/scaffold"
	PathContext     = "/api/v1/context"
	PathAnalyze     = "/api/v1/analyze/"
	PathQualityGate = "/api/v1/quality-gate"
	PathCacheStats  = "/api/v1/cache/stats"
	PathRefactor    = "/api/v1/refactor"
)

type handlerFunc func(ctx context.Context, c *call) (*Response, error)

type route struct {
	name   string
	method string
	path   string
	// prefix matches every path below path; the remainder is vars["rest"].
	prefix bool
	handle handlerFunc
}

// call is one routed request.
type call struct {
	req   *Request
	query url.Values
	vars  map[string]string
}

// decode reads the JSON body into v. An empty body leaves v unchanged.
func (c *call) decode(v any) error {
	body := bytes.TrimSpace(c.req.Body)
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return pmerrors.Invalid(pmerrors.Problem{Field: "body", Message: "malformed JSON: " + err.Error()})
	}
	return nil
}

func (c *call) int(name string) (int, error) {
	raw := c.query.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pmerrors.Invalid(pmerrors.Problem{Field: name, Message: "not an integer: " + raw})
	}
	return n, nil
}

func (s *Service) buildRoutes() []route {
	return []route{
		{name: "health", method: http.MethodGet, path: PathHealth, handle: s.handleHealth},
		{name: "templates", method: http.MethodGet, path: PathTemplates, handle: s.handleListTemplates},
		{name: "template", method: http.MethodGet, path: PathTemplates + "/", prefix: true, handle: s.handleGetTemplate},
		{name: "generate", method: http.MethodPost, path: PathGenerate, handle: s.handleGenerate},
		{name: "validate", method: http.MethodPost, path: PathValidate, handle: s.handleValidate},
		{name: "search", method: http.MethodGet, path: PathSearch, handle: s.handleSearch},
		{name: "scaffold", method: http.MethodPost, path: PathScaffold, handle: s.handleScaffold},
		{name: "context", method: http.MethodPost, path: PathContext, handle: s.handleContext},
		{name: "analyze", method: http.MethodPost, path: PathAnalyze, prefix: true, handle: s.handleAnalyze},
		{name: "quality-gate", method: http.MethodPost, path: PathQualityGate, handle: s.handleQualityGate},
		{name: "cache-stats", method: http.MethodGet, path: PathCacheStats, handle: s.handleCacheStats},
		{name: "refactor", method: http.MethodPost, path: PathRefactor, handle: s.handleRefactor},
	}
}

// Routes lists the served method and path pairs.
func (s *Service) Routes() [][2]string {
	out := make([][2]string, 0, len(s.routes))
	for _, rt := range s.routes {
		p := rt.path
		if rt.prefix {
			p += "{rest}"
		}
		out = append(out, [2]string{rt.method, p})
	}
	return out
}

// match finds the route for method and path. A known path with the wrong
// method is a protocol error; an unknown path is not found.
func (s *Service) match(method, path string) (route, map[string]string, error) {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	var allowed []string
	for _, rt := range s.routes {
		vars, ok := rt.matches(path)
		if !ok {
			continue
		}
		if rt.method != strings.ToUpper(method) {
			allowed = append(allowed, rt.method)
			continue
		}
		return rt, vars, nil
	}
	if len(allowed) > 0 {
		return route{}, nil, pmerrors.Protocol("method " + method + " not allowed on " + path).
			WithDetail("allowed", allowed)
	}
	return route{}, nil, pmerrors.Missing("endpoint", path)
}

func (rt route) matches(path string) (map[string]string, bool) {
	if !rt.prefix {
		return nil, path == rt.path
	}
	rest, ok := strings.CutPrefix(path, rt.path)
	if !ok || rest == "" {
		return nil, false
	}
	return map[string]string{"rest": rest}, true
}

func splitQuery(raw string) (string, url.Values) {
	path, q, _ := strings.Cut(raw, "?")
	values, err := url.ParseQuery(q)
	if err != nil {
		values = url.Values{}
	}
	return path, values
}
