package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"pmat/internal/cache"
	pmerrors "pmat/internal/errors"
	"pmat/internal/pipeline"
	"pmat/internal/projectctx"
	"pmat/internal/report"
	"pmat/internal/repostate"
	"pmat/internal/templates"
	"pmat/internal/version"
)

// HealthStatus is the /health body.
type HealthStatus struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Templates int    `json:"templates"`
}

func (s *Service) handleHealth(_ context.Context, _ *call) (*Response, error) {
	return jsonResponse(http.StatusOK, HealthStatus{Status: "healthy", Version: version.Version, Templates: s.catalog.Len()})
}

// TemplateList is the template listing body.
type TemplateList struct {
	Templates []templates.Template `json:"templates"`
	Total     int                  `json:"total"`
}

func (s *Service) handleListTemplates(_ context.Context, c *call) (*Response, error) {
	list, err := s.catalog.List(c.query.Get("toolchain"), c.query.Get("category"))
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, TemplateList{Templates: list, Total: len(list)})
}

func (s *Service) handleGetTemplate(_ context.Context, c *call) (*Response, error) {
	t, err := s.catalog.Get(templates.URIScheme + c.vars["rest"])
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, t)
}

// GenerateRequest renders one template.
type GenerateRequest struct {
	TemplateURI string         `json:"template_uri"`
	Parameters  map[string]any `json:"parameters"`
}

func (r GenerateRequest) check() error {
	if strings.TrimSpace(r.TemplateURI) == "" {
		return pmerrors.Invalid(pmerrors.Problem{Field: "template_uri", Message: "required"})
	}
	return nil
}

func (s *Service) handleGenerate(_ context.Context, c *call) (*Response, error) {
	var req GenerateRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	g, err := s.Generate(req.TemplateURI, req.Parameters)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, g)
}

// Generate renders a template through the rendered-template cache.
func (s *Service) Generate(uri string, params map[string]any) (*templates.Generated, error) {
	if params == nil {
		params = map[string]any{}
	}
	key, err := json.Marshal(params)
	if err != nil {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "parameters", Message: err.Error()})
	}
	return s.rendered.GetOrCompute(uri+"?"+string(key), func() (*templates.Generated, error) {
		return s.catalog.Generate(uri, params)
	})
}

func (s *Service) handleValidate(_ context.Context, c *call) (*Response, error) {
	var req GenerateRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	res, err := s.catalog.Validate(req.TemplateURI, req.Parameters)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, res)
}

// SearchResults is the search body.
type SearchResults struct {
	Query   string                   `json:"query"`
	Results []templates.SearchResult `json:"results"`
}

func (s *Service) handleSearch(_ context.Context, c *call) (*Response, error) {
	q := c.query.Get("q")
	if strings.TrimSpace(q) == "" {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "q", Message: "required"})
	}
	limit, err := c.int("limit")
	if err != nil {
		return nil, err
	}
	res := s.catalog.Search(q, templates.Toolchain(c.query.Get("toolchain")), limit)
	if res == nil {
		res = []templates.SearchResult{}
	}
	return jsonResponse(http.StatusOK, SearchResults{Query: q, Results: res})
}

// ScaffoldRequest renders a template set for one toolchain.
type ScaffoldRequest struct {
	Toolchain  string         `json:"toolchain"`
	Templates  []string       `json:"templates"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Service) handleScaffold(ctx context.Context, c *call) (*Response, error) {
	var req ScaffoldRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	cats := make([]templates.Category, 0, len(req.Templates))
	for _, t := range req.Templates {
		cats = append(cats, templates.Category(strings.TrimSpace(t)))
	}
	res, err := s.catalog.Scaffold(ctx, templates.Toolchain(req.Toolchain), cats, req.Parameters)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, res)
}

// ContextRequest asks for a whole-project AST context.
type ContextRequest struct {
	ProjectPath string `json:"project_path"`
	Toolchain   string `json:"toolchain,omitempty"`
	Format      string `json:"format,omitempty"`
}

func (s *Service) handleContext(ctx context.Context, c *call) (*Response, error) {
	var req ContextRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	format, err := report.ParseFormat(req.Format, report.FormatJSON, report.FormatMarkdown)
	if err != nil {
		return nil, err
	}
	pc, err := s.Context(ctx, req.ProjectPath, req.Toolchain)
	if err != nil {
		return nil, err
	}
	if format == report.FormatMarkdown {
		return textResponse(ContentMarkdown, pc.Markdown()), nil
	}
	return jsonResponse(http.StatusOK, pc)
}

// Context builds the project context of root.
func (s *Service) Context(ctx context.Context, root, toolchain string) (*projectctx.Context, error) {
	proj, err := s.load(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	meta, err := projectctx.DetectMetadata(proj.Root)
	if err != nil {
		return nil, err
	}
	return projectctx.Build(proj, meta, projectctx.Options{Toolchain: toolchain, Now: s.now()})
}

// load resolves root and parses the project. An empty root is the
// repository around the working directory; any directory is accepted.
func (s *Service) load(ctx context.Context, root string, exclude []string) (*pipeline.Project, error) {
	abs, err := repostate.Resolve(strings.TrimSpace(root), false)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Load(ctx, abs, pipeline.Options{Exclude: append(append([]string{}, s.cfg.Exclude...), exclude...)})
}

// CacheStats reports per-cache counters.
type CacheStats struct {
	Templates   cache.StatsSnapshot `json:"templates"`
	Provability cache.StatsSnapshot `json:"provability"`
	Entries     int                 `json:"template_entries"`
}

func (s *Service) handleCacheStats(_ context.Context, _ *call) (*Response, error) {
	return jsonResponse(http.StatusOK, CacheStats{
		Templates:   s.rendered.Stats(),
		Provability: s.proofs.CacheStats(),
		Entries:     s.rendered.Len(),
	})
}
