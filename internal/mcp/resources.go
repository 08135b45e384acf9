package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
	"pmat/internal/templates"
)

// Resource is one readable resource; every template is one.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
}

// ResourceList is the resources/list result.
type ResourceList struct {
	Resources []Resource `json:"resources"`
}

// ResourceContents is one block of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ReadResourceResult is the resources/read result.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

func (s *Server) listResources(ctx context.Context) (*ResourceList, error) {
	resp := s.svc.Handle(ctx, &service.Request{
		Method:     http.MethodGet,
		Path:       service.PathTemplates,
		Extensions: map[string]any{service.ExtProtocol: "mcp"},
	})
	if _, err := toolResult(resp); err != nil {
		return nil, err
	}
	var list service.TemplateList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, pmerrors.New(pmerrors.InternalError, "decode template list", err)
	}
	out := &ResourceList{Resources: make([]Resource, 0, len(list.Templates))}
	for _, t := range list.Templates {
		out.Resources = append(out.Resources, Resource{
			URI:         t.URI,
			Name:        t.Name,
			Description: t.Description,
			MimeType:    service.ContentJSON,
		})
	}
	return out, nil
}

type readParams struct {
	URI string `json:"uri"`
}

func (s *Server) readResource(ctx context.Context, raw json.RawMessage) (*ReadResourceResult, error) {
	var p readParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(p.URI, templates.URIScheme) {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "uri", Message: "unsupported resource " + p.URI})
	}
	path, err := templatePath(map[string]any{"uri": p.URI})
	if err != nil {
		return nil, err
	}
	resp := s.svc.Handle(ctx, &service.Request{
		Method:     http.MethodGet,
		Path:       path,
		Extensions: map[string]any{service.ExtProtocol: "mcp"},
	})
	if _, err := toolResult(resp); err != nil {
		return nil, err
	}
	return &ReadResourceResult{Contents: []ResourceContents{{
		URI:      p.URI,
		MimeType: service.ContentJSON,
		Text:     string(resp.Body),
	}}}, nil
}

// Prompt is a canned request template for clients.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument is one prompt input.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// PromptList is the prompts/list result.
type PromptList struct {
	Prompts []Prompt `json:"prompts"`
}

var prompts = []Prompt{
	{
		Name:        "scaffold_project",
		Description: "Scaffold Makefile, README and .gitignore for a new project",
		Arguments: []PromptArgument{
			{Name: "toolchain", Description: "rust, deno or python-uv", Required: true},
			{Name: "project_name", Description: "Project name", Required: true},
		},
	},
	{
		Name:        "quality_review",
		Description: "Run the quality gate and explain each failing check",
		Arguments: []PromptArgument{
			{Name: "project_path", Description: "Project directory", Required: false},
		},
	},
	{
		Name:        "refactor_hotspots",
		Description: "Rank the most complex files and propose refactorings for the top ones",
		Arguments: []PromptArgument{
			{Name: "project_path", Description: "Project directory", Required: false},
			{Name: "top_files", Description: "How many files to review", Required: false},
		},
	},
}
