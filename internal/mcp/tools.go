package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
	"pmat/internal/templates"
)

// Tool is one callable tool. Calls forward to a service route.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`

	method string
	// route builds the service path from the call arguments.
	route func(args map[string]any) (string, error)
}

// ToolList is the tools/list result.
type ToolList struct {
	Tools []Tool `json:"tools"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tools/call result. JSON bodies are also returned
// decoded in StructuredContent.
type CallToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) listTools() ToolList {
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return ToolList{Tools: out}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (*CallToolResult, error) {
	var p callParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	tool, ok := s.tools[p.Name]
	if !ok {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "name", Message: "unknown tool " + p.Name})
	}
	path, err := tool.route(p.Arguments)
	if err != nil {
		return nil, err
	}
	req := &service.Request{
		Method:     tool.method,
		Path:       path,
		Extensions: map[string]any{service.ExtProtocol: "mcp"},
	}
	if tool.method == http.MethodPost {
		args := p.Arguments
		if args == nil {
			args = map[string]any{}
		}
		body, err := json.Marshal(args)
		if err != nil {
			return nil, pmerrors.Invalid(pmerrors.Problem{Field: "arguments", Message: err.Error()})
		}
		req.Body = body
	}
	s.logger.Debug("calling tool", "tool", p.Name, "path", path)
	return toolResult(s.svc.Handle(ctx, req))
}

// toolResult converts a service response; failures become JSON-RPC errors.
func toolResult(resp *service.Response) (*CallToolResult, error) {
	if err := resp.Err(); err != nil {
		return nil, err
	}
	res := &CallToolResult{Content: []Content{{Type: "text", Text: string(resp.Body)}}}
	if resp.IsJSON() {
		var v any
		if err := json.Unmarshal(resp.Body, &v); err == nil {
			res.StructuredContent = v
		}
	}
	return res, nil
}

func fixed(path string) func(map[string]any) (string, error) {
	return func(map[string]any) (string, error) { return path, nil }
}

// withQuery turns the arguments of a GET tool into a query string.
func withQuery(path string) func(map[string]any) (string, error) {
	return func(args map[string]any) (string, error) {
		if len(args) == 0 {
			return path, nil
		}
		q := url.Values{}
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := args[k].(type) {
			case nil:
			case float64:
				q.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
			default:
				q.Set(k, fmt.Sprint(v))
			}
		}
		return path + "?" + q.Encode(), nil
	}
}

func templatePath(args map[string]any) (string, error) {
	uri, _ := args["uri"].(string)
	rest, ok := strings.CutPrefix(uri, templates.URIScheme)
	if !ok || rest == "" {
		return "", pmerrors.Invalid(pmerrors.Problem{Field: "uri", Message: "expected " + templates.URIScheme + "<category>/<toolchain>/<variant>"})
	}
	return service.PathTemplates + "/" + rest, nil
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func integer(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func number(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc}
}

func boolean(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func stringList(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Description: desc, Items: &jsonschema.Schema{Type: "string"}}
}

func object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func formatSchema(formats ...string) *jsonschema.Schema {
	enum := make([]any, len(formats))
	for i, f := range formats {
		enum[i] = f
	}
	return &jsonschema.Schema{Type: "string", Description: "Output format", Enum: enum}
}

// analyzeSchema lists the options every analyzer accepts; each reads the
// ones it understands.
func analyzeSchema() *jsonschema.Schema {
	return object(map[string]*jsonschema.Schema{
		"project_path":         str("Project directory; defaults to the repository around the working directory"),
		"format":               formatSchema("json", "sarif", "markdown", "table", "mermaid"),
		"top_files":            integer("Rank and keep the N worst files"),
		"exclude":              stringList("Doublestar globs to skip"),
		"period_days":          integer("Churn window in days"),
		"dag_type":             &jsonschema.Schema{Type: "string", Enum: []any{"call-graph", "import-graph", "inheritance", "full-dependency"}},
		"show_complexity":      boolean("Annotate graph nodes with complexity"),
		"filter_external":      boolean("Drop external nodes from the graph"),
		"max_depth":            integer("Graph depth limit"),
		"include_tests":        boolean("Include test files"),
		"min_confidence":       number("Minimum dead-code confidence"),
		"clone_type":           &jsonschema.Schema{Type: "string", Enum: []any{"all", "type1", "type2", "type3", "type4"}},
		"similarity_threshold": number("Minimum clone similarity"),
		"min_tokens":           integer("Minimum fragment size in tokens"),
		"base_branch":          str("Revision to diff against for incremental coverage"),
		"coverage_file":        str("LCOV tracefile"),
		"record":               boolean("Record the run in the history store"),
		"critical_only":        boolean("Only critical TDG hotspots"),
		"high_risk_only":       boolean("Only high-risk defect predictions"),
		"confidence_threshold": number("Minimum defect prediction confidence"),
		"min_lines":            integer("Skip files shorter than this"),
	})
}

func toolDefinitions() []Tool {
	tools := []Tool{
		{
			Name:        "generate_template",
			Description: "Render a template by URI with the given parameters",
			InputSchema: object(map[string]*jsonschema.Schema{
				"template_uri": str("Template URI, e.g. template://makefile/rust/cli"),
				"parameters":   {Type: "object", Description: "Template parameters"},
			}, "template_uri"),
			method: http.MethodPost,
			route:  fixed(service.PathGenerate),
		},
		{
			Name:        "list_templates",
			Description: "List available templates, optionally filtered",
			InputSchema: object(map[string]*jsonschema.Schema{
				"toolchain": str("rust, deno or python-uv"),
				"category":  str("makefile, readme or gitignore"),
			}),
			method: http.MethodGet,
			route:  withQuery(service.PathTemplates),
		},
		{
			Name:        "get_template",
			Description: "Show one template and its parameter specs",
			InputSchema: object(map[string]*jsonschema.Schema{"uri": str("Template URI")}, "uri"),
			method:      http.MethodGet,
			route:       templatePath,
		},
		{
			Name:        "validate_template",
			Description: "Check parameters against a template without rendering",
			InputSchema: object(map[string]*jsonschema.Schema{
				"template_uri": str("Template URI"),
				"parameters":   {Type: "object"},
			}, "template_uri"),
			method: http.MethodPost,
			route:  fixed(service.PathValidate),
		},
		{
			Name:        "search_templates",
			Description: "Fuzzy search over template names and descriptions",
			InputSchema: object(map[string]*jsonschema.Schema{
				"q":         str("Search query"),
				"toolchain": str("Restrict to a toolchain"),
				"limit":     integer("Maximum results"),
			}, "q"),
			method: http.MethodGet,
			route:  withQuery(service.PathSearch),
		},
		{
			Name:        "scaffold_project",
			Description: "Render a set of templates for one toolchain",
			InputSchema: object(map[string]*jsonschema.Schema{
				"toolchain":  str("rust, deno or python-uv"),
				"templates":  stringList("Categories to render; empty renders all"),
				"parameters": {Type: "object"},
			}, "toolchain"),
			method: http.MethodPost,
			route:  fixed(service.PathScaffold),
		},
		{
			Name:        "generate_context",
			Description: "Summarize a project's files, functions and types",
			InputSchema: object(map[string]*jsonschema.Schema{
				"project_path": str("Project directory"),
				"toolchain":    str("Toolchain hint"),
				"format":       formatSchema("json", "markdown"),
			}),
			method: http.MethodPost,
			route:  fixed(service.PathContext),
		},
		{
			Name:        "quality_gate",
			Description: "Evaluate quality thresholds; passed=false when any check fails",
			InputSchema: object(map[string]*jsonschema.Schema{
				"project_path":       str("Project directory"),
				"format":             formatSchema("json", "sarif", "markdown", "table"),
				"checks":             stringList("complexity, dead-code, entropy, provability, satd or all"),
				"exclude":            stringList("Doublestar globs to skip"),
				"max_complexity_p99": integer("Override the p99 cyclomatic limit"),
				"max_dead_code":      number("Override the dead-code percentage limit"),
				"min_entropy":        number("Override the identifier entropy floor"),
				"min_provability":    number("Override the provability floor"),
				"max_satd_critical":  integer("Override the critical SATD limit"),
			}),
			method: http.MethodPost,
			route:  fixed(service.PathQualityGate),
		},
		{
			Name:        "refactor",
			Description: "Run the refactor state machine and list suggested operations",
			InputSchema: object(map[string]*jsonschema.Schema{
				"project_path": str("Project directory"),
				"format":       formatSchema("json", "markdown"),
				"files":        stringList("Targets; empty uses every parsed file"),
				"exclude":      stringList("Doublestar globs to skip"),
				"resume":       boolean("Continue from the saved snapshot"),
				"max_steps":    integer("Stop after N transitions and keep the snapshot"),
				"test_command": str("Command recorded for the test state"),
				"patches":      boolean("Include unified diffs for each suggestion"),
			}),
			method: http.MethodPost,
			route:  fixed(service.PathRefactor),
		},
		{
			Name:        "health",
			Description: "Report server status and version",
			InputSchema: object(map[string]*jsonschema.Schema{}),
			method:      http.MethodGet,
			route:       fixed(service.PathHealth),
		},
		{
			Name:        "cache_stats",
			Description: "Report cache hit and miss counters",
			InputSchema: object(map[string]*jsonschema.Schema{}),
			method:      http.MethodGet,
			route:       fixed(service.PathCacheStats),
		},
	}
	for _, k := range service.Kinds {
		tools = append(tools, Tool{
			Name:        "analyze_" + strings.ReplaceAll(string(k), "-", "_"),
			Description: "Run the " + string(k) + " analyzer",
			InputSchema: analyzeSchema(),
			method:      http.MethodPost,
			route:       fixed(service.PathAnalyze + string(k)),
		})
	}
	return tools
}

// ToolCall finds the tool serving method and path and the arguments that
// reproduce the request. Query parameters become string arguments.
func ToolCall(method, path string, body []byte) (string, map[string]any, error) {
	base, rawQuery, _ := strings.Cut(path, "?")
	args := map[string]any{}
	if method == http.MethodPost && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			return "", nil, pmerrors.Invalid(pmerrors.Problem{Field: "body", Message: err.Error()})
		}
	}
	if rawQuery != "" {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return "", nil, pmerrors.Invalid(pmerrors.Problem{Field: "query", Message: err.Error()})
		}
		for k := range q {
			args[k] = q.Get(k)
		}
	}
	if rest, ok := strings.CutPrefix(base, service.PathTemplates+"/"); ok && method == http.MethodGet {
		args["uri"] = templates.URIScheme + rest
		return "get_template", args, nil
	}
	for _, t := range toolDefinitions() {
		if t.method != method {
			continue
		}
		if p, err := t.route(nil); err == nil && p == base {
			return t.Name, args, nil
		}
	}
	return "", nil, pmerrors.Missing("tool", method+" "+base)
}
