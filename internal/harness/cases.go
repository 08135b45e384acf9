package harness

import (
	"net/http"
	"net/url"

	"pmat/internal/service"
)

// Scenarios returns the cases every adapter must agree on. root is the
// project the analysis cases run against.
func Scenarios(root string) []Case {
	gen := map[string]any{
		"template_uri": "template://makefile/rust/cli",
		"parameters":   map[string]any{"project_name": "demo-project"},
	}
	return []Case{
		{
			Name:   "health",
			Method: http.MethodGet,
			Path:   service.PathHealth,
		},
		{
			Name:   "list_rust_templates",
			Method: http.MethodGet,
			Path:   service.PathTemplates + "?" + url.Values{"toolchain": {"rust"}}.Encode(),
			CLI:    []string{"list", "--toolchain", "rust", "--format", "json"},
		},
		{
			Name:   "generate_makefile",
			Method: http.MethodPost,
			Path:   service.PathGenerate,
			Body:   gen,
			CLI:    []string{"generate", "makefile", "rust/cli", "-p", "project_name=demo-project", "--format", "json"},
		},
		{
			Name:   "generate_invalid_parameter",
			Method: http.MethodPost,
			Path:   service.PathGenerate,
			Body: map[string]any{
				"template_uri": "template://makefile/rust/cli",
				"parameters":   map[string]any{"project_name": "9lives"},
			},
			CLI: []string{"generate", "makefile", "rust/cli", "-p", "project_name=9lives", "--format", "json"},
		},
		{
			Name:   "generate_missing_template",
			Method: http.MethodPost,
			Path:   service.PathGenerate,
			Body:   map[string]any{"template_uri": "template://makefile/cobol/cli"},
			CLI:    []string{"generate", "makefile", "cobol/cli", "--format", "json"},
		},
		{
			Name:   "validate_makefile",
			Method: http.MethodPost,
			Path:   service.PathValidate,
			Body:   gen,
			CLI:    []string{"validate", "template://makefile/rust/cli", "-p", "project_name=demo-project", "--format", "json"},
		},
		{
			Name:   "search_makefile",
			Method: http.MethodGet,
			Path:   service.PathSearch + "?" + url.Values{"q": {"makefile"}, "limit": {"3"}}.Encode(),
			CLI:    []string{"search", "makefile", "--limit", "3", "--format", "json"},
		},
		{
			Name:   "analyze_complexity",
			Method: http.MethodPost,
			Path:   service.PathAnalyze + "complexity",
			Body:   map[string]any{"project_path": root},
			CLI:    []string{"analyze", "complexity", "--project-path", root, "--format", "json"},
		},
		{
			Name:   "analyze_satd",
			Method: http.MethodPost,
			Path:   service.PathAnalyze + "satd",
			Body:   map[string]any{"project_path": root},
			CLI:    []string{"analyze", "satd", "--project-path", root, "--format", "json"},
		},
		{
			Name:   "analyze_dead_code",
			Method: http.MethodPost,
			Path:   service.PathAnalyze + "dead-code",
			Body:   map[string]any{"project_path": root},
			CLI:    []string{"analyze", "dead-code", "--project-path", root, "--format", "json"},
		},
		{
			Name:   "analyze_unknown_kind",
			Method: http.MethodPost,
			Path:   service.PathAnalyze + "astrology",
			Body:   map[string]any{"project_path": root},
			CLI:    []string{"analyze", "astrology", "--project-path", root, "--format", "json"},
		},
	}
}
