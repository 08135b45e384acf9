// Package complexity provides language-agnostic complexity metrics over the
// unified AST.
package complexity

import "pmat/internal/parser"

// Metrics contains complexity metrics for a single unit (function, class or file).
type Metrics struct {
	// Cyclomatic is the cyclomatic complexity (decision points + 1)
	Cyclomatic int `json:"cyclomatic"`

	// Cognitive is the cognitive complexity (nested depth weighted)
	Cognitive int `json:"cognitive"`

	// NestingMax is the deepest nesting of control structures
	NestingMax int `json:"nesting_max"`

	// Lines is the number of lines in the unit
	Lines int `json:"lines"`
}

// FunctionComplexity contains metrics for one function or method.
type FunctionComplexity struct {
	Name      string  `json:"name"`
	StartLine int     `json:"line_start"`
	EndLine   int     `json:"line_end"`
	Metrics   Metrics `json:"metrics"`
}

// ClassComplexity contains metrics for a class-like declaration and its methods.
type ClassComplexity struct {
	Name      string               `json:"name"`
	StartLine int                  `json:"line_start"`
	EndLine   int                  `json:"line_end"`
	Metrics   Metrics              `json:"metrics"`
	Methods   []FunctionComplexity `json:"methods"`
}

// FileMetrics contains complexity metrics for an entire file.
type FileMetrics struct {
	// Path is the file path
	Path string `json:"path"`

	// Language is the detected language
	Language parser.Language `json:"language"`

	// Total sums cyclomatic and cognitive complexity over every function
	Total Metrics `json:"total_complexity"`

	// Functions holds free functions, closures and lambdas
	Functions []FunctionComplexity `json:"functions"`

	// Classes holds class-like declarations with their methods
	Classes []ClassComplexity `json:"classes"`

	// Error is set if analysis failed
	Error string `json:"error,omitempty"`
}

// AllFunctions returns free functions followed by every class method.
func (fm *FileMetrics) AllFunctions() []FunctionComplexity {
	out := make([]FunctionComplexity, 0, len(fm.Functions))
	out = append(out, fm.Functions...)
	for _, c := range fm.Classes {
		out = append(out, c.Methods...)
	}
	return out
}

// FunctionCount returns the number of functions including methods.
func (fm *FileMetrics) FunctionCount() int {
	n := len(fm.Functions)
	for _, c := range fm.Classes {
		n += len(c.Methods)
	}
	return n
}

// aggregate computes file totals from function results.
func (fm *FileMetrics) aggregate() {
	for _, f := range fm.AllFunctions() {
		fm.Total.Cyclomatic += f.Metrics.Cyclomatic
		fm.Total.Cognitive += f.Metrics.Cognitive
		if f.Metrics.NestingMax > fm.Total.NestingMax {
			fm.Total.NestingMax = f.Metrics.NestingMax
		}
	}
}
