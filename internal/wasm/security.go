package wasm

import "fmt"

// SecurityConfig bounds what a module may declare.
type SecurityConfig struct {
	MaxFileSize    int64  `json:"max_file_size" mapstructure:"max_file_size"`
	MaxFunctions   int    `json:"max_functions" mapstructure:"max_functions"`
	MaxMemoryPages uint32 `json:"max_memory_pages" mapstructure:"max_memory_pages"`
	MaxTableSize   uint32 `json:"max_table_size" mapstructure:"max_table_size"`
	MaxImports     int    `json:"max_imports" mapstructure:"max_imports"`
}

// DefaultSecurityConfig allows 50MB files, 10000 functions, the full 4GB
// of memory pages, 10000 table entries and 1000 imports.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFileSize:    50 * 1024 * 1024,
		MaxFunctions:   10000,
		MaxMemoryPages: 65536,
		MaxTableSize:   10000,
		MaxImports:     1000,
	}
}

// IssueSeverity grades a security finding.
type IssueSeverity string

const (
	IssueCritical IssueSeverity = "critical"
	IssueHigh     IssueSeverity = "high"
	IssueMedium   IssueSeverity = "medium"
	IssueLow      IssueSeverity = "low"
)

// Issue is one security finding.
type Issue struct {
	Rule     string        `json:"rule"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// Validate checks a module against the configured limits.
func (c SecurityConfig) Validate(m *Module, size int64) []Issue {
	issues := []Issue{}
	add := func(rule string, sev IssueSeverity, format string, args ...any) {
		issues = append(issues, Issue{Rule: rule, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}
	if c.MaxFileSize > 0 && size > c.MaxFileSize {
		add("file-size", IssueHigh, "module is %d bytes, limit is %d", size, c.MaxFileSize)
	}
	if c.MaxFunctions > 0 && m.TotalFunctions() > c.MaxFunctions {
		add("function-count", IssueMedium, "module declares %d functions, limit is %d", m.TotalFunctions(), c.MaxFunctions)
	}
	if c.MaxMemoryPages > 0 && m.MemoryPages > c.MaxMemoryPages {
		add("memory-pages", IssueHigh, "initial memory of %d pages exceeds %d", m.MemoryPages, c.MaxMemoryPages)
	}
	if c.MaxMemoryPages > 0 && m.HasMemoryMax && m.MaxMemoryPages > c.MaxMemoryPages {
		add("memory-pages", IssueHigh, "maximum memory of %d pages exceeds %d", m.MaxMemoryPages, c.MaxMemoryPages)
	}
	if c.MaxTableSize > 0 && m.MaxTableSize > c.MaxTableSize {
		add("table-size", IssueMedium, "table of %d entries exceeds %d", m.MaxTableSize, c.MaxTableSize)
	}
	if c.MaxImports > 0 && m.Imports > c.MaxImports {
		add("import-count", IssueMedium, "module has %d imports, limit is %d", m.Imports, c.MaxImports)
	}

	grows := 0
	for _, b := range m.Bodies {
		grows += b.Memory.Grows
	}
	if m.Memories > 0 && !m.HasMemoryMax && grows > 0 {
		add("unbounded-memory", IssueLow, "memory.grow is used on a memory without a maximum")
	}
	return issues
}
