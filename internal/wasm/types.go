// Package wasm analyzes WebAssembly binaries, WAT text modules and
// AssemblyScript sources.
package wasm

// Format is the kind of source a file holds.
type Format string

const (
	FormatBinary         Format = "wasm"
	FormatText           Format = "wat"
	FormatAssemblyScript Format = "assemblyscript"
)

// Section is one entry of a binary module's section table.
type Section struct {
	ID     byte   `json:"id"`
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
}

// MemoryOpStats counts memory-touching instructions.
type MemoryOpStats struct {
	Loads   int `json:"loads"`
	Stores  int `json:"stores"`
	Grows   int `json:"grows"`
	Sizes   int `json:"sizes"`
	Bulk    int `json:"bulk"`
	Atomics int `json:"atomics"`
	SIMD    int `json:"simd"`
}

func (s *MemoryOpStats) add(o MemoryOpStats) {
	s.Loads += o.Loads
	s.Stores += o.Stores
	s.Grows += o.Grows
	s.Sizes += o.Sizes
	s.Bulk += o.Bulk
	s.Atomics += o.Atomics
	s.SIMD += o.SIMD
}

// FunctionMetrics describes one defined function.
type FunctionMetrics struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	// Line is set for text modules only.
	Line          int           `json:"line,omitempty"`
	Size          int           `json:"size,omitempty"`
	Locals        int           `json:"locals"`
	Instructions  int           `json:"instructions"`
	Cyclomatic    int           `json:"cyclomatic"`
	MaxBlockDepth int           `json:"max_block_depth"`
	MaxLoopDepth  int           `json:"max_loop_depth"`
	Calls         int           `json:"calls"`
	IndirectCalls int           `json:"indirect_calls"`
	Memory        MemoryOpStats `json:"memory"`
	// Truncated is set when decoding stopped at an instruction whose
	// immediates are not decoded.
	Truncated bool `json:"truncated,omitempty"`
}

// Module holds the structure of a binary or text module.
type Module struct {
	Format            Format            `json:"format"`
	Version           uint32            `json:"version,omitempty"`
	Sections          []Section         `json:"sections,omitempty"`
	Types             int               `json:"types"`
	Imports           int               `json:"imports"`
	ImportedFunctions int               `json:"imported_functions"`
	Functions         int               `json:"functions"`
	Tables            int               `json:"tables"`
	MaxTableSize      uint32            `json:"max_table_size"`
	Memories          int               `json:"memories"`
	MemoryPages       uint32            `json:"memory_pages"`
	MaxMemoryPages    uint32            `json:"max_memory_pages,omitempty"`
	HasMemoryMax      bool              `json:"has_memory_max"`
	Globals           int               `json:"globals"`
	Exports           int               `json:"exports"`
	Elements          int               `json:"elements"`
	DataSegments      int               `json:"data_segments"`
	HasStart          bool              `json:"has_start"`
	CustomSections    []string          `json:"custom_sections,omitempty"`
	Bodies            []FunctionMetrics `json:"bodies"`
}

// TotalFunctions counts imported and defined functions.
func (m *Module) TotalFunctions() int { return m.ImportedFunctions + m.Functions }

// Summary aggregates function bodies.
type Summary struct {
	Functions     int           `json:"functions"`
	Instructions  int           `json:"instructions"`
	AvgCyclomatic float64       `json:"avg_cyclomatic"`
	MaxCyclomatic int           `json:"max_cyclomatic"`
	MaxLoopDepth  int           `json:"max_loop_depth"`
	IndirectCalls int           `json:"indirect_calls"`
	Memory        MemoryOpStats `json:"memory"`
}

// Summarize aggregates the module's bodies.
func (m *Module) Summarize() Summary {
	s := Summary{Functions: len(m.Bodies)}
	total := 0
	for _, b := range m.Bodies {
		s.Instructions += b.Instructions
		total += b.Cyclomatic
		s.MaxCyclomatic = max(s.MaxCyclomatic, b.Cyclomatic)
		s.MaxLoopDepth = max(s.MaxLoopDepth, b.MaxLoopDepth)
		s.IndirectCalls += b.IndirectCalls
		s.Memory.add(b.Memory)
	}
	if len(m.Bodies) > 0 {
		s.AvgCyclomatic = float64(total) / float64(len(m.Bodies))
	}
	return s
}
