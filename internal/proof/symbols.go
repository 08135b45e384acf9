package proof

import (
	"slices"
	"strings"
	"sync"
)

// SymbolTable maps qualified names ("crate::module::item") to locations.
// It is safe for concurrent readers once built.
type SymbolTable struct {
	mu     sync.RWMutex
	byName map[string]Location
	byFile map[string][]Symbol
}

// Symbol is one table entry.
type Symbol struct {
	Name     string   `json:"name"`
	Location Location `json:"location"`
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]Location), byFile: make(map[string][]Symbol)}
}

// Insert records name at loc. A later insert of the same name wins.
func (t *SymbolTable) Insert(name string, loc Location) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byName[name]; ok {
		t.byFile[old.FilePath] = slices.DeleteFunc(t.byFile[old.FilePath], func(s Symbol) bool { return s.Name == name })
	}
	t.byName[name] = loc
	t.byFile[loc.FilePath] = append(t.byFile[loc.FilePath], Symbol{Name: name, Location: loc})
}

// Lookup resolves a qualified name. A bare suffix such as "helper" or
// "utils::helper" matches when exactly one symbol ends with it.
func (t *SymbolTable) Lookup(name string) (Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if loc, ok := t.byName[name]; ok {
		return loc, true
	}
	var (
		found Location
		hits  int
	)
	for full, loc := range t.byName {
		if strings.HasSuffix(full, "::"+name) {
			found = loc
			hits++
		}
	}
	return found, hits == 1
}

// SymbolAt returns the innermost symbol whose span contains loc.
func (t *SymbolTable) SymbolAt(loc Location) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	best, bestSpan := "", -1
	for _, s := range t.byFile[loc.FilePath] {
		if s.Location.StartLine <= loc.StartLine && s.Location.EndLine >= loc.EndLine {
			span := s.Location.EndLine - s.Location.StartLine
			if bestSpan < 0 || span < bestSpan || span == bestSpan && s.Name < best {
				best, bestSpan = s.Name, span
			}
		}
	}
	return best, bestSpan >= 0
}

// InSpan lists symbols fully inside loc, sorted by location then name.
func (t *SymbolTable) InSpan(loc Location) []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Symbol
	for _, s := range t.byFile[loc.FilePath] {
		if s.Location.StartLine >= loc.StartLine && s.Location.EndLine <= loc.EndLine {
			out = append(out, s)
		}
	}
	sortSymbols(out)
	return out
}

// All returns every symbol sorted by location then name.
func (t *SymbolTable) All() []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Symbol, 0, len(t.byName))
	for name, loc := range t.byName {
		out = append(out, Symbol{Name: name, Location: loc})
	}
	sortSymbols(out)
	return out
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byName)
}

func sortSymbols(s []Symbol) {
	slices.SortFunc(s, func(a, b Symbol) int {
		if a.Location != b.Location {
			if a.Location.Less(b.Location) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}
