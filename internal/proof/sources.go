package proof

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pmat/internal/classifier"
	pmerrors "pmat/internal/errors"
)

// walk applies fn to each accepted file under root, stopping when ctx ends.
func walk(ctx context.Context, root string, accept func(rel string) bool, fn func(rel, abs string)) error {
	files, err := classifier.Discover(ctx, root, classifier.DiscoverOptions{Accept: accept})
	if err != nil {
		return err
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(rel, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return nil
}

// RustSafety derives guarantees that safe Rust gets from the compiler:
// memory safety for functions without unsafe code, termination for const
// fns, and thread safety for Send/Sync impls.
type RustSafety struct {
	Channel string
	Version string
}

var (
	rustFn       = regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?((?:(?:const|async|unsafe|extern\s+"[^"]*")\s+)*)fn\s+([A-Za-z_]\w*)`)
	rustAutoImpl = regexp.MustCompile(`^\s*(unsafe\s+)?impl(?:<[^>]*>)?\s+(?:[\w:]+::)?(Send|Sync|Unpin)\s+for\s+`)
	unsafeWord   = regexp.MustCompile(`\bunsafe\b`)
)

func (b RustSafety) Name() string { return "borrow-checker" }

func (b RustSafety) tool() (string, string) {
	ch, v := b.Channel, b.Version
	if ch == "" {
		ch = "stable"
	}
	if v == "" {
		v = "unknown"
	}
	return "rustc-" + ch, v
}

func (b RustSafety) Collect(ctx context.Context, root string, cache *Cache, _ *SymbolTable) (*Result, error) {
	start := time.Now()
	res := &Result{}
	err := walk(ctx, root, func(rel string) bool { return strings.HasSuffix(rel, ".rs") }, func(rel, abs string) {
		res.Metrics.FilesProcessed++
		anns, hit, err := cache.FileAnnotations(b.Name(), abs, func(content []byte) ([]Located, error) {
			return b.analyze(rel, content), nil
		})
		if err != nil {
			res.Errors = append(res.Errors, pmerrors.Parse(rel, "read failed", err))
			return
		}
		if hit {
			res.Metrics.CacheHits++
		}
		res.Annotations = append(res.Annotations, anns...)
	})
	if err != nil {
		return nil, err
	}
	res.Metrics.Duration = time.Since(start)
	return res, nil
}

func (b RustSafety) analyze(rel string, content []byte) []Located {
	tool, version := b.tool()
	lines := strings.Split(string(content), "\n")
	var out []Located
	for i, line := range lines {
		if m := rustAutoImpl.FindStringSubmatch(line); m != nil {
			if m[1] != "" {
				continue
			}
			loc := Location{FilePath: rel, StartLine: i + 1, EndLine: blockEnd(lines, i)}
			prop := ThreadSafety
			if m[2] == "Unpin" {
				prop = MemorySafety
			}
			a := New(prop, Method{Kind: BorrowChecker}, tool, version, High, m[2]+" auto trait implementation")
			a.SpecificationID = "auto_trait_" + m[2]
			out = append(out, Located{Location: loc, Annotation: a})
			continue
		}
		m := rustFn.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		end := blockEnd(lines, i)
		if end == 0 {
			continue // declaration without a body
		}
		body := strings.Join(lines[i:end], "\n")
		if strings.Contains(m[1], "unsafe") || unsafeWord.MatchString(body) {
			continue
		}
		loc := Location{FilePath: rel, StartLine: i + 1, EndLine: end}
		out = append(out, Located{Location: loc, Annotation: New(MemorySafety, Method{Kind: BorrowChecker}, tool, version, High,
			"Safe Rust subset", "No compiler bugs")})
		if strings.Contains(m[1], "const") {
			out = append(out, Located{Location: loc, Annotation: New(Termination, Method{Kind: BorrowChecker}, tool, version, High,
				"const fn restrictions guarantee termination")})
		}
	}
	return out
}

// blockEnd finds the 1-based line closing the first brace opened at or
// after line i, or 0 when a semicolon ends the item first.
func blockEnd(lines []string, i int) int {
	depth, opened := 0, false
	for j := i; j < len(lines); j++ {
		line := lines[j]
		if k := strings.Index(line, "//"); k >= 0 {
			line = line[:k]
		}
		for _, c := range line {
			switch c {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth == 0 {
					return j + 1
				}
			case ';':
				if !opened {
					return 0
				}
			}
		}
	}
	return 0
}

// Companion reads hand-written proof records from YAML files next to the
// sources: "<file>.proof.yaml" or anything under ".pmat/proofs/".
type Companion struct{}

// companionFile is the on-disk format.
type companionFile struct {
	Annotations []companionEntry `yaml:"annotations"`
}

type companionEntry struct {
	Symbol           string   `yaml:"symbol"`
	File             string   `yaml:"file"`
	StartLine        int      `yaml:"start_line"`
	EndLine          int      `yaml:"end_line"`
	Property         Property `yaml:"property"`
	Specification    string   `yaml:"specification_id"`
	Method           Method   `yaml:"method"`
	Tool             string   `yaml:"tool"`
	Version          string   `yaml:"version"`
	Confidence       string   `yaml:"confidence"`
	Assumptions      []string `yaml:"assumptions"`
	Evidence         string   `yaml:"evidence_type"`
	EvidenceLocation string   `yaml:"evidence_location"`
}

func (Companion) Name() string { return "companion-files" }

func isCompanion(rel string) bool {
	if strings.HasSuffix(rel, ".proof.yaml") || strings.HasSuffix(rel, ".proof.yml") {
		return true
	}
	return strings.Contains("/"+rel, "/.pmat/proofs/") && (path.Ext(rel) == ".yaml" || path.Ext(rel) == ".yml")
}

func (c Companion) Collect(ctx context.Context, root string, cache *Cache, symbols *SymbolTable) (*Result, error) {
	start := time.Now()
	res := &Result{}
	files, err := classifier.Discover(ctx, root, classifier.DiscoverOptions{Accept: isCompanion})
	if err != nil {
		return nil, err
	}
	// Discovery never enters .pmat, so its proofs directory is listed separately.
	extra, _ := classifier.Discover(ctx, filepath.Join(root, ".pmat", "proofs"), classifier.DiscoverOptions{})
	for _, rel := range extra {
		if rel = ".pmat/proofs/" + rel; isCompanion(rel) {
			files = append(files, rel)
		}
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Metrics.FilesProcessed++
		abs := filepath.Join(root, filepath.FromSlash(rel))
		anns, hit, err := cache.FileAnnotations(c.Name(), abs, func(content []byte) ([]Located, error) {
			return c.parse(rel, content, symbols)
		})
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if hit {
			res.Metrics.CacheHits++
		}
		res.Annotations = append(res.Annotations, anns...)
	}
	res.Metrics.Duration = time.Since(start)
	return res, nil
}

func (Companion) parse(rel string, content []byte, symbols *SymbolTable) ([]Located, error) {
	var f companionFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, pmerrors.Parse(rel, "invalid proof companion file", err)
	}
	target := strings.TrimSuffix(strings.TrimSuffix(rel, ".proof.yaml"), ".proof.yml")
	out := make([]Located, 0, len(f.Annotations))
	for i, e := range f.Annotations {
		loc, err := e.location(target, symbols)
		if err != nil {
			return nil, pmerrors.Parse(rel, fmt.Sprintf("annotation %d", i), err)
		}
		conf := Medium
		if e.Confidence != "" {
			if conf, err = ParseConfidence(e.Confidence); err != nil {
				return nil, pmerrors.Parse(rel, fmt.Sprintf("annotation %d", i), err)
			}
		}
		if e.Property == "" {
			return nil, pmerrors.Parse(rel, fmt.Sprintf("annotation %d: property is required", i), nil)
		}
		if e.Method.Kind == "" {
			e.Method.Kind = FormalProof
		}
		a := New(e.Property, e.Method, e.Tool, e.Version, conf, e.Assumptions...)
		a.SpecificationID = e.Specification
		a.EvidenceType = ProofScriptReference
		if e.Evidence != "" {
			a.EvidenceType = EvidenceType(e.Evidence)
		}
		a.EvidenceLocation = e.EvidenceLocation
		out = append(out, Located{Location: loc, Annotation: a})
	}
	return out, nil
}

func (e companionEntry) location(target string, symbols *SymbolTable) (Location, error) {
	if e.Symbol != "" {
		if loc, ok := symbols.Lookup(e.Symbol); ok {
			return loc, nil
		}
		return Location{}, fmt.Errorf("unknown symbol %q", e.Symbol)
	}
	file := e.File
	if file == "" {
		file = target
	}
	if e.StartLine <= 0 {
		return Location{}, fmt.Errorf("either symbol or start_line is required")
	}
	end := max(e.EndLine, e.StartLine)
	return Location{FilePath: file, StartLine: e.StartLine, EndLine: end}, nil
}
