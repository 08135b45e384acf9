// Package duplicates finds Type 1 to Type 4 code clones across the
// functions of an analysis arena.
package duplicates

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"pmat/internal/ast"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/slogutil"
)

// CloneType is the clone class of a group or instance.
type CloneType int

const (
	Type1 CloneType = iota + 1
	Type2
	Type3
	Type4
)

func (t CloneType) String() string {
	switch t {
	case Type1:
		return "exact"
	case Type2:
		return "renamed"
	case Type3:
		return "gapped"
	case Type4:
		return "semantic"
	default:
		return "unknown"
	}
}

// MarshalText encodes the class as "type1".."type4".
func (t CloneType) MarshalText() ([]byte, error) {
	return []byte("type" + string(rune('0'+int(t)))), nil
}

// UnmarshalText accepts "type1".."type4" and the class names.
func (t *CloneType) UnmarshalText(b []byte) error {
	v, err := ParseCloneType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseCloneType parses "type1".."type4", "1".."4" or a class name.
func ParseCloneType(s string) (CloneType, error) {
	for t := Type1; t <= Type4; t++ {
		text, _ := t.MarshalText()
		if s == string(text) || s == t.String() || s == string(rune('0'+int(t))) {
			return t, nil
		}
	}
	return 0, pmerrors.Invalid(pmerrors.Problem{Field: "clone_type", Message: "unknown clone type " + s})
}

// Config tunes detection.
type Config struct {
	MinTokens int `json:"min_tokens"`
	// ShingleSize is the token window for MinHash shingles.
	ShingleSize         int     `json:"shingle_size"`
	LSHTables           int     `json:"lsh_tables"`
	LSHProjections      int     `json:"lsh_projections"`
	LSHRows             int     `json:"lsh_rows"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	SemanticThreshold   float64 `json:"semantic_threshold"`
	ANNTables           int     `json:"ann_tables"`
	ANNBits             int     `json:"ann_bits"`
	MinGroupSize        int     `json:"min_group_size"`
	// Types restricts detection to the listed classes; empty means all.
	Types []CloneType `json:"types,omitempty"`
}

// DefaultConfig returns the stock detection settings.
func DefaultConfig() Config {
	return Config{
		MinTokens:           50,
		ShingleSize:         5,
		LSHTables:           16,
		LSHProjections:      32,
		LSHRows:             4,
		SimilarityThreshold: 0.7,
		SemanticThreshold:   0.85,
		ANNTables:           16,
		ANNBits:             8,
		MinGroupSize:        2,
	}
}

// Validate reports every bad setting.
func (c Config) Validate() error {
	var problems []pmerrors.Problem
	if c.MinTokens < 1 {
		problems = append(problems, pmerrors.Problem{Field: "min_tokens", Message: "must be positive"})
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		problems = append(problems, pmerrors.Problem{Field: "similarity_threshold", Message: "must be in (0, 1]"})
	}
	if c.SemanticThreshold <= 0 || c.SemanticThreshold > 1 {
		problems = append(problems, pmerrors.Problem{Field: "semantic_threshold", Message: "must be in (0, 1]"})
	}
	if c.LSHTables < 1 || c.LSHProjections < 1 {
		problems = append(problems, pmerrors.Problem{Field: "lsh_tables", Message: "tables and projections must be positive"})
	}
	if c.ANNBits < 1 || c.ANNBits > 64 || c.ANNTables < 1 {
		problems = append(problems, pmerrors.Problem{Field: "ann_bits", Message: "must be in [1, 64] with at least one table"})
	}
	if c.MinGroupSize < 2 {
		problems = append(problems, pmerrors.Problem{Field: "min_group_size", Message: "must be at least 2"})
	}
	for _, t := range c.Types {
		if t < Type1 || t > Type4 {
			problems = append(problems, pmerrors.Problem{Field: "types", Message: "unknown clone type"})
		}
	}
	if len(problems) > 0 {
		return pmerrors.Invalid(problems...)
	}
	return nil
}

func (c Config) enabled(t CloneType) bool {
	return len(c.Types) == 0 || slices.Contains(c.Types, t)
}

// Fragment is one candidate code region, usually a function body.
type Fragment struct {
	ID         int
	Key        ast.NodeKey
	File       string
	Language   parser.Language
	Name       string
	StartLine  int
	EndLine    int
	Tokens     []Token
	Exact      uint64
	Normalized uint64
	Signature  Signature
	Embedding  Embedding
}

// Lines returns the inclusive line count.
func (f *Fragment) Lines() int { return f.EndLine - f.StartLine + 1 }

// Instance is one fragment inside a clone group.
type Instance struct {
	File                       string    `json:"file"`
	Function                   string    `json:"function,omitempty"`
	StartLine                  int       `json:"start_line"`
	EndLine                    int       `json:"end_line"`
	CloneType                  CloneType `json:"clone_type"`
	SimilarityToRepresentative float64   `json:"similarity_to_representative"`
	NormalizedHash             uint64    `json:"normalized_hash"`
}

// Group is a set of fragments that are clones of one representative.
type Group struct {
	ID                int        `json:"id"`
	CloneType         CloneType  `json:"clone_type"`
	Fragments         []Instance `json:"fragments"`
	TotalLines        int        `json:"total_lines"`
	TotalTokens       int        `json:"total_tokens"`
	AverageSimilarity float64    `json:"average_similarity"`
}

// Summary aggregates a report.
type Summary struct {
	TotalFiles       int            `json:"total_files"`
	TotalFragments   int            `json:"total_fragments"`
	DuplicateLines   int            `json:"duplicate_lines"`
	TotalLines       int            `json:"total_lines"`
	DuplicationRatio float64        `json:"duplication_ratio"`
	CloneGroups      int            `json:"clone_groups"`
	LargestGroupSize int            `json:"largest_group_size"`
	GroupsByType     map[string]int `json:"groups_by_type"`
}

// Hotspot is a file with much duplicated code.
type Hotspot struct {
	File           string  `json:"file"`
	DuplicateLines int     `json:"duplicate_lines"`
	CloneGroups    int     `json:"clone_groups"`
	Severity       float64 `json:"severity"`
}

// Report is the detector output.
type Report struct {
	Summary  Summary   `json:"summary"`
	Groups   []Group   `json:"groups"`
	Hotspots []Hotspot `json:"hotspots"`
}

// FileClones counts clone instances per file and type, for rankers.
func (r *Report) FileClones() map[string]map[CloneType]int {
	out := make(map[string]map[CloneType]int)
	for _, g := range r.Groups {
		for _, in := range g.Fragments {
			m := out[in.File]
			if m == nil {
				m = make(map[CloneType]int)
				out[in.File] = m
			}
			m[in.CloneType]++
		}
	}
	return out
}

// FileDuplicateLines sums the lines of clone instances per file.
func (r *Report) FileDuplicateLines() map[string]int {
	out := make(map[string]int)
	for _, g := range r.Groups {
		for _, in := range g.Fragments {
			out[in.File] += in.EndLine - in.StartLine + 1
		}
	}
	return out
}

// Detector finds clones in an arena.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// NewDetector validates cfg and returns a detector.
func NewDetector(cfg Config, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Fragments extracts the outermost functions of every file that have at
// least MinTokens tokens. A file with no such function but enough tokens
// overall becomes a single fragment.
func (d *Detector) Fragments(ctx context.Context, a *ast.Arena) ([]*Fragment, error) {
	var out []*Fragment
	for i := range a.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := &a.Files[i]
		before := len(out)
		for k := range a.WalkPreorder(f.Root) {
			n := a.Get(k)
			if !n.Kind.Is(ast.CatFunction) || a.EnclosingFunction(k) != ast.None {
				continue
			}
			toks := Tokenize(f.Language, a.Text(k), n.StartLine)
			if len(toks) < d.cfg.MinTokens {
				continue
			}
			name := n.Name
			if name == "" {
				name = "<anonymous>"
			}
			out = append(out, d.fragment(a, k, f, name, n.StartLine, n.EndLine, toks))
		}
		if len(out) == before && f.Root != ast.None {
			toks := Tokenize(f.Language, string(f.Source), 1)
			if len(toks) >= d.cfg.MinTokens {
				out = append(out, d.fragment(a, f.Root, f, "", 1, max(f.Lines, 1), toks))
			}
		}
	}
	for i, fr := range out {
		fr.ID = i
	}
	return out, nil
}

func (d *Detector) fragment(a *ast.Arena, key ast.NodeKey, f *ast.File, name string, start, end int, toks []Token) *Fragment {
	norm := AlphaNormalize(toks)
	fr := &Fragment{
		Key:        key,
		File:       f.Path,
		Language:   f.Language,
		Name:       name,
		StartLine:  start,
		EndLine:    end,
		Tokens:     toks,
		Exact:      RabinTokens(Texts(toks)),
		Normalized: RabinTokens(norm),
	}
	if d.cfg.enabled(Type3) {
		fr.Signature = MinHash(Shingles(norm, d.cfg.ShingleSize), d.cfg.LSHTables*d.cfg.LSHProjections)
	}
	if d.cfg.enabled(Type4) {
		fr.Embedding = Embed(a, key, toks)
	}
	return fr
}

// link is a clone relation between two fragments.
type link struct {
	a, b int
	kind CloneType
}

// Detect runs all enabled clone classes over a and builds the report.
func (d *Detector) Detect(ctx context.Context, a *ast.Arena) (*Report, error) {
	start := time.Now()
	frags, err := d.Fragments(ctx, a)
	if err != nil {
		return nil, pmerrors.FromContext(err, "duplicates", time.Since(start))
	}
	links, err := d.links(ctx, frags)
	if err != nil {
		return nil, pmerrors.FromContext(err, "duplicates", time.Since(start))
	}
	groups := d.group(frags, links)
	r := &Report{
		Summary:  summarize(frags, groups),
		Groups:   groups,
		Hotspots: hotspots(groups),
	}
	d.logger.Debug("clone detection finished",
		"fragments", len(frags),
		"groups", len(groups),
		"elapsed", time.Since(start))
	return r, nil
}

// links finds clone pairs class by class. A pair is reported once, under
// the strongest class that relates it.
func (d *Detector) links(ctx context.Context, frags []*Fragment) ([]link, error) {
	var out []link
	related := make(map[[2]int]bool)
	add := func(i, j int, kind CloneType) {
		p := [2]int{min(i, j), max(i, j)}
		if related[p] {
			return
		}
		related[p] = true
		out = append(out, link{a: p[0], b: p[1], kind: kind})
	}
	byHash := func(kind CloneType, hash func(*Fragment) uint64) {
		first := make(map[uint64]int)
		for _, f := range frags {
			h := hash(f)
			if j, ok := first[h]; ok {
				add(j, f.ID, kind)
				continue
			}
			first[h] = f.ID
		}
	}

	if d.cfg.enabled(Type1) {
		byHash(Type1, func(f *Fragment) uint64 { return f.Exact })
	}
	if d.cfg.enabled(Type2) {
		byHash(Type2, func(f *Fragment) uint64 { return f.Normalized })
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.cfg.enabled(Type3) {
		idx := newMinhashIndex(d.cfg.LSHTables, d.cfg.LSHProjections, d.cfg.LSHRows)
		for _, f := range frags {
			idx.add(f.ID, f.Signature)
		}
		for _, p := range idx.candidates() {
			if frags[p[0]].Signature.Jaccard(frags[p[1]].Signature) >= d.cfg.SimilarityThreshold {
				add(p[0], p[1], Type3)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.cfg.enabled(Type4) {
		idx := newANNIndex(d.cfg.ANNTables, d.cfg.ANNBits, 0x5eed)
		for _, f := range frags {
			idx.add(f.ID, f.Embedding)
		}
		for _, p := range idx.candidates() {
			if Cosine(frags[p[0]].Embedding, frags[p[1]].Embedding) >= d.cfg.SemanticThreshold {
				add(p[0], p[1], Type4)
			}
		}
	}
	slices.SortFunc(out, func(x, y link) int {
		if c := cmp.Compare(x.kind, y.kind); c != 0 {
			return c
		}
		return comparePairs([2]int{x.a, x.b}, [2]int{y.a, y.b})
	})
	return out, nil
}

// group merges links into connected components. A group's type is its
// weakest link; each instance is typed and scored against the group's
// representative, the earliest fragment in file and line order.
func (d *Detector) group(frags []*Fragment, links []link) []Group {
	parent := make([]int, len(frags))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	weakest := make(map[int]CloneType)
	for _, l := range links {
		ra, rb := find(l.a), find(l.b)
		kind := max(l.kind, weakest[ra], weakest[rb])
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
			delete(weakest, rb)
		}
		weakest[ra] = kind
	}

	members := make(map[int][]*Fragment)
	for _, f := range frags {
		r := find(f.ID)
		members[r] = append(members[r], f)
	}

	var groups []Group
	for root, fs := range members {
		if len(fs) < d.cfg.MinGroupSize {
			continue
		}
		slices.SortFunc(fs, compareFragments)
		rep := fs[0]
		g := Group{CloneType: weakest[root]}
		total := 0.0
		for _, f := range fs {
			kind, sim := d.relate(rep, f, g.CloneType)
			g.Fragments = append(g.Fragments, Instance{
				File:                       f.File,
				Function:                   f.Name,
				StartLine:                  f.StartLine,
				EndLine:                    f.EndLine,
				CloneType:                  kind,
				SimilarityToRepresentative: sim,
				NormalizedHash:             f.Normalized,
			})
			g.TotalLines += f.Lines()
			g.TotalTokens += len(f.Tokens)
			total += sim
		}
		g.AverageSimilarity = total / float64(len(fs))
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(x, y Group) int {
		if c := cmp.Compare(x.CloneType, y.CloneType); c != 0 {
			return c
		}
		if c := cmp.Compare(len(y.Fragments), len(x.Fragments)); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Fragments[0].File, y.Fragments[0].File); c != 0 {
			return c
		}
		return cmp.Compare(x.Fragments[0].StartLine, y.Fragments[0].StartLine)
	})
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups
}

func compareFragments(x, y *Fragment) int {
	if c := cmp.Compare(x.File, y.File); c != 0 {
		return c
	}
	return cmp.Compare(x.StartLine, y.StartLine)
}

// relate classifies f against the representative directly. Members joined
// only through other members fall back to the group's class.
func (d *Detector) relate(rep, f *Fragment, groupType CloneType) (CloneType, float64) {
	switch {
	case rep.Exact == f.Exact:
		return Type1, 1
	case rep.Normalized == f.Normalized:
		return Type2, 1
	}
	if rep.Signature != nil && f.Signature != nil {
		sim := rep.Signature.Jaccard(f.Signature)
		if sim >= d.cfg.SimilarityThreshold || groupType <= Type3 {
			return Type3, sim
		}
	}
	if rep.Embedding != nil && f.Embedding != nil {
		return Type4, math.Max(0, Cosine(rep.Embedding, f.Embedding))
	}
	return groupType, 0
}

func summarize(frags []*Fragment, groups []Group) Summary {
	s := Summary{
		TotalFragments: len(frags),
		CloneGroups:    len(groups),
		GroupsByType:   make(map[string]int),
	}
	files := make(map[string]bool)
	for _, f := range frags {
		files[f.File] = true
		s.TotalLines += f.Lines()
	}
	s.TotalFiles = len(files)
	for _, g := range groups {
		s.DuplicateLines += g.TotalLines
		s.LargestGroupSize = max(s.LargestGroupSize, len(g.Fragments))
		s.GroupsByType[g.CloneType.String()]++
	}
	if s.TotalLines > 0 {
		s.DuplicationRatio = float64(s.DuplicateLines) / float64(s.TotalLines)
	}
	return s
}

// hotspots ranks files by max(ln(duplicate lines), 1) · sqrt(instances),
// keeping the top ten.
func hotspots(groups []Group) []Hotspot {
	type stat struct{ lines, count int }
	stats := make(map[string]*stat)
	for _, g := range groups {
		for _, in := range g.Fragments {
			s := stats[in.File]
			if s == nil {
				s = &stat{}
				stats[in.File] = s
			}
			s.lines += in.EndLine - in.StartLine + 1
			s.count++
		}
	}
	out := make([]Hotspot, 0, len(stats))
	for file, s := range stats {
		out = append(out, Hotspot{
			File:           file,
			DuplicateLines: s.lines,
			CloneGroups:    s.count,
			Severity:       math.Max(math.Log(float64(s.lines)), 1) * math.Sqrt(float64(s.count)),
		})
	}
	slices.SortFunc(out, func(x, y Hotspot) int {
		if c := cmp.Compare(y.Severity, x.Severity); c != 0 {
			return c
		}
		return cmp.Compare(x.File, y.File)
	})
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
