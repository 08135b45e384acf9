package templates

import (
	"cmp"
	"slices"
	"strings"

	"github.com/hbollon/go-edlib"
)

// FuzzyThreshold is the minimum Jaro-Winkler similarity for a query word
// to count as a near match of a name or URI word.
const FuzzyThreshold = 0.85

const (
	scoreExactName  = 10
	scoreNameSubstr = 5
	scoreDesc       = 3
	scoreParam      = 1
	scoreFuzzy      = 2
)

// Search ranks templates against query. toolchain narrows the candidates
// when set; limit <= 0 returns every hit.
func (c *Catalog) Search(query string, toolchain Toolchain, limit int) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	words := strings.Fields(q)

	var results []SearchResult
	for _, t := range c.templates {
		if toolchain != "" && t.Toolchain != toolchain {
			continue
		}
		var score float64
		var matches []string

		name := strings.ToLower(t.Name)
		switch {
		case name == q:
			score += scoreExactName
			matches = append(matches, "name")
		case strings.Contains(name, q):
			score += scoreNameSubstr
			matches = append(matches, "name")
		}
		if strings.Contains(strings.ToLower(t.Description), q) {
			score += scoreDesc
			matches = append(matches, "description")
		}
		for _, p := range t.Parameters {
			if strings.Contains(strings.ToLower(p.Name), q) {
				score += scoreParam
				matches = append(matches, "parameter:"+p.Name)
			}
		}

		vocab := vocabulary(t)
		for _, w := range words {
			if sim, hit := bestMatch(w, vocab); sim >= FuzzyThreshold {
				score += scoreFuzzy * sim
				matches = append(matches, "fuzzy:"+hit)
			}
		}

		if score > 0 {
			results = append(results, SearchResult{Template: t, Relevance: score, Matches: matches})
		}
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Relevance, a.Relevance)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func vocabulary(t Template) []string {
	split := func(r rune) bool {
		return r == ' ' || r == '/' || r == '-' || r == '_' || r == ':' || r == '.'
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range []string{t.Name, strings.TrimPrefix(t.URI, URIScheme)} {
		for _, w := range strings.FieldsFunc(strings.ToLower(s), split) {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

func bestMatch(word string, vocab []string) (float64, string) {
	var best float64
	var hit string
	for _, v := range vocab {
		sim, err := edlib.StringsSimilarity(word, v, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if s := float64(sim); s > best {
			best, hit = s, v
		}
	}
	return best, hit
}
