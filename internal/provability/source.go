package provability

import (
	"context"
	"path/filepath"
	"time"

	"pmat/internal/ast"
	"pmat/internal/classifier"
	"pmat/internal/parser"
	"pmat/internal/proof"
)

// ToolVersion is reported on every annotation.
const ToolVersion = "1.0.0"

// Source feeds verified properties into a proof annotator as abstract
// interpretation annotations.
type Source struct {
	Registry *parser.Registry
	Analyzer *Analyzer
}

func (Source) Name() string { return "abstract-interpretation" }

func (s Source) Collect(ctx context.Context, root string, c *proof.Cache, _ *proof.SymbolTable) (*proof.Result, error) {
	start := time.Now()
	res := &proof.Result{}
	files, err := classifier.Discover(ctx, root, classifier.DiscoverOptions{Accept: s.Registry.Supports})
	if err != nil {
		return nil, err
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Metrics.FilesProcessed++
		abs := filepath.Join(root, filepath.FromSlash(rel))
		anns, hit, err := c.FileAnnotations(s.Name(), abs, func(content []byte) ([]proof.Located, error) {
			a, _, err := ast.ParseFile(ctx, s.Registry, rel, content)
			if err != nil {
				return nil, err
			}
			summaries, err := s.Analyzer.AnalyzeArena(ctx, a)
			if err != nil {
				return nil, err
			}
			return Annotations(summaries), nil
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

// Annotations converts verified properties into located annotations.
func Annotations(summaries []ProofSummary) []proof.Located {
	var out []proof.Located
	for _, s := range summaries {
		loc := proof.Location{FilePath: s.File, StartLine: s.StartLine, EndLine: s.EndLine}
		for _, v := range s.VerifiedProperties {
			a := proof.New(v.Property, proof.Method{Kind: proof.AbstractInterpretation, Tool: "pmat"},
				"pmat-provability", ToolVersion, confidence(v.Confidence), "Intraprocedural analysis", "Callees not inspected")
			a.SpecificationID = string(v.Property) + "_" + s.Function
			a.EvidenceType = proof.StaticAnalysisReport
			a.EvidenceLocation = v.Evidence
			out = append(out, proof.Located{Location: loc, Annotation: a})
		}
	}
	return out
}

func confidence(c float64) proof.Confidence {
	switch {
	case c >= 0.9:
		return proof.High
	case c >= 0.7:
		return proof.Medium
	default:
		return proof.Low
	}
}
