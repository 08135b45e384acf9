package service

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"pmat/internal/complexity"
	"pmat/internal/deadcode"
	"pmat/internal/provability"
	"pmat/internal/qualitygate"
	"pmat/internal/report"
	"pmat/internal/repostate"
	"pmat/internal/satd"
)

// QualityGateRequest runs the quality gate. Nil thresholds keep the
// configured values.
type QualityGateRequest struct {
	ProjectPath string   `json:"project_path"`
	Format      string   `json:"format,omitempty"`
	Checks      []string `json:"checks,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`

	MaxComplexityP99 *int     `json:"max_complexity_p99,omitempty"`
	MaxDeadCode      *float64 `json:"max_dead_code,omitempty"`
	MinEntropy       *float64 `json:"min_entropy,omitempty"`
	MinProvability   *float64 `json:"min_provability,omitempty"`
	MaxSATDCritical  *int     `json:"max_satd_critical,omitempty"`
}

// HeaderGateResult carries the gate outcome whatever the body format.
const (
	HeaderGateResult = "X-Quality-Gate"
	GatePassed       = "passed"
	GateFailed       = "failed"
)

func (r QualityGateRequest) thresholds(base qualitygate.Thresholds) qualitygate.Thresholds {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	if r.MaxComplexityP99 != nil {
		base.MaxComplexityP99 = *r.MaxComplexityP99
	}
	if r.MaxSATDCritical != nil {
		base.MaxSATDCritical = *r.MaxSATDCritical
	}
	set(&base.MaxDeadCode, r.MaxDeadCode)
	set(&base.MinEntropy, r.MinEntropy)
	set(&base.MinProvability, r.MinProvability)
	return base
}

func (s *Service) handleQualityGate(ctx context.Context, c *call) (*Response, error) {
	var req QualityGateRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	format, err := report.ParseFormat(req.Format, report.FormatJSON, report.FormatSARIF, report.FormatMarkdown, report.FormatTable)
	if err != nil {
		return nil, err
	}
	root, res, err := s.QualityGate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := s.renderQualityGate(format, root, res)
	if err != nil {
		return nil, err
	}
	resp.Headers[HeaderGateResult] = GateFailed
	if res.Passed {
		resp.Headers[HeaderGateResult] = GatePassed
	}
	return resp, nil
}

func (s *Service) renderQualityGate(format report.Format, root string, res *qualitygate.Result) (*Response, error) {
	switch format {
	case report.FormatSARIF:
		return jsonResponse(http.StatusOK, report.QualityGateSARIF(root, res))
	case report.FormatMarkdown:
		return textResponse(ContentMarkdown, report.QualityGateDocument(res).Markdown()), nil
	case report.FormatTable:
		return textResponse(ContentText, qualityGateText(res)), nil
	}
	env, err := report.Envelope("quality-gate", s.now(), res)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, env)
}

func qualityGateText(res *qualitygate.Result) string {
	var b strings.Builder
	_ = report.QualityGateDocument(res).WriteText(&b)
	return b.String()
}

// QualityGate evaluates the selected checks. A failing gate is a result,
// not an error; callers decide how to surface it.
func (s *Service) QualityGate(ctx context.Context, req QualityGateRequest) (string, *qualitygate.Result, error) {
	checks, err := qualitygate.ParseChecks(req.Checks)
	if err != nil {
		return "", nil, err
	}
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return "", nil, err
	}

	in := qualitygate.Inputs{}
	g, gctx := errgroup.WithContext(ctx)
	if slices.Contains(checks, qualitygate.CheckComplexity) {
		in.Complexity = complexity.Project(proj.Arena)
	}
	if slices.Contains(checks, qualitygate.CheckEntropy) {
		e := qualitygate.IdentifierEntropy(proj.Arena)
		in.Entropy = &e
	}
	if slices.Contains(checks, qualitygate.CheckDeadCode) {
		g.Go(func() error {
			opts := deadcode.DefaultOptions()
			opts.Limit = 0
			r, err := deadcode.NewAnalyzer(s.logger, s.cfg.Exclude).Analyze(gctx, proj.Arena, opts)
			in.DeadCode = r
			return err
		})
	}
	if slices.Contains(checks, qualitygate.CheckProvability) {
		g.Go(func() error {
			sums, err := s.proofs.AnalyzeArena(gctx, proj.Arena)
			if sums == nil {
				sums = []provability.ProofSummary{}
			}
			in.Proofs = sums
			return err
		})
	}
	if slices.Contains(checks, qualitygate.CheckSATD) {
		g.Go(func() error {
			r, err := satd.NewAnalyzer(s.logger, s.registry).Analyze(gctx, proj.Root, satd.Options{
				Exclude: append(slices.Clone(s.cfg.Exclude), req.Exclude...),
				Age:     repostate.IsGitRepository(proj.Root),
			})
			in.SATD = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	res := qualitygate.Evaluate(in, req.thresholds(qualitygate.FromConfig(s.cfg.QualityGate)), checks)
	s.logger.Info("quality gate evaluated", "root", proj.Root, "passed", res.Passed, "checks", len(res.Checks))
	return proj.Root, res, nil
}
