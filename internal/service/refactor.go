package service

import (
	"context"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pmat/internal/deadcode"
	pmerrors "pmat/internal/errors"
	"pmat/internal/refactor"
	"pmat/internal/report"
)

// RefactorRequest drives the refactor state machine over a project.
type RefactorRequest struct {
	ProjectPath string   `json:"project_path"`
	Format      string   `json:"format,omitempty"`
	Files       []string `json:"files,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	// Resume continues from the saved snapshot instead of starting over.
	Resume bool `json:"resume,omitempty"`
	// StateDir holds the snapshot. Empty uses the cache directory of the
	// project.
	StateDir string `json:"state_dir,omitempty"`
	// MaxSteps stops after that many transitions and keeps the snapshot.
	// Zero runs to completion.
	MaxSteps    int    `json:"max_steps,omitempty"`
	TestCommand string `json:"test_command,omitempty"`
	Patches     bool   `json:"patches,omitempty"`
}

// RefactorResult is the refactor body.
type RefactorResult struct {
	Root     string            `json:"root"`
	Done     bool              `json:"done"`
	Snapshot string            `json:"snapshot,omitempty"`
	Machine  *refactor.Machine `json:"machine"`
	// Patches maps "file:function" keys to unified diffs of suggested
	// comment annotations.
	Patches map[string]string `json:"patches,omitempty"`
}

func (s *Service) handleRefactor(ctx context.Context, c *call) (*Response, error) {
	var req RefactorRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	format, err := report.ParseFormat(req.Format, report.FormatJSON, report.FormatMarkdown)
	if err != nil {
		return nil, err
	}
	res, err := s.Refactor(ctx, req)
	if err != nil {
		return nil, err
	}
	if format == report.FormatMarkdown {
		return textResponse(ContentMarkdown, refactorDocument(res).Markdown()), nil
	}
	env, err := report.Envelope("refactor", s.now(), res)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, env)
}

// Refactor runs the state machine. Progress is saved after every
// transition; the snapshot is removed once the machine completes.
func (s *Service) Refactor(ctx context.Context, req RefactorRequest) (*RefactorResult, error) {
	if req.MaxSteps < 0 {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "max_steps", Message: "must not be negative"})
	}
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	dir := req.StateDir
	if dir == "" {
		dir = s.cfg.Cache.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(proj.Root, dir)
		}
	}
	snaps := refactor.NewSnapshots(dir)

	var m *refactor.Machine
	if req.Resume {
		if m, err = snaps.Load(); err != nil {
			return nil, err
		}
		s.logger.Info("resuming refactor", "snapshot", snaps.Path(), "state", m.State.Kind, "next", m.Next)
	} else {
		targets := req.Files
		if len(targets) == 0 {
			targets = proj.Files
		}
		m = refactor.NewMachine(targets)
		m.TestCommand = req.TestCommand
	}

	dead, err := s.deadCode(ctx, proj.Arena, AnalyzeRequest{Exclude: req.Exclude})
	if err != nil {
		s.logger.Warn("dead code unavailable for refactor planning", "error", err)
		dead = &deadcode.Result{}
	}
	insp := refactor.NewFileInspector(s.logger, proj.Root, s.pipeline.Registry(), s.cfg.Refactor).WithDeadCode(dead)

	for steps := 0; !m.Done(); steps++ {
		if req.MaxSteps > 0 && steps >= req.MaxSteps {
			break
		}
		if err := m.Step(ctx, insp); err != nil {
			return nil, err
		}
		if err := snaps.Save(m); err != nil {
			return nil, err
		}
	}

	res := &RefactorResult{Root: proj.Root, Done: m.Done(), Machine: m}
	if m.Done() {
		if err := snaps.Remove(); err != nil {
			return nil, err
		}
	} else {
		res.Snapshot = snaps.Path()
	}
	if req.Patches {
		res.Patches = patches(proj.Root, m.Suggestions)
	}
	s.logger.Info("refactor run", "root", proj.Root, "done", res.Done, "transitions", len(m.History), "suggestions", len(m.Suggestions))
	return res, nil
}

func patches(root string, ops []refactor.Op) map[string]string {
	out := map[string]string{}
	sources := map[string][]byte{}
	for _, op := range ops {
		src, ok := sources[op.File]
		if !ok {
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(op.File)))
			if err != nil {
				continue
			}
			src, sources[op.File] = data, data
		}
		diff, err := refactor.Patch(op, src)
		if err != nil || diff == "" {
			continue
		}
		out[op.File+":"+op.Function] += diff
	}
	return out
}

func refactorDocument(r *RefactorResult) *report.Document {
	m := r.Machine
	status := "complete"
	if !r.Done {
		status = "paused at " + string(m.State.Kind)
	}
	d := &report.Document{
		Title: "Refactor Plan",
		Summary: []report.Field{
			{Label: "Status", Value: status},
			{Label: "Files processed", Value: m.Summary.FilesProcessed},
			{Label: "Refactors planned", Value: m.Summary.RefactorsPlanned},
			{Label: "Complexity reduction", Value: m.Summary.ComplexityReduction},
			{Label: "SATD addressed", Value: m.Summary.SATDAddressed},
		},
	}
	t := &report.Table{Headers: []string{"File", "Operation", "Improvement"}, Align: []report.Align{report.AlignLeft, report.AlignLeft, report.AlignRight}}
	for _, op := range m.Suggestions {
		t.Add(op.File, refactor.Describe(op), op.Improvement)
	}
	d.Sections = append(d.Sections, report.Section{Title: "Suggested operations", Table: t})
	if len(m.Failures) > 0 {
		var b strings.Builder
		for _, path := range slices.Sorted(maps.Keys(m.Failures)) {
			b.WriteString("- `" + path + "`: " + m.Failures[path] + "\n")
		}
		d.Sections = append(d.Sections, report.Section{Title: "Skipped targets", Text: b.String()})
	}
	if r.Snapshot != "" {
		d.Recommendations = append(d.Recommendations, "Resume with --resume; progress is saved in "+r.Snapshot)
	}
	return d
}
