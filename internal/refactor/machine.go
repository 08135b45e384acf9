package refactor

import (
	"context"
	"slices"
	"time"

	pmerrors "pmat/internal/errors"
)

// Input carries what a transition needs beyond the current state.
type Input struct {
	Targets     []string
	// Next is the index of the first target not yet analyzed.
	Next        int
	Findings    []Violation
	Payload     DefectPayload
	Summary     Summary
	TestCommand string
}

// Advance returns the state following s. It has no side effects;
// Complete is terminal.
func Advance(s State, in Input) State {
	switch s.Kind {
	case KindScan:
		if len(s.Targets) == 0 {
			return complete(in.Summary)
		}
		return State{Kind: KindAnalyze, Current: &FileID{Path: s.Targets[0]}}
	case KindAnalyze:
		return State{Kind: KindPlan, Violations: slices.Clone(in.Findings)}
	case KindPlan:
		if len(s.Violations) == 0 {
			return nextTarget(in)
		}
		op := s.Violations[0].Op()
		return State{Kind: KindRefactor, Operation: &op}
	case KindRefactor:
		cmd := in.TestCommand
		if cmd == "" {
			cmd = DefaultTestCommand
		}
		return State{Kind: KindTest, Command: cmd}
	case KindTest:
		return State{Kind: KindLint, Strict: true}
	case KindLint:
		p := in.Payload
		return State{Kind: KindEmit, Payload: &p}
	case KindEmit:
		return State{Kind: KindCheckpoint, Reason: CheckpointCycleComplete}
	case KindCheckpoint:
		return nextTarget(in)
	}
	return s
}

func nextTarget(in Input) State {
	if in.Next < len(in.Targets) {
		return State{Kind: KindAnalyze, Current: &FileID{Path: in.Targets[in.Next]}}
	}
	return complete(in.Summary)
}

func complete(s Summary) State { return State{Kind: KindComplete, Summary: &s} }

// Inspection is what an Inspector learns about one target.
type Inspection struct {
	ID         FileID
	Metrics    Metrics
	Violations []Violation
}

// Inspector analyzes a target for the Analyze state.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*Inspection, error)
}

// Machine runs Advance over a list of targets and keeps the history.
// It serializes to the refactor snapshot.
type Machine struct {
	State       State           `json:"state"`
	Targets     []string        `json:"targets"`
	Next        int             `json:"next"`
	History     []Transition    `json:"history"`
	Summary     Summary         `json:"summary"`
	Started     time.Time       `json:"started"`
	TestCommand string          `json:"test_command,omitempty"`
	File        *FileID         `json:"file,omitempty"`
	Metrics     *Metrics        `json:"metrics,omitempty"`
	Planned     []Violation     `json:"planned,omitempty"`
	Pending     *Op             `json:"pending,omitempty"`
	Suggestions []Op            `json:"suggestions,omitempty"`
	Payloads    []DefectPayload `json:"payloads,omitempty"`

	// Failures maps targets that could not be inspected to the reason.
	Failures map[string]string `json:"failures,omitempty"`

	now func() time.Time
}

// NewMachine starts in Scan over targets.
func NewMachine(targets []string) *Machine {
	m := &Machine{
		State:   State{Kind: KindScan, Targets: slices.Clone(targets)},
		Targets: slices.Clone(targets),
		now:     time.Now,
	}
	m.Started = m.now()
	return m
}

func (m *Machine) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// Done reports whether the machine reached Complete.
func (m *Machine) Done() bool { return m.State.Kind == KindComplete }

// Step performs one transition. A target that cannot be inspected is
// recorded in Failures and planned with no violations; only context
// errors abort.
func (m *Machine) Step(ctx context.Context, insp Inspector) error {
	if err := ctx.Err(); err != nil {
		return pmerrors.FromContext(err, "refactor", time.Since(m.Started))
	}
	from := m.State
	if from.Kind == KindComplete {
		return nil
	}
	now := m.clock()
	before := m.Metrics
	in := Input{Targets: m.Targets, Next: m.Next, TestCommand: m.TestCommand}

	switch from.Kind {
	case KindAnalyze:
		m.File, m.Metrics, m.Planned, m.Pending = from.Current, nil, nil, nil
		res, err := insp.Inspect(ctx, from.Current.Path)
		if err != nil {
			if ctx.Err() != nil {
				return pmerrors.FromContext(ctx.Err(), "refactor", time.Since(m.Started))
			}
			if m.Failures == nil {
				m.Failures = map[string]string{}
			}
			m.Failures[from.Current.Path] = err.Error()
			break
		}
		id := res.ID
		m.File = &id
		metrics := res.Metrics
		m.Metrics = &metrics
		in.Findings = res.Violations
	case KindPlan:
		m.Planned = from.Violations
		if len(from.Violations) == 0 {
			m.Summary.FilesProcessed++
		}
	case KindLint:
		in.Payload = m.payload(now)
	case KindCheckpoint:
		m.Summary.FilesProcessed++
	}
	m.Summary.TotalTime = now.Sub(m.Started)
	in.Summary = m.Summary

	to := Advance(from, in)
	if to.Kind == KindAnalyze {
		m.Next++
	}

	tr := Transition{From: from.Kind, To: to.Kind, Timestamp: now, Before: before, After: m.Metrics}
	switch to.Kind {
	case KindRefactor:
		op := *to.Operation
		m.Pending = &op
		tr.Applied = &op
		m.Suggestions = append(m.Suggestions, op)
		m.Summary.RefactorsPlanned++
		m.Summary.ComplexityReduction += op.Improvement
		if op.Kind == OpRemoveSATD {
			m.Summary.SATDAddressed++
		}
	case KindEmit:
		m.Payloads = append(m.Payloads, *to.Payload)
	}
	m.History = append(m.History, tr)
	m.State = to
	return nil
}

// Run steps until Complete. after is called following every transition
// and may be nil.
func (m *Machine) Run(ctx context.Context, insp Inspector, after func(*Machine) error) error {
	for !m.Done() {
		if err := m.Step(ctx, insp); err != nil {
			return err
		}
		if after != nil {
			if err := after(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Machine) payload(now time.Time) DefectPayload {
	p := DefectPayload{Timestamp: now, SeverityFlags: flags(m.Planned)}
	if m.File != nil {
		p.FileHash = m.File.Hash
	}
	if m.Metrics != nil {
		p.TDG = m.Metrics.TDG
		p.Complexity = [2]int{m.Metrics.MaxCyclomatic, m.Metrics.MaxCognitive}
		p.DeadSymbols = m.Metrics.DeadSymbols
	}
	if m.Pending != nil {
		p.RefactorAvailable = true
		p.RefactorType = m.Pending.Kind
		p.EstimatedImprovement = m.Pending.Improvement
	}
	return p
}
