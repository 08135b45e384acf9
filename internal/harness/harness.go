// Package harness sends one logical request through several protocol
// adapters and checks that every pair of adapters answers alike.
package harness

import (
	"context"
	"fmt"
	"log/slog"

	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// Case is one logical request.
type Case struct {
	Name   string
	Method string
	// Path is the service path, optionally with a query string.
	Path string
	Body any
	// CLI is the equivalent command line without the program name. Cases
	// without one are skipped by the CLI adapter.
	CLI []string
}

// Outcome is a protocol answer with its envelope stripped.
type Outcome struct {
	OK   bool               `json:"ok"`
	Code pmerrors.ErrorCode `json:"code,omitempty"`
	Body any                `json:"body,omitempty"`
}

// Protocol is one adapter under test.
type Protocol interface {
	Name() string
	Do(ctx context.Context, c Case) (Outcome, error)
}

// Skipper is implemented by adapters that cannot express some cases.
type Skipper interface {
	Skip(c Case) bool
}

// Mismatch records two adapters disagreeing on one case.
type Mismatch struct {
	Test       string    `json:"test_name"`
	Protocols  [2]string `json:"protocols"`
	Expected   Outcome   `json:"expected"`
	Actual     Outcome   `json:"actual"`
	Difference string    `json:"difference"`
}

// Report is the result of one case.
type Report struct {
	Test       string             `json:"test_name"`
	Outcomes   map[string]Outcome `json:"outcomes"`
	Mismatches []Mismatch         `json:"mismatches"`
}

// Equivalent reports whether every pair agreed.
func (r *Report) Equivalent() bool { return len(r.Mismatches) == 0 }

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithIgnoredFields replaces the dot paths removed from bodies before
// comparison.
func WithIgnoredFields(paths ...string) Option {
	return func(h *Harness) { h.ignore = paths }
}

// Harness runs cases across protocols.
type Harness struct {
	protocols []Protocol
	ignore    []string
	logger    *slog.Logger
}

// New creates a harness over protocols. The first protocol is the
// reference that mismatches report as expected.
func New(protocols []Protocol, opts ...Option) *Harness {
	h := &Harness{
		protocols: protocols,
		ignore:    DefaultIgnoredFields,
		logger:    slogutil.NewDiscardLogger(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Protocols returns the adapter names in order.
func (h *Harness) Protocols() []string {
	names := make([]string, len(h.protocols))
	for i, p := range h.protocols {
		names[i] = p.Name()
	}
	return names
}

// Run sends c through every adapter and compares all pairs. An adapter
// error aborts the case; a failed request is an outcome, not an error.
func (h *Harness) Run(ctx context.Context, c Case) (*Report, error) {
	rep := &Report{Test: c.Name, Outcomes: map[string]Outcome{}, Mismatches: []Mismatch{}}
	var ran []Protocol
	for _, p := range h.protocols {
		if s, ok := p.(Skipper); ok && s.Skip(c) {
			h.logger.Debug("protocol skipped", "test", c.Name, "protocol", p.Name())
			continue
		}
		out, err := p.Do(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("%s via %s: %w", c.Name, p.Name(), err)
		}
		out.Body = Strip(out.Body, h.ignore...)
		rep.Outcomes[p.Name()] = out
		ran = append(ran, p)
	}
	for i := 0; i < len(ran); i++ {
		for j := i + 1; j < len(ran); j++ {
			a, b := rep.Outcomes[ran[i].Name()], rep.Outcomes[ran[j].Name()]
			if diff, same := Compare(a, b); !same {
				rep.Mismatches = append(rep.Mismatches, Mismatch{
					Test:       c.Name,
					Protocols:  [2]string{ran[i].Name(), ran[j].Name()},
					Expected:   a,
					Actual:     b,
					Difference: diff,
				})
			}
		}
	}
	if rep.Equivalent() {
		h.logger.Debug("protocols agree", "test", c.Name, "protocols", len(ran))
	} else {
		h.logger.Warn("protocols disagree", "test", c.Name, "mismatches", len(rep.Mismatches))
	}
	return rep, nil
}

// RunAll runs every case in order.
func (h *Harness) RunAll(ctx context.Context, cases []Case) ([]*Report, error) {
	out := make([]*Report, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := h.Run(ctx, c)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
