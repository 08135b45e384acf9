//go:build !cgo

package parser

import (
	"context"
	"errors"

	pmerrors "pmat/internal/errors"
)

// ErrNoCGO is returned when parsing is unavailable due to missing CGO.
var ErrNoCGO = errors.New("parsing requires CGO (tree-sitter)")

// IsAvailable reports whether tree-sitter parsing is compiled in.
func IsAvailable() bool { return false }

type stubAdapter struct {
	lang Language
}

func (a stubAdapter) Language() Language   { return a.lang }
func (a stubAdapter) Extensions() []string { return Extensions(a.lang) }

func (a stubAdapter) Parse(_ context.Context, path string, _ []byte) (*View, error) {
	return nil, pmerrors.Parse(path, "tree-sitter unavailable", ErrNoCGO)
}

// NewRegistry returns a registry whose adapters always fail with ErrNoCGO.
func NewRegistry(_ Limits) *Registry {
	r := NewEmptyRegistry()
	for _, lang := range AllLanguages() {
		r.Register(stubAdapter{lang: lang})
	}
	return r
}
