package testutil

import (
	"context"
	"path/filepath"

	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
)

// viewAdapter serves prebuilt views by path for one language.
type viewAdapter struct {
	lang  parser.Language
	views map[string]*parser.View
}

func (a *viewAdapter) Language() parser.Language { return a.lang }
func (a *viewAdapter) Extensions() []string      { return parser.Extensions(a.lang) }

func (a *viewAdapter) Parse(ctx context.Context, path string, src []byte) (*parser.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := a.views[filepath.ToSlash(path)]
	if !ok {
		return nil, pmerrors.Parse(path, "no fixture view", nil)
	}
	cp := *v
	cp.Source = src
	return &cp, nil
}

// Registry returns a parser registry answering from views, keyed by their
// Path. Files of a registered language without a view fail to parse.
func Registry(views ...*parser.View) *parser.Registry {
	byLang := map[parser.Language]*viewAdapter{}
	for _, v := range views {
		a, ok := byLang[v.Language]
		if !ok {
			a = &viewAdapter{lang: v.Language, views: map[string]*parser.View{}}
			byLang[v.Language] = a
		}
		a.views[v.Path] = v
	}
	reg := parser.NewEmptyRegistry()
	for _, a := range byLang {
		reg.Register(a)
	}
	return reg
}
