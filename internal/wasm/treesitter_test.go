//go:build cgo

package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/classifier"
	"pmat/internal/parser"
	"pmat/internal/testutil"
)

func TestAssemblyScript_TreeSitter(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"assembly/index.as": `export function sum(n: i32): i32 {
  let s: i32 = 0;
  for (let i = 0; i < n; i++) {
    if (i > 2 && s < 100) {
      s += i;
    }
  }
  return s;
}

export function id(x: f64): f64 {
  return x;
}
`,
	})
	a := NewAnalyzer(nil, parser.NewRegistry(parser.DefaultLimits()), DefaultSecurityConfig())
	rep, err := a.AssemblyScript(context.Background(), root, classifier.DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, rep.Scripts, 1)

	byName := map[string]int{}
	for _, fn := range rep.Scripts[0].Complexity.AllFunctions() {
		byName[fn.Name] = fn.Metrics.Cyclomatic
	}
	assert.Equal(t, map[string]int{"sum": 4, "id": 1}, byName)
	assert.Equal(t, 4, rep.Scripts[0].Features.NativeTypes)
}
