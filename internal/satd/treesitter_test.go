//go:build cgo

package satd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/parser"
	"pmat/internal/testutil"
)

func TestAnalyze_FunctionContext(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"src/auth.rs": "fn verify_token(t: &str) -> bool {\n    // TODO: check expiry\n    !t.is_empty()\n}\n\n// TODO: outside\n",
	})
	reg := parser.NewRegistry(parser.DefaultLimits())

	res, err := NewAnalyzer(nil, reg).Analyze(context.Background(), root, Options{Context: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, SeverityMedium, res.Items[0].Severity, "debt inside verification code is escalated")
	assert.Equal(t, SeverityLow, res.Items[1].Severity)

	res, err = NewAnalyzer(nil, reg).Analyze(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, SeverityLow, res.Items[0].Severity)
}
