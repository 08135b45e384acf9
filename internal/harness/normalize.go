package harness

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
)

// DefaultIgnoredFields are dropped from bodies before comparison.
var DefaultIgnoredFields = []string{"timestamp"}

// Strip returns a copy of v without the dot-path fields. Non-object values
// are returned unchanged.
func Strip(v any, paths ...string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := copyMap(m)
	for _, p := range paths {
		removePath(out, strings.Split(p, "."))
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			v = copyMap(child)
		}
		out[k] = v
	}
	return out
}

func removePath(m map[string]any, parts []string) {
	for len(parts) > 1 {
		next, ok := m[parts[0]].(map[string]any)
		if !ok {
			return
		}
		m, parts = next, parts[1:]
	}
	delete(m, parts[0])
}

// Compare reports whether two outcomes agree and, when they do not, a
// unified diff of their JSON forms. Failed outcomes agree on the error
// code alone; messages may be phrased per protocol.
func Compare(a, b Outcome) (string, bool) {
	if !a.OK && !b.OK && a.Code == b.Code {
		return "", true
	}
	if a.OK == b.OK && reflect.DeepEqual(a.Body, b.Body) {
		return "", true
	}
	return diff(a, b), false
}

func diff(a, b Outcome) string {
	text := func(o Outcome) string {
		data, err := json.MarshalIndent(o, "", "  ")
		if err != nil {
			return err.Error()
		}
		return string(data) + "\n"
	}
	d, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(text(a)),
		B:        difflib.SplitLines(text(b)),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return err.Error()
	}
	return d
}

// DecodeBody turns a raw body into its generic JSON value, or the text
// itself when it is not JSON.
func DecodeBody(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(data)
}

// FromResponse converts a service response to an outcome.
func FromResponse(resp *service.Response) Outcome {
	if detail, failed := service.DecodeError(resp); failed {
		return Outcome{Code: detail.Code}
	}
	if !resp.OK() {
		return Outcome{Code: pmerrors.InternalError}
	}
	return Outcome{OK: true, Body: DecodeBody(resp.Body)}
}

// FromError converts an adapter-level error to an outcome.
func FromError(err error) Outcome {
	return Outcome{Code: pmerrors.CodeOf(err)}
}
