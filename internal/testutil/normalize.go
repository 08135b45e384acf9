package testutil

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

// volatileFields are dropped before comparison.
var volatileFields = map[string]bool{
	"timestamp":    true,
	"generated_at": true,
	"duration":     true,
	"duration_ms":  true,
	"elapsed":      true,
	"computed_at":  true,
	"created_at":   true,
	"recorded_at":  true,
}

var tempDir = regexp.MustCompile(`(?:/tmp/|/var/folders/[^/]+/[^/]+/[^/]+/|C:/Users/[^/]+/AppData/Local/Temp/)[^/\s"]+`)

// NormalizeText replaces root with "<root>", other temp directories with
// "<tempdir>" and backslashes with slashes.
func NormalizeText(s, root string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	if root != "" {
		s = strings.ReplaceAll(s, filepath.ToSlash(root), "<root>")
	}
	return tempDir.ReplaceAllString(s, "<tempdir>")
}

// Normalize converts data to its generic JSON form with volatile fields
// removed and paths normalized.
func Normalize(t testing.TB, root string, data any) any {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal data for normalization: %v", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Failed to unmarshal data for normalization: %v", err)
	}
	return normalizeValue(generic, root)
}

func normalizeValue(v any, root string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if volatileFields[k] {
				continue
			}
			out[k] = normalizeValue(item, root)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item, root)
		}
		return out
	case string:
		return NormalizeText(val, root)
	default:
		return v
	}
}

// MarshalNormalized normalizes data and renders it as indented JSON with a
// trailing newline. encoding/json sorts map keys, so output is canonical.
func MarshalNormalized(t testing.TB, root string, data any) []byte {
	t.Helper()

	out, err := json.MarshalIndent(Normalize(t, root, data), "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal normalized data: %v", err)
	}
	return append(out, '\n')
}

// DeepEqual compares two values after normalization.
func DeepEqual(t testing.TB, root string, a, b any) bool {
	t.Helper()
	return reflect.DeepEqual(Normalize(t, root, a), Normalize(t, root, b))
}
