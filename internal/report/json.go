// Package report renders analysis results as JSON envelopes, SARIF 2.1.0
// logs, Markdown documents and plain tables.
package report

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	pmerrors "pmat/internal/errors"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatSARIF    Format = "sarif"
	FormatMarkdown Format = "markdown"
	FormatTable    Format = "table"
	FormatYAML     Format = "yaml"
	FormatMermaid  Format = "mermaid"
)

// ParseFormat accepts a format name from allowed. "md" is an alias for
// markdown and "text" for table.
func ParseFormat(s string, allowed ...Format) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "md":
		f = FormatMarkdown
	case "text", "":
		f = FormatTable
	}
	for _, a := range allowed {
		if a == f {
			return f, nil
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return "", pmerrors.Invalid(pmerrors.Problem{
		Field:   "format",
		Message: "unsupported format " + strconv.Quote(s) + " (want " + strings.Join(names, ", ") + ")",
	})
}

// Envelope returns v as a JSON object with analysis_type and an RFC 3339
// timestamp added beside its own fields. Floats are rounded to six decimal
// places and object keys come out sorted, so equal inputs encode to equal
// bytes. A v that does not encode to an object is placed under "result".
func Envelope(analysisType string, at time.Time, v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, pmerrors.Internal("encode report", map[string]any{"analysis_type": analysisType, "error": err.Error()})
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, pmerrors.Internal("decode report", map[string]any{"analysis_type": analysisType, "error": err.Error()})
	}
	obj, ok := normalize(generic).(map[string]any)
	if !ok {
		obj = map[string]any{"result": normalize(generic)}
	}
	obj["analysis_type"] = analysisType
	obj["timestamp"] = at.UTC().Format(time.RFC3339)
	return obj, nil
}

// WriteJSON encodes the envelope of v to w, indented with two spaces.
func WriteJSON(w io.Writer, analysisType string, at time.Time, v any) error {
	obj, err := Envelope(analysisType, at, v)
	if err != nil {
		return err
	}
	return Encode(w, obj)
}

// Encode writes v as indented JSON without HTML escaping.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// normalize walks a decoded JSON tree and rounds every fractional number.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, x := range val {
			val[k] = normalize(x)
		}
		return val
	case []any:
		for i, x := range val {
			val[i] = normalize(x)
		}
		return val
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := val.Int64(); err == nil {
				return n
			}
		}
		f, err := val.Float64()
		if err != nil {
			return s
		}
		return RoundFloat(f)
	default:
		return v
	}
}

// RoundFloat rounds f to six decimal places.
func RoundFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	const scale = 1e6
	return math.Round(f*scale) / scale
}

// FormatFloat renders f with at most prec decimals and no trailing zeros.
func FormatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
