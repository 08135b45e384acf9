package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	pmerrors "pmat/internal/errors"
)

// parseKeyVal splits "key=value" and types the value: an empty value is
// true, "true"/"false" are booleans, finite numbers are numbers and
// anything else stays a string.
func parseKeyVal(s string) (string, any, error) {
	key, val, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid KEY=value: no `=` found in `%s`", s)
	}
	if key == "" {
		return "", nil, fmt.Errorf("invalid KEY=value: empty key in `%s`", s)
	}
	switch {
	case val == "":
		return key, true, nil
	case val == "true" || val == "false":
		return key, val == "true", nil
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		return key, n, nil
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return key, f, nil
	}
	return key, val, nil
}

// parseParams turns repeated -p flags into template parameters. Later
// values win.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	var problems []pmerrors.Problem
	for _, p := range pairs {
		k, v, err := parseKeyVal(p)
		if err != nil {
			problems = append(problems, pmerrors.Problem{Field: "param", Message: err.Error()})
			continue
		}
		out[k] = v
	}
	if len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}
	return out, nil
}
