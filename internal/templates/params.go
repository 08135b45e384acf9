package templates

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	pmerrors "pmat/internal/errors"
)

var typePatterns = map[ParamType]*regexp.Regexp{
	TypeProjectName:    regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`),
	TypeSemVer:         regexp.MustCompile(`^\d+(\.\d+){0,2}([-+][0-9A-Za-z.-]+)?$`),
	TypeGitHubUsername: regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,37}[A-Za-z0-9])?$`),
	TypeLicense:        regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+-]*$`),
}

// ParseParam splits one k=v argument and types the value: true and false
// are booleans, integers are int64, other finite numbers are float64, an
// empty value is true and everything else stays a string.
func ParseParam(arg string) (string, any, error) {
	key, raw, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, pmerrors.Invalid(pmerrors.Problem{
			Field:   arg,
			Message: "expected key=value",
		})
	}
	return key, typeValue(raw), nil
}

func typeValue(raw string) any {
	switch raw {
	case "", "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, ok := finite(raw); ok {
		return f
	}
	return raw
}

// finite parses raw as a float, rejecting inf and NaN spellings which
// cannot be encoded as JSON numbers.
func finite(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseParams parses every argument and reports all malformed ones at once.
// Later duplicates win.
func ParseParams(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	var problems []pmerrors.Problem
	for _, a := range args {
		k, v, err := ParseParam(a)
		if err != nil {
			problems = append(problems, pmerrors.Problem{Field: a, Message: "expected key=value"})
			continue
		}
		out[k] = v
	}
	if len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}
	return out, nil
}

// Check validates params against the template's specs: required values
// present, no unknown names, values of the declared type.
func (t *Template) Check(params map[string]any) []pmerrors.Problem {
	var problems []pmerrors.Problem
	for _, spec := range t.Parameters {
		v, ok := params[spec.Name]
		if !ok || v == nil {
			if spec.Required {
				problems = append(problems, pmerrors.Problem{Field: spec.Name, Message: "required parameter missing"})
			}
			continue
		}
		if msg := checkValue(spec, v); msg != "" {
			problems = append(problems, pmerrors.Problem{Field: spec.Name, Message: msg})
		}
	}
	var unknown []string
	for name := range params {
		if _, ok := t.Param(name); !ok {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	for _, name := range unknown {
		problems = append(problems, pmerrors.Problem{Field: name, Message: "unknown parameter"})
	}
	return problems
}

func checkValue(spec ParameterSpec, v any) string {
	switch spec.Type {
	case TypeBoolean:
		if _, ok := asBool(v); !ok {
			return fmt.Sprintf("expected a boolean, got %v", v)
		}
		return ""
	case TypeNumber:
		if _, ok := asNumber(v); !ok {
			return fmt.Sprintf("expected a number, got %v", v)
		}
		return ""
	}
	s := stringValue(v)
	if s == "" && !spec.Required {
		return ""
	}
	if re, ok := typePatterns[spec.Type]; ok && !re.MatchString(s) {
		return fmt.Sprintf("%q is not a valid %s", s, spec.Type)
	}
	if spec.Pattern != "" {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return "invalid validation pattern"
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("value does not match pattern: %s", spec.Pattern)
		}
	}
	return ""
}

// Resolve applies defaults and coerces values to their declared types.
// params must already pass Check.
func (t *Template) Resolve(params map[string]any) map[string]any {
	out := make(map[string]any, len(t.Parameters))
	for _, spec := range t.Parameters {
		v, ok := params[spec.Name]
		if !ok || v == nil {
			v = spec.Default
		}
		switch spec.Type {
		case TypeBoolean:
			b, _ := asBool(v)
			out[spec.Name] = b
		case TypeNumber:
			n, _ := asNumber(v)
			out[spec.Name] = n
		default:
			out[spec.Name] = stringValue(v)
		}
	}
	return out
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(b)
		return p, err == nil
	}
	return false, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		return finite(n)
	}
	return 0, false
}

// stringValue renders numbers without a trailing .0 so that
// python_version=3.12 typed as a number still renders as written.
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
