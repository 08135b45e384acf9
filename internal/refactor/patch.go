package refactor

import (
	"fmt"
	"path"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	pmerrors "pmat/internal/errors"
)

// Describe renders an operation as a one-line suggestion.
func Describe(op Op) string {
	switch op.Kind {
	case OpExtractFunction:
		return fmt.Sprintf("extract lines %d-%d of %s into %s", op.Start.Line, op.End.Line, orFile(op), op.Name)
	case OpFlattenNesting:
		return fmt.Sprintf("flatten nesting in %s using %s", orFile(op), op.Strategy)
	case OpReplaceHashMap:
		return fmt.Sprintf("replace the map in %s with a flat lookup", orFile(op))
	case OpRemoveSATD:
		switch op.Fix {
		case FixImplement:
			return fmt.Sprintf("implement the work described by the comment on line %d", op.Start.Line)
		case FixReplace:
			return fmt.Sprintf("replace the comment on line %d with a tracked issue reference", op.Start.Line)
		}
		return fmt.Sprintf("remove the stale comment on line %d", op.Start.Line)
	}
	return fmt.Sprintf("simplify the expressions in %s", orFile(op))
}

func orFile(op Op) string {
	if op.Function != "" {
		return op.Function
	}
	return path.Base(op.File)
}

// Patch renders op against src as a unified diff. Removing a debt comment
// deletes it; every other operation inserts a marker comment above the
// affected line.
func Patch(op Op, src []byte) (string, error) {
	before := difflib.SplitLines(string(src))
	if strings.HasSuffix(string(src), "\n") {
		before = before[:len(before)-1]
	}
	line := op.Start.Line
	if line < 1 || line > len(before) {
		return "", pmerrors.Invalid(pmerrors.Problem{
			Field:   "line",
			Message: fmt.Sprintf("line %d is outside %s (%d lines)", line, op.File, len(before)),
		})
	}
	after := make([]string, 0, len(before)+1)
	after = append(after, before[:line-1]...)
	target := before[line-1]

	if op.Kind == OpRemoveSATD && op.Fix == FixRemove {
		col := max(op.Start.Column, 1)
		if col <= len(target) {
			if code := strings.TrimRight(target[:col-1], " \t"); strings.TrimSpace(code) != "" {
				after = append(after, code+"\n")
			}
		}
	} else {
		indent := target[:len(target)-len(strings.TrimLeft(target, " \t"))]
		after = append(after, indent+commentPrefix(op.File)+" pmat: "+Describe(op)+"\n", target)
	}
	after = append(after, before[line:]...)

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: "a/" + op.File,
		ToFile:   "b/" + op.File,
		Context:  3,
	})
}

func commentPrefix(file string) string {
	base := path.Base(file)
	if base == "Makefile" || base == "makefile" || base == "GNUmakefile" {
		return "#"
	}
	switch path.Ext(file) {
	case ".py", ".rb", ".sh", ".bash", ".toml", ".yaml", ".yml", ".mk", ".r", ".pl":
		return "#"
	case ".lua", ".sql", ".hs":
		return "--"
	}
	return "//"
}
