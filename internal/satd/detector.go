package satd

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/hex"
	"path"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	pmerrors "pmat/internal/errors"
)

// MaxLineLength is the longest line the comment extractor accepts.
const MaxLineLength = 10_000

// ContextFunc returns the function enclosing a line, if any.
type ContextFunc func(line int) (FunctionContext, bool)

// ExtractFromContent returns the debt comments of one file sorted by line
// and column. Rust #[cfg(test)] blocks are skipped and items in test files
// are reduced one level. ctx may be nil.
func ExtractFromContent(content []byte, file string, ctx ContextFunc) ([]TechnicalDebt, error) {
	var items []TechnicalDebt
	rust := path.Ext(file) == ".rs"
	testFile := IsTestFile(file)
	inTestBlock := false
	depth := 0

	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*MaxLineLength)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if rust {
			if strings.HasPrefix(trimmed, "#[cfg(test)]") {
				inTestBlock = true
				depth = 0
			} else if inTestBlock {
				depth += strings.Count(trimmed, "{")
				if closes := strings.Count(trimmed, "}"); closes > 0 {
					depth = max(depth-closes, 0)
					if depth == 0 && strings.HasSuffix(trimmed, "}") {
						inTestBlock = false
					}
				}
			}
		}
		if inTestBlock {
			continue
		}

		text, ok, err := commentContent(line)
		if err != nil {
			return nil, pmerrors.Limit(file, "line_length", int64(len(line)), MaxLineLength).WithDetail("line", lineNum)
		}
		if !ok {
			continue
		}
		category, severity, ok := Classify(text)
		if !ok {
			continue
		}
		if ctx != nil {
			if fc, found := ctx(lineNum); found {
				severity = AdjustSeverity(severity, fc)
			}
		}
		if testFile {
			severity = severity.Reduce()
		}
		items = append(items, TechnicalDebt{
			Category:    category,
			Severity:    severity,
			Text:        text,
			File:        file,
			Line:        lineNum,
			Column:      commentColumn(line),
			ContextHash: contextHash(file, lineNum, text),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, pmerrors.Limit(file, "line_length", int64(MaxLineLength+1), MaxLineLength)
	}
	SortItems(items)
	return items, nil
}

// SortItems orders items by file, line and column.
func SortItems(items []TechnicalDebt) {
	slices.SortStableFunc(items, func(a, b TechnicalDebt) int {
		return cmp.Or(
			strings.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
		)
	})
}

// commentContent extracts the text of a line comment or of a block comment
// that opens and closes on the line.
func commentContent(line string) (string, bool, error) {
	if len(line) > MaxLineLength {
		return "", false, pmerrors.Limit("", "line_length", int64(len(line)), MaxLineLength)
	}
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "//"):
		return strings.TrimSpace(trimmed[2:]), true, nil
	case strings.HasPrefix(trimmed, "#"):
		return strings.TrimSpace(trimmed[1:]), true, nil
	case len(trimmed) >= 4 && strings.HasPrefix(trimmed, "/*") && strings.HasSuffix(trimmed, "*/"):
		return strings.TrimSpace(trimmed[2 : len(trimmed)-2]), true, nil
	case len(trimmed) >= 7 && strings.HasPrefix(trimmed, "<!--") && strings.HasSuffix(trimmed, "-->"):
		return strings.TrimSpace(trimmed[4 : len(trimmed)-3]), true, nil
	}
	return "", false, nil
}

// commentColumn returns the 1-based column of the comment opener.
func commentColumn(line string) int {
	for _, opener := range []string{"//", "#", "/*", "<!--"} {
		if i := strings.Index(line, opener); i >= 0 {
			return i + 1
		}
	}
	return 1
}

// contextHash is stable for a given file, line and text.
func contextHash(file string, line int, text string) string {
	var lineBytes [4]byte
	binary.LittleEndian.PutUint32(lineBytes[:], uint32(line))

	var sum [16]byte
	for i, seed := range []uint64{0, 1} {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.WriteString(file)
		_, _ = d.Write(lineBytes[:])
		_, _ = d.WriteString(text)
		binary.BigEndian.PutUint64(sum[i*8:], d.Sum64())
	}
	return hex.EncodeToString(sum[:])
}

// IsTestFile reports whether a file name marks test or spec code.
func IsTestFile(p string) bool {
	name := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.Contains(name, "test") || strings.Contains(name, "spec")
}

var minifiedMarkers = []string{".min.", ".bundle.", "-min.", ".production."}

// isMinifiedOrVendor reports bundled output and vendored code.
func isMinifiedOrVendor(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "vendor" {
			return true
		}
	}
	name := path.Base(p)
	for _, m := range minifiedMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

var sourceExtensions = map[string]bool{
	".rs": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true, ".cs": true,
	".go": true, ".php": true, ".rb": true, ".swift": true, ".kt": true, ".scala": true,
	".clj": true, ".hs": true, ".ml": true, ".elm": true,
}

// IsSourceFile reports whether a path has a scanned source extension.
func IsSourceFile(p string) bool {
	return sourceExtensions[path.Ext(p)]
}
