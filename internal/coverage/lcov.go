// Package coverage measures test coverage of the lines changed since a
// base revision, from LCOV tracefiles and git diffs.
package coverage

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	pmerrors "pmat/internal/errors"
)

// Record is the coverage of one source file in a tracefile.
type Record struct {
	Path string
	// Lines maps instrumented line numbers to hit counts.
	Lines          map[int]int
	FunctionsFound int
	FunctionsHit   int
	BranchesFound  int
	BranchesHit    int
}

func newRecord(path string) *Record {
	return &Record{Path: path, Lines: map[int]int{}}
}

// Tracefile is a parsed LCOV file keyed by source path as written.
type Tracefile map[string]*Record

// ParseLCOV reads an LCOV tracefile. Unknown directives are ignored.
// Records for the same source are merged.
func ParseLCOV(name string, r io.Reader) (Tracefile, error) {
	out := Tracefile{}
	var cur *Record
	functions := map[string]int{}
	var fnf, fnh, brf, brh int
	var brdaFound, brdaHit int
	sawFNF, sawBRF := false, false

	flush := func() {
		if cur == nil {
			return
		}
		hit := 0
		for _, n := range functions {
			if n > 0 {
				hit++
			}
		}
		if sawFNF {
			cur.FunctionsFound += fnf
			cur.FunctionsHit += fnh
		} else {
			cur.FunctionsFound += len(functions)
			cur.FunctionsHit += hit
		}
		if sawBRF {
			cur.BranchesFound += brf
			cur.BranchesHit += brh
		} else {
			cur.BranchesFound += brdaFound
			cur.BranchesHit += brdaHit
		}
		cur = nil
		clear(functions)
		fnf, fnh, brf, brh, brdaFound, brdaHit = 0, 0, 0, 0, 0, 0
		sawFNF, sawBRF = false, false
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "end_of_record" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if key == "SF" {
			flush()
			if rec, ok := out[value]; ok {
				cur = rec
			} else {
				cur = newRecord(value)
				out[value] = cur
			}
			continue
		}
		if cur == nil {
			continue
		}
		fields := strings.Split(value, ",")
		bad := func() error {
			return pmerrors.Parse(name, "malformed "+key+" at line "+strconv.Itoa(lineNo), nil)
		}
		switch key {
		case "DA":
			if len(fields) < 2 {
				return nil, bad()
			}
			ln, err1 := strconv.Atoi(fields[0])
			hits, err2 := strconv.Atoi(fields[1])
			if err1 != nil || err2 != nil {
				return nil, bad()
			}
			cur.Lines[ln] += hits
		case "FN":
			if len(fields) >= 2 {
				name := fields[len(fields)-1]
				if _, ok := functions[name]; !ok {
					functions[name] = 0
				}
			}
		case "FNDA":
			if len(fields) < 2 {
				return nil, bad()
			}
			hits, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, bad()
			}
			functions[fields[1]] += hits
		case "FNF":
			fnf, sawFNF = atoi(fields[0]), true
		case "FNH":
			fnh = atoi(fields[0])
		case "BRDA":
			if len(fields) < 4 {
				return nil, bad()
			}
			brdaFound++
			if taken := fields[3]; taken != "-" && taken != "0" {
				brdaHit++
			}
		case "BRF":
			brf, sawBRF = atoi(fields[0]), true
		case "BRH":
			brh = atoi(fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, pmerrors.Parse(name, "read tracefile", err)
	}
	flush()
	return out, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
