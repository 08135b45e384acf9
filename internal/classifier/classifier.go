// Package classifier decides which files are worth parsing and walks a
// project tree to find them.
package classifier

import (
	"bytes"
	"math"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultMaxFileSize is the hard size limit; larger inputs are rejected.
	DefaultMaxFileSize = 1 << 20
	// LargeFileThreshold skips big files unless large files are requested.
	LargeFileThreshold = 512_000
	// DefaultMaxLineLength rejects generated code with very long lines.
	DefaultMaxLineLength = 10_000

	sampleSize             = 1024
	minifiedMinSample      = 512
	minifiedEntropy        = 6.0
	minifiedNewlineRatio   = 0.001
	binaryNonPrintableRate = 0.3
)

// SkipReason explains why a file is not parsed.
type SkipReason string

const (
	EmptyFile       SkipReason = "empty_file"
	FileTooLarge    SkipReason = "file_too_large"
	LargeFile       SkipReason = "large_file"
	BuildArtifact   SkipReason = "build_artifact"
	VendorDirectory SkipReason = "vendor_directory"
	BinaryContent   SkipReason = "binary_content"
	LineTooLong     SkipReason = "line_too_long"
	MinifiedContent SkipReason = "minified_content"
)

// Decision is the classifier verdict for one file. A zero Reason means parse.
type Decision struct {
	Reason SkipReason `json:"reason,omitempty"`
}

// Parse reports whether the file should be parsed.
func (d Decision) Parse() bool { return d.Reason == "" }

func (d Decision) String() string {
	if d.Parse() {
		return "parse"
	}
	return "skip(" + string(d.Reason) + ")"
}

var (
	vendorPathPatterns = []string{
		"vendor/", "node_modules/", "third_party/", "external/",
		".yarn/", "bower_components/", ".min.", ".bundle.",
	}
	vendorFilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.min\.(js|css)$`),
		regexp.MustCompile(`\.bundle\.js$`),
		regexp.MustCompile(`-min\.js$`),
		regexp.MustCompile(`\.packed\.js$`),
		regexp.MustCompile(`\.dist\.js$`),
		regexp.MustCompile(`\.production\.js$`),
	}
	minifiedSignatures = [][]byte{
		[]byte("/*! jQuery"),
		[]byte("/*! * Bootstrap"),
		[]byte("!function(e,t){"),
		[]byte("/*! For license information"),
		[]byte("/** @license React"),
	}
	buildPatterns = []string{
		"target/debug/", "target/release/", "target/thumbv",
		"build/", "dist/", ".next/", "__pycache__/",
		"venv/", ".tox/", "cmake-build-", ".gradle/",
	}
)

// Classifier applies the skip rules in a fixed order.
type Classifier struct {
	MaxFileSize       int
	MaxLineLength     int
	SkipVendor        bool
	IncludeLargeFiles bool
}

// New returns a classifier with default limits.
func New() *Classifier {
	return &Classifier{
		MaxFileSize:   DefaultMaxFileSize,
		MaxLineLength: DefaultMaxLineLength,
		SkipVendor:    true,
	}
}

// ShouldParse classifies a file from its path and content.
func (c *Classifier) ShouldParse(path string, content []byte) Decision {
	path = filepath.ToSlash(path)
	switch {
	case len(content) == 0:
		return Decision{EmptyFile}
	case len(content) > c.MaxFileSize:
		return Decision{FileTooLarge}
	case !c.IncludeLargeFiles && len(content) > LargeFileThreshold:
		return Decision{LargeFile}
	case isBuildArtifact(path):
		return Decision{BuildArtifact}
	case c.SkipVendor && isVendorPath(path):
		return Decision{VendorDirectory}
	}

	sample := content
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	if isBinary(sample) {
		return Decision{BinaryContent}
	}
	if hasLongLine(content, c.MaxLineLength) {
		return Decision{LineTooLong}
	}
	if isMinified(sample) {
		return Decision{MinifiedContent}
	}
	return Decision{}
}

func isBuildArtifact(path string) bool {
	for _, p := range buildPatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func isVendorPath(path string) bool {
	for _, p := range vendorPathPatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	name := filepath.Base(path)
	for _, re := range vendorFilePatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func isBinary(sample []byte) bool {
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	nonPrintable := 0
	for _, b := range sample {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > binaryNonPrintableRate
}

func hasLongLine(content []byte, max int) bool {
	for len(content) > 0 {
		i := bytes.IndexByte(content, '\n')
		if i < 0 {
			return len(content) > max
		}
		if i > max {
			return true
		}
		content = content[i+1:]
	}
	return false
}

// isMinified looks for bundler signatures, high byte entropy or almost no
// newlines. Short samples only get the signature check.
func isMinified(sample []byte) bool {
	for _, sig := range minifiedSignatures {
		if bytes.HasPrefix(sample, sig) {
			return true
		}
	}
	if len(sample) < minifiedMinSample {
		return false
	}
	newlines := bytes.Count(sample, []byte{'\n'})
	ratio := float64(newlines) / float64(len(sample))
	return ShannonEntropy(sample) > minifiedEntropy || ratio < minifiedNewlineRatio
}

// ShannonEntropy returns the byte entropy of data in bits.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	n := float64(len(data))
	entropy := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
