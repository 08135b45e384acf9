package projectctx

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	pmerrors "pmat/internal/errors"
)

// Project kinds, named after the toolchain that builds them.
const (
	KindRust    = "rust"
	KindPython  = "python-uv"
	KindDeno    = "deno"
	KindNode    = "node"
	KindUnknown = "unknown"
)

// Metadata is what the project manifest declares.
type Metadata struct {
	Kind         string   `json:"kind"`
	Manifest     string   `json:"manifest,omitempty"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Description  string   `json:"description,omitempty"`
	Edition      string   `json:"edition,omitempty"`
	Python       string   `json:"requires_python,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type cargoManifest struct {
	Package struct {
		Name        string `toml:"name"`
		Version     any    `toml:"version"`
		Edition     any    `toml:"edition"`
		Description string `toml:"description"`
	} `toml:"package"`
	Workspace struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
	Dependencies map[string]any `toml:"dependencies"`
}

type pyprojectManifest struct {
	Project struct {
		Name           string   `toml:"name"`
		Version        string   `toml:"version"`
		Description    string   `toml:"description"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name         string         `toml:"name"`
			Version      string         `toml:"version"`
			Description  string         `toml:"description"`
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

type jsonManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Imports         map[string]string `json:"imports"`
}

// manifests in detection priority order.
var manifests = []struct {
	file  string
	kind  string
	parse func([]byte, *Metadata) error
}{
	{"Cargo.toml", KindRust, parseCargo},
	{"pyproject.toml", KindPython, parsePyproject},
	{"deno.json", KindDeno, parseJSONManifest},
	{"deno.jsonc", KindDeno, parseJSONManifest},
	{"package.json", KindNode, parseJSONManifest},
}

// DetectMetadata reads the first manifest found in root. A directory
// without one yields KindUnknown and no error.
func DetectMetadata(root string) (*Metadata, error) {
	for _, m := range manifests {
		path := filepath.Join(root, m.file)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, pmerrors.Parse(m.file, "read manifest", err)
		}
		meta := &Metadata{Kind: m.kind, Manifest: m.file}
		if err := m.parse(data, meta); err != nil {
			return nil, pmerrors.Parse(m.file, "invalid manifest", err)
		}
		slices.Sort(meta.Dependencies)
		meta.Dependencies = slices.Compact(meta.Dependencies)
		return meta, nil
	}
	return &Metadata{Kind: KindUnknown}, nil
}

func parseCargo(data []byte, meta *Metadata) error {
	var c cargoManifest
	if err := toml.Unmarshal(data, &c); err != nil {
		return err
	}
	meta.Name = c.Package.Name
	meta.Description = c.Package.Description
	// version and edition may be `{ workspace = true }` tables.
	if v, ok := c.Package.Version.(string); ok {
		meta.Version = v
	}
	if e, ok := c.Package.Edition.(string); ok {
		meta.Edition = e
	}
	for name := range c.Dependencies {
		meta.Dependencies = append(meta.Dependencies, name)
	}
	if meta.Name == "" && len(c.Workspace.Members) > 0 {
		meta.Name = "workspace"
	}
	return nil
}

// pep508Name is the distribution name at the start of a requirement.
var pep508Name = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

func parsePyproject(data []byte, meta *Metadata) error {
	var p pyprojectManifest
	if err := toml.Unmarshal(data, &p); err != nil {
		return err
	}
	meta.Name = p.Project.Name
	meta.Version = p.Project.Version
	meta.Description = p.Project.Description
	meta.Python = p.Project.RequiresPython
	for _, req := range p.Project.Dependencies {
		if name := pep508Name.FindString(strings.TrimSpace(req)); name != "" {
			meta.Dependencies = append(meta.Dependencies, name)
		}
	}
	if meta.Name == "" {
		poetry := p.Tool.Poetry
		meta.Name, meta.Version, meta.Description = poetry.Name, poetry.Version, poetry.Description
		for name, spec := range poetry.Dependencies {
			if name == "python" {
				if s, ok := spec.(string); ok {
					meta.Python = s
				}
				continue
			}
			meta.Dependencies = append(meta.Dependencies, name)
		}
	}
	return nil
}

func parseJSONManifest(data []byte, meta *Metadata) error {
	var m jsonManifest
	if err := json.Unmarshal(stripJSONComments(data), &m); err != nil {
		return err
	}
	meta.Name, meta.Version, meta.Description = m.Name, m.Version, m.Description
	for _, deps := range []map[string]string{m.Dependencies, m.DevDependencies, m.Imports} {
		for name := range deps {
			meta.Dependencies = append(meta.Dependencies, name)
		}
	}
	return nil
}

// stripJSONComments drops // line comments outside strings, enough for
// deno.jsonc files.
func stripJSONComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == '/' && i+1 < len(data) && data[i+1] == '/' {
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
