package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
)

// Output formats handled by the CLI itself. Everything else is rendered by
// the service.
const (
	formatRaw   = "raw"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

func checkFormat(format string, allowed ...string) error {
	return checkChoice("format", format, allowed...)
}

func checkChoice(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return pmerrors.Invalid(pmerrors.Problem{
		Field:   field,
		Message: fmt.Sprintf("unsupported %s %q, expected one of %s", field, value, strings.Join(allowed, ", ")),
	})
}

// outputWriter reports failed writes to the command's stdout as pmat
// errors so they exit 1 instead of being taken for usage errors.
type outputWriter struct {
	w io.Writer
}

func (o outputWriter) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	if err != nil {
		if _, typed := pmerrors.As(err); !typed {
			err = pmerrors.New(pmerrors.InternalError, "write output", err)
		}
	}
	return n, err
}

// writeBody writes a response body to w unchanged.
func writeBody(w io.Writer, resp *service.Response) error {
	_, err := w.Write(resp.Body)
	return err
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	return writeFile(path, data, true)
}

// writeFile stores data at path through a temp file and rename. With
// createDirs false the parent directory must exist.
func writeFile(path string, data []byte, createDirs bool) error {
	parent := filepath.Dir(path)
	if createDirs {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return pmerrors.Cache("mkdir", parent, err)
		}
	} else if _, err := os.Stat(parent); err != nil {
		return pmerrors.Missing("directory", parent)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return pmerrors.Cache("write", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return pmerrors.Cache("rename", path, err)
	}
	return nil
}

func decodeResponse(resp *service.Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return pmerrors.New(pmerrors.InternalError, "decode response", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return pmerrors.New(pmerrors.InternalError, "encode yaml", err)
	}
	return enc.Close()
}
