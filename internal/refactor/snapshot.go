package refactor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	pmerrors "pmat/internal/errors"
)

// SnapshotFile is the snapshot name inside the cache directory.
const SnapshotFile = "refactor-state.bin"

// snapshotVersion guards against loading snapshots of another layout.
const snapshotVersion = 1

type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Machine *Machine  `json:"machine"`
}

// Snapshots persists a machine as zstd-compressed JSON in a cache
// directory.
type Snapshots struct {
	dir string
}

// NewSnapshots stores snapshots under dir.
func NewSnapshots(dir string) *Snapshots { return &Snapshots{dir: dir} }

// Path returns the snapshot file path.
func (s *Snapshots) Path() string { return filepath.Join(s.dir, SnapshotFile) }

// Save writes m atomically through a temp file and rename.
func (s *Snapshots) Save(m *Machine) error {
	path := s.Path()
	data, err := json.Marshal(snapshot{Version: snapshotVersion, SavedAt: m.clock().UTC(), Machine: m})
	if err != nil {
		return pmerrors.Cache("encode", path, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return pmerrors.Cache("encode", path, err)
	}
	compressed := enc.EncodeAll(data, nil)
	_ = enc.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return pmerrors.Cache("write", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return pmerrors.Cache("write", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return pmerrors.Cache("rename", path, err)
	}
	return nil
}

// Load restores a saved machine. A missing snapshot is a NotFound error.
func (s *Snapshots) Load() (*Machine, error) {
	path := s.Path()
	compressed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, pmerrors.Missing("refactor snapshot", path)
	}
	if err != nil {
		return nil, pmerrors.Cache("read", path, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, pmerrors.Cache("decode", path, err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, pmerrors.Cache("decode", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, pmerrors.Cache("decode", path, err)
	}
	if snap.Version != snapshotVersion || snap.Machine == nil {
		return nil, pmerrors.Cache("decode", path, nil).WithDetail("version", snap.Version)
	}
	snap.Machine.now = time.Now
	return snap.Machine, nil
}

// Remove deletes the snapshot. Removing a missing snapshot succeeds.
func (s *Snapshots) Remove() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return pmerrors.Cache("remove", s.Path(), err)
	}
	return nil
}
