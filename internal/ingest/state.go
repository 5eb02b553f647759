package ingest

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"
)

// FileStamp identifies one version of a CSV file.
type FileStamp struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// State remembers which CSV files the last successful run merged, so
// triggered runs can be skipped when nothing changed.
type State struct {
	LastRunAt time.Time            `json:"last_run_at"`
	Files     map[string]FileStamp `json:"files"`

	path string // not serialized; empty keeps the state in memory
}

// LoadState loads the state from path, or starts a new one when the file does
// not exist yet. An empty path gives an in-memory state.
func LoadState(path string) (*State, error) {
	s := &State{path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return s, nil
}

// Record stores the files of a successful run and persists the state.
func (s *State) Record(at time.Time, files map[string]FileStamp) error {
	s.LastRunAt = at.UTC()
	s.Files = maps.Clone(files)
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Changed reports whether files differ from the last recorded run. A state
// that never recorded a run always reports a change.
func (s *State) Changed(files map[string]FileStamp) bool {
	if s.LastRunAt.IsZero() {
		return true
	}
	return !maps.EqualFunc(s.Files, files, func(a, b FileStamp) bool {
		return a.Size == b.Size && a.ModTime.Equal(b.ModTime)
	})
}

// stamps lists the CSV files of paths keyed by base name.
func stamps(paths []string) (map[string]FileStamp, error) {
	out := make(map[string]FileStamp, len(paths))
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		out[filepath.Base(p)] = FileStamp{Size: fi.Size(), ModTime: fi.ModTime().UTC()}
	}
	return out, nil
}
