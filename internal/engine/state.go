package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// stateVersion guards the on-disk rotation state format. Unknown
// versions are discarded and the rotation restarts from zero.
const stateVersion = 1

// RotationState remembers where the previous run stopped so successive
// runs cycle through all collections even when the wall-clock budget
// cuts a run short.
type RotationState struct {
	Version int `json:"version"`
	Index   int `json:"index"`
	Cycle   int `json:"cycle"`
}

// LoadRotationState reads the state file. A missing, unreadable or
// version-mismatched file yields a zero state, never an error: losing
// the pointer only costs rotation fairness.
func LoadRotationState(path string) *RotationState {
	st := &RotationState{Version: stateVersion}
	raw, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	var loaded RotationState
	if err := json.Unmarshal(raw, &loaded); err != nil || loaded.Version != stateVersion {
		return st
	}
	if loaded.Index < 0 {
		loaded.Index = 0
	}
	return &loaded
}

// Advance moves the pointer past the given number of processed
// collections out of total, wrapping into a new cycle at the end.
func (st *RotationState) Advance(processed, total int) {
	if total <= 0 {
		st.Index = 0
		return
	}
	next := st.Index + processed
	st.Cycle += next / total
	st.Index = next % total
}

// Start returns the starting index into a collection list of the given
// length.
func (st *RotationState) Start(total int) int {
	if total <= 0 {
		return 0
	}
	return st.Index % total
}

// Save writes the state atomically (temp file then rename) so a crash
// mid-write never leaves a torn pointer.
func (st *RotationState) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create state dir: %w", err)
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
