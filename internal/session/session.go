// Package session assigns subject identifiers for a recording session:
// either an explicit id, a persisted per-host sequence ("user_001",
// "user_002", ...), or a random UUID when the sequence file cannot be
// written.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SeqFile is the sequence state file name inside the log directory.
const SeqFile = "user_seq.json"

type seqState struct {
	Last int `json:"last"`
}

// NextSequential increments the persisted counter in dir and returns the
// next id as prefix_NNN. A missing or corrupt state file restarts the
// sequence at 1.
func NextSequential(dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: create state dir: %w", err)
	}
	path := filepath.Join(dir, SeqFile)

	var st seqState
	if data, err := os.ReadFile(path); err == nil {
		// Corrupt state just restarts the sequence.
		_ = json.Unmarshal(data, &st)
	}
	st.Last++

	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("session: encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("session: persist state: %w", err)
	}
	return fmt.Sprintf("%s_%03d", prefix, st.Last), nil
}

// UserID resolves the subject id for this run. An explicit id wins; with
// useSeq the persisted sequence is used, falling back to a random UUID if
// the sequence cannot be persisted; otherwise the id is "unknown".
func UserID(explicit string, useSeq bool, dir, prefix string) string {
	if explicit != "" {
		return explicit
	}
	if !useSeq {
		return "unknown"
	}
	id, err := NextSequential(dir, prefix)
	if err != nil {
		return prefix + "_" + uuid.NewString()[:8]
	}
	return id
}
