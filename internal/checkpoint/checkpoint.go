// Package checkpoint persists crawl progress so interrupted runs resume
// without reprocessing committed work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

// State is the durable progress record. ProcessedRows counts input rows
// whose terminal outcome has been durably recorded, never a row that is only
// partially fetched.
type State struct {
	ProcessedRows int       `json:"processed_rows"`
	LastHandle    string    `json:"last_handle"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store reads and writes the checkpoint file.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted state. A missing, unreadable or corrupt file is
// treated as "no checkpoint" and yields the zero state, never an error.
func (s *Store) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return State{}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}
	}
	if st.ProcessedRows < 0 {
		return State{}
	}
	return st
}

// Save writes the state atomically: the record goes to a temp file in the
// same directory and is renamed into place, so a crash mid-write can never
// leave a half-written checkpoint behind.
func (s *Store) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()         //nolint:errcheck
		os.Remove(tmpName)  //nolint:errcheck
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("close checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Tracker serializes checkpoint commits from concurrent workers and keeps
// ProcessedRows monotonic: commits below the current high-water mark are
// ignored, so out-of-order completion cannot move the cursor backward.
type Tracker struct {
	mu    sync.Mutex
	store *Store
	state State
	clock harvest.Clock

	progressLog   *zap.Logger
	progressEvery int
}

// NewTracker builds a Tracker resuming from the given state.
func NewTracker(store *Store, clock harvest.Clock, resume State) *Tracker {
	return &Tracker{store: store, state: resume, clock: clock, progressLog: zap.NewNop()}
}

// SetProgressLog makes Commit emit an informational progress line every n
// committed rows. n <= 0 disables it.
func (t *Tracker) SetProgressLog(logger *zap.Logger, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	t.progressLog = logger
	t.progressEvery = n
}

// Commit records that every input row below processedRows has a durable
// outcome. The commit is a no-op when it would move the cursor backward.
// The caller must only commit after the row's records are durably persisted.
func (t *Tracker) Commit(processedRows int, handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if processedRows <= t.state.ProcessedRows {
		return nil
	}
	st := State{
		ProcessedRows: processedRows,
		LastHandle:    handle,
		Timestamp:     t.clock.Now(),
	}
	if err := t.store.Save(st); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	prev := t.state.ProcessedRows
	t.state = st
	if t.progressEvery > 0 && st.ProcessedRows/t.progressEvery != prev/t.progressEvery {
		t.progressLog.Info("progress",
			zap.Int("processed_rows", st.ProcessedRows),
			zap.String("last_handle", handle),
		)
	}
	return nil
}

// State returns the last committed state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
