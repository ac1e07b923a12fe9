package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// HistoryStore persists closed positions to a single JSON file shared by the
// trading and monitor processes. Writes are serialized with an advisory file
// lock and re-read the file before appending so neither process loses the
// other's records.
type HistoryStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
	log  *logrus.Logger

	records []ClosedPosition
}

func NewHistoryStore(path string, log *logrus.Logger) *HistoryStore {
	h := &HistoryStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
	}
	h.records = h.readFile()
	if len(h.records) > 0 {
		log.Infof("History | loaded %d closed positions from %s", len(h.records), path)
	}
	return h
}

// readFile loads the records on disk. A missing or corrupt file is an empty
// history, logged and never fatal.
func (h *HistoryStore) readFile() []ClosedPosition {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			h.log.Warnf("History | failed to read %s, starting empty: %v", h.path, err)
		}
		return nil
	}
	var records []ClosedPosition
	if err := json.Unmarshal(data, &records); err != nil {
		h.log.Warnf("History | corrupt history file %s, starting empty: %v", h.path, err)
		return nil
	}
	return records
}

// Append merges rec with the records currently on disk and rewrites the file
// under the advisory lock.
func (h *HistoryStore) Append(rec ClosedPosition) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	if err := h.lock.Lock(); err != nil {
		return fmt.Errorf("history: acquire lock: %w", err)
	}
	defer h.lock.Unlock()

	records := append(h.readFile(), rec)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := os.WriteFile(h.path, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", h.path, err)
	}
	h.records = records
	return nil
}

// Records returns a copy of the in-memory history.
func (h *HistoryStore) Records() []ClosedPosition {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ClosedPosition, len(h.records))
	copy(out, h.records)
	return out
}

// Reload re-reads the file, picking up records written by the other process.
func (h *HistoryStore) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.readFile()
}
