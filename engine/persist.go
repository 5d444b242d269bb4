package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ftahirops/xgov/model"
)

// PersistedEffects is how many records the history file keeps.
const PersistedEffects = 200

// HistoryStore persists effect records as a JSON array.
type HistoryStore struct {
	path string
	mu   sync.Mutex
	gen  uint64 // generation of the last successful write
}

// NewHistoryStore creates a store backed by path.
func NewHistoryStore(path string) *HistoryStore {
	return &HistoryStore{path: path}
}

// Path returns the backing file.
func (s *HistoryStore) Path() string { return s.path }

// Load reads the stored records. A missing file yields no records.
func (s *HistoryStore) Load() ([]model.EffectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read effect history: %w", err)
	}
	var recs []model.EffectRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse effect history %s: %w", s.path, err)
	}
	return recs, nil
}

// Save writes the newest PersistedEffects of recs. Writes tagged with an
// older generation than one already on disk are skipped.
func (s *HistoryStore) Save(gen uint64, recs []model.EffectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != 0 && gen < s.gen {
		return nil
	}
	if len(recs) > PersistedEffects {
		recs = recs[len(recs)-PersistedEffects:]
	}
	if recs == nil {
		recs = []model.EffectRecord{}
	}
	if err := writeJSONAtomic(s.path, recs); err != nil {
		return err
	}
	s.gen = gen
	return nil
}

// Export writes every record in recs to path.
func Export(path string, recs []model.EffectRecord) error {
	if recs == nil {
		recs = []model.EffectRecord{}
	}
	return writeJSONAtomic(path, recs)
}

// writeJSONAtomic writes to a temp file in the same directory, fsyncs it,
// and renames it into place so readers never see a partial file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
