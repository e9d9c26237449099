// Package runstore persists pipeline runs: the inputs a caller submitted, the
// artifacts every stage produced, and the token usage the run cost. Runs are
// kept in memory for fast listing and mirrored to one JSON file per run so
// they survive restarts.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specsmith/specsmith/pkg/forge"
	"github.com/specsmith/specsmith/pkg/modeladapter/usage"
)

// ErrNotFound is returned when a run ID is not in the store.
var ErrNotFound = errors.New("runstore: run not found")

// Status describes how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one recorded pipeline execution. Screenshot bytes are stripped
// before persisting; only the derived elements are kept.
type Run struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Status    Status              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Input     forge.PipelineInput `json:"input"`
	Outcome   *forge.Outcome      `json:"outcome,omitempty"`
	Usage     usage.TokenCount    `json:"usage"`
}

// NewRun creates a Run with a fresh UUID and the current time.
func NewRun(input forge.PipelineInput) Run {
	input.Screenshot = nil
	return Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Input:     input,
	}
}

// Store holds runs in memory and mirrors them to dir.
type Store struct {
	dir  string
	mu   sync.RWMutex
	runs map[string]Run
}

// NewStore creates a Store rooted at dir, loading any runs already on disk.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runstore: create dir: %w", err)
	}

	s := &Store{dir: dir, runs: make(map[string]Run)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("runstore: read dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil || run.ID == "" {
			// Skip files that are not run records.
			continue
		}
		s.runs[run.ID] = run
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the run to memory and disk, replacing any previous record with
// the same ID.
func (s *Store) Save(run Run) error {
	run.Input.Screenshot = nil

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("runstore: marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(run.ID), data, 0o644); err != nil {
		return fmt.Errorf("runstore: write run: %w", err)
	}
	s.runs[run.ID] = run

	return nil
}

// Get returns the run with the given ID.
func (s *Store) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, nil
}

// List returns all runs, newest first.
func (s *Store) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

// Delete removes a run from memory and disk.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.runs, id)

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runstore: remove run: %w", err)
	}
	return nil
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.runs)
}
