package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/keagan/adattention/internal/report"
)

// Status of an analysis
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ErrNotFound is returned for an unknown analysis ID
var ErrNotFound = errors.New("analysis not found")

// Analysis is one submitted video and, once finished, its scorecard
type Analysis struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Input      string            `json:"input"`
	OutputDir  string            `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Files      []string          `json:"files,omitempty"`
	Scorecard  *report.Scorecard `json:"scorecard,omitempty"`
}

// Store keeps analyses for the lifetime of the process. Get and List return
// copies so callers never race with a running job.
type Store struct {
	mu       sync.RWMutex
	analyses map[string]*Analysis
}

func NewStore() *Store {
	return &Store{analyses: make(map[string]*Analysis)}
}

// Put inserts or replaces a by ID
func (s *Store) Put(a Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.ID] = &a
}

// Update applies fn to the stored analysis under the write lock
func (s *Store) Update(id string, fn func(a *Analysis)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	return nil
}

func (s *Store) Get(id string) (Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[id]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return *a, nil
}

// List returns every analysis, newest first
func (s *Store) List() []Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
