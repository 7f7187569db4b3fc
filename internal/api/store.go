package api

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Status is a run's lifecycle stage.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunRecord is the results-server view of one validator run: the
// survivor map once complete, or the error message on failure.
type RunRecord struct {
	ID                string
	Algorithm         string
	Status            Status
	StartedAt         time.Time
	CompletedAt       time.Time
	PermutationsDone  int
	PermutationsTotal int
	Survivors         map[string]decimal.Decimal
	Err               string
}

// Store tracks every run this process has started, in memory, for the
// lifetime of the process — a batch job's results server is meant to
// be polled while the job runs, not to persist runs across restarts.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewStore() *Store {
	return &Store{runs: make(map[string]*RunRecord)}
}

// Start registers a new running record and returns it for the caller
// to update as the run progresses.
func (s *Store) Start(id, algorithm string, permutationsTotal int) *RunRecord {
	rec := &RunRecord{
		ID:                id,
		Algorithm:         algorithm,
		Status:            StatusRunning,
		StartedAt:         time.Now(),
		PermutationsTotal: permutationsTotal,
	}
	s.mu.Lock()
	s.runs[id] = rec
	s.mu.Unlock()
	return rec
}

// Get returns a snapshot of run id, or false if it is unknown.
func (s *Store) Get(id string) (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// Complete marks id completed with its final survivor map.
func (s *Store) Complete(id string, survivors map[string]decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return
	}
	rec.Status = StatusCompleted
	rec.Survivors = survivors
	rec.CompletedAt = time.Now()
}

// Fail marks id failed with err's message.
func (s *Store) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return
	}
	rec.Status = StatusFailed
	rec.Err = err.Error()
	rec.CompletedAt = time.Now()
}

// Progress updates id's completed-permutation count.
func (s *Store) Progress(id string, done int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.runs[id]; ok {
		rec.PermutationsDone = done
	}
}
