package syncer

import (
	"sync"
)

// Snapshot is a point-in-time copy of the sync status. Advisory only: stale
// reads are acceptable and nothing correctness-critical may depend on it.
type Snapshot struct {
	IsSyncing   bool   `json:"is_syncing"`
	CurrentStep string `json:"current_step"`
	FilesTotal  int    `json:"files_total"`
	FilesDone   int    `json:"files_done"`
	LastMessage string `json:"last_message"`
}

// Status is the process-wide sync descriptor. The orchestrator is its sole
// writer; any goroutine may read a Snapshot without blocking the sync.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewStatus() *Status {
	return &Status{
		snap: Snapshot{CurrentStep: stepIdle},
	}
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Status) begin(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.IsSyncing = true
	s.snap.CurrentStep = step
	s.snap.FilesTotal = 0
	s.snap.FilesDone = 0
}

func (s *Status) step(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CurrentStep = step
}

func (s *Status) setTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.FilesTotal = n
}

func (s *Status) setDone(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.FilesDone = n
}

func (s *Status) finish(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.IsSyncing = false
	s.snap.CurrentStep = stepIdle
	s.snap.LastMessage = message
}
