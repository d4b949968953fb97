package syncer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrInvalidTransition = fmt.Errorf("invalid state transition")

type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateFetching State = "fetching"
	StateSaving   State = "saving"
)

// Step strings surfaced to status readers.
const (
	stepIdle     = "Idle"
	stepScanning = "Scanning..."
	stepFetching = "Downloading Reports..."
	stepSaving   = "Saving to Database..."
)

// FSM guards the sync cycle's phase ordering. Every state may fall back to
// Idle so no failure path can leave a cycle wedged mid-phase.
type FSM struct {
	mu          sync.Mutex
	transitions map[State]map[State]struct{}

	current State
	logger  *zap.Logger
}

type FSMOption func(*FSM)

func FSMWithLogger(logger *zap.Logger) FSMOption {
	return func(f *FSM) {
		f.logger = logger
	}
}

func NewFSM(opts ...FSMOption) *FSM {
	f := &FSM{
		current: StateIdle,
		logger:  zap.NewNop(),

		transitions: map[State]map[State]struct{}{
			StateIdle: {
				StateScanning: {},
			},
			StateScanning: {
				StateFetching: {},
				StateIdle:     {},
			},
			StateFetching: {
				StateSaving: {},
				StateIdle:   {},
			},
			StateSaving: {
				StateIdle: {},
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FSM) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FSM) canTransition(to State) bool {
	_, ok := f.transitions[f.current][to]
	return ok
}

func (f *FSM) Transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.canTransition(to) {
		f.logger.Error("invalid state transition",
			zap.String("from", string(f.current)),
			zap.String("to", string(to)),
		)
		return ErrInvalidTransition
	}
	previous := f.current
	f.current = to

	f.logger.Debug("state transitioned",
		zap.String("state", string(f.current)),
		zap.String("from", string(previous)),
	)
	return nil
}
