package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	*RouterState
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan func(s *State) error
	LocalCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
	Started atomic.Bool
	// Running is claimed by whichever of Run or Stop reaches the state first
	Running  atomic.Bool
	Stopping atomic.Bool
	// Stopped is closed once the main loop has exited and every module is cleaned up
	Stopped chan struct{}
}
