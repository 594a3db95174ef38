package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/perf"
	"github.com/encodeous/loadng/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

func newLogger(cfg state.LocalCfg, level slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: cfg.Id.String(),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Init creates the node state and initializes every module. The returned state is driven by Run.
func Init(cfg state.LocalCfg, level slog.Level, tr link.Transport, cb Callbacks) (*state.State, error) {
	cfg.ApplyDefaults()
	logger, err := newLogger(cfg, level)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	dispatch := make(chan func(s *state.State) error, 128)

	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			LocalCfg:        cfg,
			Log:             logger,
			Stopped:         make(chan struct{}),
		},
	}

	s.Log.Info("init modules")
	err = initModules(s, tr, cb)
	if err != nil {
		cancel(err)
		return nil, err
	}
	s.Log.Info("init modules complete")
	return s, nil
}

// Run drives s until its context is cancelled, then cleans up every module
func Run(s *state.State) error {
	if !s.Running.CompareAndSwap(false, true) {
		return errors.New("node was already run or stopped")
	}
	defer close(s.Stopped)
	err := MainLoop(s, s.DispatchChannel)
	cleanupModules(s)
	return err
}

// Start initializes a node and runs it on the calling goroutine until Stop is called
func Start(cfg state.LocalCfg, level slog.Level, tr link.Transport, cb Callbacks) error {
	s, err := Init(cfg, level, tr, cb)
	if err != nil {
		return err
	}
	return Run(s)
}

func initModules(s *state.State, tr link.Transport, cb Callbacks) error {
	var modules []state.NyModule
	modules = append(modules, &LoadRouter{Transport: tr, Callbacks: cb})
	if s.ControlSocket != "" {
		modules = append(modules, &ControlServer{})
	}

	for _, module := range modules {
		if err := module.Init(s); err != nil {
			cleanupModules(s)
			return fmt.Errorf("failed to init %s: %w", reflect.TypeOf(module).String(), err)
		}
		s.Modules[reflect.TypeOf(module).String()] = module
	}
	return nil
}

func cleanupModules(s *state.State) {
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during cleanup: ", "module", moduleName, "error", err)
		}
	}
	clear(s.Modules)
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > time.Millisecond*4 {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
			return nil
		}
	}
}

// Stop shuts down a node and waits for its cleanup. A node that was never handed to Run is cleaned up
// directly. It must not be called from the main loop.
func Stop(s *state.State) {
	if s == nil {
		return
	}
	if s.Stopping.Swap(true) {
		<-s.Stopped
		return
	}
	s.Cancel(errors.New("node stopped"))
	if s.Running.CompareAndSwap(false, true) {
		// Run was never called, so nobody else will clean up
		cleanupModules(s)
		close(s.Stopped)
	}
	<-s.Stopped
	s.Log.Info("stopped")
}
