package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestEnv(buf int) (*Env, chan func(*State) error, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())
	dispatchChan := make(chan func(*State) error, buf)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel:          cancel,
	}
	return env, dispatchChan, func() { cancel(context.Canceled) }
}

func TestDispatch(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(10)
	defer cancel()
	state := &State{
		Env: env,
	}

	var called bool

	go func() {
		select {
		case f := <-dispatchChan:
			if err := f(state); err != nil {
				t.Errorf("Dispatch error: %v", err)
			}
		case <-time.After(100 * time.Millisecond):
			t.Error("Timed out waiting for dispatched function")
		}
	}()

	env.Dispatch(func(s *State) error {
		called = true
		return nil
	})

	time.Sleep(150 * time.Millisecond)

	if !called {
		t.Fatal("Dispatch function was not executed")
	}
}

func TestDispatchAfterCancelDoesNotBlock(t *testing.T) {
	env, _, cancel := newTestEnv(0)
	cancel()

	done := make(chan struct{})
	go func() {
		env.Dispatch(func(s *State) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a cancelled env")
	}
}

func TestDispatchWaitReturnsResult(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(1)
	defer cancel()
	state := &State{Env: env}
	sentinel := errors.New("busy")

	go func() {
		f := <-dispatchChan
		if err := f(state); err != nil {
			t.Errorf("dispatched closure must not fail the loop: %v", err)
		}
	}()

	res, err := env.DispatchWait(func(s *State) (any, error) {
		return 42, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if res.(int) != 42 {
		t.Fatalf("expected 42, got %v", res)
	}
}

func TestScheduleTask(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(10)
	defer cancel()
	state := &State{
		Env: env,
	}

	var taskCalled bool

	env.ScheduleTask(func(s *State) error {
		taskCalled = true
		return nil
	}, 50*time.Millisecond)

	// Wait enough time for the scheduled task to be dispatched.
	time.Sleep(100 * time.Millisecond)
	select {
	case f := <-dispatchChan:
		if err := f(state); err != nil {
			t.Errorf("Scheduled task error: %v", err)
		}
	default:
		t.Fatal("No task was scheduled")
	}

	if !taskCalled {
		t.Fatal("Scheduled task was not executed")
	}
}

func TestScheduleTaskStopped(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(10)
	defer cancel()

	timer := env.ScheduleTask(func(s *State) error {
		return nil
	}, 50*time.Millisecond)
	timer.Stop()

	time.Sleep(100 * time.Millisecond)
	select {
	case <-dispatchChan:
		t.Fatal("stopped task was dispatched")
	default:
	}
}

func TestRepeatTask(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(10)
	defer cancel()
	state := &State{
		Env: env,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	var count int

	env.RepeatTask(func(s *State) error {
		count++
		if count <= 3 {
			wg.Done()
		}
		if count == 3 {
			cancel()
		}
		return nil
	}, 50*time.Millisecond)

	// Process the repeat tasks until context is cancelled.
loop:
	for {
		select {
		case f := <-dispatchChan:
			err := f(state)
			if err != nil {
				t.Fatalf("RepeatTask error: %v", err)
			}
		case <-env.Context.Done():
			break loop
		case <-time.After(500 * time.Millisecond):
			t.Fatal("Timed out waiting for RepeatTask to execute")
		}
	}
	wg.Wait()
	if count < 3 {
		t.Fatalf("Expected at least 3 executions, got %d", count)
	}
}
