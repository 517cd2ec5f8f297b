package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aggregator/domain/book"
)

// ErrSlowSubscriber closes a subscription whose queue stayed full
// longer than the configured send timeout.
var ErrSlowSubscriber = errors.New("service: subscriber too slow")

// State is the lifecycle of a subscription.
type State int32

const (
	StateOpen State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateStreaming:
		return "STREAMING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Subscription is one subscriber's emission task. Read C until it is
// closed, then check Err.
type Subscription struct {
	ID uuid.UUID
	C  <-chan book.Summary

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) State() State { return State(s.state.Load()) }

// Close stops the emission task. It is safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed when the emission task has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription closed: nil for normal completion
// or cancellation, ErrSlowSubscriber when the subscriber was dropped.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe starts an emission task bound to ctx and to the
// Aggregator's lifetime. Emission blocks only this task; the store and
// other subscribers never wait on it.
func (a *Aggregator) Subscribe(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	stopBase := context.AfterFunc(a.base, cancel)
	out := make(chan book.Summary, a.cfg.SendBuffer)
	sub := &Subscription{
		ID:     uuid.New(),
		C:      out,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// watch before snapshotting so no change between the two is missed
	var changes <-chan struct{}
	stopWatch := func() {}
	if a.cfg.Mode == ModeTail {
		changes, stopWatch = a.store.Watch()
	}

	go func() {
		defer close(sub.done)
		defer close(out)
		defer stopWatch()
		defer stopBase()
		defer cancel()
		defer sub.state.Store(int32(StateClosed))

		err := a.emit(ctx, sub, out, changes)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			sub.mu.Lock()
			sub.err = err
			sub.mu.Unlock()
			a.cfg.Logger.Printf("[service] subscription %s dropped: %v", sub.ID, err)
		}
	}()
	return sub
}

func (a *Aggregator) emit(ctx context.Context, sub *Subscription, out chan<- book.Summary, changes <-chan struct{}) error {
	sub.state.Store(int32(StateStreaming))

	if a.cfg.Mode != ModeTail {
		for _, item := range a.Items() {
			if err := a.send(ctx, out, item); err != nil {
				return err
			}
		}
		return nil
	}

	last, version := a.merged()
	if err := a.send(ctx, out, last); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		}
		next, v := a.merged()
		if v == version || next.Equal(last) {
			continue
		}
		if err := a.send(ctx, out, next); err != nil {
			return err
		}
		last, version = next, v
	}
}

func (a *Aggregator) send(ctx context.Context, out chan<- book.Summary, s book.Summary) error {
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var timeout <-chan time.Time
	if a.cfg.SendTimeout > 0 {
		t := time.NewTimer(a.cfg.SendTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrSlowSubscriber
	}
}
