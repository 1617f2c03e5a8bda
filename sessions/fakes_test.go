package sessions_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/storage"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) sessions.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and runs due timers on the calling goroutine
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// crash drops every pending timer, as if the process had exited
func (c *fakeClock) crash() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		t.stopped = true
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

type recorder struct {
	mu     sync.Mutex
	events []sessions.Event
}

func (r *recorder) OnSessionEvent(_ context.Context, e sessions.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t sessions.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last() sessions.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) types() []sessions.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sessions.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyStorage fails one chosen Set call
type flakyStorage struct {
	*storage.MemoryStorage

	mu     sync.Mutex
	sets   int
	failAt int
}

// failSetAfter makes the nth Set from now fail
func (s *flakyStorage) failSetAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = s.sets + n
}

func (s *flakyStorage) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	fail := s.sets == s.failAt
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.MemoryStorage.Set(ctx, key, value)
}
