// Package looptest provides a dispatcher whose async work only runs when a
// test says so, which makes completion order explicit.
package looptest

import (
	"context"
	"sync"
)

type Manual struct {
	mu      sync.Mutex
	pending []func(ctx context.Context) func()
}

func (m *Manual) Post(fn func()) { fn() }

func (m *Manual) Do(ctx context.Context, fn func()) error {
	fn()
	return nil
}

func (m *Manual) Go(work func(ctx context.Context) func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, work)
}

// Pending reports how many async jobs are waiting.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.pending {
		if w != nil {
			n++
		}
	}
	return n
}

// Issued reports how many jobs were ever queued; the latest one has index
// Issued()-1.
func (m *Manual) Issued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Complete runs the i-th queued job (in issue order) and its completion.
func (m *Manual) Complete(i int) {
	m.mu.Lock()
	work := m.pending[i]
	m.pending[i] = nil
	m.mu.Unlock()
	if work == nil {
		panic("looptest: job already completed")
	}
	if done := work(context.Background()); done != nil {
		done()
	}
}

// CompleteAll runs every queued job in issue order, including jobs queued by
// completions.
func (m *Manual) CompleteAll() {
	for i := 0; ; i++ {
		m.mu.Lock()
		if i >= len(m.pending) {
			m.mu.Unlock()
			return
		}
		work := m.pending[i]
		m.mu.Unlock()
		if work != nil {
			m.Complete(i)
		}
	}
}
