package room

import (
	"sync"
	"time"
)

// scheduler keeps at most one pending deletion timer per room code. Every Schedule
// bumps a generation so a callback that lost a race with Cancel or a reschedule can
// tell it is stale.
type scheduler struct {
	mu      sync.Mutex
	gen     uint64
	pending map[string]*pendingTimer
}

type pendingTimer struct {
	t   *time.Timer
	gen uint64
}

func newScheduler() *scheduler {
	return &scheduler{pending: make(map[string]*pendingTimer)}
}

// Schedule replaces any pending timer for key. fn receives the generation it was
// scheduled under.
func (s *scheduler) Schedule(key string, d time.Duration, fn func(gen uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[key]; ok {
		p.t.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending[key] = &pendingTimer{gen: gen, t: time.AfterFunc(d, func() { fn(gen) })}
	return gen
}

// Cancel clears the pending timer for key. Cancelling nothing is a no-op.
func (s *scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok {
		return false
	}
	p.t.Stop()
	delete(s.pending, key)
	return true
}

// Claim reports whether gen is still the live timer for key and, if so, forgets it.
// Timer callbacks call it before acting.
func (s *scheduler) Claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen {
		return false
	}
	delete(s.pending, key)
	return true
}

func (s *scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Stop cancels every pending timer.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.pending {
		p.t.Stop()
		delete(s.pending, k)
	}
}
