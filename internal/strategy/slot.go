package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// tickSlot is a coalescing mailbox: a writer overwrites the pending tick and
// the reader only ever sees the newest one.
type tickSlot struct {
	mu       sync.Mutex
	latest   domain.Tick
	pending  bool
	received uint64
	dropped  uint64
	notify   chan struct{}
}

func newTickSlot() *tickSlot {
	return &tickSlot{notify: make(chan struct{}, 1)}
}

// put stores t, replacing any tick not yet taken. It never blocks.
func (s *tickSlot) put(t domain.Tick) (replaced bool) {
	s.mu.Lock()
	replaced = s.pending
	if replaced {
		s.dropped++
	}
	s.received++
	s.latest = t
	s.pending = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return replaced
}

func (s *tickSlot) take() (domain.Tick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return domain.Tick{}, false
	}
	s.pending = false
	return s.latest, true
}

// wait returns the newest tick, blocking up to timeout. It gives up early
// when stop is closed or ctx is done.
func (s *tickSlot) wait(ctx context.Context, stop <-chan struct{}, timeout time.Duration) (domain.Tick, bool) {
	if t, ok := s.take(); ok {
		return t, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-s.notify:
			if t, ok := s.take(); ok {
				return t, true
			}
		case <-timer.C:
			return domain.Tick{}, false
		case <-stop:
			return domain.Tick{}, false
		case <-ctx.Done():
			return domain.Tick{}, false
		}
	}
}

func (s *tickSlot) stats() (received, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.dropped
}
