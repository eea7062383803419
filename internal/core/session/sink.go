package session

import (
	"sync"

	"peerlink/internal/core/domain"
)

// eventSink fans session events out to the signalling layer over an
// unbounded ordered queue. Native callbacks hold the sink past the
// session's teardown, so a closed sink swallows sends instead of panicking
// or blocking; that mirrors the "weak sender" semantics the callbacks need.
type eventSink struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []domain.PeerEvent
	closed bool
}

func newEventSink() *eventSink {
	s := &eventSink{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Send enqueues an event. It never blocks; events sent after Close are
// silently dropped.
func (s *eventSink) Send(e domain.PeerEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
	return true
}

// Receive blocks until an event is available or the sink is closed and
// drained. The second result is false only when no more events will come.
func (s *eventSink) Receive() (domain.PeerEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true
}

// Close marks the sink closed. Pending events stay receivable; new sends
// are dropped.
func (s *eventSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Broadcast()
}

func (s *eventSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
