package audit

import (
	"sync"

	"socialecho/internal/domain"
)

const subscriberBuffer = 16

// Stream fans freshly recorded entries out to live subscribers. Slow
// subscribers drop entries rather than block recording.
type Stream struct {
	mu   sync.RWMutex
	subs map[chan *domain.LogEntry]struct{}
}

func NewStream() *Stream {
	return &Stream{subs: make(map[chan *domain.LogEntry]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away.
func (s *Stream) Subscribe() (<-chan *domain.LogEntry, func()) {
	ch := make(chan *domain.LogEntry, subscriberBuffer)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the entry to every subscriber without blocking.
func (s *Stream) Publish(entry *domain.LogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}
