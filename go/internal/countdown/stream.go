package countdown

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Stream fans updates out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses that update.
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]chan Update
	nextID int
	latest *Update
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan Update)}
}

// Subscribe registers a buffered receiver. The returned func unsubscribes
// and closes the channel.
func (s *Stream) Subscribe(buffer int) (<-chan Update, func()) {
	ch := make(chan Update, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers u to every subscriber and remembers it as the latest.
func (s *Stream) Publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = &u
	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			log.Warn().Int("subscriber", id).Str("state", string(u.State)).Msg("countdown subscriber full, dropping update")
		}
	}
}

// Latest returns the most recent update, if any.
func (s *Stream) Latest() (Update, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Update{}, false
	}
	return *s.latest, true
}
