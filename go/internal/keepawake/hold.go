// Package keepawake provides an exclusive, time-bounded hold that keeps the
// host from idling while a countdown runs.
package keepawake

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrHoldBusy is returned by Acquire while another hold is outstanding.
var ErrHoldBusy = errors.New("keep-awake hold already held")

// Inhibitor is the platform side of a hold.
type Inhibitor interface {
	Name() string
	Inhibit(reason string, d time.Duration) (release func(), err error)
}

// Manager hands out at most one Hold at a time.
type Manager struct {
	clock     clockwork.Clock
	inhibitor Inhibitor

	mu     sync.Mutex
	active *Hold
	seq    int64
}

// NewManager returns a manager using inhibitor, or an in-process lease only
// when inhibitor is nil.
func NewManager(clock clockwork.Clock, inhibitor Inhibitor) *Manager {
	if inhibitor == nil {
		inhibitor = noopInhibitor{}
	}
	return &Manager{clock: clock, inhibitor: inhibitor}
}

// Hold is a granted lease. Release is safe to call any number of times and
// from any goroutine; the hold also releases itself when it expires.
type Hold struct {
	ID        string
	Reason    string
	ExpiresAt time.Time

	m       *Manager
	once    sync.Once
	timer   clockwork.Timer
	release func()
}

// Acquire grants a hold for d.
func (m *Manager) Acquire(reason string, d time.Duration) (*Hold, error) {
	if d <= 0 {
		return nil, fmt.Errorf("keep-awake duration must be positive, got %s", d)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrHoldBusy
	}

	release, err := m.inhibitor.Inhibit(reason, d)
	if err != nil {
		// The in-process lease still applies.
		log.Warn().Err(err).Str("inhibitor", m.inhibitor.Name()).Msg("platform keep-awake failed")
		release = func() {}
	}

	m.seq++
	h := &Hold{
		ID:        fmt.Sprintf("ka-%d", m.seq),
		Reason:    reason,
		ExpiresAt: m.clock.Now().Add(d),
		m:         m,
		release:   release,
	}
	h.timer = m.clock.AfterFunc(d, func() {
		log.Debug().Str("hold_id", h.ID).Msg("keep-awake hold expired")
		h.Release()
	})
	m.active = h

	log.Debug().
		Str("hold_id", h.ID).
		Str("reason", reason).
		Dur("duration", d).
		Str("inhibitor", m.inhibitor.Name()).
		Msg("keep-awake hold acquired")
	return h, nil
}

// Held reports whether a hold is outstanding.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Release gives the hold back.
func (h *Hold) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		// Acquire assigns timer under mu, so the expiry callback cannot
		// observe it unset.
		h.m.mu.Lock()
		if h.m.active == h {
			h.m.active = nil
		}
		timer := h.timer
		h.m.mu.Unlock()

		timer.Stop()
		h.release()

		log.Debug().Str("hold_id", h.ID).Msg("keep-awake hold released")
	})
}

type noopInhibitor struct{}

func (noopInhibitor) Name() string { return "none" }

func (noopInhibitor) Inhibit(string, time.Duration) (func(), error) {
	return func() {}, nil
}
