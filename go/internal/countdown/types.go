package countdown

import (
	"errors"
	"time"
)

// State is the scheduler's session lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateArmed     State = "ARMED"
	StateRunning   State = "RUNNING"
	StateExpired   State = "EXPIRED"
	StateCancelled State = "CANCELLED"
)

// DisplayState is what observers of the countdown see.
type DisplayState string

const (
	DisplayWaiting   DisplayState = "WAITING"
	DisplayCountdown DisplayState = "COUNTDOWN"
)

var (
	// ErrSessionActive is returned by Start while a session is armed or running.
	ErrSessionActive = errors.New("countdown session already active")
	// ErrInvalidStart is returned for a START without a usable end time.
	ErrInvalidStart = errors.New("start event has no end time")
	// ErrClosed is returned once the scheduler has been shut down.
	ErrClosed = errors.New("scheduler closed")
)

// StartEvent asks for a countdown to EndsAt on the server's clock.
type StartEvent struct {
	EventID        string
	EndsAt         int64  // epoch millis, server clock
	ProducerOffset *int64 // producer's server-minus-local estimate, millis
	ReceivedAt     time.Time
}

// Update is one entry of the observable countdown stream.
type Update struct {
	SessionID string       `json:"session_id"`
	State     DisplayState `json:"state"`
	Remaining int          `json:"remaining"`
	Terminal  bool         `json:"terminal,omitempty"`
	At        time.Time    `json:"at"`
}

// Session is a read-only snapshot of the active session.
type Session struct {
	ID                 string
	EventID            string
	EndsAt             int64
	StartedAt          time.Time
	State              State
	LastEmitted        int
	InitialRemainingMs int64
	CorrectionMs       int64
}
