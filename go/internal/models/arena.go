package models

import "strings"

// EventKind is the producer-facing kind of an arena event.
type EventKind string

const (
	EventKindStart EventKind = "START"
	EventKindStop  EventKind = "STOP"
	EventKindProbe EventKind = "PROBE"
)

// Wire type names stored in the channel's current slot.
const (
	WireTypeArenaPop       = "arena_pop"
	WireTypeArenaStop      = "arena_stop"
	WireTypeTestConnection = "test_connection"
)

// WireType returns the type string written to the shared channel.
func (k EventKind) WireType() string {
	switch k {
	case EventKindStart:
		return WireTypeArenaPop
	case EventKindStop:
		return WireTypeArenaStop
	case EventKindProbe:
		return WireTypeTestConnection
	default:
		return ""
	}
}

// ParseEventKind accepts both kind names (start) and wire names (arena_pop),
// case-insensitively.
func ParseEventKind(s string) (EventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start", WireTypeArenaPop:
		return EventKindStart, true
	case "stop", WireTypeArenaStop:
		return EventKindStop, true
	case "probe", WireTypeTestConnection:
		return EventKindProbe, true
	default:
		return "", false
	}
}

// ArenaEvent is the whole-object value held in a channel's current slot.
// Every write replaces the previous value.
type ArenaEvent struct {
	Type          string `json:"type"`
	EventID       string `json:"eventId,omitempty"`
	EndsAt        *int64 `json:"endsAt,omitempty"`        // epoch millis, START only
	Duration      int64  `json:"duration"`                // seconds
	DesktopOffset *int64 `json:"desktopOffset,omitempty"` // producer's own server-local offset, millis
	ServerTS      int64  `json:"server_ts"`               // epoch millis assigned at ingress
}

// Kind maps the wire type back to an EventKind.
func (e ArenaEvent) Kind() (EventKind, bool) {
	return ParseEventKind(e.Type)
}
