package ingress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mcdev12/arenanotify/go/internal/models"
)

// Bounds on producer-supplied numbers; anything beyond them cannot describe
// a real arena window and would overflow the end time.
const (
	MaxDurationSeconds  = 24 * 60 * 60
	MaxProducerOffsetMs = 24 * 60 * 60 * 1000
)

// WebhookRequest is the producer's payload after validation.
type WebhookRequest struct {
	ChannelID      string
	Kind           models.EventKind
	EventID        string
	Duration       int64
	ProducerOffset *int64
}

// parseRequest decodes and validates a verified body.
func parseRequest(body []byte) (WebhookRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return WebhookRequest{}, fmt.Errorf("%w: body is not a JSON object", ErrValidation)
	}

	var req WebhookRequest
	req.ChannelID = firstString(raw, "pairing_id", "channel_id")
	eventName := firstString(raw, "event", "type")
	if req.ChannelID == "" || eventName == "" {
		return WebhookRequest{}, fmt.Errorf("%w: Missing parameters", ErrValidation)
	}

	kind, ok := models.ParseEventKind(eventName)
	if !ok {
		return WebhookRequest{}, fmt.Errorf("%w: unknown event %q", ErrValidation, eventName)
	}
	req.Kind = kind
	req.EventID = firstString(raw, "eventId", "event_id")

	if v, present := raw["duration"]; present {
		d, ok := asInt(v)
		if !ok {
			return WebhookRequest{}, fmt.Errorf("%w: duration must be a number", ErrValidation)
		}
		req.Duration = d
	} else if kind == models.EventKindStart {
		return WebhookRequest{}, fmt.Errorf("%w: duration is required for %s", ErrValidation, eventName)
	}
	if kind == models.EventKindStart && req.Duration < 0 {
		return WebhookRequest{}, fmt.Errorf("%w: duration must not be negative", ErrValidation)
	}
	if kind == models.EventKindStart && req.Duration > MaxDurationSeconds {
		return WebhookRequest{}, fmt.Errorf("%w: duration must be at most %d seconds", ErrValidation, MaxDurationSeconds)
	}

	for _, key := range []string{"desktopOffset", "producer_offset"} {
		v, present := raw[key]
		if !present || v == nil {
			continue
		}
		off, ok := asInt(v)
		if !ok {
			return WebhookRequest{}, fmt.Errorf("%w: %s must be a number", ErrValidation, key)
		}
		if off > MaxProducerOffsetMs || off < -MaxProducerOffsetMs {
			return WebhookRequest{}, fmt.Errorf("%w: %s is out of range", ErrValidation, key)
		}
		req.ProducerOffset = &off
		break
	}

	return req, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// asInt accepts a JSON number or a numeric string.
func asInt(v any) (int64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && math.Abs(f) < math.MaxInt64 {
		return int64(f), true
	}
	return 0, false
}
