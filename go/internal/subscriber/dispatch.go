package subscriber

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/countdown"
	"github.com/mcdev12/arenanotify/go/internal/models"
)

// Dispatch parses one whole-object value and forwards it to the sink.
// Anything malformed is logged and dropped; nothing is retried.
func (s *Subscriber) Dispatch(data []byte) {
	receivedAt := s.clock.Now()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value map[string]any
	if err := dec.Decode(&value); err != nil || value == nil {
		s.drop("malformed", "channel value is not an object")
		return
	}

	rawType, _ := value["type"].(string)
	eventType := strings.ToLower(strings.TrimSpace(rawType))
	s.metrics.Event(eventType)

	switch eventType {
	case models.WireTypeArenaPop:
		endsAt, ok := intField(value, "endsAt", "ends_at")
		if !ok {
			s.drop("missing_ends_at", "arena_pop without numeric endsAt")
			return
		}
		ev := countdown.StartEvent{EndsAt: endsAt, ReceivedAt: receivedAt}
		ev.EventID, _ = value["eventId"].(string)
		if off, ok := intField(value, "desktopOffset", "producer_offset"); ok {
			ev.ProducerOffset = &off
		}

		err := s.sink.Start(ev)
		switch {
		case err == nil:
			log.Info().Str("channel_id", s.cfg.ChannelID).Int64("ends_at", endsAt).Msg("arena pop dispatched")
		case errors.Is(err, countdown.ErrSessionActive):
			// already logged by the scheduler
		default:
			log.Warn().Err(err).Str("channel_id", s.cfg.ChannelID).Msg("countdown rejected arena pop")
		}

	case models.WireTypeArenaStop:
		if s.sink.Stop() {
			log.Info().Str("channel_id", s.cfg.ChannelID).Msg("arena stop dispatched")
		}

	case models.WireTypeTestConnection:
		log.Info().Str("channel_id", s.cfg.ChannelID).Interface("value", value).Msg("test connection received")

	case "":
		s.drop("missing_type", "channel value has no type")

	default:
		log.Warn().Str("channel_id", s.cfg.ChannelID).Str("type", eventType).Msg("unknown event type, dropping")
		s.metrics.Dropped("unknown_type")
	}
}

func (s *Subscriber) drop(reason, msg string) {
	log.Warn().Str("channel_id", s.cfg.ChannelID).Str("reason", reason).Msg(msg)
	s.metrics.Dropped(reason)
}

// intField returns the first of keys holding a JSON number.
func intField(value map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		n, ok := value[k].(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
