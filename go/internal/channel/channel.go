// Package channel defines the shared current-value channel between the
// ingress server and consumers. Each channel holds a single object that every
// write replaces; watchers always receive whole values, never diffs.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mcdev12/arenanotify/go/internal/models"
)

var (
	// ErrInvalidChannelID is returned for ids that cannot be used as a key.
	ErrInvalidChannelID = errors.New("invalid channel id")
	// ErrSubscriptionLost is returned by Watch when the transport drops the
	// subscription. Callers are expected to reattach.
	ErrSubscriptionLost = errors.New("subscription lost")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_=-]{1,128}$`)

// Key normalises a channel id into a store key. Colons are not valid in
// store keys and are replaced with underscores.
func Key(channelID string) (string, error) {
	key := strings.ReplaceAll(strings.TrimSpace(channelID), ":", "_")
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelID, channelID)
	}
	return key, nil
}

// Store overwrites a channel's current value.
type Store interface {
	Put(ctx context.Context, channelID string, ev models.ArenaEvent) error
}

// Watcher delivers every value written to a channel's current slot, starting
// with the value present at attach time (if any). ready, when non-nil, is
// called once the subscription is established and before any value. Watch
// blocks until ctx is done, in which case it returns nil, or until the
// subscription fails.
type Watcher interface {
	Watch(ctx context.Context, channelID string, ready func(), fn func(data []byte)) error
}

// Sample pairs a server clock reading with the local time it corresponds to.
type Sample struct {
	Server time.Time
	Local  time.Time
}

// Offset is server minus local.
func (s Sample) Offset() time.Duration {
	return s.Server.Sub(s.Local)
}

// ClockSource streams server clock samples until ctx is done or the source
// fails.
type ClockSource interface {
	WatchServerTime(ctx context.Context, fn func(Sample)) error
}

// Encode renders an event as the whole-object value stored in the channel.
func Encode(ev models.ArenaEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal arena event: %w", err)
	}
	return data, nil
}
