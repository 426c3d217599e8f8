package countdown

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/arenanotify/go/internal/config"
)

func TestAlertFor(t *testing.T) {
	defaults := config.DefaultAlertSettings()
	vibrationOnly := defaults
	vibrationOnly.Sound = false
	silent := defaults
	silent.Sound = false
	silent.Vibration = false

	tests := []struct {
		name      string
		seconds   int
		settings  config.AlertSettings
		wantAlert bool
		wantFinal bool
	}{
		{name: "outside window", seconds: 11, settings: defaults},
		{name: "window edge", seconds: 10, settings: defaults, wantAlert: true},
		{name: "last second", seconds: 1, settings: defaults, wantAlert: true, wantFinal: true},
		{name: "zero", seconds: 0, settings: defaults},
		{name: "vibration only", seconds: 3, settings: vibrationOnly, wantAlert: true},
		{name: "silent", seconds: 3, settings: silent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := alertFor("s1", tt.seconds, tt.settings)
			assert.Equal(t, tt.wantAlert, ok)
			assert.Equal(t, tt.wantFinal, a.Final)
		})
	}
}

func TestBellAlerter(t *testing.T) {
	var buf bytes.Buffer
	b := BellAlerter{Out: &buf}

	b.Alert(Alert{Seconds: 3, Sound: true})
	b.Alert(Alert{Seconds: 1, Final: true, Sound: true})
	b.Alert(Alert{Seconds: 2, Vibration: true})

	assert.Equal(t, "\a\a\a", buf.String())
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "01:05", FormatRemaining(65))
	assert.Equal(t, "00:00", FormatRemaining(-3))
}

func TestStreamLatestAndDrop(t *testing.T) {
	s := NewStream()
	_, ok := s.Latest()
	assert.False(t, ok)

	ch, unsubscribe := s.Subscribe(1)
	s.Publish(Update{Remaining: 3})
	s.Publish(Update{Remaining: 2})

	assert.Equal(t, 3, (<-ch).Remaining)
	latest, ok := s.Latest()
	assert.True(t, ok)
	assert.Equal(t, 2, latest.Remaining)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}
