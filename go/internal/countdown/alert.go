package countdown

import (
	"io"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/config"
)

// Alert is a final-seconds pulse. Final marks the last second, which gets
// the stronger pattern.
type Alert struct {
	SessionID string `json:"session_id"`
	Seconds   int    `json:"seconds"`
	Final     bool   `json:"final"`
	Vibration bool   `json:"vibration"`
	Sound     bool   `json:"sound"`
}

// Alerter performs the alert side effect.
type Alerter interface {
	Alert(a Alert)
}

// Alerters fans an alert out to several sinks.
type Alerters []Alerter

func (as Alerters) Alert(a Alert) {
	for _, alerter := range as {
		alerter.Alert(a)
	}
}

// alertFor decides whether the tick at seconds raises an alert.
func alertFor(sessionID string, seconds int, s config.AlertSettings) (Alert, bool) {
	if seconds < 1 || seconds > s.FinalSeconds {
		return Alert{}, false
	}
	if !s.AlertsEnabled() {
		return Alert{}, false
	}
	return Alert{
		SessionID: sessionID,
		Seconds:   seconds,
		Final:     seconds == 1,
		Vibration: s.Vibration,
		Sound:     s.Sound,
	}, true
}

// BellAlerter rings the terminal bell for sound alerts (twice on the final
// second) and logs vibration pulses.
type BellAlerter struct {
	Out io.Writer
}

func (b BellAlerter) Alert(a Alert) {
	if a.Sound && b.Out != nil {
		bell := "\a"
		if a.Final {
			bell = "\a\a"
		}
		if _, err := io.WriteString(b.Out, bell); err != nil {
			log.Debug().Err(err).Msg("bell write failed")
		}
	}
	if a.Vibration {
		pattern := []int{0, 120, 80, 120}
		if a.Final {
			pattern = []int{0, 250, 100, 250}
		}
		log.Info().Int("seconds", a.Seconds).Bool("final", a.Final).Ints("pattern_ms", pattern).Msg("vibration pulse")
	}
}
