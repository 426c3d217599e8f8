package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const maxFinalSeconds = 60

// AlertSettings are the user's countdown preferences.
type AlertSettings struct {
	FinalSeconds  int  `yaml:"final_seconds"`
	Vibration     bool `yaml:"vibration"`
	Sound         bool `yaml:"sound"`
	Notifications bool `yaml:"notifications"`
}

// DefaultAlertSettings mirrors the mobile client's defaults.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		FinalSeconds:  10,
		Vibration:     true,
		Sound:         true,
		Notifications: true,
	}
}

// AlertsEnabled reports whether any alert channel is on.
func (s AlertSettings) AlertsEnabled() bool {
	return s.Vibration || s.Sound
}

// Validate rejects settings the scheduler cannot honour.
func (s AlertSettings) Validate() error {
	if s.FinalSeconds < 0 || s.FinalSeconds > maxFinalSeconds {
		return fmt.Errorf("final_seconds must be between 0 and %d, got %d", maxFinalSeconds, s.FinalSeconds)
	}
	return nil
}

type settingsFile struct {
	Alerts AlertSettings `yaml:"alerts"`
}

// LoadAlertSettings reads the YAML settings file. A missing file yields the
// defaults; keys absent from the file keep their default values.
func LoadAlertSettings(path string) (AlertSettings, error) {
	file := settingsFile{Alerts: DefaultAlertSettings()}
	if path == "" {
		return file.Alerts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file.Alerts, nil
		}
		return AlertSettings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return AlertSettings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := file.Alerts.Validate(); err != nil {
		return AlertSettings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return file.Alerts, nil
}

// SettingsHolder serves the current AlertSettings and reloads them when the
// backing file changes. Readers never block.
type SettingsHolder struct {
	path    string
	current atomic.Pointer[AlertSettings]
}

// NewSettingsHolder loads path once and returns a holder for it.
func NewSettingsHolder(path string) (*SettingsHolder, error) {
	s, err := LoadAlertSettings(path)
	if err != nil {
		return nil, err
	}
	h := &SettingsHolder{path: path}
	h.current.Store(&s)
	return h, nil
}

// StaticSettings returns a holder that never reloads.
func StaticSettings(s AlertSettings) *SettingsHolder {
	h := &SettingsHolder{}
	h.current.Store(&s)
	return h
}

// Alerts returns the current settings.
func (h *SettingsHolder) Alerts() AlertSettings {
	return *h.current.Load()
}

// Reload re-reads the file. On error the previous settings stay in force.
func (h *SettingsHolder) Reload() error {
	s, err := LoadAlertSettings(h.path)
	if err != nil {
		log.Error().Err(err).Str("path", h.path).Msg("settings reload failed, keeping previous settings")
		return err
	}
	old := h.current.Swap(&s)
	if *old != s {
		log.Info().
			Int("final_seconds", s.FinalSeconds).
			Bool("vibration", s.Vibration).
			Bool("sound", s.Sound).
			Bool("notifications", s.Notifications).
			Msg("alert settings reloaded")
	}
	return nil
}

// Watch reloads the settings whenever the file is written, created or
// renamed into place, until ctx is cancelled. The parent directory is
// watched so editors that replace the file are handled.
func (h *SettingsHolder) Watch(ctx context.Context) error {
	if h.path == "" {
		log.Info().Msg("settings watcher disabled (no settings file)")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch settings dir: %w", err)
	}
	log.Info().Str("path", h.path).Msg("watching settings file for changes")

	const debounce = 250 * time.Millisecond
	var pending <-chan time.Time
	target := filepath.Clean(h.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("settings watcher error")
		case <-pending:
			pending = nil
			_ = h.Reload()
		}
	}
}
