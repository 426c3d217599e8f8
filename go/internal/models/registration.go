package models

import (
	"encoding/json"
	"time"
)

// DeviceRegistration binds a consumer device to a producer-chosen channel.
type DeviceRegistration struct {
	ChannelID    string          `json:"pairing_id"`
	DeviceID     string          `json:"deviceId"`
	DeviceSecret string          `json:"device_secret"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	RegisteredAt time.Time       `json:"registered_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
