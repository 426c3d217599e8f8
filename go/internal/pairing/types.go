package pairing

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrStore         = errors.New("registration store failed")
	ErrMisconfigured = errors.New("server misconfigured")
)

// PairRequest is the body of POST /pairDevice.
type PairRequest struct {
	ChannelID string `json:"pid"`
	DeviceID  string `json:"deviceId"`
	FCMToken  string `json:"fcmToken,omitempty"`
	UserAgent string `json:"-"`
}

// PairResponse is returned on success.
type PairResponse struct {
	OK           bool   `json:"ok"`
	ChannelID    string `json:"pairing_id"`
	DeviceID     string `json:"deviceId"`
	DeviceSecret string `json:"device_secret"`
}

type registrationMetadata struct {
	FCMToken  string `json:"fcm_token,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
