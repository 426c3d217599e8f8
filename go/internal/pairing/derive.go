package pairing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DeriveSecret returns hex HMAC-SHA256(master, channelID ":" deviceID). The
// same inputs always yield the same secret, so pairing twice is harmless.
func DeriveSecret(master []byte, channelID, deviceID string) string {
	mac := hmac.New(sha256.New, master)
	mac.Write([]byte(channelID + ":" + deviceID))
	return hex.EncodeToString(mac.Sum(nil))
}
