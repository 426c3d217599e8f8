package countdown

import (
	"fmt"
	"time"
)

// RemainingMillis is ends_at − (now + offset) − ingestDelay, all in millis.
func RemainingMillis(endsAt, nowMs, offsetMs, ingestDelayMs int64) int64 {
	return endsAt - (nowMs + offsetMs) - ingestDelayMs
}

// OffsetCorrection returns producer − clock offset and whether it is small
// enough to trust. Differences at or above limit are rejected.
func OffsetCorrection(producerOffset *int64, clockOffsetMs int64, limit time.Duration) (int64, bool) {
	if producerOffset == nil {
		return 0, false
	}
	diff := *producerOffset - clockOffsetMs
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	if abs >= limit.Milliseconds() {
		return diff, false
	}
	return diff, true
}

// Seconds truncates remaining millis to whole seconds.
func Seconds(remainingMs int64) int {
	return int(remainingMs / 1000)
}

// FormatRemaining renders seconds as mm:ss, clamping negatives to zero.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
