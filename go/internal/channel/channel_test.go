package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	key, err := Key("6f1c2a3b-aaaa-bbbb-cccc-0123456789ab")
	require.NoError(t, err)
	assert.Equal(t, "6f1c2a3b-aaaa-bbbb-cccc-0123456789ab", key)

	key, err = Key("user:42")
	require.NoError(t, err)
	assert.Equal(t, "user_42", key)

	for _, bad := range []string{"", "a.b", "a/b", "a b", "*", ">"} {
		_, err := Key(bad)
		assert.ErrorIs(t, err, ErrInvalidChannelID, bad)
	}
}

func TestSampleOffset(t *testing.T) {
	local := time.UnixMilli(1_000_000)
	s := Sample{Server: local.Add(1500 * time.Millisecond), Local: local}
	assert.Equal(t, 1500*time.Millisecond, s.Offset())
}
