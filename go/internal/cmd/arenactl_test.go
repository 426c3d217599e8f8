package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/arenanotify/go/internal/ingress"
	"github.com/mcdev12/arenanotify/go/internal/models"
	"github.com/mcdev12/arenanotify/go/internal/pairing"
)

const testSecret = "cli-secret"

type memStore struct {
	mu     sync.Mutex
	events map[string]models.ArenaEvent
}

func (m *memStore) Put(_ context.Context, channelID string, ev models.ArenaEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[channelID] = ev
	return nil
}

func (m *memStore) get(channelID string) (models.ArenaEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[channelID]
	return ev, ok
}

func startIngress(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	store := &memStore{events: map[string]models.ArenaEvent{}}
	clock := clockwork.NewRealClock()

	h := ingress.NewHandler(ingress.NewApp(store, nil, clock, []byte(testSecret)), clock, ingress.NoOpMetrics{})
	p := pairing.NewHandler(pairing.NewApp(nil, []byte("master")), pairing.NoOpMetrics{})
	srv := httptest.NewServer(ingress.NewRouter(h, p.Routes(), ingress.RouterConfig{}))
	t.Cleanup(srv.Close)
	return srv, store
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSendStartAndStop(t *testing.T) {
	srv, store := startIngress(t)

	out, err := runCLI(t, "", "--url", srv.URL, "--secret", testSecret,
		"send", "start", "--pairing-id", "dev:1", "--duration", "45", "--event-id", "evt-7")
	require.NoError(t, err)
	assert.Contains(t, out, "sent arena_pop to dev:1")

	ev, ok := store.get("dev:1")
	require.True(t, ok)
	assert.Equal(t, models.WireTypeArenaPop, ev.Type)
	assert.Equal(t, int64(45), ev.Duration)
	assert.Equal(t, "evt-7", ev.EventID)
	require.NotNil(t, ev.EndsAt)
	assert.Nil(t, ev.DesktopOffset)

	_, err = runCLI(t, "", "--url", srv.URL, "--secret", testSecret,
		"send", "stop", "--pairing-id", "dev:1")
	require.NoError(t, err)
	ev, _ = store.get("dev:1")
	assert.Equal(t, models.WireTypeArenaStop, ev.Type)
}

func TestSendWrongSecretReportsStatus(t *testing.T) {
	srv, store := startIngress(t)

	_, err := runCLI(t, "", "--url", srv.URL, "--secret", "not-it",
		"send", "start", "--pairing-id", "dev:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid signature")

	_, ok := store.get("dev:1")
	assert.False(t, ok)
}

func TestSendRejectsUnknownEvent(t *testing.T) {
	_, err := runCLI(t, "", "--secret", testSecret, "send", "explode", "--pairing-id", "dev:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}

func TestPairPrintsCredentials(t *testing.T) {
	srv, _ := startIngress(t)

	out, err := runCLI(t, "", "--url", srv.URL, "pair", "--pairing-id", "dev:1", "--device-id", "phone")
	require.NoError(t, err)
	assert.Contains(t, out, pairing.DeriveSecret([]byte("master"), "dev:1", "phone"))
	assert.Contains(t, out, `"pairing_id": "dev:1"`)
}

func TestSignMatchesIngress(t *testing.T) {
	body := `{"pairing_id":"dev:1","event":"stop"}`

	out, err := runCLI(t, body, "--secret", testSecret, "sign")
	require.NoError(t, err)
	assert.Equal(t, ingress.Sign([]byte(testSecret), []byte(body)), strings.TrimSpace(out))
	assert.NoError(t, ingress.Verify([]byte(testSecret), []byte(body), strings.TrimSpace(out)))

	out, err = runCLI(t, "", "--secret", testSecret, "sign", "--fingerprint")
	require.NoError(t, err)
	assert.Equal(t, ingress.Fingerprint([]byte(testSecret)), strings.TrimSpace(out))
}

func TestPing(t *testing.T) {
	srv, _ := startIngress(t)

	out, err := runCLI(t, "", "--url", srv.URL, "ping")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok rtt="))
}
