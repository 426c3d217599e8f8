package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/arenanotify/go/internal/models"
)

var testMaster = []byte("test-master-secret")

type fakeRepo struct {
	mu       sync.Mutex
	rows     map[string]models.DeviceRegistration
	err      error
	upserts  int
	existErr error
}

func (f *fakeRepo) Upsert(ctx context.Context, reg models.DeviceRegistration) (models.DeviceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.DeviceRegistration{}, f.err
	}
	if f.rows == nil {
		f.rows = make(map[string]models.DeviceRegistration)
	}
	f.upserts++
	reg.RegisteredAt = time.Unix(1_700_000_000, 0)
	reg.UpdatedAt = reg.RegisteredAt
	f.rows[reg.ChannelID+"/"+reg.DeviceID] = reg
	return reg, nil
}

func (f *fakeRepo) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existErr != nil {
		return false, f.existErr
	}
	for _, r := range f.rows {
		if r.ChannelID == channelID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ListChannels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, r := range f.rows {
		ids = append(ids, r.ChannelID)
	}
	return ids, nil
}

func TestDeriveSecretIsDeterministic(t *testing.T) {
	a := DeriveSecret(testMaster, "chan1", "phone")
	b := DeriveSecret(testMaster, "chan1", "phone")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, DeriveSecret(testMaster, "chan1", "tablet"))
	assert.NotEqual(t, a, DeriveSecret(testMaster, "chan2", "phone"))
	assert.NotEqual(t, a, DeriveSecret([]byte("other"), "chan1", "phone"))
	// the separator keeps boundaries distinct
	assert.NotEqual(t, DeriveSecret(testMaster, "ab", "c"), DeriveSecret(testMaster, "a", "bc"))
}

func TestPairDeviceIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	app := NewApp(repo, testMaster)
	ctx := context.Background()

	first, err := app.PairDevice(ctx, PairRequest{ChannelID: "chan1", DeviceID: "phone", FCMToken: "tok"})
	require.NoError(t, err)
	second, err := app.PairDevice(ctx, PairRequest{ChannelID: " chan1 ", DeviceID: "phone"})
	require.NoError(t, err)

	assert.Equal(t, first.DeviceSecret, second.DeviceSecret)
	assert.Equal(t, 2, repo.upserts)
	assert.Len(t, repo.rows, 1)
	assert.JSONEq(t, `{"fcm_token":"tok"}`, string(first.Metadata))
}

func TestPairDeviceErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewApp(&fakeRepo{}, testMaster).PairDevice(ctx, PairRequest{DeviceID: "phone"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewApp(&fakeRepo{}, testMaster).PairDevice(ctx, PairRequest{ChannelID: "chan1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewApp(&fakeRepo{}, nil).PairDevice(ctx, PairRequest{ChannelID: "chan1", DeviceID: "phone"})
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewApp(&fakeRepo{err: errors.New("conn refused")}, testMaster).PairDevice(ctx, PairRequest{ChannelID: "chan1", DeviceID: "phone"})
	assert.ErrorIs(t, err, ErrStore)
}

func TestPairDeviceWithoutStore(t *testing.T) {
	reg, err := NewApp(nil, testMaster).PairDevice(context.Background(), PairRequest{ChannelID: "chan1", DeviceID: "phone"})
	require.NoError(t, err)
	assert.Equal(t, DeriveSecret(testMaster, "chan1", "phone"), reg.DeviceSecret)
}

func serve(h http.Handler, method, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/pairDevice", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPair(t *testing.T) {
	h := NewHandler(NewApp(&fakeRepo{}, testMaster), nil).Routes()

	rec := serve(h, http.MethodPost, `{"pid":"chan1","deviceId":"phone","fcmToken":"tok"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PairResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "chan1", resp.ChannelID)
	assert.Equal(t, "phone", resp.DeviceID)
	assert.Equal(t, DeriveSecret(testMaster, "chan1", "phone"), resp.DeviceSecret)
}

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		app        *App
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "empty pid", app: NewApp(&fakeRepo{}, testMaster), body: `{"pid":"","deviceId":"phone"}`, wantStatus: http.StatusBadRequest, wantError: "pid is required"},
		{name: "empty device", app: NewApp(&fakeRepo{}, testMaster), body: `{"pid":"chan1"}`, wantStatus: http.StatusBadRequest, wantError: "deviceId is required"},
		{name: "not json", app: NewApp(&fakeRepo{}, testMaster), body: `pid=chan1`, wantStatus: http.StatusBadRequest},
		{name: "no master", app: NewApp(&fakeRepo{}, nil), body: `{"pid":"chan1","deviceId":"phone"}`, wantStatus: http.StatusInternalServerError, wantError: "server misconfigured"},
		{name: "store down", app: NewApp(&fakeRepo{err: errors.New("boom")}, testMaster), body: `{"pid":"chan1","deviceId":"phone"}`, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewHandler(tt.app, nil).Routes(), http.MethodPost, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.OK)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestHandlerOptions(t *testing.T) {
	h := NewHandler(NewApp(&fakeRepo{}, testMaster), nil).Routes()

	t.Run("bare options", func(t *testing.T) {
		rec := serve(h, http.MethodOptions, "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("preflight answered by cors layer", func(t *testing.T) {
		rec := serve(h, http.MethodOptions, "", map[string]string{
			"Origin":                        "https://example.com",
			"Access-Control-Request-Method": http.MethodPost,
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		// The handler's own OPTIONS branch lists both methods; the CORS
		// layer echoes only the requested one.
		assert.Equal(t, http.MethodPost, rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Empty(t, rec.Body.String())
	})

	t.Run("other methods", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestDirectory(t *testing.T) {
	repo := &fakeRepo{}
	_, err := repo.Upsert(context.Background(), models.DeviceRegistration{ChannelID: "chan1", DeviceID: "phone"})
	require.NoError(t, err)

	notify := make(chan *pq.Notification, 1)
	cfg := DirectoryConfig{RefreshInterval: time.Hour, PingInterval: time.Hour}
	d := newDirectory(repo, notify, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		_, ok := d.known["chan1"]
		return ok
	}, time.Second, time.Millisecond)

	notify <- &pq.Notification{Channel: NotifyChannel, Extra: "chan2"}
	require.Eventually(t, func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		_, ok := d.known["chan2"]
		return ok
	}, time.Second, time.Millisecond)

	ok, err := d.Known(ctx, "chan2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Known(ctx, "chan3")
	require.NoError(t, err)
	assert.False(t, ok)

	cancel()
	require.NoError(t, <-done)
}

func TestDirectoryFallsThroughToStore(t *testing.T) {
	repo := &fakeRepo{}
	d := newDirectory(repo, nil, DefaultDirectoryConfig())
	ctx := context.Background()

	ok, err := d.Known(ctx, "late")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Upsert(ctx, models.DeviceRegistration{ChannelID: "late", DeviceID: "phone"})
	require.NoError(t, err)

	ok, err = d.Known(ctx, "late")
	require.NoError(t, err)
	assert.True(t, ok)

	repo.existErr = errors.New("db down")
	ok, err = d.Known(ctx, "late")
	require.NoError(t, err, "cached channels do not hit the store")
	assert.True(t, ok)
}
