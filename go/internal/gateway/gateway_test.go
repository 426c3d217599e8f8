package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/arenanotify/go/internal/countdown"
)

func startGateway(t *testing.T) (*countdown.Stream, *ConnectionManager, *httptest.Server) {
	t.Helper()

	stream := countdown.NewStream()
	cm := NewConnectionManager(DefaultConnectionConfig(), stream.Latest)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Run(ctx, stream)
		close(done)
	}()

	mux := http.NewServeMux()
	NewWebSocketHandler(cm, func() Status { return Status{Subscription: "ACTIVE"} }).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return stream, cm, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/countdown"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestGatewayReplaysLatestAndStreams(t *testing.T) {
	stream, cm, srv := startGateway(t)
	stream.Publish(countdown.Update{SessionID: "s1", State: countdown.DisplayCountdown, Remaining: 7})

	conn := dial(t, srv)
	first := readMessage(t, conn)
	require.Equal(t, KindUpdate, first.Kind)
	require.NotNil(t, first.Update)
	assert.Equal(t, 7, first.Update.Remaining)

	require.Eventually(t, func() bool { return cm.ConnectionCount() == 1 }, time.Second, time.Millisecond)

	stream.Publish(countdown.Update{SessionID: "s1", State: countdown.DisplayWaiting, Remaining: 0, Terminal: true})
	next := readMessage(t, conn)
	require.NotNil(t, next.Update)
	assert.Equal(t, countdown.DisplayWaiting, next.Update.State)
	assert.True(t, next.Update.Terminal)
}

func TestGatewayForwardsAlerts(t *testing.T) {
	_, cm, srv := startGateway(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return cm.ConnectionCount() == 1 }, time.Second, time.Millisecond)

	cm.Alert(countdown.Alert{SessionID: "s1", Seconds: 1, Final: true, Sound: true})
	m := readMessage(t, conn)
	assert.Equal(t, KindAlert, m.Kind)
	require.NotNil(t, m.Alert)
	assert.True(t, m.Alert.Final)
}

func TestGatewayStatus(t *testing.T) {
	_, _, srv := startGateway(t)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestGatewayFlushesQueuedUpdatesBeforeClosing(t *testing.T) {
	stream := countdown.NewStream()
	cm := NewConnectionManager(DefaultConnectionConfig(), stream.Latest)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Run(ctx, stream)
		close(done)
	}()

	mux := http.NewServeMux()
	NewWebSocketHandler(cm, nil).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return cm.ConnectionCount() == 1 }, time.Second, time.Millisecond)

	stream.Publish(countdown.Update{SessionID: "s1", State: countdown.DisplayCountdown, Remaining: 3})
	first := readMessage(t, conn)
	require.NotNil(t, first.Update)
	assert.Equal(t, 3, first.Update.Remaining)

	// Publish and cancel back to back: the terminal update must still be
	// written ahead of the close frame.
	stream.Publish(countdown.Update{SessionID: "s1", State: countdown.DisplayWaiting, Terminal: true})
	cancel()
	<-done

	m := readMessage(t, conn)
	require.NotNil(t, m.Update)
	assert.True(t, m.Update.Terminal)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
