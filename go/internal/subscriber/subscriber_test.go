package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcdev12/arenanotify/go/internal/countdown"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWatcher struct {
	mu     sync.Mutex
	calls  int
	err    error
	values [][]byte
}

func (f *fakeWatcher) Watch(ctx context.Context, channelID string, ready func(), fn func([]byte)) error {
	f.mu.Lock()
	f.calls++
	err := f.err
	values := f.values
	f.mu.Unlock()

	if err != nil {
		return err
	}
	ready()
	for _, v := range values {
		fn(v)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeWatcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu       sync.Mutex
	starts   []countdown.StartEvent
	stops    int
	startErr error
}

func (f *fakeSink) Start(ev countdown.StartEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, ev)
	return f.startErr
}

func (f *fakeSink) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return true
}

func (f *fakeSink) Starts() []countdown.StartEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]countdown.StartEvent(nil), f.starts...)
}

func TestReattachAfterFixedDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	watcher := &fakeWatcher{err: errors.New("connection reset")}
	sub := New(watcher, &fakeSink{}, clock, nil, Config{ChannelID: "chan1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, watcher.Calls())
	assert.Equal(t, StateReconnectPending, sub.State())

	clock.Advance(4999 * time.Millisecond)
	assert.Equal(t, 1, watcher.Calls())

	clock.Advance(time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, watcher.Calls())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateDisconnected, sub.State())
}

func TestActiveSubscriptionDispatches(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &fakeSink{}
	watcher := &fakeWatcher{values: [][]byte{
		[]byte(`{"type":"arena_pop","endsAt":1700000010000,"duration":10,"server_ts":1700000000000}`),
	}}
	sub := New(watcher, sink, clock, nil, Config{ChannelID: "chan1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.Starts()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateActive, sub.State())
	assert.Equal(t, int64(1700000010000), sink.Starts()[0].EndsAt)

	cancel()
	require.NoError(t, <-done)
}

func TestRunRejectsInvalidChannel(t *testing.T) {
	sub := New(&fakeWatcher{}, &fakeSink{}, clockwork.NewFakeClock(), nil, Config{ChannelID: "no spaces allowed"})
	assert.Error(t, sub.Run(context.Background()))
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		wantStarts int
		wantStops  int
		wantEndsAt int64
		wantOffset *int64
	}{
		{
			name:       "arena pop",
			value:      `{"type":"arena_pop","endsAt":1700000010000,"desktopOffset":-120}`,
			wantStarts: 1,
			wantEndsAt: 1700000010000,
			wantOffset: ptr(-120),
		},
		{
			name:       "upper-case type and snake case field",
			value:      `{"type":"ARENA_POP","ends_at":1700000005000}`,
			wantStarts: 1,
			wantEndsAt: 1700000005000,
		},
		{name: "pop without end time", value: `{"type":"arena_pop","duration":10}`},
		{name: "pop with string end time", value: `{"type":"arena_pop","endsAt":"1700000010000"}`},
		{name: "stop", value: `{"type":"arena_stop","server_ts":1}`, wantStops: 1},
		{name: "probe", value: `{"type":"test_connection","server_ts":1}`},
		{name: "unknown type", value: `{"type":"arena_explode"}`},
		{name: "missing type", value: `{"endsAt":1700000010000}`},
		{name: "array", value: `[1,2,3]`},
		{name: "null", value: `null`},
		{name: "garbage", value: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			sink := &fakeSink{}
			sub := New(&fakeWatcher{}, sink, clock, nil, Config{ChannelID: "chan1"})

			sub.Dispatch([]byte(tt.value))

			starts := sink.Starts()
			require.Len(t, starts, tt.wantStarts)
			assert.Equal(t, tt.wantStops, sink.stops)
			if tt.wantStarts == 1 {
				assert.Equal(t, tt.wantEndsAt, starts[0].EndsAt)
				assert.Equal(t, tt.wantOffset, starts[0].ProducerOffset)
				assert.Equal(t, clock.Now(), starts[0].ReceivedAt)
			}
		})
	}
}

func TestDispatchForwardsDuplicates(t *testing.T) {
	sink := &fakeSink{startErr: countdown.ErrSessionActive}
	sub := New(&fakeWatcher{}, sink, clockwork.NewFakeClock(), nil, Config{ChannelID: "chan1"})

	value := []byte(`{"type":"arena_pop","endsAt":1700000010000}`)
	sub.Dispatch(value)
	sub.Dispatch(value)

	assert.Len(t, sink.Starts(), 2)
}

func ptr(v int64) *int64 { return &v }
