package connection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/fetchbridge/internal/common"
	"github.com/jgivc/fetchbridge/internal/entity"
	"github.com/jgivc/fetchbridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu      sync.Mutex
	frames  chan []byte
	written [][]byte
	closed  bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{frames: make(chan []byte, 16)}
}

func (c *fakeChannel) Read() ([]byte, error) {
	data, ok := <-c.frames
	if !ok {
		return nil, fmt.Errorf("channel closed")
	}

	return data, nil
}

func (c *fakeChannel) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.written = append(c.written, data)

	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.frames)
	}

	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	fail  int // fail the first N dials
	chans []*fakeChannel
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.calls <= d.fail {
		return nil, fmt.Errorf("connection refused")
	}

	ch := newFakeChannel()
	d.chans = append(d.chans, ch)

	return ch, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, title+": "+message)
}

type fakePresenter struct {
	mu           sync.Mutex
	connected    int
	disconnected int
}

func (p *fakePresenter) Connected() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connected++
}

func (p *fakePresenter) Disconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disconnected++
}

type testManager struct {
	m      *Manager
	dialer *fakeDialer
	notify *fakeNotifier
	pres   *fakePresenter

	mu     sync.Mutex
	delays []time.Duration
	timers []func()
}

// newTestManager replaces the reconnect scheduler so the backoff
// schedule can be observed and driven without sleeping.
func newTestManager(t *testing.T, failDials int) *testManager {
	t.Helper()

	tm := &testManager{
		dialer: &fakeDialer{fail: failDials},
		notify: &fakeNotifier{},
		pres:   &fakePresenter{},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	tm.m = NewManager(Config{Endpoint: "ws://localhost:8765"}, tm.dialer, tm.notify, tm.pres, log)

	tm.m.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		tm.mu.Lock()
		defer tm.mu.Unlock()

		tm.delays = append(tm.delays, d)
		tm.timers = append(tm.timers, fn)

		// Never fires by itself; tests call firePending.
		return time.NewTimer(time.Hour)
	}

	return tm
}

// firePending runs the most recently scheduled reconnect callback.
func (tm *testManager) firePending() {
	tm.mu.Lock()
	fn := tm.timers[len(tm.timers)-1]
	tm.mu.Unlock()

	fn()
}

func (tm *testManager) scheduled() []time.Duration {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return append([]time.Duration{}, tm.delays...)
}

func TestBackoffSchedule(t *testing.T) {
	// Every dial fails; drive the timer chain by hand.
	tm := newTestManager(t, 1000)

	tm.m.Connect(context.Background())

	for i := 0; i < 4; i++ {
		tm.firePending()
	}

	want := []time.Duration{
		2 * time.Second,  // 1000 * 2^1 ms
		4 * time.Second,  // 1000 * 2^2 ms
		8 * time.Second,  // 1000 * 2^3 ms
		16 * time.Second, // 1000 * 2^4 ms
		32 * time.Second, // 1000 * 2^5 ms
	}
	assert.Equal(t, want, tm.scheduled())

	// The fifth failure exhausted the budget: nothing new may be
	// scheduled after driving the last timer.
	tm.firePending()
	assert.Len(t, tm.scheduled(), 5)
	assert.Equal(t, entity.StateDisconnected, tm.m.State())
	assert.Equal(t, 6, tm.dialer.dialCount())
}

func TestAttemptCounterResetsOnSuccess(t *testing.T) {
	// Two failures, then the dial succeeds.
	tm := newTestManager(t, 2)

	tm.m.Connect(context.Background())
	tm.firePending()
	tm.firePending()

	require.Equal(t, entity.StateConnected, tm.m.State())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, tm.scheduled())

	// Drop the channel: the schedule must restart from the base.
	tm.dialer.chans[0].Close()

	require.Eventually(t, func() bool {
		return len(tm.scheduled()) == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, 2*time.Second, tm.scheduled()[2])
}

func TestExplicitConnectClearsPendingTimer(t *testing.T) {
	tm := newTestManager(t, 1)

	tm.m.Connect(context.Background()) // fails, schedules a reconnect
	require.Len(t, tm.scheduled(), 1)

	tm.m.Connect(context.Background()) // succeeds
	require.Equal(t, entity.StateConnected, tm.m.State())

	// The stale timer firing anyway behaves like one more explicit
	// Connect: the old channel is superseded, exactly one stays live.
	tm.firePending()

	assert.Equal(t, entity.StateConnected, tm.m.State())
	tm.dialer.chans[0].mu.Lock()
	assert.True(t, tm.dialer.chans[0].closed)
	tm.dialer.chans[0].mu.Unlock()
}

func TestDispatch(t *testing.T) {
	tm := newTestManager(t, 0)

	var (
		mu  sync.Mutex
		got []string
	)
	tm.m.Handle(protocol.TypeCaptureStatus, func(env *protocol.Envelope) {
		mu.Lock()
		defer mu.Unlock()

		got = append(got, fmt.Sprintf("capture=%v", env.Enabled))
	})

	tm.m.Connect(context.Background())
	require.Equal(t, entity.StateConnected, tm.m.State())

	ch := tm.dialer.chans[0]
	ch.frames <- []byte(`{"type": "capture_status", "enabled": true}`)
	ch.frames <- []byte(`not json at all`)                // logged, dropped
	ch.frames <- []byte(`{"type": "mystery", "x": true}`) // ignored
	ch.frames <- []byte(`{"type": "capture_status", "enabled": false}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(got) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"capture=true", "capture=false"}, got)
	mu.Unlock()

	// Malformed payloads must not have torn the connection down.
	assert.Equal(t, entity.StateConnected, tm.m.State())
}

func TestSendWhileDisconnected(t *testing.T) {
	tm := newTestManager(t, 0)

	err := tm.m.Send(context.Background(), protocol.NewGetQueue())
	require.ErrorIs(t, err, common.ErrNotConnected)

	tm.notify.mu.Lock()
	defer tm.notify.mu.Unlock()
	require.Len(t, tm.notify.messages, 1)
	assert.Contains(t, tm.notify.messages[0], "Not connected")
}

func TestSendWhileConnected(t *testing.T) {
	tm := newTestManager(t, 0)
	tm.m.Connect(context.Background())

	require.NoError(t, tm.m.Send(context.Background(), protocol.NewCaptureToggle(true)))

	ch := tm.dialer.chans[0]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.written, 1)
	assert.JSONEq(t, `{"type": "capture_toggle", "enabled": true}`, string(ch.written[0]))
}

func TestPresenterSideEffects(t *testing.T) {
	tm := newTestManager(t, 0)

	tm.m.Connect(context.Background())
	tm.dialer.chans[0].Close()

	require.Eventually(t, func() bool {
		tm.pres.mu.Lock()
		defer tm.pres.mu.Unlock()

		return tm.pres.disconnected == 1
	}, time.Second, time.Millisecond)

	tm.pres.mu.Lock()
	assert.Equal(t, 1, tm.pres.connected)
	tm.pres.mu.Unlock()
}

func TestOnConnectedHook(t *testing.T) {
	tm := newTestManager(t, 0)

	var calls int
	tm.m.OnConnected(func() { calls++ })

	tm.m.Connect(context.Background())
	assert.Equal(t, 1, calls)
}

func TestShutdown(t *testing.T) {
	tm := newTestManager(t, 0)

	tm.m.Connect(context.Background())
	require.Equal(t, entity.StateConnected, tm.m.State())

	tm.m.Shutdown()

	assert.Equal(t, entity.StateDisconnected, tm.m.State())
	assert.Equal(t, 1, tm.dialer.dialCount())

	tm.dialer.chans[0].mu.Lock()
	assert.True(t, tm.dialer.chans[0].closed)
	tm.dialer.chans[0].mu.Unlock()
}
