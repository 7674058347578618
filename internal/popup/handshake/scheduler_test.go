package handshake

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthpopup/internal/popup/result"
)

const testOrigin = "https://app.example.com"

type call struct {
	op     Op
	at     time.Time
	target string
	msg    Message
}

// spyWindow registra cada entrega e intento de cierre.
type spyWindow struct {
	mu       sync.Mutex
	origin   string
	noOpener bool
	postErr  error
	closeErr error
	clock    Clock
	calls    []call
}

func (w *spyWindow) Origin() string { return w.origin }

func (w *spyWindow) Opener() Opener {
	if w.noOpener {
		return nil
	}
	return spyOpener{w}
}

func (w *spyWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call{op: OpClose, at: w.clock.Now()})
	return w.closeErr
}

func (w *spyWindow) snapshot() []call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]call(nil), w.calls...)
}

func (w *spyWindow) count(op Op) int {
	n := 0
	for _, c := range w.snapshot() {
		if c.op == op {
			n++
		}
	}
	return n
}

type spyOpener struct{ w *spyWindow }

func (o spyOpener) PostMessage(msg Message, targetOrigin string) error {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	o.w.calls = append(o.w.calls, call{op: OpNotify, at: o.w.clock.Now(), target: targetOrigin, msg: msg})
	return o.w.postErr
}

func newHarness(t *testing.T, opts ...Option) (*Scheduler, *spyWindow, *VirtualClock, *[]Event) {
	t.Helper()
	clock := NewVirtualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	win := &spyWindow{origin: testOrigin, clock: clock}
	var events []Event
	opts = append([]Option{
		WithLogger(zap.NewNop()),
		WithObserver(func(ev Event) { events = append(events, ev) }),
	}, opts...)
	msg := NewMessage(result.DecodeQuery("status=success&shop=myshop&webhooks=ok"))
	return New(win, clock, msg, opts...), win, clock, &events
}

func TestScheduler_NotifyThenClose(t *testing.T) {
	s, win, clock, events := newHarness(t)
	start := clock.Now()

	require.NoError(t, s.Start())
	assert.Equal(t, StatePendingNotify, s.State())

	clock.Advance(DefaultNotifyDelay - time.Millisecond)
	assert.Empty(t, win.snapshot())

	clock.Advance(time.Millisecond)
	assert.Equal(t, StatePendingClose, s.State())
	assert.Equal(t, 1, win.count(OpNotify))
	assert.Equal(t, 0, win.count(OpClose))

	clock.Advance(DefaultCloseDelay)
	assert.Equal(t, StateClosed, s.State())

	calls := win.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, OpNotify, calls[0].op)
	assert.Equal(t, OpClose, calls[1].op)
	assert.True(t, calls[0].at.Before(calls[1].at))
	assert.Equal(t, start.Add(DefaultNotifyDelay), calls[0].at)
	assert.Equal(t, start.Add(DefaultNotifyDelay+DefaultCloseDelay), calls[1].at)

	require.Len(t, *events, 2)
	assert.Equal(t, EventNotified, (*events)[0].Kind)
	assert.Equal(t, StatePendingClose, (*events)[0].State)
	assert.Equal(t, EventClosed, (*events)[1].Kind)
	assert.Equal(t, 0, clock.Pending())
}

func TestScheduler_DeliveryScopedToOwnOrigin(t *testing.T) {
	for _, origin := range []string{"https://app.example.com", "http://localhost:8080", "https://a.b.c:8443"} {
		t.Run(origin, func(t *testing.T) {
			s, win, clock, _ := newHarness(t)
			win.origin = origin

			require.NoError(t, s.Start())
			clock.Advance(10 * time.Second)

			calls := win.snapshot()
			require.Equal(t, 1, win.count(OpNotify))
			assert.Equal(t, origin, calls[0].target)
			assert.NotEqual(t, "*", calls[0].target)
		})
	}
}

func TestScheduler_MessagePayload(t *testing.T) {
	s, win, clock, _ := newHarness(t)
	require.NoError(t, s.Start())
	clock.Advance(DefaultNotifyDelay)

	msg := win.snapshot()[0].msg
	assert.Equal(t, MessageKind, msg.Kind)
	assert.Equal(t, "success", msg.Status)
	require.NotNil(t, msg.ShopIdentifier)
	assert.Equal(t, "myshop", *msg.ShopIdentifier)
	assert.Nil(t, msg.ErrorCode)
	assert.True(t, msg.WebhooksOK)
}

func TestScheduler_TeardownBeforeNotify(t *testing.T) {
	s, win, clock, events := newHarness(t)
	require.NoError(t, s.Start())

	clock.Advance(DefaultNotifyDelay / 2)
	s.Teardown()
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 0, clock.Pending())

	// llegar y pasar los vencimientos originales no entrega ni cierra
	clock.Advance(DefaultNotifyDelay)
	clock.Advance(time.Minute)

	assert.Empty(t, win.snapshot())
	require.Len(t, *events, 1)
	assert.Equal(t, EventCancelled, (*events)[0].Kind)
}

func TestScheduler_TeardownBetweenNotifyAndClose(t *testing.T) {
	s, win, clock, _ := newHarness(t)
	require.NoError(t, s.Start())

	clock.Advance(DefaultNotifyDelay)
	require.Equal(t, 1, win.count(OpNotify))

	s.Teardown()
	clock.Advance(time.Minute)

	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 0, win.count(OpClose))
	assert.Equal(t, 1, win.count(OpNotify))
}

func TestScheduler_TeardownIsIdempotent(t *testing.T) {
	s, _, clock, events := newHarness(t)
	require.NoError(t, s.Start())

	s.Teardown()
	s.Teardown()
	clock.Advance(time.Minute)

	assert.Len(t, *events, 1)
}

func TestScheduler_TeardownAfterClosedKeepsState(t *testing.T) {
	s, _, clock, events := newHarness(t)
	require.NoError(t, s.Start())
	clock.Advance(time.Minute)

	s.Teardown()
	assert.Equal(t, StateClosed, s.State())
	assert.Len(t, *events, 2)
}

func TestScheduler_TeardownBeforeStart(t *testing.T) {
	s, win, clock, _ := newHarness(t)

	s.Teardown()
	assert.Equal(t, StateCancelled, s.State())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)

	clock.Advance(time.Minute)
	assert.Empty(t, win.snapshot())
}

func TestScheduler_StartTwice(t *testing.T) {
	s, _, _, _ := newHarness(t)
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
}

func TestScheduler_NoOpenerStillCloses(t *testing.T) {
	s, win, clock, events := newHarness(t)
	win.noOpener = true

	require.NoError(t, s.Start())
	clock.Advance(time.Minute)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, win.count(OpNotify))
	assert.Equal(t, 1, win.count(OpClose))
	require.Len(t, *events, 2)
	assert.Equal(t, EventNotifySkipped, (*events)[0].Kind)
	assert.NoError(t, (*events)[0].Err)
}

func TestScheduler_NoOpenerLeftOpen(t *testing.T) {
	s, win, clock, events := newHarness(t, WithCloseWithoutOpener(false))
	win.noOpener = true

	require.NoError(t, s.Start())
	clock.Advance(time.Minute)

	assert.Equal(t, StateDetached, s.State())
	assert.Empty(t, win.snapshot())
	require.Len(t, *events, 1)
	assert.Equal(t, EventNotifySkipped, (*events)[0].Kind)
	assert.Equal(t, 0, clock.Pending())
}

func TestScheduler_UnusableOriginRefusesDelivery(t *testing.T) {
	for _, origin := range []string{"", "*", "null", "https://app.example.com/path", "file:///tmp/x", "app.example.com"} {
		t.Run(origin, func(t *testing.T) {
			s, win, clock, events := newHarness(t)
			win.origin = origin

			require.NoError(t, s.Start())
			clock.Advance(time.Minute)

			assert.Equal(t, 0, win.count(OpNotify))
			assert.Equal(t, 1, win.count(OpClose))
			assert.Equal(t, EventNotifyRefused, (*events)[0].Kind)
		})
	}
}

func TestScheduler_DeliveryErrorDoesNotStopClose(t *testing.T) {
	s, win, clock, events := newHarness(t)
	win.postErr = errors.New("opener navigated away")

	require.NoError(t, s.Start())
	clock.Advance(time.Minute)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, win.count(OpNotify))
	assert.Equal(t, 1, win.count(OpClose))
	assert.Equal(t, EventNotifyFailed, (*events)[0].Kind)
	assert.EqualError(t, (*events)[0].Err, "opener navigated away")
}

func TestScheduler_CloseRefusedIsNotEscalated(t *testing.T) {
	s, win, clock, events := newHarness(t)
	win.closeErr = errors.New("scripts may not close windows they did not open")

	require.NoError(t, s.Start())
	clock.Advance(time.Minute)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, win.count(OpClose))
	assert.Equal(t, EventCloseFailed, (*events)[1].Kind)

	// sin reintento
	clock.Advance(time.Hour)
	assert.Equal(t, 1, win.count(OpClose))
}

func TestScheduler_CustomDelays(t *testing.T) {
	s, win, clock, _ := newHarness(t, WithNotifyDelay(200*time.Millisecond), WithCloseDelay(50*time.Millisecond))
	start := clock.Now()

	require.NoError(t, s.Start())
	clock.Advance(250 * time.Millisecond)

	calls := win.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, 200*time.Millisecond, calls[0].at.Sub(start))
	assert.Equal(t, 250*time.Millisecond, calls[1].at.Sub(start))
}

func TestScheduler_NegativeDelaysIgnored(t *testing.T) {
	s, win, clock, _ := newHarness(t, WithNotifyDelay(-time.Second), WithCloseDelay(-time.Second))
	require.NoError(t, s.Start())

	clock.Advance(DefaultNotifyDelay - time.Millisecond)
	assert.Empty(t, win.snapshot())
}

func TestScheduler_OrderingHoldsForManyRuns(t *testing.T) {
	for i := 0; i < 50; i++ {
		notify := time.Duration(i) * time.Millisecond
		closeAfter := time.Duration(i%7+1) * time.Millisecond
		s, win, clock, _ := newHarness(t, WithNotifyDelay(notify), WithCloseDelay(closeAfter))
		require.NoError(t, s.Start())
		clock.Advance(time.Second)

		calls := win.snapshot()
		require.Len(t, calls, 2)
		assert.Equal(t, OpNotify, calls[0].op)
		assert.True(t, calls[0].at.Before(calls[1].at), "run %d", i)
	}
}

func TestScheduler_RealClock(t *testing.T) {
	clock := RealClock()
	win := &spyWindow{origin: testOrigin, clock: clock}
	s := New(win, clock, NewMessage(result.DecodeQuery("status=success")),
		WithLogger(zap.NewNop()),
		WithNotifyDelay(5*time.Millisecond),
		WithCloseDelay(5*time.Millisecond),
	)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.State() == StateClosed }, 2*time.Second, 5*time.Millisecond)

	calls := win.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, OpNotify, calls[0].op)
	assert.Equal(t, OpClose, calls[1].op)
}

func TestScheduler_RealClockTeardown(t *testing.T) {
	clock := RealClock()
	win := &spyWindow{origin: testOrigin, clock: clock}
	s := New(win, clock, NewMessage(result.DecodeQuery("")),
		WithLogger(zap.NewNop()),
		WithNotifyDelay(50*time.Millisecond),
	)

	require.NoError(t, s.Start())
	s.Teardown()
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, StateCancelled, s.State())
	assert.Empty(t, win.snapshot())
}

func TestValidTargetOrigin(t *testing.T) {
	valid := []string{"https://app.example.com", "http://localhost:3000", "https://[::1]:8443"}
	for _, o := range valid {
		assert.True(t, ValidTargetOrigin(o), o)
	}
	invalid := []string{"", "*", "null", "https://", "https://app.example.com/", "https://app.example.com?x=1",
		"https://app.example.com#f", "https://user@app.example.com", "ftp://app.example.com", "//app.example.com"}
	for _, o := range invalid {
		assert.False(t, ValidTargetOrigin(o), o)
	}
}

// unmountingWindow desmonta el scheduler de forma síncrona desde Close o
// PostMessage, como un hook de unload del navegador.
type unmountingWindow struct {
	*spyWindow
	s             *Scheduler
	onClose       bool
	onPostMessage bool
}

func (w *unmountingWindow) Opener() Opener {
	if w.noOpener {
		return nil
	}
	return unmountingOpener{w}
}

func (w *unmountingWindow) Close() error {
	err := w.spyWindow.Close()
	if w.onClose {
		w.s.Teardown()
	}
	return err
}

type unmountingOpener struct{ w *unmountingWindow }

func (o unmountingOpener) PostMessage(msg Message, targetOrigin string) error {
	err := spyOpener{o.w.spyWindow}.PostMessage(msg, targetOrigin)
	if o.w.onPostMessage {
		o.w.s.Teardown()
	}
	return err
}

func advanceWithin(t *testing.T, clock *VirtualClock, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		clock.Advance(d)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Advance did not return: scheduler blocked in a window callback")
	}
}

func newUnmountingHarness(t *testing.T) (*Scheduler, *unmountingWindow, *VirtualClock, *[]Event) {
	t.Helper()
	clock := NewVirtualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	win := &unmountingWindow{spyWindow: &spyWindow{origin: testOrigin, clock: clock}}
	var (
		mu     sync.Mutex
		events []Event
	)
	s := New(win, clock, NewMessage(result.DecodeQuery("status=success")),
		WithLogger(zap.NewNop()),
		WithObserver(func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		}),
	)
	win.s = s
	return s, win, clock, &events
}

func TestScheduler_TeardownFromClose(t *testing.T) {
	s, win, clock, events := newUnmountingHarness(t)
	win.onClose = true

	require.NoError(t, s.Start())
	advanceWithin(t, clock, time.Minute)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, win.count(OpClose))
	require.Len(t, *events, 2)
	assert.Equal(t, EventNotified, (*events)[0].Kind)
	assert.Equal(t, EventClosed, (*events)[1].Kind)
}

func TestScheduler_TeardownFromPostMessage(t *testing.T) {
	s, win, clock, events := newUnmountingHarness(t)
	win.onPostMessage = true

	require.NoError(t, s.Start())
	advanceWithin(t, clock, time.Minute)

	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 1, win.count(OpNotify))
	assert.Equal(t, 0, win.count(OpClose))
	assert.Equal(t, 0, clock.Pending())

	require.Len(t, *events, 2)
	assert.Equal(t, EventCancelled, (*events)[0].Kind)
	assert.Equal(t, EventNotified, (*events)[1].Kind)
	assert.Equal(t, StateCancelled, (*events)[1].State)
}

func TestScheduler_StateReadableFromObserver(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	win := &spyWindow{origin: testOrigin, clock: clock}
	var seen []State
	var s *Scheduler
	s = New(win, clock, NewMessage(result.DecodeQuery("")),
		WithLogger(zap.NewNop()),
		WithObserver(func(Event) { seen = append(seen, s.State()) }),
	)

	require.NoError(t, s.Start())
	advanceWithin(t, clock, time.Minute)

	assert.Equal(t, []State{StatePendingClose, StateClosed}, seen)
}
