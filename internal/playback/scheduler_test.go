package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/pattern"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type sentCommand struct {
	Key    device.FeatureKey
	Status device.Status
}

// mockSender records every Send call.
type mockSender struct {
	mu     sync.Mutex
	sent   []sentCommand
	failOn map[device.FeatureKey]bool
}

func newMockSender() *mockSender {
	return &mockSender{failOn: make(map[device.FeatureKey]bool)}
}

func (m *mockSender) Send(_ context.Context, key device.FeatureKey, status device.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, sentCommand{Key: key, Status: status})
	if m.failOn[key] {
		return errors.New("hub unreachable")
	}
	return nil
}

func (m *mockSender) commands() []sentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]sentCommand, len(m.sent))
	copy(cpy, m.sent)
	return cpy
}

func (m *mockSender) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// mockObserver counts observer callbacks.
type mockObserver struct {
	mu       sync.Mutex
	ticks    int
	sent     int
	failures []error
}

func (o *mockObserver) TickCompleted(time.Duration, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

func (o *mockObserver) CommandSent(device.FeatureKey, device.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent++
}

func (o *mockObserver) SendFailed(_ device.FeatureKey, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

// staticDevices is a DeviceProvider over a fixed list.
type staticDevices []device.Device

func (d staticDevices) ListDevices() []device.Device { return d }

// ─── Helpers ────────────────────────────────────────────────────────────────

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testDevices() staticDevices {
	return staticDevices{
		{
			ID:   "dev-wand",
			Name: "Wand",
			Scalar: []device.Capability{
				{Index: 0, Type: device.ActuatorVibrate},
				{Index: 1, Type: device.ActuatorVibrate},
				{Index: 2, Type: device.ActuatorVibrate},
			},
			Rotate: []device.Capability{{Index: 0, Type: device.ActuatorRotate}},
		},
		{
			ID:     "dev-stroker",
			Name:   "Stroker",
			Linear: []device.Capability{{Index: 0, Type: device.ActuatorPosition}},
		},
	}
}

type fixture struct {
	s        *Scheduler
	sender   *mockSender
	observer *mockObserver
	now      time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{sender: newMockSender(), observer: &mockObserver{}, now: epoch}
	opts.Strict = true
	opts.Observer = f.observer
	f.s = New(testDevices(), f.sender, opts)
	f.s.now = func() time.Time { return f.now }
	return f
}

// start installs p directly, bypassing the Run loop.
func (f *fixture) start(t *testing.T, expr string, p *pattern.Pattern, loop bool) {
	t.Helper()
	keys := f.s.resolve(expr)
	require.NotEmpty(t, keys)
	f.s.install(keys, assignment{pattern: p, loop: loop})
}

// tickAt advances the clock to epoch+offset, ticks and delivers queued commands.
func (f *fixture) tickAt(offset time.Duration) []sentCommand {
	f.sender.reset()
	f.now = epoch.Add(offset)
	f.s.tick(f.now)
	for {
		select {
		case cmd := <-f.s.queue:
			f.s.send(context.Background(), cmd)
		default:
			return f.sender.commands()
		}
	}
}

func mustParse(t *testing.T, text string) *pattern.Pattern {
	t.Helper()
	p, err := pattern.Parse(text)
	require.NoError(t, err)
	return p
}

var (
	wand0 = device.FeatureKey{DeviceID: "dev-wand", Category: device.CategoryScalar, Index: 0}
	wand1 = device.FeatureKey{DeviceID: "dev-wand", Category: device.CategoryScalar, Index: 1}
	wand2 = device.FeatureKey{DeviceID: "dev-wand", Category: device.CategoryScalar, Index: 2}
)

// ===== Sampling =====

func TestTick_BeforeFirstFrameRestsAtZero(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate1", mustParse(t, "5,50\n10,80\n"), false)

	assert.Empty(t, f.tickAt(100*time.Millisecond), "zero status matches the seed, nothing to send")

	sent := f.tickAt(600 * time.Millisecond)
	require.Len(t, sent, 1)
	assert.Equal(t, sentCommand{Key: wand0, Status: device.ScalarStatus{Value: 0.5}}, sent[0])
}

func TestTick_NonLoopHoldsLastFrame(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate1", mustParse(t, "0,10\n5,20\n"), false)

	require.Len(t, f.tickAt(0), 1)

	sent := f.tickAt(10 * time.Second)
	require.Len(t, sent, 1)
	assert.Equal(t, device.ScalarStatus{Value: 0.2}, sent[0].Status)

	assert.Empty(t, f.tickAt(time.Hour), "last frame is held without resending")
}

func TestSample_LoopWrapsAtLength(t *testing.T) {
	f := newFixture(t, Options{})
	p := mustParse(t, "0,10\n5,20\n10,30\n")
	require.Equal(t, 1.0, p.Length)
	f.start(t, "wand:vibrate1", p, true)

	a, ok := f.s.assignments.Get(pathOf(wand0))
	require.True(t, ok)

	for _, eps := range []time.Duration{250 * time.Millisecond, 750 * time.Millisecond} {
		early, ok := f.s.sample(a, epoch.Add(eps), map[roundRobinKey]int{})
		require.True(t, ok)
		wrapped, ok := f.s.sample(a, epoch.Add(time.Second+eps), map[roundRobinKey]int{})
		require.True(t, ok)
		assert.Equal(t, early, wrapped, "eps=%s", eps)
	}
}

func TestSample_NonLoopDoesNotWrap(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate1", mustParse(t, "0,10\n5,20\n10,30\n"), false)

	a, _ := f.s.assignments.Get(pathOf(wand0))
	got, ok := f.s.sample(a, epoch.Add(1250*time.Millisecond), map[roundRobinKey]int{})
	require.True(t, ok)
	assert.Equal(t, device.ScalarStatus{Value: 0.3}, got)
}

// ===== Diffing =====

func TestTick_UnchangedValueSendsOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate1", mustParse(t, "0,40\n50,40\n"), false)

	assert.Len(t, f.tickAt(10*time.Millisecond), 1)
	assert.Empty(t, f.tickAt(20*time.Millisecond))
	assert.Empty(t, f.tickAt(30*time.Millisecond))
}

func TestTick_RoundRobinAcrossSameCategory(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate", mustParse(t, "0,10,20\n"), false)

	sent := f.tickAt(0)
	assert.Equal(t, []sentCommand{
		{Key: wand0, Status: device.ScalarStatus{Value: 0.1}},
		{Key: wand1, Status: device.ScalarStatus{Value: 0.2}},
		{Key: wand2, Status: device.ScalarStatus{Value: 0.1}},
	}, sent)

	// The counter restarts every tick, so nothing rotates.
	assert.Empty(t, f.tickAt(10*time.Millisecond))
}

func TestTick_RoundRobinFollowsInstallOrder(t *testing.T) {
	f := newFixture(t, Options{})
	p := mustParse(t, "0,10,20,30\n")
	f.start(t, "wand:vibrate3", p, false)
	f.start(t, "wand:vibrate1", p, false)

	sent := f.tickAt(0)
	assert.Equal(t, []sentCommand{
		{Key: wand2, Status: device.ScalarStatus{Value: 0.1}},
		{Key: wand0, Status: device.ScalarStatus{Value: 0.2}},
	}, sent)
}

func TestTick_CategoriesDecodeIndependently(t *testing.T) {
	f := newFixture(t, Options{})
	p := mustParse(t, "0,0,100,30\n")
	f.start(t, "wand:rotate, stroker", p, false)

	sent := f.tickAt(0)
	assert.ElementsMatch(t, []sentCommand{
		{
			Key:    device.FeatureKey{DeviceID: "dev-wand", Category: device.CategoryRotate, Index: 0},
			Status: device.RotateStatus{Clockwise: false, Speed: 1},
		},
		{
			Key:    device.FeatureKey{DeviceID: "dev-stroker", Category: device.CategoryLinear, Index: 0},
			Status: device.LinearStatus{Position: 0, Speed: 100},
		},
	}, sent)
}

func TestTick_SendFailureKeepsStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.sender.failOn[wand0] = true
	f.start(t, "wand:vibrate", mustParse(t, "0,50\n"), false)

	sent := f.tickAt(0)
	assert.Len(t, sent, 3, "a failing key does not stop the others")

	stored, ok := f.s.statuses.Get(pathOf(wand0))
	require.True(t, ok)
	assert.Equal(t, device.ScalarStatus{Value: 0.5}, stored, "failed send is not rolled back")

	assert.Empty(t, f.tickAt(10*time.Millisecond), "no retry for an unchanged value")

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	assert.Len(t, f.observer.failures, 1)
	assert.Equal(t, 2, f.observer.sent)
}

func TestTick_QueueFullDropsCommand(t *testing.T) {
	f := newFixture(t, Options{QueueSize: 1})
	f.start(t, "wand:vibrate", mustParse(t, "0,50\n"), false)

	sent := f.tickAt(0)
	assert.Len(t, sent, 1)

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	require.Len(t, f.observer.failures, 2)
	assert.ErrorIs(t, f.observer.failures[0], ErrQueueFull)
}

// ===== Lifecycle =====

func TestInstall_SeedsZeroStatusOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:rotate", mustParse(t, "0,1,50\n"), false)

	key := device.FeatureKey{DeviceID: "dev-wand", Category: device.CategoryRotate, Index: 0}
	seed, ok := f.s.statuses.Get(pathOf(key))
	require.True(t, ok)
	assert.Equal(t, device.RotateStatus{Clockwise: true, Speed: 0}, seed)

	f.tickAt(0)
	f.start(t, "wand:rotate", mustParse(t, "0,1,50\n"), false)

	kept, _ := f.s.statuses.Get(pathOf(key))
	assert.Equal(t, device.RotateStatus{Clockwise: true, Speed: 0.5}, kept, "existing status is reused")
}

func TestInstall_OverwriteRestartsFromFrameZero(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate1", mustParse(t, "0,10\n10,90\n"), false)
	f.tickAt(0)
	f.tickAt(5 * time.Second)

	f.now = epoch.Add(5 * time.Second)
	f.start(t, "wand:vibrate1", mustParse(t, "0,30\n10,60\n"), false)

	sent := f.tickAt(5*time.Second + 100*time.Millisecond)
	require.Len(t, sent, 1)
	assert.Equal(t, device.ScalarStatus{Value: 0.3}, sent[0].Status)
	assert.Equal(t, 1, f.s.assignments.Len())
}

func TestTick_StrictModePanicsOnMissingStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t, "wand:vibrate1", mustParse(t, "0,10\n"), false)
	f.s.statuses.Delete(pathOf(wand0))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	}()
	f.s.tick(epoch)
	t.Fatal("tick should have panicked")
}

func TestTick_LenientModeLogsMissingStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.s.strict = false
	f.start(t, "wand:vibrate1", mustParse(t, "0,10\n"), false)
	f.s.statuses.Delete(pathOf(wand0))

	sent := f.tickAt(0)
	assert.Len(t, sent, 1)
	assert.True(t, f.s.statuses.Has(pathOf(wand0)))
}

func TestStartPattern_RejectsBeforeLoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.s.StartPattern(ctx, "wand", nil, false)
	assert.ErrorIs(t, err, ErrNilPattern)

	_, err = f.s.StartPattern(ctx, "wand", &pattern.Pattern{}, false)
	assert.ErrorIs(t, err, ErrNilPattern)

	_, err = f.s.StartPattern(ctx, "nobody", mustParse(t, "0,1\n"), false)
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = f.s.StopPattern(ctx, "all_inflate")
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestStartPattern_ContextCancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.s.StartPattern(ctx, "wand", mustParse(t, "0,1\n"), false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RunEndToEnd(t *testing.T) {
	sender := newMockSender()
	var sinkMessages []string
	var sinkMu sync.Mutex
	s := New(testDevices(), sender, Options{
		TickInterval: time.Millisecond,
		Strict:       true,
		ErrorSink: device.ErrorSinkFunc(func(m string) {
			sinkMu.Lock()
			defer sinkMu.Unlock()
			sinkMessages = append(sinkMessages, m)
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	keys, err := s.StartPattern(ctx, "wand:vibrate2, all:vibrate", mustParse(t, "0,70\n"), true, WithName("steady"))
	require.NoError(t, err)
	assert.Equal(t, []device.FeatureKey{wand1}, keys)

	sinkMu.Lock()
	assert.Len(t, sinkMessages, 1, "suffix on reserved name is reported")
	sinkMu.Unlock()

	require.Eventually(t, func() bool {
		return len(sender.commands()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, sentCommand{Key: wand1, Status: device.ScalarStatus{Value: 0.7}}, sender.commands()[0])

	active, err := s.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "steady", active[0].Pattern)
	assert.True(t, active[0].Loop)

	assert.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)

	removed, err := s.StopPattern(ctx, "wand")
	require.NoError(t, err)
	assert.Equal(t, []device.FeatureKey{wand1}, removed)

	active, err = s.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err = s.StartPattern(context.Background(), "wand", mustParse(t, "0,1\n"), false)
	assert.ErrorIs(t, err, ErrNotRunning)
}
