package playback

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/multikey"
	"github.com/nerrad567/gray-logic-haptics/internal/pattern"
)

// Defaults applied by New when Options leaves a field zero.
const (
	DefaultTickInterval = 10 * time.Millisecond
	DefaultSendTimeout  = 2 * time.Second
	DefaultQueueSize    = 1024
)

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceProvider supplies the device snapshot used to resolve addresses.
// *device.Registry implements it.
type DeviceProvider interface {
	ListDevices() []device.Device
}

// Sender delivers one actuator command. Any error is treated as a
// per-command failure; the scheduler keeps running.
type Sender interface {
	Send(ctx context.Context, key device.FeatureKey, status device.Status) error
}

// Options configures a Scheduler.
type Options struct {
	TickInterval time.Duration
	SendTimeout  time.Duration
	QueueSize    int

	// Strict makes invariant violations panic instead of only logging.
	Strict bool

	Logger    Logger
	Observer  Observer         // may be nil
	ErrorSink device.ErrorSink // malformed-address diagnostics; may be nil
}

// keyPath is the composite key for per-actuator state.
type keyPath = multikey.Key[string, device.Category, int]

func pathOf(k device.FeatureKey) keyPath {
	return multikey.Of(k.DeviceID, k.Category, k.Index)
}

// assignment binds one actuator to a playing pattern.
type assignment struct {
	key     device.FeatureKey
	pattern *pattern.Pattern
	name    string
	start   time.Time
	loop    bool
	seq     uint64 // install order, used as tick order
	warned  bool   // trailing-value warning already logged
}

// command is one status change queued for the Sender.
type command struct {
	key    device.FeatureKey
	status device.Status
}

// Scheduler plays patterns on actuators.
//
// Run owns all per-actuator state. StartPattern, StopPattern and Active
// resolve on the caller's goroutine and hand the mutation to the Run loop
// through a request channel, so the maps are only ever touched by Run.
//
// Each tick samples every installed assignment in install order, compares
// the result with the last status sent for that actuator, and queues one
// command per change. A single dispatcher goroutine drains the queue, so
// commands reach the Sender in tick order and a slow send never delays a
// tick.
type Scheduler struct {
	devices  DeviceProvider
	sender   Sender
	interval time.Duration
	timeout  time.Duration
	strict   bool
	logger   Logger
	observer Observer
	sink     device.ErrorSink
	now      func() time.Time

	started  atomic.Bool
	requests chan func()
	stopped  chan struct{}
	queue    chan command

	// Owned by the Run goroutine.
	assignments *multikey.Map[string, device.Category, int, *assignment]
	statuses    *multikey.Map[string, device.Category, int, device.Status]
	seq         uint64
}

// New creates a scheduler. Call Run to start it.
//
// Parameters:
//   - devices: snapshot provider used to resolve address expressions
//   - sender: delivers commands to the hub
//   - opts: tick interval, strictness and collaborators
func New(devices DeviceProvider, sender Sender, opts Options) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	return &Scheduler{
		devices:     devices,
		sender:      sender,
		interval:    opts.TickInterval,
		timeout:     opts.SendTimeout,
		strict:      opts.Strict,
		logger:      opts.Logger,
		observer:    opts.Observer,
		sink:        opts.ErrorSink,
		now:         time.Now,
		requests:    make(chan func()),
		stopped:     make(chan struct{}),
		queue:       make(chan command, opts.QueueSize),
		assignments: multikey.New[string, device.Category, int, *assignment](),
		statuses:    multikey.New[string, device.Category, int, device.Status](),
	}
}

// Run drives the tick loop until ctx is cancelled, then waits for queued
// commands to be delivered. It may be called once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	sendCtx := context.WithoutCancel(ctx)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for cmd := range s.queue {
			s.send(sendCtx, cmd)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("playback scheduler started", "tick_interval", s.interval.String(), "strict", s.strict)

	for {
		select {
		case <-ctx.Done():
			close(s.stopped)
			close(s.queue)
			<-drained
			s.logger.Info("playback scheduler stopped", "active", s.assignments.Len())
			return nil

		case req := <-s.requests:
			req()

		case <-ticker.C:
			s.tick(s.now())
		}
	}
}

// StartOption customises StartPattern.
type StartOption func(*assignment)

// WithName labels the assignment, usually with the library name of the
// pattern, for Active listings.
func WithName(name string) StartOption {
	return func(a *assignment) { a.name = name }
}

// StartPattern resolves expr and starts p on every matched actuator.
//
// An actuator that is already playing is restarted from the pattern's
// first frame. An actuator with no stored status is seeded with its
// category's resting state.
//
// Returns:
//   - []device.FeatureKey: the actuators now playing p
//   - error: ErrNilPattern, ErrNoTargets, ErrNotRunning or ctx.Err()
func (s *Scheduler) StartPattern(ctx context.Context, expr string, p *pattern.Pattern, loop bool, opts ...StartOption) ([]device.FeatureKey, error) {
	if p == nil || len(p.Frames) == 0 {
		return nil, ErrNilPattern
	}

	keys := s.resolve(expr)
	if len(keys) == 0 {
		return nil, ErrNoTargets
	}

	template := assignment{pattern: p, loop: loop}
	for _, opt := range opts {
		opt(&template)
	}

	err := s.do(ctx, func() {
		s.install(keys, template)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pattern started", "address", expr, "pattern", template.name, "loop", loop, "actuators", len(keys))
	return keys, nil
}

// StopPattern resolves expr and removes the assignment of every matched
// actuator. Stored statuses are kept, so a later start resumes diffing
// from the last value sent.
//
// Returns the actuators that were playing and are now stopped.
func (s *Scheduler) StopPattern(ctx context.Context, expr string) ([]device.FeatureKey, error) {
	keys := s.resolve(expr)
	if len(keys) == 0 {
		return nil, ErrNoTargets
	}

	var removed []device.FeatureKey
	err := s.do(ctx, func() {
		for _, k := range keys {
			if s.assignments.Delete(pathOf(k)) {
				removed = append(removed, k)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pattern stopped", "address", expr, "actuators", len(removed))
	return removed, nil
}

// ActiveAssignment describes one playing actuator.
type ActiveAssignment struct {
	Key     device.FeatureKey `json:"key"`
	Pattern string            `json:"pattern,omitempty"`
	Length  float64           `json:"length"`
	Loop    bool              `json:"loop"`
	Started time.Time         `json:"started"`
}

// Active returns the installed assignments in install order.
func (s *Scheduler) Active(ctx context.Context) ([]ActiveAssignment, error) {
	var out []ActiveAssignment
	err := s.do(ctx, func() {
		for _, a := range s.ordered() {
			out = append(out, ActiveAssignment{
				Key:     a.key,
				Pattern: a.name,
				Length:  a.pattern.Length,
				Loop:    a.loop,
				Started: a.start,
			})
		}
	})
	return out, err
}

// resolve runs on the caller's goroutine against a fresh snapshot.
func (s *Scheduler) resolve(expr string) []device.FeatureKey {
	return device.Keys(device.Resolve(s.devices.ListDevices(), expr, s.sink))
}

// do runs fn on the Run goroutine and waits for it to finish.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	req := func() {
		defer close(done)
		fn()
	}

	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted, the loop runs req before doing anything else.
	<-done
	return nil
}

// install writes assignments for keys. Run goroutine only.
func (s *Scheduler) install(keys []device.FeatureKey, template assignment) {
	now := s.now()
	for _, k := range keys {
		path := pathOf(k)

		if !s.statuses.Has(path) {
			zero, ok := device.ZeroStatus(k.Category)
			if !ok {
				s.violation("unknown category for resolved key", "key", k.String())
				continue
			}
			s.statuses.Set(path, zero)
		}

		s.seq++
		a := template
		a.key = k
		a.start = now
		a.seq = s.seq
		s.assignments.Set(path, &a)
	}
}

// ordered returns the assignments sorted by install order.
func (s *Scheduler) ordered() []*assignment {
	list := make([]*assignment, 0, s.assignments.Len())
	for _, a := range s.assignments.All() {
		list = append(list, a)
	}
	slices.SortFunc(list, func(a, b *assignment) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return list
}

// roundRobinKey scopes the per-tick value counter.
type roundRobinKey struct {
	deviceID string
	category device.Category
}

// tick samples every assignment at now and queues the changes.
// Run goroutine only.
func (s *Scheduler) tick(now time.Time) {
	began := time.Now()
	active := s.ordered()

	counters := make(map[roundRobinKey]int)
	var changes []command

	for _, a := range active {
		next, ok := s.sample(a, now, counters)
		if !ok {
			continue
		}

		path := pathOf(a.key)
		prev, ok := s.statuses.Get(path)
		if !ok {
			s.violation("no stored status for playing key", "key", a.key.String())
		}
		if ok && prev == next {
			continue
		}

		s.statuses.Set(path, next)
		changes = append(changes, command{key: a.key, status: next})
	}

	// Every status for this tick is settled before any command leaves.
	for _, cmd := range changes {
		s.enqueue(cmd)
	}

	s.observer.TickCompleted(time.Since(began), len(active), len(changes))
}

// sample computes the status a at time now calls for. ok is false when the
// key has nothing to play this tick.
func (s *Scheduler) sample(a *assignment, now time.Time, counters map[roundRobinKey]int) (device.Status, bool) {
	elapsed := now.Sub(a.start).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	t := elapsed
	if a.loop && a.pattern.Length > 0 {
		t = math.Mod(elapsed, a.pattern.Length)
	}

	values, ok := a.pattern.ValuesAt(t)
	if !ok {
		zero, ok := device.ZeroStatus(a.key.Category)
		if !ok {
			s.violation("unknown category for playing key", "key", a.key.String())
		}
		return zero, ok
	}

	decoded, trailing, ok := decode(a.key.Category, values)
	if !ok {
		s.violation("unknown category for playing key", "key", a.key.String())
		return nil, false
	}
	if trailing > 0 && !a.warned {
		a.warned = true
		s.logger.Warn("skipping incomplete value group in frame",
			"key", a.key.String(), "pattern", a.name, "values", len(values))
	}
	if len(decoded) == 0 {
		return nil, false
	}

	rr := roundRobinKey{deviceID: a.key.DeviceID, category: a.key.Category}
	n := counters[rr]
	counters[rr] = n + 1

	return decoded[n%len(decoded)], true
}

// enqueue hands cmd to the dispatcher without blocking the tick.
func (s *Scheduler) enqueue(cmd command) {
	select {
	case s.queue <- cmd:
	default:
		s.logger.Warn("dropping command", "key", cmd.key.String(), "error", ErrQueueFull)
		s.observer.SendFailed(cmd.key, ErrQueueFull)
	}
}

// send delivers one command. Failures are logged and counted only; the
// stored status already reflects the command.
func (s *Scheduler) send(ctx context.Context, cmd command) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sender.Send(ctx, cmd.key, cmd.status); err != nil {
		s.logger.Warn("command send failed", "key", cmd.key.String(), "error", err)
		s.observer.SendFailed(cmd.key, err)
		return
	}
	s.observer.CommandSent(cmd.key, cmd.status)
}

// violation reports state that lifecycle rules should make impossible.
func (s *Scheduler) violation(msg string, args ...any) {
	s.logger.Error("playback invariant violated: "+msg, args...)
	if s.strict {
		panic(fmt.Errorf("%w: %s %v", ErrInvariantViolation, msg, args))
	}
}
