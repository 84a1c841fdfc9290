package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the supervisor's view of the child.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	healthCheckTimeout     = 5 * time.Second
	maxConsecutiveFailures = 3
	killWaitTimeout        = 5 * time.Second
	maxOutputLine          = 64 * 1024
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager runs one child process in its own process group, restarts it
// with backoff when it dies and stops it with SIGTERM then SIGKILL.
type Manager struct {
	config Config
	logger Logger

	mu       sync.RWMutex
	state    Status
	proc     *exec.Cmd
	started  time.Time
	restarts int
	lastErr  error
	stopping bool
	done     chan struct{} // closed when supervision ends; nil before Start
}

// NewManager returns a stopped Manager for cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg.withDefaults(),
		logger: noopLogger{},
		state:  StatusStopped,
	}
}

// SetLogger must be called before Start. nil discards output.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start launches the child and supervises it until Stop or until ctx is
// cancelled. A launch failure is returned directly and nothing is
// retried; later exits are handled according to the restart policy.
func (m *Manager) Start(ctx context.Context) error {
	if m.config.Name == "" || m.config.Binary == "" {
		return fmt.Errorf("%w: name and binary are required", ErrInvalidConfig)
	}

	m.mu.Lock()
	if m.state == StatusRunning || m.state == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s: already running", m.config.Name)
	}
	m.state, m.stopping, m.restarts = StatusStarting, false, 0
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	cmd, err := m.launch(ctx)
	if err != nil {
		m.mu.Lock()
		m.state, m.lastErr, m.done = StatusFailed, err, nil
		m.mu.Unlock()
		close(done)
		return err
	}

	go m.supervise(ctx, cmd, done)
	return nil
}

func (m *Manager) launch(ctx context.Context) (*exec.Cmd, error) {
	m.logger.Info("starting process", "name", m.config.Name, "binary", m.config.Binary, "args", m.config.Args)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // operator-configured binary
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return signalGroup(cmd, syscall.SIGKILL) }
	cmd.WaitDelay = killWaitTimeout
	cmd.Dir = m.config.WorkDir
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	cmd.Stdout = &lineWriter{m: m, stream: "stdout"}
	cmd.Stderr = &lineWriter{m: m, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.proc, m.state, m.started = cmd, StatusRunning, time.Now()
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)
	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return cmd, nil
}

// supervise waits on each incarnation of the child and relaunches it
// until the restart policy or a stop request says otherwise.
func (m *Manager) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	for cmd != nil {
		err := m.wait(ctx, cmd)

		uptime, requested := m.exited(ctx, err)
		if requested {
			m.logger.Info("process stopped", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err, "uptime", uptime)
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}
		cmd = m.relaunch(ctx, err, uptime)
	}
}

// exited records the end of a run and reports whether it was asked for.
func (m *Manager) exited(ctx context.Context, err error) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uptime := time.Since(m.started)
	if m.stopping || ctx.Err() != nil {
		m.state = StatusStopped
		return uptime, true
	}
	m.state, m.lastErr = StatusFailed, err
	return uptime, false
}

// relaunch applies the restart policy after an unexpected exit. It
// returns the new child, or nil when supervision should end.
func (m *Manager) relaunch(ctx context.Context, cause error, uptime time.Duration) *exec.Cmd {
	switch {
	case !m.config.RestartOnFailure:
		m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
		return nil
	case !IsRecoverable(cause):
		m.logger.Error("unrecoverable failure, not restarting", "name", m.config.Name, "error", cause)
		return nil
	}

	if uptime >= m.config.StableThreshold {
		m.mu.Lock()
		m.restarts = 0
		m.mu.Unlock()
	}

	for {
		attempt, ok := m.nextAttempt()
		if !ok {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return nil
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setState(StatusStopped)
			return nil
		case <-timer.C:
		}
		if m.stopRequested() {
			m.setState(StatusStopped)
			return nil
		}

		cmd, err := m.launch(ctx)
		if err == nil {
			return cmd
		}
		m.logger.Error("failed to restart process", "name", m.config.Name, "error", err)
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
	}
}

func (m *Manager) nextAttempt() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	limit := m.config.MaxRestartAttempts
	return m.restarts, limit == 0 || m.restarts <= limit
}

// calculateBackoffDelay returns RestartDelay * 2^(attempt-1), capped at
// MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for range attempt - 1 {
		if delay >= m.config.MaxRestartDelay/2 {
			return m.config.MaxRestartDelay
		}
		delay *= 2
	}
	return min(delay, m.config.MaxRestartDelay)
}

// wait blocks until cmd exits. With a HealthCheckFunc it also polls the
// child and kills the group once checks keep failing.
func (m *Manager) wait(ctx context.Context, cmd *exec.Cmd) error {
	exit := make(chan error, 1)
	go func() { exit <- cmd.Wait() }()

	var tick <-chan time.Time
	if m.config.HealthCheckFunc != nil {
		t := time.NewTicker(m.config.HealthCheckInterval)
		defer t.Stop()
		tick = t.C
	}

	failures := 0
	for {
		select {
		case err := <-exit:
			return err
		case <-tick:
		}

		err := m.probe(ctx)
		if err == nil {
			if failures > 0 {
				m.logger.Info("health check recovered", "name", m.config.Name, "previous_failures", failures)
			}
			failures = 0
			continue
		}

		failures++
		m.logger.Warn("health check failed", "name", m.config.Name, "error", err, "consecutive_failures", failures)
		if failures < maxConsecutiveFailures && IsRecoverable(err) {
			continue
		}

		m.logger.Error("health check failed repeatedly, killing process", "name", m.config.Name, "failures", failures)
		signalGroup(cmd, syscall.SIGKILL) //nolint:errcheck // exit is observed below
		select {
		case <-exit:
			return fmt.Errorf("killed after %d failed health checks: %w", failures, err)
		case <-time.After(killWaitTimeout):
			return fmt.Errorf("process did not exit after kill: %w", err)
		}
	}
}

func (m *Manager) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return m.config.HealthCheckFunc(ctx)
}

// signalGroup signals the child's whole process group. A group that has
// already gone is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func (m *Manager) setState(s Status) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) stopRequested() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopping
}

// Stop ends supervision. A running child gets SIGTERM and, after
// GracefulTimeout, SIGKILL. Stop returns once supervision has ended and
// is a no-op if Start was never successful.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopping = true
	cmd, done := m.proc, m.done
	live := m.state == StatusRunning || m.state == StatusStarting
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	if !live || cmd == nil || cmd.Process == nil {
		// Supervision may be sleeping out a backoff.
		<-done
		return nil
	}

	m.logger.Info("stopping process", "name", m.config.Name, "pid", cmd.Process.Pid)
	if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	grace := time.NewTimer(m.config.GracefulTimeout)
	defer grace.Stop()
	select {
	case <-done:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-grace.C:
	}

	m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name, "timeout", m.config.GracefulTimeout)
	if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
		return fmt.Errorf("process %s: kill: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsRunning reports whether the child is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the most recent unexpected exit or
// failed launch.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// RestartCount returns consecutive restart attempts since the last
// stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restarts
}

// Uptime is zero unless the child is running.
func (m *Manager) Uptime() time.Duration {
	return m.Stats().Uptime
}

// PID is zero unless the child is running.
func (m *Manager) PID() int {
	return m.Stats().PID
}

// Stats is the JSON snapshot served under hub_process in /system/status.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns a consistent snapshot of the supervisor state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Name: m.config.Name, Status: m.state, RestartCount: m.restarts}
	if m.state == StatusRunning && m.proc != nil && m.proc.Process != nil {
		s.PID = m.proc.Process.Pid
		s.Uptime = time.Since(m.started)
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// lineWriter logs child output one line at a time at debug level. exec
// feeds each stream from a single goroutine, so it needs no locking.
type lineWriter struct {
	m      *Manager
	stream string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		line, rest, ok := bytes.Cut(w.buf, []byte{'\n'})
		if !ok {
			break
		}
		w.emit(line)
		w.buf = rest
	}
	if len(w.buf) >= maxOutputLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

func (w *lineWriter) emit(line []byte) {
	w.m.logger.Debug("process output", "name", w.m.config.Name, "stream", w.stream, "line", string(bytes.TrimRight(line, "\r")))
}
