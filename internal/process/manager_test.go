package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
)

// captureLogger records debug lines for output capture tests.
type captureLogger struct {
	noopLogger
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Debug(_ string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			l.lines = append(l.lines, fmt.Sprint(args[i+1]))
		}
	}
}

func (l *captureLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

type recoverableErr bool

func (e recoverableErr) Error() string       { return "hub error" }
func (e recoverableErr) IsRecoverable() bool { return bool(e) }

func TestNewManager_Defaults(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "zero durations take defaults",
			in:   Config{Name: "hub", Binary: "/usr/bin/hub"},
			want: Config{
				Name:                "hub",
				Binary:              "/usr/bin/hub",
				RestartDelay:        5 * time.Second,
				MaxRestartDelay:     5 * time.Minute,
				StableThreshold:     2 * time.Minute,
				GracefulTimeout:     10 * time.Second,
				HealthCheckInterval: 30 * time.Second,
			},
		},
		{
			name: "explicit values kept",
			in: Config{
				Name:                "hub",
				Binary:              "/opt/hub",
				RestartDelay:        10 * time.Second,
				MaxRestartDelay:     10 * time.Minute,
				StableThreshold:     5 * time.Minute,
				GracefulTimeout:     30 * time.Second,
				HealthCheckInterval: time.Minute,
				MaxRestartAttempts:  20,
			},
			want: Config{
				Name:                "hub",
				Binary:              "/opt/hub",
				RestartDelay:        10 * time.Second,
				MaxRestartDelay:     10 * time.Minute,
				StableThreshold:     5 * time.Minute,
				GracefulTimeout:     30 * time.Second,
				HealthCheckInterval: time.Minute,
				MaxRestartAttempts:  20,
			},
		},
		{
			name: "max delay raised to base delay",
			in:   Config{Name: "hub", Binary: "/opt/hub", RestartDelay: 10 * time.Minute, MaxRestartDelay: time.Minute},
			want: Config{
				Name:                "hub",
				Binary:              "/opt/hub",
				RestartDelay:        10 * time.Minute,
				MaxRestartDelay:     10 * time.Minute,
				StableThreshold:     2 * time.Minute,
				GracefulTimeout:     10 * time.Second,
				HealthCheckInterval: 30 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewManager(tt.in).config
			if got.RestartDelay != tt.want.RestartDelay ||
				got.MaxRestartDelay != tt.want.MaxRestartDelay ||
				got.StableThreshold != tt.want.StableThreshold ||
				got.GracefulTimeout != tt.want.GracefulTimeout ||
				got.HealthCheckInterval != tt.want.HealthCheckInterval ||
				got.MaxRestartAttempts != tt.want.MaxRestartAttempts {
				t.Errorf("config = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("myproc", "/usr/bin/myproc", []string{"--daemon"})

	if cfg.Name != "myproc" || cfg.Binary != "/usr/bin/myproc" {
		t.Errorf("Name/Binary = %q/%q", cfg.Name, cfg.Binary)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "--daemon" {
		t.Errorf("Args = %v, want [--daemon]", cfg.Args)
	}
	if !cfg.RestartOnFailure || cfg.MaxRestartAttempts != 10 {
		t.Errorf("RestartOnFailure=%v MaxRestartAttempts=%d, want true and 10",
			cfg.RestartOnFailure, cfg.MaxRestartAttempts)
	}
}

func TestHubConfig(t *testing.T) {
	tests := []struct {
		name      string
		in        config.HubConfig
		wantDelay time.Duration
	}{
		{
			name: "explicit delay",
			in: config.HubConfig{
				Managed:             true,
				Binary:              "/usr/local/bin/haptic-hub",
				Args:                []string{"--port", "9000"},
				RestartOnFailure:    true,
				RestartDelaySeconds: 3,
				MaxRestartAttempts:  4,
			},
			wantDelay: 3 * time.Second,
		},
		{
			name:      "zero delay keeps default",
			in:        config.HubConfig{Binary: "/usr/local/bin/haptic-hub"},
			wantDelay: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := HubConfig(tt.in)
			if cfg.Name != "hub" || cfg.Binary != tt.in.Binary || len(cfg.Args) != len(tt.in.Args) {
				t.Errorf("HubConfig() = %+v", cfg)
			}
			if cfg.RestartOnFailure != tt.in.RestartOnFailure || cfg.MaxRestartAttempts != tt.in.MaxRestartAttempts {
				t.Errorf("restart policy = %v/%d, want %v/%d",
					cfg.RestartOnFailure, cfg.MaxRestartAttempts, tt.in.RestartOnFailure, tt.in.MaxRestartAttempts)
			}
			if cfg.RestartDelay != tt.wantDelay {
				t.Errorf("RestartDelay = %v, want %v", cfg.RestartDelay, tt.wantDelay)
			}
		})
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{Name: "hub", Binary: "/bin/true", RestartDelay: time.Second, MaxRestartDelay: 30 * time.Second})

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		attempt := i + 1
		if got := m.calculateBackoffDelay(attempt); got != w*time.Second {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", attempt, got, w*time.Second)
		}
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"plain error", context.DeadlineExceeded, true},
		{"recoverable", recoverableErr(true), true},
		{"unrecoverable", recoverableErr(false), false},
		{"wrapped unrecoverable", fmt.Errorf("health: %w", recoverableErr(false)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Name: "stats-test", Binary: "/bin/echo"})

	if m.Status() != StatusStopped || m.IsRunning() {
		t.Errorf("Status() = %q, IsRunning() = %v", m.Status(), m.IsRunning())
	}
	if m.PID() != 0 || m.Uptime() != 0 || m.RestartCount() != 0 || m.LastError() != nil {
		t.Errorf("PID=%d Uptime=%v RestartCount=%d LastError=%v, want zero values",
			m.PID(), m.Uptime(), m.RestartCount(), m.LastError())
	}

	want := Stats{Name: "stats-test", Status: StatusStopped}
	if got := m.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	// Stop before Start is a no-op; SetLogger accepts nil.
	m.SetLogger(nil)
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestManager_StartErrors(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		m := NewManager(Config{Name: "empty"})
		if err := m.Start(context.Background()); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Start() error = %v, want ErrInvalidConfig", err)
		}
		if m.Status() != StatusStopped {
			t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
		}
	})

	t.Run("binary does not exist", func(t *testing.T) {
		m := NewManager(Config{Name: "bad-binary", Binary: "/nonexistent/binary"})
		if err := m.Start(context.Background()); err == nil {
			t.Fatal("Start() error = nil")
		}
		if m.Status() != StatusFailed || m.LastError() == nil {
			t.Errorf("Status() = %q, LastError() = %v", m.Status(), m.LastError())
		}
		if err := m.Stop(); err != nil {
			t.Errorf("Stop() after failed Start() error = %v", err)
		}
	})
}

func TestManager_StartAndStop(t *testing.T) {
	var started atomic.Bool
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnStart:         func() { started.Store(true) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !started.Load() {
		t.Error("OnStart not called")
	}
	if !m.IsRunning() || m.PID() == 0 {
		t.Errorf("after Start: IsRunning=%v PID=%d", m.IsRunning(), m.PID())
	}
	if err := m.Start(ctx); err == nil {
		t.Error("second Start() error = nil")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q after Stop, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_RestartsUntilMaxAttempts(t *testing.T) {
	var restarts, stops atomic.Int32
	m := NewManager(Config{
		Name:               "flaky-hub",
		Binary:             "/bin/sh",
		Args:               []string{"-c", "exit 3"},
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnRestart:          func(int) { restarts.Add(1) },
		OnStop:             func(error) { stops.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Initial run plus two restarts, then supervision gives up.
	if !waitFor(t, 5*time.Second, func() bool { return stops.Load() == 3 }) {
		t.Fatalf("OnStop calls = %d, want 3", stops.Load())
	}
	if got := restarts.Load(); got != 2 {
		t.Errorf("OnRestart calls = %d, want 2", got)
	}
	if !waitFor(t, time.Second, func() bool { return m.Status() == StatusFailed }) {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after non-zero exit")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestManager_NoRestart(t *testing.T) {
	tests := []struct {
		name    string
		restart bool
		health  func(context.Context) error
		args    []string
	}{
		{name: "restart disabled", args: []string{"-c", "exit 1"}},
		{
			name:    "unrecoverable health failure",
			restart: true,
			args:    []string{"-c", "sleep 60"},
			health:  func(context.Context) error { return recoverableErr(false) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stopped := make(chan error, 1)
			m := NewManager(Config{
				Name:                "oneshot",
				Binary:              "/bin/sh",
				Args:                tt.args,
				RestartOnFailure:    tt.restart,
				HealthCheckFunc:     tt.health,
				HealthCheckInterval: 10 * time.Millisecond,
				RestartDelay:        10 * time.Millisecond,
				OnStop:              func(err error) { stopped <- err },
			})
			if err := m.Start(context.Background()); err != nil {
				t.Fatalf("Start() error: %v", err)
			}

			select {
			case err := <-stopped:
				if err == nil {
					t.Error("OnStop error = nil, want failure")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("OnStop not called")
			}
			if err := m.Stop(); err != nil {
				t.Errorf("Stop() error = %v", err)
			}
			if m.RestartCount() != 0 {
				t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
			}
		})
	}
}

func TestManager_HealthCheckKillsHungProcess(t *testing.T) {
	var checks atomic.Int32
	stopped := make(chan error, 1)
	m := NewManager(Config{
		Name:                "hung-hub",
		Binary:              "/bin/sleep",
		Args:                []string{"60"},
		HealthCheckInterval: 10 * time.Millisecond,
		HealthCheckFunc: func(context.Context) error {
			checks.Add(1)
			return errors.New("hub not answering")
		},
		OnStop: func(err error) { stopped <- err },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case err := <-stopped:
		if err == nil || !strings.Contains(err.Error(), "failed health checks") {
			t.Errorf("OnStop error = %v, want health check failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("hung process was not killed")
	}
	if got := checks.Load(); got != maxConsecutiveFailures {
		t.Errorf("health checks = %d, want %d", got, maxConsecutiveFailures)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after health check kill")
	}
}

func TestManager_ContextCancelStops(t *testing.T) {
	m := NewManager(Config{
		Name:             "ctx-hub",
		Binary:           "/bin/sleep",
		Args:             []string{"60"},
		RestartOnFailure: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	if !waitFor(t, 5*time.Second, func() bool { return m.Status() == StatusStopped }) {
		t.Fatalf("Status() = %q after cancel, want %q", m.Status(), StatusStopped)
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
}

func TestManager_CapturesOutput(t *testing.T) {
	logger := &captureLogger{}
	stopped := make(chan struct{})
	m := NewManager(Config{
		Name:   "chatty-hub",
		Binary: "/bin/sh",
		Args:   []string{"-c", `printf 'listening on 12345\r\nready\n'; echo oops >&2`},
		OnStop: func(error) { close(stopped) },
	})
	m.SetLogger(logger)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	got := strings.Join(logger.snapshot(), "|")
	for _, want := range []string{"listening on 12345", "ready", "oops"} {
		if !strings.Contains(got, want) {
			t.Errorf("captured output %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "\r") {
		t.Errorf("captured output %q kept carriage return", got)
	}
}

func TestLineWriter_SplitsAndCaps(t *testing.T) {
	logger := &captureLogger{}
	m := NewManager(Config{Name: "hub", Binary: "/bin/true"})
	m.SetLogger(logger)
	w := &lineWriter{m: m, stream: "stdout"}

	_, _ = w.Write([]byte("par"))
	_, _ = w.Write([]byte("tial\nnext\n"))
	_, _ = w.Write([]byte(strings.Repeat("x", maxOutputLine)))

	lines := logger.snapshot()
	if len(lines) != 3 || lines[0] != "partial" || lines[1] != "next" || len(lines[2]) != maxOutputLine {
		t.Errorf("lines = %d %q...", len(lines), lines[:min(2, len(lines))])
	}
	if len(w.buf) != 0 {
		t.Errorf("buffer holds %d bytes after overflow flush", len(w.buf))
	}
}
