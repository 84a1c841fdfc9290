package process

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
)

const (
	defaultRestartDelay        = 5 * time.Second
	defaultMaxRestartDelay     = 5 * time.Minute
	defaultStableThreshold     = 2 * time.Minute
	defaultGracefulTimeout     = 10 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	defaultMaxRestartAttempts  = 10
)

// ErrInvalidConfig is returned by Start when Name or Binary is missing.
var ErrInvalidConfig = errors.New("process: invalid config")

// Config describes the child process and how it is supervised.
// Zero durations take the package defaults in NewManager.
type Config struct {
	Name    string // used in log lines
	Binary  string
	Args    []string
	Env     []string // appended to the parent environment; nil inherits it unchanged
	WorkDir string

	RestartOnFailure bool

	// Backoff starts at RestartDelay and doubles per consecutive attempt
	// up to MaxRestartDelay. A run that lasts StableThreshold resets the
	// attempt counter.
	RestartDelay       time.Duration
	MaxRestartDelay    time.Duration
	StableThreshold    time.Duration
	MaxRestartAttempts int // 0 = unlimited

	// GracefulTimeout is the gap between SIGTERM and SIGKILL on Stop.
	GracefulTimeout time.Duration

	// HealthCheckFunc, when set, is polled every HealthCheckInterval while
	// the child runs. Three failures in a row, or one unrecoverable
	// failure, kill the child.
	HealthCheckFunc     func(ctx context.Context) error
	HealthCheckInterval time.Duration

	OnStart   func()
	OnStop    func(err error) // nil err for a requested stop
	OnRestart func(attempt int)
}

// DefaultConfig returns a restart-on-failure Config for binary.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        defaultRestartDelay,
		MaxRestartDelay:     defaultMaxRestartDelay,
		StableThreshold:     defaultStableThreshold,
		MaxRestartAttempts:  defaultMaxRestartAttempts,
		GracefulTimeout:     defaultGracefulTimeout,
		HealthCheckInterval: defaultHealthCheckInterval,
	}
}

// HubConfig maps the hub section of config.yaml onto a supervisor Config.
func HubConfig(cfg config.HubConfig) Config {
	c := DefaultConfig("hub", cfg.Binary, cfg.Args)
	c.RestartOnFailure = cfg.RestartOnFailure
	c.MaxRestartAttempts = cfg.MaxRestartAttempts
	if cfg.RestartDelaySeconds > 0 {
		c.RestartDelay = time.Duration(cfg.RestartDelaySeconds) * time.Second
	}
	return c
}

func (c Config) withDefaults() Config {
	setDefault(&c.RestartDelay, defaultRestartDelay)
	setDefault(&c.MaxRestartDelay, defaultMaxRestartDelay)
	c.MaxRestartDelay = max(c.MaxRestartDelay, c.RestartDelay)
	setDefault(&c.StableThreshold, defaultStableThreshold)
	setDefault(&c.GracefulTimeout, defaultGracefulTimeout)
	setDefault(&c.HealthCheckInterval, defaultHealthCheckInterval)
	return c
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d == 0 {
		*d = v
	}
}

// RecoverableError is implemented by exit or health check errors that
// know whether a restart can help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether err allows another restart. Errors that
// do not implement RecoverableError are treated as recoverable.
func IsRecoverable(err error) bool {
	var re RecoverableError
	return !errors.As(err, &re) || re.IsRecoverable()
}
