// hapticd drives haptic actuators from recorded patterns.
//
// It resolves device addresses against the hub's device list, plays
// patterns at a fixed tick rate and publishes actuator commands to the
// hub over MQTT. A REST and WebSocket API starts, stops and inspects
// playback.
//
// Usage:
//
//	hapticd                       # run the daemon
//	hapticd -issue-token alice    # print an API token for alice and exit
//	hapticd -version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-haptics/migrations"

	"github.com/nerrad567/gray-logic-haptics/internal/api"
	"github.com/nerrad567/gray-logic-haptics/internal/bridges/hub"
	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/history"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-haptics/internal/pattern"
	"github.com/nerrad567/gray-logic-haptics/internal/playback"
	"github.com/nerrad567/gray-logic-haptics/internal/process"
)

// Stamped by the release build with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options are the command-line flags.
type options struct {
	issueToken  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	switch {
	case opts.showVersion:
		fmt.Printf("hapticd %s (commit %s, built %s)\n", version, commit, date)
		return
	case opts.issueToken != "":
		if err := issueToken(opts.issueToken, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "hapticd:", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hapticd:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("hapticd", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an API access token for `subject` and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(output, "unexpected arguments: %v\n", fs.Args())
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// issueToken signs an access token for subject with the configured secret
// and writes it to w.
func issueToken(subject string, w io.Writer) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, cfg.GetAccessTokenTTL(), time.Now())
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// shutdown runs cleanup steps in reverse registration order.
type shutdown struct {
	log   *logging.Logger
	steps []shutdownStep
}

type shutdownStep struct {
	name string
	fn   func() error
}

func (s *shutdown) add(name string, fn func() error) {
	s.steps = append(s.steps, shutdownStep{name, fn})
}

func (s *shutdown) run() {
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.fn(); err != nil {
			s.log.Error("shutdown step failed", "step", step.name, "error", err)
			continue
		}
		s.log.Info("stopped", "step", step.name)
	}
}

// run wires every component, serves until ctx is cancelled and then
// tears everything down in reverse order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	boot := logging.Default()
	boot.Info("starting hapticd", "version", version, "commit", commit, "build_date", date)

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	log.Info("config loaded", "path", cfgPath, "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	down := &shutdown{log: log}
	defer down.run()

	// ─── Storage ────────────────────────────────────────────────────

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	down.add("database", db.Close)
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating history database: %w", err)
	}
	log.Info("history database ready", "path", db.Path())

	// ─── Domain state ───────────────────────────────────────────────

	m := metrics.New()
	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	library := pattern.NewLibrary()
	library.SetLogger(log.Component("patterns"))
	if dir := cfg.Playback.PatternsDir; dir != "" {
		if _, err := library.LoadDir(dir); err != nil {
			return fmt.Errorf("loading patterns from %s: %w", dir, err)
		}
	}
	m.SetPatterns(library.Count())

	events := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	// ─── Hub link ───────────────────────────────────────────────────

	broker, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to broker %s:%d: %w", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, err)
	}
	down.add("mqtt", broker.Close)
	broker.SetLogger(log.Component("mqtt"))
	broker.SetOnDisconnect(func(error) { m.SetHubConnected(false) })
	broker.SetOnConnect(func() { m.SetHubConnected(true) })
	m.SetHubConnected(true)

	bridge, err := hub.NewBridge(hub.BridgeOptions{
		MQTT:     broker,
		Registry: registry,
		Topics:   broker.Topics(),
		Logger:   log.Component("hub"),
		OnDevicesUpdated: func(count int) {
			m.SetDevices(count)
			events.Broadcast(api.ChannelDevicesUpdated, map[string]int{"count": count})
		},
	})
	if err != nil {
		return fmt.Errorf("creating hub bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting hub bridge: %w", err)
	}

	var hubProc api.Supervisor
	if cfg.Hub.Managed {
		mgr, err := startHub(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("starting hub: %w", err)
		}
		down.add("hub process", mgr.Stop)
		hubProc = mgr
	}

	// ─── Telemetry ──────────────────────────────────────────────────

	observers := playback.Observers{m}
	var telemetry *influxdb.Client
	if cfg.InfluxDB.Enabled {
		telemetry, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		down.add("influxdb", telemetry.Close)
		tlog := log.Component("influxdb")
		telemetry.SetOnError(func(err error) { tlog.Error("telemetry write failed", "error", err) })
		observers = append(observers, playback.TelemetryObserver{Writer: telemetry})
		tlog.Info("telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// ─── Playback ───────────────────────────────────────────────────

	scheduler := playback.New(registry, bridge, playback.Options{
		TickInterval: cfg.GetTickInterval(),
		SendTimeout:  cfg.GetSendTimeout(),
		QueueSize:    cfg.Playback.QueueSize,
		Strict:       cfg.Playback.Strict,
		Logger:       log.Component("playback"),
		Observer:     observers,
		ErrorSink:    addressErrorSink(log, m, events),
	})
	schedCtx, cancelSched := context.WithCancel(ctx)
	schedDone := make(chan error, 1)
	go func() { schedDone <- scheduler.Run(schedCtx) }()
	down.add("scheduler", func() error {
		// Run returns after the send queue drains.
		cancelSched()
		if err := <-schedDone; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// ─── API ────────────────────────────────────────────────────────

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Registry: registry,
		Library:  library,
		Player:   scheduler,
		History:  history.NewSQLiteRepository(db.DB),
		Metrics:  m,
		HubLink:  bridge,
		HubProc:  hubProc,
		Events:   events,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	down.add("api", server.Close)

	if err := healthCheck(ctx, db, broker, telemetry); err != nil {
		log.Warn("startup health check failed", "error", err)
	}
	log.Info("hapticd running", "api", server.Addr(), "patterns", library.Count())

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// addressErrorSink reports malformed address expressions to the log,
// the error counter and subscribed WebSocket clients.
func addressErrorSink(log *logging.Logger, m *metrics.Metrics, events *api.Hub) device.ErrorSink {
	return device.ErrorSinkFunc(func(message string) {
		log.Warn("malformed address", "error", message)
		m.AddressError()
		events.Broadcast(api.ChannelAddressError, map[string]string{"message": message})
	})
}

// checker is implemented by every backing service.
type checker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck returns the first failing backing service. telemetry may
// be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, broker *mqtt.Client, telemetry *influxdb.Client) error {
	names := []string{"database", "mqtt"}
	checks := []checker{db, broker}
	if telemetry != nil {
		names = append(names, "influxdb")
		checks = append(checks, telemetry)
	}

	for i, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", names[i], err)
		}
	}
	return nil
}

// startHub launches the hub binary under supervision.
func startHub(ctx context.Context, cfg *config.Config, log *logging.Logger) (*process.Manager, error) {
	mgr := process.NewManager(process.HubConfig(cfg.Hub))
	mgr.SetLogger(log.Component("hub-process"))
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("hub process started", "binary", cfg.Hub.Binary, "pid", mgr.PID())
	return mgr, nil
}
