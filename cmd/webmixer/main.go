// webmixer bridges an OSC mixing desk to browser clients.
//
// It keeps a cache of the desk's state, serves a mixer UI over HTTP and
// relays control changes between the desk, any external OSC endpoints and
// every connected browser over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/webmixer/internal/api"
	"github.com/nerrad567/webmixer/internal/history"
	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/infrastructure/database"
	"github.com/nerrad567/webmixer/internal/infrastructure/influxdb"
	"github.com/nerrad567/webmixer/internal/infrastructure/logging"
	"github.com/nerrad567/webmixer/internal/infrastructure/mqtt"
	"github.com/nerrad567/webmixer/internal/mirror"
	"github.com/nerrad567/webmixer/internal/mixer"
	"github.com/nerrad567/webmixer/internal/netutil"
	"github.com/nerrad567/webmixer/internal/osc"
	"github.com/nerrad567/webmixer/internal/plugins"
	"github.com/nerrad567/webmixer/internal/telemetry"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or one of
// them fails.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting webmixer", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.SetDebug(cfg.Debug)
	log.Info("configuration loaded", "path", configPath, "first_run", cfg.FirstRun, "level", cfg.LogLevel())

	transport, err := osc.Listen(cfg.OSC.Host, cfg.OSC.Port, cfg.OSC.BufferSize, log.With("component", "osc"))
	if err != nil {
		return fmt.Errorf("opening OSC socket: %w", err)
	}
	defer transport.Close() //nolint:errcheck // Also closed by Serve on shutdown
	log.Info("listening for OSC", "addr", transport.Addr().String())

	plugs, err := plugins.FromConfig(cfg.Plugins)
	if err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}

	var (
		observers []mixer.Observer
		workers   []func(context.Context) error
		historyRd api.HistoryReader
		engine    *mixer.Engine
	)

	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}

		rec, err := history.Open(ctx, db, log, history.Options{RetentionDays: cfg.Database.RetentionDays})
		if err != nil {
			return err
		}
		observers = append(observers, rec)
		workers = append(workers, rec.Run)
		historyRd = rec
		log.Info("control history enabled", "path", db.Path(), "retention_days", cfg.Database.RetentionDays)
	}

	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, telemetry.New(influx))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.MQTT.Enabled {
		broker, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := broker.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		broker.SetLogger(log)

		// engine is assigned before any worker starts.
		inject := mirror.InjectorFunc(func(ctx context.Context, msg mixer.Message) error {
			return engine.Inject(ctx, msg)
		})
		m := mirror.New(broker, inject, log, 0)
		observers = append(observers, m)
		workers = append(workers, m.Run)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	settings, err := mixer.SettingsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("resolving peers: %w", err)
	}
	engine, err = mixer.New(mixer.Options{
		Settings:      settings,
		Transport:     transport,
		Plugins:       plugs,
		Logger:        log.With("component", "mixer"),
		Observers:     observers,
		RetryInterval: cfg.Sequencer.RetryInterval,
		PrimeInterval: cfg.Sequencer.PrimeInterval,
		EventBuffer:   cfg.Sequencer.EventBuffer,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	serverIP := netutil.LocalIPv4()
	srv, err := api.New(api.Deps{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Engine:     engine,
		History:    historyRd,
		ServerIP:   serverIP,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return transport.Serve(gctx, engine) })
	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}

	if err := srv.Start(gctx); err != nil {
		cancel()
		_ = g.Wait() //nolint:errcheck // The start error is the one worth reporting
		return fmt.Errorf("starting API server: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	banner(log, cfg, serverIP)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("webmixer stopped")
	return nil
}

// banner logs where the mixer and admin pages are reachable. On first run
// there is no config file yet, so the admin URL is the thing to open.
func banner(log *logging.Logger, cfg *config.Config, ip string) {
	mixerURL := netutil.URL(ip, cfg.Server.Port, "/")
	adminURL := netutil.URL(ip, cfg.Server.Port, "/admin")
	if cfg.FirstRun {
		log.Warn("no configuration file found, open the admin page to set up the desk", "admin", adminURL)
	}
	log.Info("webmixer ready", "mixer", mixerURL, "admin", adminURL,
		"desk", fmt.Sprintf("%s:%d", cfg.Desk.Host, cfg.Desk.Port))
}

// getConfigPath returns WEBMIXER_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("WEBMIXER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
