// Gatekeeper Core - ANPR camera and vehicle gate orchestration
//
// This is the main entry point for the gatekeeper daemon. It owns the
// camera and gate registry, drives gate controllers over HTTP or MQTT,
// probes device connectivity on a schedule and serves the REST/WebSocket
// API used by operator consoles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gatekeeper-core/internal/api"
	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/auth"
	"github.com/nerrad567/gatekeeper-core/internal/controller"
	"github.com/nerrad567/gatekeeper-core/internal/dashboard"
	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/discovery"
	"github.com/nerrad567/gatekeeper-core/internal/gate"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/logging"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gatekeeper-core/internal/metrics"
	"github.com/nerrad567/gatekeeper-core/internal/probe"
	"github.com/nerrad567/gatekeeper-core/internal/scheduler"
	"github.com/nerrad567/gatekeeper-core/internal/snapshot"
	"github.com/nerrad567/gatekeeper-core/internal/telemetry"
	"github.com/nerrad567/gatekeeper-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gatekeeper Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	cameras, gates := registry.Counts()
	log.Info("device registry initialised", "cameras", cameras, "gates", gates)

	auditRepo := audit.NewSQLiteRepository(db.DB)

	// MQTT is optional: without a broker only HTTP controllers work.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, MQTT gate controllers unavailable")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	dispatcher, err := buildDispatcher(cfg, mqttClient)
	if err != nil {
		return err
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	collectors := metrics.New(registry, hub.ClientCount)

	sinks := telemetry.Sinks{Hub: hub, Metrics: collectors, Devices: registry}
	if mqttClient != nil {
		sinks.MQTT = mqttClient
	}
	if influxClient != nil {
		sinks.Influx = influxClient
	}
	fanout := telemetry.New(sinks)
	fanout.SetLogger(log.Component("telemetry"))
	fanoutCtx, stopFanout := context.WithCancel(ctx)
	fanoutDone := make(chan struct{})
	go func() {
		defer close(fanoutDone)
		fanout.Run(fanoutCtx)
	}()
	defer func() {
		stopFanout()
		<-fanoutDone
	}()

	prober := probe.New(registry, dispatcher, probe.Options{
		Timeout:     cfg.Devices.ProbeTimeout,
		Parallelism: cfg.Devices.ProbeParallelism,
	})
	prober.SetLogger(log.Component("probe"))
	prober.SetObserver(fanout.ProbeCompleted)

	actuator := gate.NewActuator(registry, dispatcher, auditRepo, fanout, gate.Options{
		Timeout: cfg.Devices.ActuationTimeout,
		Source:  "api",
	})
	actuator.SetLogger(log.Component("gate"))

	var operators *auth.Directory
	if cfg.Security.JWT.Enabled {
		operators, err = auth.NewDirectory(cfg.Security.Operators)
		if err != nil {
			return fmt.Errorf("loading operators: %w", err)
		}
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Registry:  registry,
		Prober:    prober,
		Snapshots: snapshot.NewService(registry, cfg.Devices.SnapshotTimeout),
		Actuator:  actuator,
		Dashboard: dashboard.NewAggregator(registry, auditRepo),
		AuditRepo: auditRepo,
		Operators: operators,
		Metrics:   collectors.Handler(),
		Hub:       hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Devices.ProbeSchedule != "" {
		sched, err := scheduler.New(cfg.Devices.ProbeSchedule, prober)
		if err != nil {
			return err
		}
		sched.SetLogger(log.Component("scheduler"))
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	} else {
		log.Info("probe scheduler disabled")
	}

	if cfg.Discovery.MDNS.Enabled {
		adv, err := discovery.NewAdvertiser(discovery.Options{
			Instance:     cfg.Discovery.MDNS.Instance,
			Port:         cfg.API.Port,
			Version:      version,
			TLS:          cfg.API.TLS.Enabled,
			AuthRequired: cfg.Security.JWT.Enabled,
		})
		if err != nil {
			return err
		}
		adv.SetLogger(log.Component("discovery"))
		// Advertising is a convenience; the API works without it.
		if err := adv.Start(); err != nil {
			log.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer adv.Shutdown()
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: mDNS, scheduler, API, telemetry
	// drain, InfluxDB, MQTT, database.
	log.Info("Gatekeeper Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GATEKEEPER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEKEEPER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDispatcher wires the HTTP controller and, when a broker is
// connected, the MQTT controller.
func buildDispatcher(cfg *config.Config, mqttClient *mqtt.Client) (*controller.Dispatcher, error) {
	httpCtl := controller.NewHTTP(cfg.Devices.ActuationTimeout)
	if mqttClient == nil {
		return controller.NewDispatcher(httpCtl, nil), nil
	}
	mqttCtl, err := controller.NewMQTT(mqttClient)
	if err != nil {
		return nil, fmt.Errorf("starting MQTT gate controller: %w", err)
	}
	return controller.NewDispatcher(httpCtl, mqttCtl), nil
}

// healthCheck verifies infrastructure connections. mqttClient and
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
