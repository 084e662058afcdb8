// Hearth Core - Smart Home Device Registry
//
// This is the main entry point for the Hearth Core service. It maintains
// a live registry of smart-home devices across heterogeneous backends
// (Belkin WeMo, LIFX LAN, generic MQTT devices), runs periodic discovery,
// dispatches control commands, and serves the REST/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openhearth/hearth-core/internal/api"
	"github.com/openhearth/hearth-core/internal/audit"
	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/backend/lifx"
	"github.com/openhearth/hearth-core/internal/backend/mqttdev"
	"github.com/openhearth/hearth-core/internal/backend/wemo"
	"github.com/openhearth/hearth-core/internal/device"
	"github.com/openhearth/hearth-core/internal/discovery"
	"github.com/openhearth/hearth-core/internal/dispatch"
	"github.com/openhearth/hearth-core/internal/infrastructure/config"
	"github.com/openhearth/hearth-core/internal/infrastructure/database"
	"github.com/openhearth/hearth-core/internal/infrastructure/influxdb"
	"github.com/openhearth/hearth-core/internal/infrastructure/logging"
	"github.com/openhearth/hearth-core/internal/infrastructure/mqtt"
	"github.com/openhearth/hearth-core/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
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

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Hearth Core",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the audit database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Device registry
	registry := device.NewRegistry()
	registry.SetLogger(log)

	// Connect to MQTT broker (optional)
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
		mqttClient.SetLogger(log)
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

		// Mirror every accepted merge to the retained canonical state topic.
		registry.Observe(canonicalStateObserver(ctx, mqttClient, log))
	} else {
		log.Info("MQTT disabled")
	}

	// Backend adapters
	adapters, err := buildAdapters(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("initialising backends: %w", err)
	}
	if len(adapters) == 0 {
		return fmt.Errorf("no backends enabled")
	}
	for _, a := range adapters {
		log.Info("backend enabled", "kind", a.Kind())
	}

	// Connect to InfluxDB (optional) and record state history
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
		registry.Observe(influxClient.Observer())
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Prometheus instruments
	collector := metrics.New(registry)

	// Command audit trail
	auditRepo := audit.NewRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log)

	// Command dispatcher
	dispatcher := dispatch.New(registry, adapters, log)
	dispatcher.SetRecorder(recorder)
	dispatcher.SetMetrics(collector)

	// Discovery orchestrator
	orchestrator := discovery.New(registry, adapters,
		cfg.DiscoveryInterval(), cfg.BackendTimeout(), log)
	orchestrator.SetMetrics(collector)
	go orchestrator.Run(ctx)
	log.Info("discovery started",
		"interval", cfg.DiscoveryInterval(),
		"backend_timeout", cfg.BackendTimeout(),
	)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Registry:   registry,
		Dispatcher: dispatcher,
		Refresher:  orchestrator,
		Audit:      auditRepo,
		Metrics:    collector.Handler(),
		Version:    version,
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

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Hearth Core stopped")
	return nil
}

// buildAdapters constructs one adapter per enabled backend.
func buildAdapters(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) ([]backend.Adapter, error) {
	var adapters []backend.Adapter

	if cfg.Backends.WeMo.Enabled {
		cp := wemo.NewControlPoint(time.Duration(cfg.Backends.WeMo.ScanTimeout) * time.Second)
		adapters = append(adapters, wemo.New(cp, log))
	}

	if cfg.Backends.LIFX.Enabled {
		scanner := lifx.NewScanner(cfg.Backends.LIFX.BroadcastAddress, cfg.Backends.LIFX.Port,
			time.Duration(cfg.Backends.LIFX.ScanTimeout)*time.Second)
		adapters = append(adapters, lifx.New(scanner, log))
	}

	if cfg.Backends.MQTT.Enabled {
		if mqttClient == nil {
			return nil, fmt.Errorf("mqtt_devices backend requires an MQTT connection")
		}
		mqttAdapter := mqttdev.New(mqttClient, cfg.Backends.MQTT, log)
		if err := mqttAdapter.Start(); err != nil {
			return nil, fmt.Errorf("starting mqtt_devices backend: %w", err)
		}
		adapters = append(adapters, mqttAdapter)
	}

	return adapters, nil
}

// canonicalStateObserver mirrors accepted merges to the retained
// per-device state topic so MQTT consumers always see current state.
func canonicalStateObserver(ctx context.Context, client *mqtt.Client, log *logging.Logger) device.Observer {
	var topics mqtt.Topics
	return func(update device.Update) {
		topic := topics.CoreDeviceState(update.Record.ID)
		if err := client.PublishRetained(ctx, topic, update.Record); err != nil {
			log.Warn("publishing device state",
				"id", update.Record.ID,
				"topic", topic,
				"error", err,
			)
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses HEARTH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections. The MQTT and InfluxDB
// clients may be nil when disabled.
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
