// Homeview Core - MQTT Smart Home Dashboard
//
// This is the main entry point for the Homeview Core application.
// Homeview turns a raw MQTT broker into a personal device dashboard:
//   - Per-user device dashboards reconciled from live broker traffic
//   - Automatic device detection and classification
//   - Session-authenticated REST and WebSocket API
//   - Optional telemetry export to InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/dkmorland/homeview-core/migrations"

	"github.com/dkmorland/homeview-core/internal/api"
	"github.com/dkmorland/homeview-core/internal/auth"
	"github.com/dkmorland/homeview-core/internal/dashboard"
	"github.com/dkmorland/homeview-core/internal/infrastructure/config"
	"github.com/dkmorland/homeview-core/internal/infrastructure/database"
	"github.com/dkmorland/homeview-core/internal/infrastructure/influxdb"
	"github.com/dkmorland/homeview-core/internal/infrastructure/logging"
	"github.com/dkmorland/homeview-core/internal/infrastructure/mqtt"
	"github.com/dkmorland/homeview-core/internal/settings"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	log.Info("starting Homeview Core",
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

	// Open database and bring the schema up to date
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// First-boot seeding: admin account and default settings
	userRepo := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	settingsRepo := settings.NewSQLiteRepository(db.DB)
	if seedErr := settingsRepo.SeedDefaults(ctx); seedErr != nil {
		return fmt.Errorf("seeding default settings: %w", seedErr)
	}
	timeouts := settings.NewTimeoutCache(settingsRepo, log)

	// Connect to the MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional telemetry sink)
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

	// Dashboard manager: one reconciliation engine per user over the
	// shared broker connection.
	manager := dashboard.NewManager(
		mqttTransport{mqttClient},
		dashboard.NewConfigRepository(db.DB),
		timeouts,
		nil,
	)
	manager.SetLogger(log)
	manager.SetQoS(byte(cfg.MQTT.QoS))
	if influxClient != nil {
		manager.SetTelemetry(influxClient)
	}
	if startErr := manager.Start(); startErr != nil {
		return fmt.Errorf("starting dashboard manager: %w", startErr)
	}
	defer manager.Shutdown()
	log.Info("dashboard manager started")

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Users:      userRepo,
		Settings:   settingsRepo,
		UserPrefs:  settings.NewUserSettingsRepository(db.DB),
		Timeouts:   timeouts,
		Brokers:    settings.NewBrokerRepository(db.DB),
		Dashboards: manager,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Dashboard manager
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Homeview Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEVIEW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEVIEW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when telemetry is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttTransport adapts the infrastructure MQTT client to the dashboard's
// Transport interface. The client's Subscribe takes the named
// mqtt.MessageHandler type, which doesn't satisfy the interface's plain
// function signature; everything else promotes through the embedded client.
type mqttTransport struct {
	*mqtt.Client
}

// Subscribe implements dashboard.Transport.
func (t mqttTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return t.Client.Subscribe(topic, qos, handler)
}
