package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/medialib/activity-notifier/internal/config"
	"github.com/medialib/activity-notifier/internal/engine"
	"github.com/medialib/activity-notifier/internal/metrics"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/internal/scheduler"
	"github.com/medialib/activity-notifier/internal/server"
	"github.com/medialib/activity-notifier/internal/storage"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the notification engine components together
type Application struct {
	config    *config.Config
	metrics   *metrics.Manager
	storage   storage.Storage
	delivery  *notification.Manager
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	server    *server.HTTPServer

	ctx         context.Context
	cancel      context.CancelFunc
	metricsStop chan struct{}
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	utils.GetLogger().WithField("level", logCfg.Level).Info("Logger initialized")
	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	logger := utils.GetLogger()
	logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	// Storage
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}
	app.storage = storage.NewStorageWithMetrics(store, app.metrics)

	// Delivery channels
	app.delivery = notification.NewManager(app.config, app.metrics)
	if !app.delivery.HasChannels() {
		logger.Warn("No delivery channels enabled, notifications will fail until one is configured")
	}

	// Engine
	app.engine = engine.NewEngine(app.storage, app.delivery, app.metrics, &engine.Config{
		Enabled:          app.config.Engine.Enabled,
		DigestEventCap:   app.config.Engine.DigestEventCap,
		MaxWindow:        app.config.Engine.MaxWindow,
		HistoryRetention: app.config.Engine.HistoryRetention,
		DispatchTimeout:  app.config.Engine.DispatchTimeout,
		AdminURL:         app.config.App.AdminURL,
	})

	// Digest scheduler
	app.scheduler = scheduler.NewScheduler(&scheduler.Config{
		Enabled:       app.config.Scheduler.Enabled,
		CheckInterval: app.config.Scheduler.CheckInterval,
	}, app.engine)

	// HTTP server
	app.server = server.NewHTTPServer(&server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}, app.storage, app.engine, app.delivery, app.metrics)

	logger.Info("All components initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	logger := utils.GetLogger()

	logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting activity notifier")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.scheduler.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	app.metricsStop = make(chan struct{})
	app.metrics.StartSystemMetricsLoop(30*time.Second, app.metricsStop)

	logger.WithField("server_address",
		fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
	).Info("Activity notifier started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	logger := utils.GetLogger()
	logger.Info("Stopping activity notifier")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			logger.WithField("error", err.Error()).Error("Failed to stop HTTP server")
		}
	}

	if app.scheduler != nil {
		app.scheduler.Stop()
	}

	// Let in-flight immediate dispatches finish
	if app.engine != nil {
		app.engine.Wait()
	}

	if app.metricsStop != nil {
		close(app.metricsStop)
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			logger.WithField("error", err.Error()).Error("Failed to close storage")
		}
	}

	logger.Info("Activity notifier stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "activity-notifier",
	Short:   "Media library activity notification engine",
	Long:    `Rule-based notification engine that watches media library activity events and alerts administrators by email or webhook, immediately or in periodic digests.`,
	Version: AppVersion,
	RunE:    runNotifier,
}

// runNotifier is the main command to run the notification engine
func runNotifier(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("activity-notifier %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Email delivery: %t\n", cfg.Email.Enabled)
		fmt.Printf("Webhook delivery: %t\n", cfg.Webhook.Enabled)

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test storage connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing activity notifier configuration...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		if cfg.Email.Enabled {
			fmt.Printf("Email delivery configured via %s:%d\n", cfg.Email.SMTPHost, cfg.Email.SMTPPort)
		}
		if cfg.Webhook.Enabled {
			fmt.Printf("Webhook delivery configured via %s\n", cfg.Webhook.URL)
		}

		fmt.Println("\nAll configuration tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
