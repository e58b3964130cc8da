package main

import (
	"os"
	"os/signal"
	"syscall"

	"framecut/internal/config"
	"framecut/internal/database"
	"framecut/internal/server"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Check if media directory exists
	if _, err := os.Stat(cfg.Media.LibraryPath); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Media.LibraryPath, 0755); err != nil {
			logger.WithError(err).WithField("library_path", cfg.Media.LibraryPath).Fatal("Media directory does not exist and could not be created")
		}
		logger.WithField("library_path", cfg.Media.LibraryPath).Info("Created media directory")
	}

	// Initialize project store
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing project store")
	}
	defer db.Close()

	// Create and wire the editor server
	editorServer, err := server.NewEditorServer(cfg, db, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating editor server")
	}

	// Restore the previous session before scanning for new files
	if err := editorServer.LoadProject(); err != nil {
		logger.WithError(err).Warn("Could not restore previous project")
	}

	if err := editorServer.ScanMediaFolder(); err != nil {
		logger.WithError(err).Warn("Error scanning media folder")
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start the server in a goroutine
	go func() {
		if err := editorServer.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
	editorServer.Shutdown()
}
