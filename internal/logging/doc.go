// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"pipeline": "debug", // Per-module overrides
//			"api":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("capture").With("camera", id)
//	logger.Info("Camera opened")  // Includes camera in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → MultiHandler (both)
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t shadercam              # All shadercam logs
//	journalctl -t shadercam -f           # Follow live
//	journalctl -t shadercam --since "5m" # Last 5 minutes
//	journalctl -t shadercam -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t shadercam MODULE=pipeline
//	journalctl -t shadercam CAMERA=0
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	pipeline = "debug"
//	api = "warn"
//	ffmpeg = "error"
//
// Levels can also be changed at runtime with SetLevel; every module logger
// reads its level from a slog.LevelVar.
//
// # Log History
//
// Every record also lands in an in-memory ring buffer (GetBuffer). Entries
// carry a sequence number so a client streaming logs can resume with
// RingBuffer.ReadSince after reconnecting.
package logging
