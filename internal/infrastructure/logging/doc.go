// Package logging provides structured logging for the web mixer.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output for a console, JSON output for log shipping
//   - Default fields (service, version) on all log entries
//   - Runtime debug toggle shared by every derived logger
//
// # Configuration
//
//	debug: false         # forces debug level when true
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("listening for OSC", "port", 8000)
//	logger.SetDebug(true)
package logging
