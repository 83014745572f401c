// Package logging provides structured logging for the vdx engine.
//
// # Overview
//
// The logging package wraps a zap SugaredLogger behind a small interface
// with:
//
//   - Multiple log levels (debug, info, warn, error)
//   - Console and JSON output formats
//   - Request ID tracking
//   - Field-based contextual logging
//
// # Creating a Logger
//
// Create a logger with configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/vdx/vdx.log",
//	})
//
// Or use defaults:
//
//	logger := logging.NewDefault() // Info level, text format, stdout
//
// For testing, use a no-op logger or an observed core:
//
//	logger := logging.NewNop()
//
//	core, logs := observer.New(zapcore.DebugLevel)
//	logger := logging.NewWithCore(core)
//
// # Structured Logging
//
// Add key-value pairs to log entries:
//
//	logger.Info("entry added",
//	    "dn", "id=1,ou=users,dc=example,dc=com",
//	    "sources", 2,
//	)
//
// # Request Tracking
//
// Every engine operation logs through a logger carrying its request ID:
//
//	reqLogger := logger.WithRequestID(logging.GenerateRequestID())
//	reqLogger.Debug("search planned", "mapping", "user")
package logging
