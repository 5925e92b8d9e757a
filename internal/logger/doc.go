// Package logger provides structured logging functionality for twitvid.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Multiple output formats (text, JSON, color)
//   - File output with size/age based rotation
//   - Thread-safe operations
//
// Usage:
//
//	// Get a component logger
//	log := logger.WithComponent(logger.ComponentResolver)
//
//	// Log messages with different levels
//	log.Info("Resolved video", logger.Fields{
//		"url":      "https://x.com/user/status/1",
//		"provider": "sparky",
//	})
//
//	// Configure global logger
//	config := logger.DefaultConfig()
//	config.Level = logger.DEBUG
//	config.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(config))
//
// Components:
//   - ComponentApp: Main application logs
//   - ComponentResolver: Video API calls
//   - ComponentDownloader: Download process logs
//   - ComponentShortCode: Short-code encode/decode failures
//   - ComponentStorage: Database and blob store logs
//   - ComponentUpload: Image upload logs
//   - ComponentServer: HTTP access logs
//   - ComponentClient: HTTP client logs
//   - ComponentScript: JavaScript response mappers
//   - ComponentCache: Resolve cache logs
package logger
