// Package logging provides structured logging utilities for k7s.
//
// All components log through log/slog. This package holds the shared
// attribute keys, constructors for the process-wide logger, and sanitizers
// for values that may leak network topology.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithContext(slog.Default(), "kind-dev")
//	logger.Info("listing items",
//	    logging.Namespace("default"),
//	    logging.ResourceType("pods"))
//
// API server errors often contain the server address and should be logged
// with SanitizedErr, which redacts IPv4 and IPv6 addresses.
package logging
