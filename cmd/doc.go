// Package cmd provides the command-line interface for k7s.
//
// This package implements a Cobra-based CLI with the following subcommands:
//   - serve: Starts the dashboard API server (default when no subcommand is provided)
//   - resources: Lists the resource types of a cluster
//   - items: Lists the items of one resource type
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	k7s [flags]                          # Starts the dashboard server (default)
//	k7s serve [flags]                    # Explicitly starts the dashboard server
//	k7s resources [query] [-o json]      # Lists or searches resource types
//	k7s items <resource> [-n namespace]  # Lists the items of a resource type
//	k7s version                          # Shows version information
//	k7s self-update                      # Updates to latest release
//
// Configuration:
//
// Every flag can be set through an environment variable with the K7S_ prefix,
// upper-cased and with dashes replaced by underscores (--http-addr becomes
// K7S_HTTP_ADDR), or through a YAML file passed with --config. Flags take
// precedence over the environment, which takes precedence over the file.
//
//	k7s serve --context prod --read-only --allowed-origins https://dash.example.com
//	K7S_STATS_TTL=30s k7s serve --config /etc/k7s/config.yaml
//
// Instrumentation is configured through the standard OpenTelemetry
// environment variables and served on the dedicated metrics port.
package cmd
