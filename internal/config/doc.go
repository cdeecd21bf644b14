// Package config handles configuration loading for ember-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	secret_store:
//	  passphrase: "${EMBER_SECRET_PASSPHRASE}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	rate_limit:
//	  duration: "60s"
//	  block_duration: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  host: "127.0.0.1"
//	  preferred_port: 4817
//	  port_range_min: 4817
//	  port_range_max: 4827
//	  bind_probes: 10
//
// Database:
//
//	database:
//	  path: "/var/lib/ember/gateway.db"
//
// Authentication:
//
//	auth:
//	  min_token_length: 32
//
// Rate limiting:
//
//	rate_limit:
//	  points: 60
//	  duration: "60s"
//	  block_duration: "5m"
//	  penalty_points: 5
//
// Secret store:
//
//	secret_store:
//	  driver: "auto"   # auto, keychain, file
//	  fallback_enabled: true
//	  file_path: "/var/lib/ember/token.enc"
//	  passphrase: "${EMBER_SECRET_PASSPHRASE}"
//
// Tool providers:
//
//	providers:
//	  manifest_dir: "/etc/ember/providers"
//	  invoke_timeout: "30s"
//	  connect_timeout: "10s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
