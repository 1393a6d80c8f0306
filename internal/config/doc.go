// Package config handles configuration loading for the fastagi-server.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package provides validation and sensible defaults so a
// file only needs to override what it cares about.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FASTAGI_CONFIG environment variable
//  2. ./fastagi.yaml (current directory)
//  3. ~/.config/fastagi/fastagi.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	audit:
//	  path: "${FASTAGI_AUDIT_DB}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	queue:
//	  default_timeout: "10s"
//	  playback_timeout: "60s"
//	  record_timeout: "10m"
//	  max_call_duration: "6h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  addr: "0.0.0.0:4573"  # FastAGI TCP listener
//
// Command queue defaults:
//
//	queue:
//	  max_size: 100
//	  default_timeout: "10s"
//	  playback_timeout: "60s"
//	  record_timeout: "10m"
//	  max_call_duration: "6h"
//
// Audit store:
//
//	audit:
//	  path: "/var/lib/fastagi/calls.db"  # ":memory:" for ephemeral
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
