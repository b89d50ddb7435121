// ABOUTME: Package documentation for the config package
// ABOUTME: YAML configuration with env expansion and duration parsing

// Package config loads the gateway's YAML configuration.
//
// ${VAR_NAME} patterns anywhere in the file are expanded from the
// environment before parsing, so secrets can stay out of the file.
// Duration fields accept Go duration strings ("12h", "5m").
package config
