// Package config loads and validates Hearth Core configuration.
//
// Configuration comes from a YAML file with hardcoded defaults underneath
// and HEARTH_* environment variable overrides on top. Secrets (broker
// passwords, InfluxDB tokens) should always come from the environment.
package config
