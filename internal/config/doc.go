// Package config loads, normalizes, and validates tailor configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment overrides such as TAILOR_WORKSPACE_ROOT.
// Always obtain settings through this package so downstream code receives
// absolute paths and clear validation errors.
package config
