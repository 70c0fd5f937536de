// Package config loads, validates, and normalizes the TOML configuration for
// the sift worker and CLI. Paths are tilde-expanded and made absolute during
// Load, so downstream code never handles raw user input.
package config
