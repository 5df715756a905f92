// Package config loads, normalizes, and validates tunedrop configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TUNEDROP_NTFY_TOPIC. The Config type centralizes every knob the CLI needs
// to pair with a device and push files to it, so the data directory, pairing
// listener and transfer limits are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
