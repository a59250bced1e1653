// Package config loads, validates, and normalizes icemaker configuration.
//
// Configuration lives in a TOML file (default ~/.config/icemaker/config.toml,
// or ./icemaker.toml for project-local use). Defaults come from Default();
// Load layers the file and a small set of environment overrides on top, then
// expands paths and validates. The embedded sample_config.toml is written by
// `icemaker config init`.
package config
