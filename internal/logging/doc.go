// Package logging wraps log/slog with icemaker conventions: typed attribute
// helpers, standardized field keys, context-carried stage/source annotations,
// and console/JSON handler construction from configuration.
package logging
