// Package config loads, validates, and normalizes Podscribe configuration.
//
// Configuration is TOML with defaults applied before parsing; every path field
// is expanded (~ and relative paths) and the result is validated so consumers
// can rely on absolute paths and positive intervals.
package config
