// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a value-type Logger with slog-like field helpers and a Service
// that owns the sinks (console, file) so level and outputs can be swapped at
// runtime when the config file changes.
package logx
