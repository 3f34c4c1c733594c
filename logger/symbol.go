package logger

import (
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(logger.SymbolWatch + " target added", "target_id", id)
//
//	// Use:
//	logger.WatchInfow("target added", "target_id", id)
//
// This makes logs queryable by symbol and keeps messages clean.

// Symbols used across the remote store's two stream state machines.
const (
	SymbolWatch = "⦿" // watch stream events
	SymbolWrite = "✑" // write stream events
)

// WatchInfow logs an info message tagged with the watch-stream symbol.
func WatchInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolWatch}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// WatchDebugw logs a debug message tagged with the watch-stream symbol.
func WatchDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolWatch}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// WatchWarnw logs a warning tagged with the watch-stream symbol.
func WatchWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolWatch}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// WriteInfow logs an info message tagged with the write-stream symbol.
func WriteInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolWrite}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// WriteWarnw logs a warning tagged with the write-stream symbol.
func WriteWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolWrite}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// WithSymbol returns a logger with the given symbol as a field.
// For ad-hoc symbol usage not covered by the helpers above.
//
// Example:
//
//	symbolLogger := logger.WithSymbol(logger.SymbolWrite)
//	symbolLogger.Infow("Ingesting data", "source", src)
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// SymbolInfow logs with any symbol - for dynamic symbol usage
func SymbolInfow(symbol, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
