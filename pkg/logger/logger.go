package logger

import "go.uber.org/zap"

// New builds a zap.Logger configured for the given level ("debug", "info",
// "warn", "error"). Unknown or empty levels fall back to info. Production
// encoding (JSON, epoch-seconds timestamps) is used throughout; callers in tests
// reach for zap.NewNop or zaptest instead of this constructor.
func New(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()

	var lvl zap.AtomicLevel
	switch level {
	case "debug":
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		lvl = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		lvl = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl

	log, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed encoder config, which cfg never
		// produces; fall back to a usable logger rather than panic.
		return zap.NewNop()
	}
	return log
}
