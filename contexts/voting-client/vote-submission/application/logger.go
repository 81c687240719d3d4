package application

import "log/slog"

// ModuleName is attached to every log record emitted by this module.
const ModuleName = "voting-client/vote-submission"

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
