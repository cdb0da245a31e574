package api

import "log/slog"

// ReplaySafeLogger returns logger unless replaying is true, in which case it
// returns a logger that discards everything. Orchestrators use it to log
// each message exactly once. IsReplaying changes as the orchestrator
// advances, so resolve the logger where the message is written:
//
//	api.ReplaySafeLogger(logger, ctx.IsReplaying()).Info("approved")
func ReplaySafeLogger(logger *slog.Logger, replaying bool) *slog.Logger {
	if replaying {
		return slog.New(slog.DiscardHandler)
	}
	if logger == nil {
		return slog.Default()
	}
	return logger
}
