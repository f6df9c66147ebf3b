package clog

import "log/slog"

// HTTPStatusToLevel picks the access log level for a response status.
// Client disconnects (499) are not worth a warning.
func HTTPStatusToLevel(status int) slog.Level {
	switch {
	case status < 400, status == 499:
		return slog.LevelInfo
	case status < 500:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
