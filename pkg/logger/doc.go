// Package logger builds slog.Logger instances with consistent defaults:
// JSON output at info level for production, with options for text output,
// custom destinations, and static attributes such as the service name.
package logger
