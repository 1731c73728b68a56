// Package httpserver wraps net/http with graceful shutdown on SIGINT and
// SIGTERM, environment-driven configuration, and health probe handlers.
package httpserver
