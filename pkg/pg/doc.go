// Package pg wires PostgreSQL connectivity: pool construction with retry,
// embedded goose migrations, health probes, and error classification
// helpers shared by the store implementations.
package pg
