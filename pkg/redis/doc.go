// Package redis provides Redis client construction with retry and a health
// probe, configured from environment variables.
package redis
