// Package cache is a typed, Redis-backed TTL cache. It replaces in-process
// module-level caches so that cached state is shared across instances and
// always expires.
package cache
