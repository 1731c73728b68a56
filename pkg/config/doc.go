// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each call to Load returns a freshly parsed value; configuration is read
// once at startup and passed down explicitly rather than held in package
// state.
package config
