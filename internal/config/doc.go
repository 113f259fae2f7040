// Package config loads application configuration from NODELOCK_
// environment variables with an optional nodelock.yaml overlay next to
// the executable, and resolves the licensing artifact paths.
package config
