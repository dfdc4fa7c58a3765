// Package config provides centralized configuration for the gitbutler
// integration engine.
package config

import (
	"os"
	"time"
)

// Config holds application-wide configuration. It deliberately does not
// expose the integration refname: that value is a build-time constant
// (see internal/integration) and is never read from the environment.
type Config struct {
	// ListenAddr is the address cmd/server binds to.
	ListenAddr string

	// EventBusCapacity bounds the number of events, of every kind and
	// from every project, buffered on the shared bus before senders block.
	EventBusCapacity int

	// LockTimeout is a lock-wait bound for callers that apply one
	// externally; zero means wait indefinitely. Nothing in this module
	// reads it (cmd/server included): the controller always waits on its
	// project's mutex without a timeout.
	LockTimeout time.Duration
}

// DefaultConfig returns the default configuration, reading overridable
// values from the environment.
func DefaultConfig() *Config {
	addr := os.Getenv("GITBUTLER_LISTEN_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8090"
	}
	return &Config{
		ListenAddr:       addr,
		EventBusCapacity: 64,
		LockTimeout:      0,
	}
}

// Global is the application-wide configuration instance.
var Global = DefaultConfig()
