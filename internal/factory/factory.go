// Package factory implements the adapter factory: engine-type resolution,
// availability probing, and pool/retry option defaulting over a registry
// of engine constructors.
package factory

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// Factory resolves engine type and builds Adapters from named constructors
// registered by each engine package at process start.
type Factory struct {
	constructors map[dbadapter.Type]dbadapter.Constructor
	probes       map[dbadapter.Type]func() bool
	logger       *zap.Logger
}

// New builds an empty factory; engine packages register themselves via
// Register before the first Build call.
func New() *Factory {
	return &Factory{
		constructors: make(map[dbadapter.Type]dbadapter.Constructor),
		probes:       make(map[dbadapter.Type]func() bool),
	}
}

// SetLogger sets the logger handed to every adapter this factory builds
// afterward, via Options.Logger. Adapters fall back to a no-op logger when
// none is set.
func (f *Factory) SetLogger(logger *zap.Logger) {
	f.logger = logger
}

// Register associates a Constructor and an availability probe with an
// engine type. isAvailable reports whether that engine's driver can be used
// at all in this process.
func (f *Factory) Register(t dbadapter.Type, ctor dbadapter.Constructor, isAvailable func() bool) {
	f.constructors[t] = ctor
	f.probes[t] = isAvailable
}

// ResolveType applies the type-resolution precedence: explicit config.Type,
// then the well-known port (3306/5432), then a host substring match, then a
// default of mysql.
func ResolveType(cfg dbadapter.ConnectionConfig) dbadapter.Type {
	if cfg.Type != "" {
		return cfg.Type
	}
	switch cfg.Port {
	case 3306:
		return dbadapter.MySQL
	case 5432:
		return dbadapter.PostgreSQL
	}
	host := strings.ToLower(cfg.Host)
	switch {
	case strings.Contains(host, "postgres"):
		return dbadapter.PostgreSQL
	case strings.Contains(host, "mysql"):
		return dbadapter.MySQL
	}
	return dbadapter.MySQL
}

// Build resolves cfg's engine type, checks availability, fills in pool/retry
// option defaults, and constructs the Adapter. The returned adapter is not
// yet connected.
func (f *Factory) Build(cfg dbadapter.ConnectionConfig) (dbadapter.Adapter, error) {
	t := ResolveType(cfg)
	cfg.Type = t

	ctor, registered := f.constructors[t]
	if !registered {
		return nil, fmt.Errorf("Unsupported database type: %s", t)
	}
	probe := f.probes[t]
	if probe != nil && !probe() {
		return nil, fmt.Errorf("Database driver for %s is not available", t)
	}

	opts := defaultOptions(cfg)
	opts.Logger = f.logger
	return ctor(cfg, opts)
}

func defaultOptions(cfg dbadapter.ConnectionConfig) dbadapter.Options {
	maxConns := cfg.ConnectionLimit
	if maxConns <= 0 {
		maxConns = 10
	}
	idleMs := cfg.IdleTimeout.Milliseconds()
	if idleMs <= 0 {
		idleMs = 300_000
	}
	acquireMs := cfg.AcquireTimeout.Milliseconds()
	if acquireMs <= 0 {
		acquireMs = 60_000
	}

	return dbadapter.Options{
		Pool: dbadapter.PoolOptions{
			Min:                  2,
			Max:                  maxConns,
			IdleTimeoutMillis:    idleMs,
			AcquireTimeoutMillis: acquireMs,
		},
		Retry: dbadapter.RetryOptions{
			Retries:    3,
			MinTimeout: 1_000,
			MaxTimeout: 5_000,
		},
		MetricsEnabled: true,
	}
}
