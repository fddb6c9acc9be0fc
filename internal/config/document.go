// Package config resolves the broker's effective pool configuration from a
// multi-pool file (JSON or YAML), DB_<NAME>_<PROPERTY> environment
// overrides, and a legacy single-pool MYSQL_*/POSTGRES_* mode.
package config

import (
	"fmt"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// SSLEntry is the on-disk/env shape of a pool's SSL settings.
type SSLEntry struct {
	Mode string `json:"mode" yaml:"mode"`
	CA   string `json:"ca,omitempty" yaml:"ca,omitempty"`
	Cert string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
}

// PoolEntry is the per-pool document shape.
type PoolEntry struct {
	Name              string    `json:"name" yaml:"name"`
	Type              string    `json:"type,omitempty" yaml:"type,omitempty"`
	Host              string    `json:"host" yaml:"host"`
	Port              int       `json:"port" yaml:"port"`
	User              string    `json:"user" yaml:"user"`
	Password          string    `json:"password" yaml:"password"`
	Database          string    `json:"database" yaml:"database"`
	Description       string    `json:"description,omitempty" yaml:"description,omitempty"`
	Tags              []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	SSL               *SSLEntry `json:"ssl,omitempty" yaml:"ssl,omitempty"`
	ConnectionLimit   int       `json:"connectionLimit,omitempty" yaml:"connectionLimit,omitempty"`
	QueueLimit        int       `json:"queueLimit,omitempty" yaml:"queueLimit,omitempty"`
	IdleTimeoutMs     int64     `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	ConnectionTimeoutMs int64   `json:"connectionTimeout,omitempty" yaml:"connectionTimeout,omitempty"`
	AcquireTimeoutMs  int64     `json:"acquireTimeout,omitempty" yaml:"acquireTimeout,omitempty"`
}

// Document is the multi-pool configuration document:
// `{connections: {name -> entry}, defaultConnection?}`.
type Document struct {
	Connections       map[string]PoolEntry `json:"connections" yaml:"connections"`
	DefaultConnection string               `json:"defaultConnection,omitempty" yaml:"defaultConnection,omitempty"`
}

// Resolved is the fully-resolved configuration handed to the connection
// manager: one dbadapter.ConnectionConfig per named pool plus the default.
type Resolved struct {
	Pools             map[string]dbadapter.ConnectionConfig
	DefaultConnection string
}

func (e PoolEntry) toConnectionConfig(name string) (dbadapter.ConnectionConfig, error) {
	if e.Host == "" {
		return dbadapter.ConnectionConfig{}, fmt.Errorf("config: pool %q is missing host", name)
	}
	if e.Database == "" {
		return dbadapter.ConnectionConfig{}, fmt.Errorf("config: pool %q is missing database", name)
	}

	cc := dbadapter.ConnectionConfig{
		Name:            name,
		Host:            e.Host,
		Port:            e.Port,
		User:            e.User,
		Password:        e.Password,
		Database:        e.Database,
		Description:     e.Description,
		Tags:            append([]string(nil), e.Tags...),
		ConnectionLimit: e.ConnectionLimit,
		QueueLimit:      e.QueueLimit,
	}

	switch e.Type {
	case "mysql":
		cc.Type = dbadapter.MySQL
	case "postgresql", "postgres":
		cc.Type = dbadapter.PostgreSQL
	case "":
		// left unset; the factory's type-resolution precedence decides from
		// port/host when Type is the zero value.
	default:
		return dbadapter.ConnectionConfig{}, fmt.Errorf("config: pool %q has unknown type %q", name, e.Type)
	}

	if e.IdleTimeoutMs > 0 {
		cc.IdleTimeout = msToDuration(e.IdleTimeoutMs)
	}
	if e.ConnectionTimeoutMs > 0 {
		cc.ConnectionTimeout = msToDuration(e.ConnectionTimeoutMs)
	}
	if e.AcquireTimeoutMs > 0 {
		cc.AcquireTimeout = msToDuration(e.AcquireTimeoutMs)
	}

	if e.SSL != nil {
		ssl := &dbadapter.SSLConfig{
			Mode: dbadapter.SSLMode(e.SSL.Mode),
			CA:   e.SSL.CA,
			Cert: e.SSL.Cert,
			Key:  e.SSL.Key,
		}
		if ssl.Mode == "" {
			ssl.Mode = dbadapter.SSLPreferred
		}
		cc.SSL = ssl
	}

	return cc, nil
}

func (d Document) resolve() (*Resolved, error) {
	if len(d.Connections) == 0 {
		return nil, fmt.Errorf("config: document has no connections")
	}
	pools := make(map[string]dbadapter.ConnectionConfig, len(d.Connections))
	for name, entry := range d.Connections {
		cc, err := entry.toConnectionConfig(name)
		if err != nil {
			return nil, err
		}
		pools[name] = cc
	}
	defaultConn := d.DefaultConnection
	if defaultConn != "" {
		if _, ok := pools[defaultConn]; !ok {
			return nil, fmt.Errorf("config: defaultConnection %q does not name a configured pool", defaultConn)
		}
	}
	return &Resolved{Pools: pools, DefaultConnection: defaultConn}, nil
}
