package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// envProperties lists the recognized per-pool environment properties.
var envProperties = []string{
	"HOST", "PORT", "USER", "PASSWORD", "DATABASE", "DB", "TYPE", "DESCRIPTION",
	"TAGS", "SSL_MODE", "SSL_CA", "CONNECTION_TIMEOUT", "CONNECTION_LIMIT", "IDLE_TIMEOUT",
}

// Load resolves the broker's effective pool configuration. When
// configFilePath is non-empty the process is in multi-pool mode: the file is
// parsed, then DB_<NAME>_<PROPERTY> environment variables are overlaid on top
// of it. When configFilePath is empty, Load falls back to the legacy
// single-pool MYSQL_*/POSTGRES_* mode, still allowing DB_<NAME>_<PROPERTY>
// variables to define additional named pools alongside the synthetic
// "mysql"/"postgresql" ones.
func Load(configFilePath string, environ []string) (*Resolved, error) {
	var doc Document

	if configFilePath != "" {
		parsed, err := loadDocumentFile(configFilePath)
		if err != nil {
			return nil, err
		}
		doc = *parsed
	} else {
		doc = legacyDocument(environ)
	}

	applyEnvOverrides(&doc, environ)

	if dflt := lookupEnv(environ, "DB_DEFAULT_CONNECTION"); dflt != "" {
		doc.DefaultConnection = dflt
	}

	return doc.resolve()
}

func loadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("config: could not detect config format from %q (expected .json, .yaml or .yml)", path)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	doc := &Document{Connections: map[string]PoolEntry{}}
	if err := k.Unmarshal("", doc); err != nil {
		return nil, fmt.Errorf("config: unmarshal %q: %w", path, err)
	}
	// koanf lower-cases map keys it derives from file data; keep the entry's
	// Name field consistent with the key it was loaded under.
	for name, entry := range doc.Connections {
		entry.Name = name
		doc.Connections[name] = entry
	}
	return doc, nil
}

// legacyDocument builds synthetic "mysql"/"postgresql" pools from MYSQL_*
// and POSTGRES_* environment variables. A pool is only emitted when its HOST
// variable is present, so a deployment that sets only MYSQL_* vars doesn't
// get a broken empty postgresql pool.
func legacyDocument(environ []string) Document {
	doc := Document{Connections: map[string]PoolEntry{}}

	if host := lookupEnv(environ, "MYSQL_HOST"); host != "" {
		doc.Connections["mysql"] = PoolEntry{
			Name:     "mysql",
			Type:     "mysql",
			Host:     host,
			Port:     envInt(environ, "MYSQL_PORT", 3306),
			User:     lookupEnv(environ, "MYSQL_USER"),
			Password: lookupEnv(environ, "MYSQL_PASSWORD"),
			Database: lookupEnv(environ, "MYSQL_DATABASE"),
		}
	}
	if host := lookupEnv(environ, "POSTGRES_HOST"); host != "" {
		doc.Connections["postgresql"] = PoolEntry{
			Name:     "postgresql",
			Type:     "postgresql",
			Host:     host,
			Port:     envInt(environ, "POSTGRES_PORT", 5432),
			User:     lookupEnv(environ, "POSTGRES_USER"),
			Password: lookupEnv(environ, "POSTGRES_PASSWORD"),
			Database: lookupEnv(environ, "POSTGRES_DATABASE"),
		}
	}
	return doc
}

// applyEnvOverrides scans environ for DB_<NAME>_<PROPERTY> keys and sets the
// matching field on the named pool, creating the pool entry if it doesn't
// exist yet. Property names are matched longest-first so e.g.
// DB_ORDERS_CONNECTION_TIMEOUT isn't mistaken for DB_ORDERS_CONNECTION.
func applyEnvOverrides(doc *Document, environ []string) {
	if doc.Connections == nil {
		doc.Connections = map[string]PoolEntry{}
	}

	sortedProps := append([]string(nil), envProperties...)
	// Longest property name first so CONNECTION_TIMEOUT matches before a
	// hypothetical shorter prefix would.
	for i := 0; i < len(sortedProps); i++ {
		for j := i + 1; j < len(sortedProps); j++ {
			if len(sortedProps[j]) > len(sortedProps[i]) {
				sortedProps[i], sortedProps[j] = sortedProps[j], sortedProps[i]
			}
		}
	}

	for _, kv := range environ {
		key, value, ok := splitEnv(kv)
		if !ok || value == "" {
			continue
		}
		if !strings.HasPrefix(key, "DB_") {
			continue
		}
		if key == "DB_DEFAULT_CONNECTION" {
			continue
		}
		rest := strings.TrimPrefix(key, "DB_")

		for _, prop := range sortedProps {
			suffix := "_" + prop
			if !strings.HasSuffix(rest, suffix) {
				continue
			}
			name := strings.ToLower(strings.TrimSuffix(rest, suffix))
			if name == "" {
				continue
			}
			entry := doc.Connections[name]
			entry.Name = name
			setEnvProperty(&entry, prop, value)
			doc.Connections[name] = entry
			break
		}
	}
}

func setEnvProperty(entry *PoolEntry, prop, value string) {
	switch prop {
	case "HOST":
		entry.Host = value
	case "PORT":
		if p, err := strconv.Atoi(value); err == nil {
			entry.Port = p
		}
	case "USER":
		entry.User = value
	case "PASSWORD":
		entry.Password = value
	case "DATABASE", "DB":
		entry.Database = value
	case "TYPE":
		entry.Type = value
	case "DESCRIPTION":
		entry.Description = value
	case "TAGS":
		parts := strings.Split(value, ",")
		tags := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				tags = append(tags, t)
			}
		}
		entry.Tags = tags
	case "SSL_MODE":
		if entry.SSL == nil {
			entry.SSL = &SSLEntry{}
		}
		entry.SSL.Mode = value
	case "SSL_CA":
		if entry.SSL == nil {
			entry.SSL = &SSLEntry{}
		}
		entry.SSL.CA = value
	case "CONNECTION_TIMEOUT":
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			entry.ConnectionTimeoutMs = ms
		}
	case "CONNECTION_LIMIT":
		if n, err := strconv.Atoi(value); err == nil {
			entry.ConnectionLimit = n
		}
	case "IDLE_TIMEOUT":
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			entry.IdleTimeoutMs = ms
		}
	}
}

func splitEnv(kv string) (key, value string, ok bool) {
	idx := strings.IndexByte(kv, '=')
	if idx < 0 {
		return "", "", false
	}
	return kv[:idx], kv[idx+1:], true
}

func lookupEnv(environ []string, key string) string {
	for _, kv := range environ {
		k, v, ok := splitEnv(kv)
		if ok && k == key {
			return v
		}
	}
	return ""
}

func envInt(environ []string, key string, defaultValue int) int {
	if v := lookupEnv(environ, key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
