// Package kurrentdb is the production streamstore.StreamStore backend,
// wrapping EventStore-Client-Go/v4's esdb.Client the way the teacher's
// internal/kurrentdb package wraps it for its own event store: a thin
// Config/Client pair plus a connection-string builder, generalized from a
// single hardcoded use into the general StreamStore contract (§6).
package kurrentdb

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the connection parameters for a KurrentDB/EventStoreDB
// cluster.
type Config struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

// ConnectionString returns the esdb:// URI esdb.ParseConnectionString
// expects.
func (c Config) ConnectionString() string {
	var auth string
	if c.Username != "" && c.Password != "" {
		auth = fmt.Sprintf("%s:%s@", c.Username, c.Password)
	}
	var params string
	if c.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
	}
	return fmt.Sprintf("esdb://%s%s:%d%s", auth, c.Host, c.Port, params)
}

// ConfigFromEnv loads a Config from KURRENTDB_HOST/KURRENTDB_PORT/
// KURRENTDB_INSECURE/KURRENTDB_USERNAME/KURRENTDB_PASSWORD, defaulting to a
// local insecure instance. Core stream store construction never calls this
// itself — a host application opts in explicitly, mirroring
// config.ConfiguredConnection.FromEnv (§11).
func ConfigFromEnv() Config {
	return Config{
		Host:     getEnv("KURRENTDB_HOST", "localhost"),
		Port:     getEnvInt("KURRENTDB_PORT", 2113),
		Insecure: getEnvBool("KURRENTDB_INSECURE", true),
		Username: getEnv("KURRENTDB_USERNAME", ""),
		Password: getEnv("KURRENTDB_PASSWORD", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
