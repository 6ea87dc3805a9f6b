package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "APIMOCK_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key   string
	apply func(cfg *Config, val string) error
}

var envBindings = []envBinding{
	{"SERVER_HOST", func(c *Config, v string) error { c.Server.Host = v; return nil }},
	{"SERVER_PORT", intSetter(func(c *Config) *int { return &c.Server.Port })},
	{"SERVER_RELOAD_INTERVAL", durationSetter(func(c *Config) *time.Duration { return &c.Server.ReloadInterval })},
	{"SERVER_CORS_ORIGINS", func(c *Config, v string) error { c.Server.CORSOrigins = splitList(v); return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"LOG_FILE", func(c *Config, v string) error { c.Logging.File = v; return nil }},
	{"GATE_NAMESPACES", func(c *Config, v string) error { c.Gate.Namespaces = splitList(v); return nil }},
	{"FORWARDER_CONNECT_TIMEOUT", durationSetter(func(c *Config) *time.Duration { return &c.Forwarder.ConnectTimeout })},
	{"FORWARDER_READ_TIMEOUT", durationSetter(func(c *Config) *time.Duration { return &c.Forwarder.ReadTimeout })},
	{"CALLLOG_BACKEND", func(c *Config, v string) error { c.CallLog.Backend = normalizeBackend(v); return nil }},
	{"CALLLOG_PATH", func(c *Config, v string) error { c.CallLog.Path = v; return nil }},
	{"CALLLOG_RETENTION", durationSetter(func(c *Config) *time.Duration { return &c.CallLog.Retention })},
	{"DEFINITIONS_PROJECT", func(c *Config, v string) error { c.Definitions.Project = v; return nil }},
}

// ApplyEnv overrides cfg from APIMOCK_* variables. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for _, b := range envBindings {
		val, ok := lookup(EnvPrefix + b.key)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(val)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}

// EnvKeys lists the supported override variables.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = EnvPrefix + b.key
	}
	return keys
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = n
		return nil
	}
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*field(c) = d
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
