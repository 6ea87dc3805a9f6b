package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/gate"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/proxy"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// Call log backends.
const (
	CallLogMemory = "memory"
	CallLogSQLite = "sqlite"
	CallLogNone   = "none"
)

// Config is the complete apimock configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Gate        GateConfig        `yaml:"gate" json:"gate"`
	Forwarder   ForwarderConfig   `yaml:"forwarder" json:"forwarder"`
	CallLog     CallLogConfig     `yaml:"callLog" json:"callLog"`
	Definitions DefinitionsConfig `yaml:"definitions" json:"definitions"`
	Rules       []RuleConfig      `yaml:"rules" json:"rules"`

	// baseDir resolves relative paths in the file. Empty means the working directory.
	baseDir string
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	// ReloadInterval re-reads rules and definitions from the file when it
	// changes. Zero disables reloading.
	ReloadInterval time.Duration `yaml:"reloadInterval" json:"reloadInterval"`

	// CORSOrigins enables CORS on the management API for these origins.
	CORSOrigins []string `yaml:"corsOrigins" json:"corsOrigins"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	AddSource bool   `yaml:"addSource" json:"addSource"`

	// File additionally receives every record as JSON.
	File string `yaml:"file" json:"file"`
}

// GateConfig configures the interception gate.
type GateConfig struct {
	Namespaces  []string `yaml:"namespaces" json:"namespaces"`
	Exclude     []string `yaml:"exclude" json:"exclude"`
	MaxBodySize int64    `yaml:"maxBodySize" json:"maxBodySize"`
}

// ForwarderConfig configures the upstream forwarder.
type ForwarderConfig struct {
	ConnectTimeout time.Duration `yaml:"connectTimeout" json:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout" json:"readTimeout"`
	MaxBodySize    int64         `yaml:"maxBodySize" json:"maxBodySize"`
}

// CallLogConfig selects and tunes the call-log store.
type CallLogConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	Path     string `yaml:"path" json:"path"`
	Capacity int    `yaml:"capacity" json:"capacity"`

	// MaxBodyBytes truncates recorded bodies. Zero keeps them whole.
	MaxBodyBytes int `yaml:"maxBodyBytes" json:"maxBodyBytes"`

	Retention     time.Duration `yaml:"retention" json:"retention"`
	PurgeInterval time.Duration `yaml:"purgeInterval" json:"purgeInterval"`

	BufferSize    int           `yaml:"bufferSize" json:"bufferSize"`
	BatchSize     int           `yaml:"batchSize" json:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval" json:"flushInterval"`
}

// DefinitionsConfig lists where API definitions come from.
type DefinitionsConfig struct {
	// Project is assigned to loaded definitions that do not name one.
	Project string `yaml:"project" json:"project"`

	// Files and OpenAPI accept doublestar globs relative to the config file.
	Files   []string `yaml:"files" json:"files"`
	OpenAPI []string `yaml:"openapi" json:"openapi"`

	Inline []*apidef.Definition `yaml:"inline" json:"inline"`
}

// RuleConfig is a routing rule as written in the file. Enabled defaults to true.
type RuleConfig struct {
	ID             string    `yaml:"id" json:"id"`
	Project        string    `yaml:"project" json:"project"`
	Name           string    `yaml:"name" json:"name"`
	PathPattern    string    `yaml:"pathPattern" json:"pathPattern"`
	Mode           rule.Mode `yaml:"mode" json:"mode"`
	TargetURL      string    `yaml:"targetUrl" json:"targetUrl"`
	ForwardHeaders []string  `yaml:"forwardHeaders" json:"forwardHeaders"`
	PreserveHost   bool      `yaml:"preserveHost" json:"preserveHost"`
	Enabled        *bool     `yaml:"enabled" json:"enabled"`
}

// Rule converts the entry to a routing rule.
func (rc RuleConfig) Rule() *rule.Rule {
	enabled := rc.Enabled == nil || *rc.Enabled
	return &rule.Rule{
		ID:             rc.ID,
		ProjectID:      rc.Project,
		Name:           rc.Name,
		PathPattern:    rc.PathPattern,
		Mode:           rc.Mode,
		TargetURL:      rc.TargetURL,
		ForwardHeaders: append([]string(nil), rc.ForwardHeaders...),
		PreserveHost:   rc.PreserveHost,
		Enabled:        enabled,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Gate: GateConfig{
			Namespaces:  append([]string(nil), gate.DefaultPrefixes...),
			MaxBodySize: exchange.DefaultMaxBodySize,
		},
		Forwarder: ForwarderConfig{
			ConnectTimeout: proxy.DefaultConnectTimeout,
			ReadTimeout:    proxy.DefaultReadTimeout,
			MaxBodySize:    proxy.DefaultMaxBodySize,
		},
		CallLog: CallLogConfig{
			Backend:       CallLogMemory,
			Capacity:      requestlog.DefaultMemoryCapacity,
			Retention:     7 * 24 * time.Hour,
			PurgeInterval: time.Hour,
		},
	}
}

// BaseDir is the directory relative paths are resolved against.
func (c *Config) BaseDir() string {
	return c.baseDir
}

// Resolve returns p relative to the config file's directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	return ResolvePath(c.baseDir, p)
}

// RoutingRules converts the configured rules.
func (c *Config) RoutingRules() []*rule.Rule {
	out := make([]*rule.Rule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		out = append(out, rc.Rule())
	}
	return out
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggerConfig converts the section for logging.New. Output and Mirror are
// left for the caller.
func (l LoggingConfig) LoggerConfig() (logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return logging.Config{}, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return logging.Config{}, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.AddSource = l.AddSource
	return cfg, nil
}

// Eligibility builds the gate's namespace filter.
func (g GateConfig) Eligibility() *gate.Eligibility {
	return gate.NewEligibility(g.Namespaces, g.Exclude...)
}

// ProxyConfig converts the section for proxy.New.
func (f ForwarderConfig) ProxyConfig() proxy.Config {
	return proxy.Config{
		ConnectTimeout: f.ConnectTimeout,
		ReadTimeout:    f.ReadTimeout,
		MaxBodySize:    f.MaxBodySize,
	}
}

// SQLiteConfig converts the section for requestlog.NewSQLiteStore.
func (c CallLogConfig) SQLiteConfig(resolve func(string) string) requestlog.SQLiteConfig {
	return requestlog.SQLiteConfig{
		Path:          resolve(c.Path),
		BufferSize:    c.BufferSize,
		BatchSize:     c.BatchSize,
		FlushInterval: c.FlushInterval,
	}
}

// normalizeBackend lower-cases the backend name; empty means memory.
func normalizeBackend(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CallLogMemory
	}
	return s
}
