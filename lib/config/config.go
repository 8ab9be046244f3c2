// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is named.
const DefaultPath = "docker-executor.waterci.yml"

// Config is the resolved executor configuration. It is built once at
// startup and not modified afterwards.
type Config struct {
	// Core locates the WaterCI core and selects the wire format.
	Core CoreConfig `yaml:"core"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// Executor configures how jobs are run.
	Executor ExecutorConfig `yaml:"executor"`

	// Telemetry configures OTLP export. Disabled when Endpoint is empty.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// LegacyCoreHost and LegacyCorePort accept the flat top-level keys
	// of older configuration files. They override Core when set.
	LegacyCoreHost string `yaml:"core_host,omitempty"`
	LegacyCorePort int    `yaml:"core_port,omitempty"`
}

// CoreConfig locates the core.
type CoreConfig struct {
	// Host is the core's hostname or IP address.
	// Default: 127.0.0.1
	Host string `yaml:"host"`

	// Port is the core's TCP port.
	// Default: 5633
	Port int `yaml:"port"`

	// WireFormat is "cbor" or "msgpack" and must match the core.
	// Default: cbor
	WireFormat string `yaml:"wire_format"`

	// DialTimeout bounds the TCP connect.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// HandshakeTimeout bounds the wait for the register response. Zero
	// waits indefinitely.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// ExecutorConfig configures the local job executor.
type ExecutorConfig struct {
	WorkspaceRoot  string `yaml:"workspace_root"`
	KeepWorkspaces bool   `yaml:"keep_workspaces"`

	// DefaultImage runs jobs without an image in this container. Empty
	// runs them on the host.
	DefaultImage string `yaml:"default_image"`

	ContainerRuntime string `yaml:"container_runtime"`

	StepTimeout     time.Duration `yaml:"step_timeout"`
	KillGracePeriod time.Duration `yaml:"kill_grace_period"`

	// OutputLimit is the number of bytes of output kept per step.
	OutputLimit int `yaml:"output_limit"`

	// OutputCompression is none, zstd, or lz4.
	OutputCompression string `yaml:"output_compression"`
}

// TelemetryConfig configures OTLP/HTTP export of traces and logs.
type TelemetryConfig struct {
	// Endpoint is the collector's host:port. Empty disables export.
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// Insecure uses plain HTTP.
	Insecure bool `yaml:"insecure"`

	ServiceName string `yaml:"service_name"`
}

// Enabled reports whether telemetry export is configured.
func (t TelemetryConfig) Enabled() bool {
	return t.Endpoint != ""
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Core: CoreConfig{
			Host:        "127.0.0.1",
			Port:        5633,
			WireFormat:  "cbor",
			DialTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Executor: ExecutorConfig{
			WorkspaceRoot:     "${TMPDIR:-/tmp}/waterci-executor",
			ContainerRuntime:  "docker",
			KillGracePeriod:   10 * time.Second,
			OutputLimit:       1 << 20,
			OutputCompression: "zstd",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "waterci-executor",
		},
	}
}

// Lookup retrieves an environment variable. It has the signature of
// os.LookupEnv so tests can substitute a map.
type Lookup func(name string) (string, bool)

// EnvironmentLookup returns a Lookup over the process environment with
// the variables of envFile beneath it: a variable set in the process
// wins over the file. The process environment is not modified. An
// empty envFile yields os.LookupEnv.
func EnvironmentLookup(envFile string) (Lookup, error) {
	if envFile == "" {
		return os.LookupEnv, nil
	}
	fileValues, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
	}
	return func(name string) (string, bool) {
		if value, ok := os.LookupEnv(name); ok {
			return value, true
		}
		value, ok := fileValues[name]
		return value, ok
	}, nil
}

// ResolveOptions controls Resolve.
type ResolveOptions struct {
	// Path is the configuration file. A missing file is not an error.
	Path string

	// Lookup reads environment variables. Nil uses os.LookupEnv.
	Lookup Lookup

	// Override is applied after the environment, typically to install
	// command-line flags.
	Override func(*Config)
}

// Resolve builds the configuration: defaults, then the file, then the
// environment, then Override. Path fields are expanded, the workspace
// root is made absolute, and the result is validated.
func Resolve(options ResolveOptions) (*Config, error) {
	lookup := options.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()
	if options.Path != "" {
		if err := cfg.loadFile(options.Path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvironment(lookup); err != nil {
		return nil, err
	}
	if options.Override != nil {
		options.Override(cfg)
	}
	cfg.expandVariables(lookup)

	// Container runtimes treat a relative bind-mount source as a volume
	// name.
	if root := cfg.Executor.WorkspaceRoot; root != "" && !filepath.IsAbs(root) {
		absolute, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving executor.workspace_root: %w", err)
		}
		cfg.Executor.WorkspaceRoot = absolute
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges the file at path into c. YAML is the native format;
// .json and .jsonc files may carry comments and trailing commas. A
// missing file leaves c unchanged.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the same decoder handles both.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if c.LegacyCoreHost != "" {
		c.Core.Host = c.LegacyCoreHost
	}
	if c.LegacyCorePort != 0 {
		c.Core.Port = c.LegacyCorePort
	}
	return nil
}

// applyEnvironment applies the WATERCI_* variables.
func (c *Config) applyEnvironment(lookup Lookup) error {
	if value, ok := lookup("WATERCI_CORE_HOST"); ok && value != "" {
		c.Core.Host = value
	}
	if value, ok := lookup("WATERCI_CORE_PORT"); ok && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("WATERCI_CORE_PORT: %q is not a port number", value)
		}
		c.Core.Port = port
	}
	if value, ok := lookup("WATERCI_WIRE_FORMAT"); ok && value != "" {
		c.Core.WireFormat = value
	}
	if value, ok := lookup("WATERCI_LOG_LEVEL"); ok && value != "" {
		c.Log.Level = value
	}
	if value, ok := lookup("WATERCI_LOG_FORMAT"); ok && value != "" {
		c.Log.Format = value
	}
	if value, ok := lookup("WATERCI_OTLP_ENDPOINT"); ok && value != "" {
		c.Telemetry.Endpoint = value
	}
	if value, ok := lookup("WATERCI_OTLP_HEADERS"); ok && value != "" {
		headers, err := ParseHeaders(value)
		if err != nil {
			return fmt.Errorf("WATERCI_OTLP_HEADERS: %w", err)
		}
		c.Telemetry.Headers = headers
	}
	return nil
}

// ParseHeaders parses "name=value,name=value" into a map.
func ParseHeaders(value string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, headerValue, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("malformed header %q (want name=value)", pair)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(headerValue)
	}
	return headers, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables(lookup Lookup) {
	c.Executor.WorkspaceRoot = expandVars(c.Executor.WorkspaceRoot, lookup)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Unset and
// empty variables take the default.
func expandVars(s string, lookup Lookup) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := lookup(name); ok && value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Core.Host == "" {
		errs = append(errs, fmt.Errorf("core.host is required"))
	}
	if c.Core.Port < 1 || c.Core.Port > 65535 {
		errs = append(errs, fmt.Errorf("core.port %d is out of range", c.Core.Port))
	}
	if !contains([]string{"cbor", "msgpack"}, c.Core.WireFormat) {
		errs = append(errs, fmt.Errorf("core.wire_format must be cbor or msgpack, got %q", c.Core.WireFormat))
	}
	if c.Core.DialTimeout < 0 || c.Core.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("core timeouts must not be negative"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: auto, text, json"))
	}

	if c.Executor.WorkspaceRoot == "" {
		errs = append(errs, fmt.Errorf("executor.workspace_root is required"))
	}
	if c.Executor.ContainerRuntime == "" {
		errs = append(errs, fmt.Errorf("executor.container_runtime is required"))
	}
	if c.Executor.OutputLimit < 0 {
		errs = append(errs, fmt.Errorf("executor.output_limit must not be negative"))
	}
	if c.Executor.StepTimeout < 0 || c.Executor.KillGracePeriod < 0 {
		errs = append(errs, fmt.Errorf("executor timeouts must not be negative"))
	}
	if !contains([]string{"none", "zstd", "lz4"}, c.Executor.OutputCompression) {
		errs = append(errs, fmt.Errorf("executor.output_compression must be one of: none, zstd, lz4"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel returns the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", l.Level)
	}
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
