package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	cfg.Digest = Digest(data)
	return cfg, nil
}

// LoadOrDefault loads configPath, or falls back to Defaults when it is empty.
func LoadOrDefault(configPath string) (*Config, error) {
	if strings.TrimSpace(configPath) != "" {
		return Load(configPath)
	}
	cfg := Defaults()
	resolveSecrets(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML config bytes, applies defaults and validates.
// Unknown keys are rejected. ${VAR} references in secret, relay.token and
// relay.nats_url are expanded after decoding, so values are never read as YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg)
	resolveSecrets(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = defaults.Events.Buffer
	}
	if cfg.Relay.SubjectPrefix == "" {
		cfg.Relay.SubjectPrefix = defaults.Relay.SubjectPrefix
	}

	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = defaults.Endpoints
	}
	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		ep.Scheme = strings.ToLower(strings.TrimSpace(ep.Scheme))
		if ep.Scheme == "" {
			ep.Scheme = SchemeHMAC
		}
		if ep.Scheme == SchemeHMAC && ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}
	}
}

// resolveSecrets expands ${VAR} once in endpoint secrets and the relay
// credentials. A secret that references an unset variable is blanked, which
// puts the endpoint in open mode. Expanded values are never rescanned.
func resolveSecrets(cfg *Config) {
	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		ep.Secret = resolveSecret(ep.Secret)
	}
	cfg.Relay.Token = resolveSecret(cfg.Relay.Token)
	cfg.Relay.NATSURL, _ = interpolateEnv(cfg.Relay.NATSURL)
}

func resolveSecret(value string) string {
	expanded, ok := interpolateEnv(value)
	if !ok {
		return ""
	}
	return expanded
}

// interpolateEnv replaces ${VAR} with environment variable values in a single
// pass. Undefined variables are left as-is and reported through ok.
func interpolateEnv(input string) (string, bool) {
	ok := true
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		ok = false
		return match
	})
	return out, ok
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 || cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if cfg.Events.Buffer < 0 {
		return fmt.Errorf("events.buffer must not be negative")
	}
	if cfg.Relay.Enabled() && strings.TrimSpace(cfg.Relay.SubjectPrefix) == "" {
		return fmt.Errorf("relay.subject_prefix is required when relay.nats_url is set")
	}

	seen := make(map[string]bool, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("endpoints[%d].path must start with / (got %q)", i, ep.Path)
		}
		if reservedPaths[ep.Path] {
			return fmt.Errorf("endpoints[%d].path %q is reserved", i, ep.Path)
		}
		if seen[ep.Path] {
			return fmt.Errorf("endpoints[%d].path %q is duplicated", i, ep.Path)
		}
		seen[ep.Path] = true

		switch ep.Scheme {
		case SchemeHMAC:
			if strings.TrimSpace(ep.SignatureHeader) == "" {
				return fmt.Errorf("endpoint %q: signature_header is required for hmac", ep.Path)
			}
		case SchemeBearer:
		default:
			return fmt.Errorf("endpoint %q: scheme must be hmac or bearer (got %q)", ep.Path, ep.Scheme)
		}

		if ep.Strict && ep.Secret == "" {
			return fmt.Errorf("endpoint %q: strict mode requires a secret", ep.Path)
		}
	}
	return nil
}
