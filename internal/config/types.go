package config

import "time"

// Config represents the complete pagehooks configuration.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	Server    ServerConfig     `yaml:"server"`
	Events    EventsConfig     `yaml:"events,omitempty"`
	Relay     RelayConfig      `yaml:"relay,omitempty"`
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// SourcePath and Digest describe the file the config was loaded from.
	// Both are empty for built-in defaults.
	SourcePath string `yaml:"-"`
	Digest     string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// EventsConfig controls the in-memory buffer of accepted events.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
	// Expose serves the buffer at /debug/events. Off by default.
	Expose bool `yaml:"expose"`
}

// RelayConfig defines optional forwarding of accepted events to NATS.
type RelayConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Token         string `yaml:"token,omitempty"`
}

// Enabled reports whether a NATS relay is configured.
func (r RelayConfig) Enabled() bool {
	return r.NATSURL != ""
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/webhooks/edgeone")
	Path string `yaml:"path"`

	// Scheme selects the credential type: "hmac" or "bearer"
	Scheme string `yaml:"scheme"`

	// Secret is the HMAC key or expected bearer token. Usually "${ENV_VAR}".
	// Empty (or an unset variable) disables verification for the endpoint.
	Secret string `yaml:"secret,omitempty"`

	// SignatureHeader carries the hex HMAC for the hmac scheme.
	SignatureHeader string `yaml:"signature_header,omitempty"`

	// Strict rejects requests that fail verification instead of logging and continuing.
	Strict bool `yaml:"strict,omitempty"`

	// Debug adds diagnostic blocks to responses.
	Debug bool `yaml:"debug,omitempty"`

	// MaxBodySize accepts "1MB", "512KB" or a plain byte count.
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

const (
	SchemeHMAC   = "hmac"
	SchemeBearer = "bearer"

	DefaultSignatureHeader = "X-EdgeOne-Signature"
)

// Paths served by the process itself; endpoints may not claim them.
var reservedPaths = map[string]bool{
	"/healthz":      true,
	"/metrics":      true,
	"/debug/events": true,
}

// Defaults returns a Config with the two stock endpoints: an HMAC-signed
// platform hook and a bearer-token demo hook.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "pagehooks",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:          "127.0.0.1:8081",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Events: EventsConfig{
			Buffer: 100,
		},
		Relay: RelayConfig{
			SubjectPrefix: "pagehooks.events",
		},
		Endpoints: []EndpointConfig{
			{
				Path:            "/webhooks/edgeone",
				Scheme:          SchemeHMAC,
				Secret:          "${WEBHOOK_SECRET}",
				SignatureHeader: DefaultSignatureHeader,
			},
			{
				Path:   "/webhooks/demo",
				Scheme: SchemeBearer,
				Secret: "${WEBHOOK_TOKEN}",
			},
		},
	}
}
