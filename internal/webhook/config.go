package webhook

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattjoyce/pagehooks/internal/config"
)

// FromGlobalConfig converts the loaded endpoint list into pipeline
// configurations, parsing size strings such as "1MB".
func FromGlobalConfig(cfg *config.Config) ([]EndpointConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	endpoints := make([]EndpointConfig, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return nil, fmt.Errorf("webhook endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}

		endpoints[i] = EndpointConfig{
			Path:            ep.Path,
			Scheme:          ep.Scheme,
			Secret:          ep.Secret,
			SignatureHeader: ep.SignatureHeader,
			Strict:          ep.Strict,
			Debug:           ep.Debug,
			MaxBodySize:     maxBodySize,
		}
	}

	return endpoints, nil
}

var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseMaxBodySize turns "1MB", "512kb" or "2048" into bytes. Empty means
// DefaultMaxBodySize.
func parseMaxBodySize(size string) (int64, error) {
	size = strings.ToUpper(strings.TrimSpace(size))
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	multiplier := int64(1)
	for _, u := range sizeUnits {
		if n, ok := strings.CutSuffix(size, u.suffix); ok {
			size, multiplier = n, u.multiplier
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if value > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size too large")
	}
	return value * multiplier, nil
}
