package webhook

import (
	"testing"

	"github.com/mattjoyce/pagehooks/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "2048", want: 2048},
		{in: "512KB", want: 512 * 1024},
		{in: "1mb", want: 1 << 20},
		{in: " 2 MB ", want: 2 << 20},
		{in: "1GB", want: 1 << 30},
		{in: "100B", want: 100},
		{in: "0", wantErr: true},
		{in: "-1KB", wantErr: true},
		{in: "lots", wantErr: true},
		{in: "9999999999999GB", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMaxBodySize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGlobalConfig(t *testing.T) {
	cfg := &config.Config{
		Endpoints: []config.EndpointConfig{
			{Path: "/webhooks/edgeone", Scheme: config.SchemeHMAC, Secret: "s", SignatureHeader: "X-Sig", Strict: true, MaxBodySize: "64KB"},
			{Path: "/webhooks/demo", Scheme: config.SchemeBearer, Debug: true},
		},
	}

	eps, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, EndpointConfig{
		Path:            "/webhooks/edgeone",
		Scheme:          SchemeHMAC,
		Secret:          "s",
		SignatureHeader: "X-Sig",
		Strict:          true,
		MaxBodySize:     64 * 1024,
	}, eps[0])
	assert.Equal(t, EndpointConfig{
		Path:        "/webhooks/demo",
		Scheme:      SchemeBearer,
		Debug:       true,
		MaxBodySize: DefaultMaxBodySize,
	}, eps[1])
}

func TestFromGlobalConfigErrors(t *testing.T) {
	_, err := FromGlobalConfig(nil)
	assert.Error(t, err)

	_, err = FromGlobalConfig(&config.Config{Endpoints: []config.EndpointConfig{{Path: "/x", MaxBodySize: "huge"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"/x"`)
}
