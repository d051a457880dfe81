package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest returns the hex BLAKE3-256 of data.
func Digest(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return Digest(data), nil
}

// VerifyDigest checks that cfg was loaded from a file with the expected hash.
// An empty expectation always passes.
func VerifyDigest(cfg *Config, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return nil
	}
	if cfg.SourcePath == "" {
		return fmt.Errorf("config digest pinned but no config file was loaded")
	}
	if cfg.Digest != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(cfg.SourcePath), expected, cfg.Digest)
	}
	return nil
}
