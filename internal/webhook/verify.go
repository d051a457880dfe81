package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Bearer tokens outside this length range are rejected before comparison.
const (
	MinTokenLength = 8
	MaxTokenLength = 128
)

var errVerification = errors.New("webhook verification failed")

// Credential is the proof of authenticity extracted from request headers.
// It is either an HMACSignature or a BearerToken.
type Credential interface {
	credential()
}

// HMACSignature is a hex HMAC-SHA256 of the raw body, optionally "sha256="-prefixed.
type HMACSignature struct {
	Value string
}

// BearerToken is the raw Authorization header value ("Bearer <token>").
type BearerToken struct {
	Header string
}

func (HMACSignature) credential() {}
func (BearerToken) credential() {}

// Verify reports whether cred authenticates body under secret. Malformed or
// missing input is a failed verification, never a panic.
func Verify(cred Credential, secret string, body []byte) bool {
	switch c := cred.(type) {
	case HMACSignature:
		return verifyHMACSignature(body, c.Value, secret) == nil
	case BearerToken:
		return verifyBearerToken(c.Header, secret) == nil
	default:
		return false
	}
}

// ExtractCredential pulls the credential for ep's scheme out of h.
// present is false when the relevant header is missing or empty.
func ExtractCredential(ep EndpointConfig, h http.Header) (cred Credential, present bool) {
	switch ep.Scheme {
	case SchemeBearer:
		v := h.Get("Authorization")
		return BearerToken{Header: v}, v != ""
	default:
		header := ep.SignatureHeader
		if header == "" {
			header = DefaultSignatureHeader
		}
		v := h.Get(header)
		return HMACSignature{Value: v}, v != ""
	}
}

// verifyHMACSignature verifies an HMAC-SHA256 signature against the request body.
//
// This function uses constant-time comparison (crypto/subtle) to prevent timing attacks.
// It supports multiple signature formats commonly used by webhook providers.
//
// Supported formats:
//   - "sha256=<hex>" (GitHub style)
//   - "<hex>" (plain hex)
//
// Returns nil if signature is valid, error otherwise.
// All errors are generic to prevent information leakage.
func verifyHMACSignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedMAC := mac.Sum(nil)

	actualMAC, err := parseSignature(signature)
	if err != nil {
		return errVerification
	}

	if subtle.ConstantTimeCompare(expectedMAC, actualMAC) != 1 {
		return errVerification
	}
	return nil
}

// verifyBearerToken checks an "Authorization: Bearer <token>" value. The
// header must be exactly two space-separated parts.
func verifyBearerToken(header, expected string) error {
	if expected == "" || header == "" {
		return errVerification
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return errVerification
	}

	token := parts[1]
	if n := utf8.RuneCountInString(token); n < MinTokenLength || n > MaxTokenLength {
		return errVerification
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return errVerification
	}
	return nil
}

// parseSignature extracts and decodes the HMAC signature from various formats.
//
// Supported formats:
//   - "sha256=3a8f..." (GitHub X-Hub-Signature-256)
//   - "3a8f..." (plain hex)
//
// Returns the raw bytes of the signature.
func parseSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if hexSig, ok := strings.CutPrefix(signature, "sha256="); ok {
		return hex.DecodeString(hexSig)
	}
	return hex.DecodeString(signature)
}

// ComputeSignature returns the hex HMAC-SHA256 of body under secret.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatPrefixedSignature formats a hex signature in the "sha256=<hex>" form.
func FormatPrefixedSignature(hexSig string) string {
	return "sha256=" + hexSig
}
