package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader is the header GitHub-style providers sign bodies into.
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// SignSHA256 returns the "sha256=<hex>" HMAC of body under secret.
func SignSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySHA256Signature compares signature against the HMAC of body in
// constant time. An empty secret or signature never verifies.
func VerifySHA256Signature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	expected := SignSHA256(secret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// VerifyToken compares a shared-token header in constant time.
func VerifyToken(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	return hmac.Equal([]byte(secret), []byte(token))
}
