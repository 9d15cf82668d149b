// Package auth implements the OAuth2 Authorization-Code-with-PKCE login flow
// for the HighFlow desktop client: PKCE and CSRF state generation, the
// authorization URL builder, the loopback callback server, and the session
// lifecycle manager that ties them to the backend API and credential store.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCECodes holds a verifier/challenge pair for one login attempt.
// The verifier never leaves the process until the final token exchange;
// only the challenge is sent in the authorization request.
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCECodes generates a fresh PKCE pair as specified in RFC 7636.
// The verifier is a high-entropy URL-safe random string and the challenge is
// its SHA-256 digest, both base64url-encoded without padding (S256 method).
func GeneratePKCECodes() (*PKCECodes, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: deriveCodeChallenge(verifier),
	}, nil
}

// generateCodeVerifier creates a cryptographically secure random verifier.
// 64 random bytes encode to 86 base64 characters, within the 43-128 range
// RFC 7636 allows.
func generateCodeVerifier() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// deriveCodeChallenge computes the S256 challenge for a verifier.
func deriveCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
