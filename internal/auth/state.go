package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// GenerateState generates a cryptographically secure random state parameter
// used to bind the provider redirect to this login attempt (CSRF protection).
// A fresh value is generated per attempt and never reused.
func GenerateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CallbackResult captures the parameters delivered by the provider redirect,
// whether received on the loopback listener or pasted manually.
type CallbackResult struct {
	Code  string
	State string
	Error string
}

// ParseCallbackURL extracts OAuth callback parameters from a pasted redirect
// URL or bare query string. It returns nil when the input is empty, letting
// the caller keep waiting for the loopback listener instead.
func ParseCallbackURL(input string) (*CallbackResult, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		switch {
		case strings.HasPrefix(candidate, "?"):
			candidate = "http://localhost" + candidate
		case strings.ContainsAny(candidate, "/?#") || strings.Contains(candidate, ":"):
			candidate = "http://" + candidate
		case strings.Contains(candidate, "="):
			candidate = "http://localhost/?" + candidate
		default:
			return nil, fmt.Errorf("invalid callback URL")
		}
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return nil, err
	}

	query := parsed.Query()
	result := &CallbackResult{
		Code:  strings.TrimSpace(query.Get("code")),
		State: strings.TrimSpace(query.Get("state")),
		Error: strings.TrimSpace(query.Get("error")),
	}

	if result.Code == "" && result.Error == "" {
		return nil, fmt.Errorf("callback URL carries neither code nor error")
	}
	return result, nil
}
