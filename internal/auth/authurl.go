package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/HighGarden-Studio/HighFlow-sub016/internal/config"
)

// BuildAuthorizationURL composes the provider authorization URL for one login
// attempt. It is a pure function of its inputs: no network, no side effects.
// Offline access and a forced consent screen are requested so every login is
// a fresh, explicit user action.
func BuildAuthorizationURL(cfg *config.Config, state string, pkce *PKCECodes) (string, error) {
	if pkce == nil {
		return "", fmt.Errorf("PKCE codes are required")
	}
	if strings.TrimSpace(state) == "" {
		return "", fmt.Errorf("state parameter is required")
	}

	params := url.Values{
		"client_id":             {cfg.ClientID},
		"redirect_uri":          {cfg.RedirectURI()},
		"response_type":         {"code"},
		"scope":                 {strings.Join(cfg.Scopes, " ")},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {"S256"},
		"state":                 {state},
		"access_type":           {"offline"},
		"prompt":                {"consent"},
	}

	return fmt.Sprintf("%s?%s", cfg.AuthorizeURL, params.Encode()), nil
}
