package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// BackendError reports a non-2xx response from the backend, carrying the
// status code and the backend's message when one could be parsed.
type BackendError struct {
	StatusCode int
	Message    string
}

// Error returns a string representation of the backend error.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
}

// ErrMalformedResponse marks a 2xx backend body that could not be decoded
// into the expected document. It signals a wire-contract violation.
var ErrMalformedResponse = errors.New("malformed backend response")

// ErrUnauthorized marks a request the backend rejected as unauthenticated.
// The lifecycle manager reacts by discarding the stored credential.
var ErrUnauthorized = errors.New("backend rejected credential")

// Client talks to the HighFlow backend auth endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ExchangeAuthorizationCode trades the authorization code and PKCE verifier
// for a session. The verifier, never the challenge, is sent here: it is the
// proof of possession binding the exchange to the party that started the flow.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, provider, code, codeVerifier, redirectURI string) (*AuthSession, error) {
	body, err := json.Marshal(exchangeRequest{
		AuthorizationCode: code,
		CodeVerifier:      codeVerifier,
		RedirectURI:       redirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/"+provider, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer closeBody(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.backendError(resp.StatusCode, raw)
	}

	var session AuthSession
	if err = json.Unmarshal(raw, &session); err != nil || session.SessionToken == "" {
		log.Errorf("exchange response did not decode into a session: %v", err)
		return nil, ErrMalformedResponse
	}
	return &session, nil
}

// CurrentUser queries the backend for the account behind the given session
// token. A 401 maps to ErrUnauthorized so callers can self-heal.
func (c *Client) CurrentUser(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create current-user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("current-user request failed: %w", err)
	}
	defer closeBody(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read current-user response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.backendError(resp.StatusCode, raw)
	}

	var user User
	if err = json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		log.Errorf("current-user response did not decode into a user: %v", err)
		return nil, ErrMalformedResponse
	}
	return &user, nil
}

// Logout tells the backend to invalidate the session token. The response is
// not required for correctness; callers treat failures as best-effort.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return c.backendError(resp.StatusCode, raw)
	}
	return nil
}

// backendError builds a BackendError from a non-2xx body. The structured
// message is parsed best-effort; a malformed error body must never crash the
// caller, so it falls back to a generic message keyed by status.
func (c *Client) backendError(status int, raw []byte) *BackendError {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && strings.TrimSpace(parsed.Message) != "" {
		return &BackendError{StatusCode: status, Message: parsed.Message}
	}
	return &BackendError{StatusCode: status, Message: http.StatusText(status)}
}

// closeBody drains and closes a response body, logging close failures.
func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Errorf("failed to close response body: %v", err)
	}
}
