package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError represents an error returned by the identity provider on the
// callback, surfaced verbatim to the caller.
type OAuthError struct {
	// Code is the OAuth error code (e.g. "access_denied").
	Code string `json:"error"`
	// Description is a human-readable description of the error, when present.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// NewOAuthError creates a new OAuth error with the given code and description.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{Code: code, Description: description, StatusCode: statusCode}
}

// AuthenticationError represents a failure of the login flow itself, as
// opposed to an error relayed by the provider.
type AuthenticationError struct {
	// Type identifies the failure kind.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error, when one exists.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is matches against the sentinel base errors by failure type.
func (e *AuthenticationError) Is(target error) bool {
	var other *AuthenticationError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type
}

// Base authentication errors. Each login failure wraps one of these, so
// callers can classify outcomes with errors.Is.
var (
	// ErrStateMismatch marks a callback whose state parameter does not match
	// the attempt's state. Always fatal, never retried.
	ErrStateMismatch = &AuthenticationError{
		Type:    "state_mismatch",
		Message: "OAuth state parameter does not match this login attempt",
		Code:    http.StatusBadRequest,
	}

	// ErrCallbackTimeout marks a login attempt where no qualifying callback
	// arrived within the configured window.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}

	// ErrBrowserLaunchFailed marks a failed attempt to open the system browser.
	ErrBrowserLaunchFailed = &AuthenticationError{
		Type:    "browser_launch_failed",
		Message: "Failed to open the system browser",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortInUse marks a callback port already held by another process.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    http.StatusConflict,
	}

	// ErrServerStartFailed marks any other failure to start the callback server.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start OAuth callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrCodeExchangeFailed marks a failed authorization-code-for-session exchange.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "Failed to exchange authorization code for a session",
		Code:    http.StatusBadRequest,
	}
)

// NewAuthenticationError attaches a cause to one of the base errors.
func NewAuthenticationError(base *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    base.Type,
		Message: base.Message,
		Code:    base.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError reports whether err is an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsOAuthError reports whether err is a provider OAuthError.
func IsOAuthError(err error) bool {
	var oauthErr *OAuthError
	return errors.As(err, &oauthErr)
}

// UserFriendlyMessage maps flow errors to a message suitable for display.
func UserFriendlyMessage(err error) string {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		switch authErr.Type {
		case "state_mismatch":
			return "The login response could not be verified. Please try again."
		case "callback_timeout":
			return "Login timed out. Please try again."
		case "browser_launch_failed":
			return "Could not open your browser automatically. Please copy and paste the URL manually."
		case "port_in_use":
			return "The login port is already in use. Close the application using it and try again."
		default:
			return "Login failed. Please try again."
		}
	}

	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		switch oauthErr.Code {
		case "access_denied":
			return "Login was cancelled or denied."
		case "server_error":
			return "The login provider reported an error. Please try again later."
		default:
			return fmt.Sprintf("Login failed: %s", oauthErr.Code)
		}
	}

	return "An unexpected error occurred. Please try again."
}
