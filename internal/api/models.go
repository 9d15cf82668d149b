// Package api implements the HTTP client for the HighFlow backend auth
// endpoints: authorization-code exchange, the current-user query, and logout.
package api

import "time"

// User describes the authenticated HighFlow account as returned by the backend.
type User struct {
	// ID is the backend account identifier.
	ID string `json:"id"`
	// Email is the account email address.
	Email string `json:"email"`
	// DisplayName is the name shown in the app.
	DisplayName string `json:"displayName"`
	// PhotoURL points at the account avatar, when one exists.
	PhotoURL string `json:"photoUrl"`
	// CreditBalance is the remaining marketplace credit for the account.
	CreditBalance float64 `json:"creditBalance"`
	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"createdAt"`
}

// AuthSession is the session credential produced by a successful
// authorization-code exchange. One session exists at a time; a later login
// supersedes it entirely.
type AuthSession struct {
	// SessionToken is the opaque bearer credential for subsequent API calls.
	SessionToken string `json:"sessionToken"`
	// ExpiresAt is when the session token stops being accepted.
	ExpiresAt time.Time `json:"expiresAt"`
	// User is the account the session belongs to.
	User User `json:"user"`
}

// exchangeRequest is the JSON body of the token exchange call. Field naming
// is canonical camelCase, matching the backend wire contract.
type exchangeRequest struct {
	AuthorizationCode string `json:"authorizationCode"`
	CodeVerifier      string `json:"codeVerifier"`
	RedirectURI       string `json:"redirectUri"`
}

// errorResponse is the best-effort shape of a non-2xx backend body.
type errorResponse struct {
	Message string `json:"message"`
}
