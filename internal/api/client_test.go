package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sessionFixture() AuthSession {
	return AuthSession{
		SessionToken: "tok-1",
		ExpiresAt:    time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
		User: User{
			ID:            "user-1",
			Email:         "dana@example.com",
			DisplayName:   "Dana",
			CreditBalance: 12.5,
			CreatedAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
}

func TestExchangeAuthorizationCode(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/auth/google" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("request body did not decode: %v", err)
		}
		if body["authorizationCode"] != "the-code" {
			t.Errorf("authorizationCode = %q", body["authorizationCode"])
		}
		if body["codeVerifier"] != "the-verifier" {
			t.Errorf("codeVerifier = %q", body["codeVerifier"])
		}
		if body["redirectUri"] != "http://localhost:51340/auth/callback" {
			t.Errorf("redirectUri = %q", body["redirectUri"])
		}
		_ = json.NewEncoder(w).Encode(sessionFixture())
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	session, err := client.ExchangeAuthorizationCode(context.Background(), "google", "the-code", "the-verifier", "http://localhost:51340/auth/callback")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if session.SessionToken != "tok-1" {
		t.Errorf("SessionToken = %q, want tok-1", session.SessionToken)
	}
	if session.User.Email != "dana@example.com" {
		t.Errorf("User.Email = %q", session.User.Email)
	}
}

func TestExchangeBackendErrorParsesMessage(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"code already redeemed"}`))
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	_, err := client.ExchangeAuthorizationCode(context.Background(), "google", "c", "v", "r")

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("error = %v, want BackendError", err)
	}
	if backendErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", backendErr.StatusCode)
	}
	if backendErr.Message != "code already redeemed" {
		t.Errorf("Message = %q", backendErr.Message)
	}
}

func TestExchangeBackendErrorMalformedBodyFallsBack(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream exploded</html>"))
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	_, err := client.ExchangeAuthorizationCode(context.Background(), "google", "c", "v", "r")

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("error = %v, want BackendError", err)
	}
	if backendErr.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("Message = %q, want generic status text", backendErr.Message)
	}
}

func TestExchangeMalformedSuccessBody(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	_, err := client.ExchangeAuthorizationCode(context.Background(), "google", "c", "v", "r")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/me" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(sessionFixture().User)
	}))
	defer backend.Close()

	client := NewClient(backend.URL)

	user, err := client.CurrentUser(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("User.ID = %q", user.ID)
	}

	_, err = client.CurrentUser(context.Background(), "tok-bad")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	var sawBearer string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/auth/logout" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		sawBearer = r.Header.Get("Authorization")
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	if err := client.Logout(context.Background(), "tok-1"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if sawBearer != "Bearer tok-1" {
		t.Errorf("Authorization = %q", sawBearer)
	}
}
