package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

// freePort grabs an unused localhost port for one test.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("could not find a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func startServer(t *testing.T, expectedState string) (*CallbackServer, string) {
	t.Helper()
	port := freePort(t)
	srv := NewCallbackServer(port, "/auth/callback", expectedState)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, fmt.Sprintf("http://localhost:%d/auth/callback", port)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestCallbackSuccess(t *testing.T) {
	t.Parallel()

	srv, base := startServer(t, "abc123")

	status, body := get(t, base+"?code=the-code&state=abc123")
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if len(body) == 0 {
		t.Error("success page body is empty")
	}

	result, err := srv.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.Code != "the-code" {
		t.Errorf("Code = %q, want %q", result.Code, "the-code")
	}
}

func TestCallbackStateMismatchRejectedBeforeCode(t *testing.T) {
	t.Parallel()

	srv, base := startServer(t, "abc123")

	// The crafted request carries a code, but the state check must win.
	status, _ := get(t, base+"?code=stolen&state=xyz987")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}

	_, err := srv.Wait(context.Background(), time.Second)
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Wait error = %v, want state mismatch", err)
	}
}

func TestCallbackProviderError(t *testing.T) {
	t.Parallel()

	srv, base := startServer(t, "abc123")

	status, _ := get(t, base+"?error=access_denied&state=abc123")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}

	_, err := srv.Wait(context.Background(), time.Second)
	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("Wait error = %v, want OAuthError", err)
	}
	if oauthErr.Code != "access_denied" {
		t.Errorf("provider error code = %q, want access_denied", oauthErr.Code)
	}
}

func TestCallbackMalformedRequestKeepsWaiting(t *testing.T) {
	t.Parallel()

	srv, base := startServer(t, "abc123")

	// Valid state, no code, no error: malformed, the attempt stays pending.
	status, _ := get(t, base+"?state=abc123")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}

	_, err := srv.Wait(context.Background(), 300*time.Millisecond)
	if !errors.Is(err, ErrCallbackTimeout) {
		t.Errorf("Wait error = %v, want timeout (flow must not resolve on malformed input)", err)
	}
}

func TestCallbackTimeoutFreesPort(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	srv := NewCallbackServer(port, "/auth/callback", "abc123")
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := srv.Wait(context.Background(), 200*time.Millisecond)
	if !errors.Is(err, ErrCallbackTimeout) {
		t.Fatalf("Wait error = %v, want timeout", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = srv.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Stop is idempotent.
	if err = srv.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		t.Fatalf("port %d still bound after Stop: %v", port, err)
	}
	_ = ln.Close()
}

func TestCallbackFirstTerminalRequestWins(t *testing.T) {
	t.Parallel()

	srv, base := startServer(t, "abc123")

	status, _ := get(t, base+"?code=first&state=abc123")
	if status != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", status)
	}

	// A second request after resolution is answered but ignored.
	status, _ = get(t, base+"?code=second&state=abc123")
	if status != http.StatusBadRequest {
		t.Errorf("post-resolution status = %d, want 400", status)
	}

	result, err := srv.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.Code != "first" {
		t.Errorf("Code = %q, want the first request's code", result.Code)
	}
}

func TestWaitLosingTimerStillReportsResolution(t *testing.T) {
	t.Parallel()

	// The timer and the handler race; once the browser has its 200 page the
	// attempt is resolved and an expired timer must not turn it into a
	// timeout. Repeated because the select picks ready cases at random.
	for i := 0; i < 25; i++ {
		srv, base := startServer(t, "abc123")

		status, _ := get(t, base+"?code=the-code&state=abc123")
		if status != http.StatusOK {
			t.Fatalf("status = %d, want 200", status)
		}

		result, err := srv.Wait(context.Background(), 0)
		if err != nil {
			t.Fatalf("Wait after resolution returned %v, want the resolved code", err)
		}
		if result.Code != "the-code" {
			t.Fatalf("Code = %q, want the-code", result.Code)
		}
	}
}

func TestWaitCancelledContextStillReportsResolution(t *testing.T) {
	t.Parallel()

	srv, base := startServer(t, "abc123")

	status, _ := get(t, base+"?code=the-code&state=abc123")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := srv.Wait(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Wait after resolution returned %v, want the resolved code", err)
	}
	if result.Code != "the-code" {
		t.Errorf("Code = %q, want the-code", result.Code)
	}
}

func TestCallbackPortInUse(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = ln.Close()
	}()

	srv := NewCallbackServer(port, "/auth/callback", "abc123")
	err = srv.Start()
	if !errors.Is(err, ErrPortInUse) {
		t.Errorf("Start error = %v, want port in use", err)
	}
}
