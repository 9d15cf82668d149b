package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// lingerAfterSuccess keeps the listener alive after the 200 response so the
// page is flushed to the browser before shutdown.
const lingerAfterSuccess = 2 * time.Second

// CallbackServer is the short-lived local HTTP listener that receives the
// provider redirect for exactly one login attempt. The first request that
// reaches a terminal determination wins; anything after that is answered
// with an error page and otherwise ignored.
type CallbackServer struct {
	port          int
	path          string
	expectedState string

	server   *http.Server
	resultCh chan *CallbackResult
	errCh    chan error

	mu        sync.Mutex
	running   bool
	completed bool
}

// NewCallbackServer creates a callback server for one attempt. expectedState
// is compared byte-for-byte against the state parameter of every inbound
// request before anything else is inspected.
func NewCallbackServer(port int, path, expectedState string) *CallbackServer {
	return &CallbackServer{
		port:          port,
		path:          path,
		expectedState: expectedState,
		resultCh:      make(chan *CallbackResult, 1),
		errCh:         make(chan error, 1),
	}
}

// Start binds the listener on the configured fixed port and begins serving.
// The port is fixed configuration: the redirect URI registered with the
// provider points at it, so an ephemeral port would not work.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("callback server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", s.port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return NewAuthenticationError(ErrPortInUse, err)
		}
		return NewAuthenticationError(ErrServerStartFailed, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	server := s.server
	go func() {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.reject(NewAuthenticationError(ErrServerStartFailed, errServe))
		}
	}()

	log.WithField("port", s.port).Debug("callback server listening")
	return nil
}

// Stop shuts the server down. It is idempotent: the teardown runs at most
// once even when invoked both on resolution and by the linger timer.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil

	log.Debug("callback server stopped")
	return err
}

// Wait blocks until the attempt resolves, rejects, or the timeout elapses.
// The timeout and the listener's own resolution race; whichever fires first
// determines the outcome and the loser becomes a no-op.
func (s *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errCh:
		return nil, err
	case <-timer.C:
		if !s.markCompleted() {
			// The handler reached a terminal determination first; the
			// timer lost the race and its effect must be a no-op.
			return s.settledOutcome()
		}
		return nil, NewAuthenticationError(ErrCallbackTimeout, fmt.Errorf("no callback within %s", timeout))
	case <-ctx.Done():
		if !s.markCompleted() {
			return s.settledOutcome()
		}
		return nil, ctx.Err()
	}
}

// settledOutcome returns the outcome the handler already delivered. It is
// only called after losing the race to a terminal determination, whose
// winner always fills one of the buffered channels.
func (s *CallbackServer) settledOutcome() (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errCh:
		return nil, err
	}
}

// handleCallback processes one inbound redirect request. Validation order is
// fixed: state first, then the provider error parameter, then the code. A
// request with a valid state but neither code nor error is malformed and
// leaves the attempt pending.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.isCompleted() {
		s.writePage(w, http.StatusBadRequest, renderFailurePage("This sign-in attempt has already completed."))
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	errorParam := query.Get("error")
	code := query.Get("code")

	// State is validated before code or error are even looked at. A crafted
	// request to the fixed local port must not be able to steer the flow.
	if state != s.expectedState {
		log.Error("callback state does not match login attempt")
		s.writePage(w, http.StatusBadRequest, renderFailurePage("The sign-in response could not be verified."))
		s.reject(NewAuthenticationError(ErrStateMismatch, fmt.Errorf("state mismatch")))
		return
	}

	if errorParam != "" {
		log.Errorf("provider returned error: %s", errorParam)
		s.writePage(w, http.StatusBadRequest, renderFailurePage("The provider reported: "+html.EscapeString(errorParam)))
		s.reject(NewOAuthError(errorParam, query.Get("error_description"), http.StatusBadRequest))
		return
	}

	if code == "" {
		log.Warn("callback carried neither code nor error; still waiting")
		s.writePage(w, http.StatusBadRequest, renderFailurePage("The sign-in response was incomplete."))
		return
	}

	s.writePage(w, http.StatusOK, loginSuccessHTML)
	s.resolve(&CallbackResult{Code: code, State: state})
}

// resolve delivers a successful outcome exactly once and schedules the
// delayed teardown.
func (s *CallbackServer) resolve(result *CallbackResult) {
	if !s.markCompleted() {
		return
	}
	s.resultCh <- result

	time.AfterFunc(lingerAfterSuccess, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			log.Warnf("callback server delayed stop error: %v", err)
		}
	})
}

// reject delivers a failure outcome exactly once.
func (s *CallbackServer) reject(err error) {
	if !s.markCompleted() {
		return
	}
	s.errCh <- err
}

// markCompleted flips the terminal flag. It returns false when the attempt
// already completed, guarding against double resolution.
func (s *CallbackServer) markCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.completed = true
	return true
}

// isCompleted reports whether the attempt reached a terminal determination.
func (s *CallbackServer) isCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// writePage writes an HTML response. The response is sent before the listener
// is torn down so the browser never sees a connection reset.
func (s *CallbackServer) writePage(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Warnf("failed to write callback response: %v", err)
	}
}
