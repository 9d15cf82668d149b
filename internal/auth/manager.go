package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/HighGarden-Studio/HighFlow-sub016/internal/api"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/browser"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/config"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/store"
)

// manualPromptDelay is how long the flow waits for the loopback callback
// before offering the manual paste prompt, when one is configured.
const manualPromptDelay = 15 * time.Second

// LoginOptions adjusts a single login attempt.
type LoginOptions struct {
	// NoBrowser suppresses the automatic browser launch; the authorization
	// URL is printed for the user to open manually.
	NoBrowser bool
	// CallbackPort overrides the configured loopback port.
	CallbackPort int
	// Prompt, when set, lets the user paste the redirect URL manually when
	// the loopback callback cannot reach this process (headless or SSH use).
	Prompt func(prompt string) (string, error)
}

// Manager owns the session lifecycle: it runs the PKCE login flow end to
// end, answers current-user queries, and ends sessions. One Manager is
// constructed at process start and injected into callers; it is the only
// holder of the process-wide "current session" check.
type Manager struct {
	cfg       *config.Config
	apiClient *api.Client
	credStore *store.CredentialStore

	// openBrowser and browserAvailable are swappable for tests.
	openBrowser      func(url string) error
	browserAvailable func() bool
	promptDelay      time.Duration

	loginMu sync.Mutex
}

// NewManager wires a session lifecycle manager from its collaborators.
func NewManager(cfg *config.Config, apiClient *api.Client, credStore *store.CredentialStore) *Manager {
	return &Manager{
		cfg:              cfg,
		apiClient:        apiClient,
		credStore:        credStore,
		openBrowser:      browser.OpenURL,
		browserAvailable: browser.IsAvailable,
		promptDelay:      manualPromptDelay,
	}
}

// Login runs one complete authorization-code-with-PKCE flow: generate the
// PKCE pair and CSRF state, start the loopback listener, open the browser,
// wait for exactly one qualifying callback, exchange the code, and persist
// the session. Any failure aborts the attempt with nothing persisted.
func (m *Manager) Login(ctx context.Context, opts *LoginOptions) (*api.AuthSession, error) {
	if !m.loginMu.TryLock() {
		return nil, fmt.Errorf("a login attempt is already in progress")
	}
	defer m.loginMu.Unlock()

	if opts == nil {
		opts = &LoginOptions{}
	}

	cfg := *m.cfg
	if opts.CallbackPort > 0 {
		cfg.CallbackPort = opts.CallbackPort
	}

	flowLog := log.WithField("flow_id", shortFlowID())
	flowLog.WithField("provider", cfg.Provider).Info("starting login flow")

	pkce, err := GeneratePKCECodes()
	if err != nil {
		return nil, fmt.Errorf("pkce generation failed: %w", err)
	}
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("state generation failed: %w", err)
	}

	srv := NewCallbackServer(cfg.CallbackPort, cfg.CallbackPath, state)
	if err = srv.Start(); err != nil {
		return nil, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if stopErr := srv.Stop(stopCtx); stopErr != nil {
			flowLog.Warnf("callback server stop error: %v", stopErr)
		}
	}()

	authURL, err := BuildAuthorizationURL(&cfg, state, pkce)
	if err != nil {
		return nil, fmt.Errorf("authorization url generation failed: %w", err)
	}

	if err = m.presentAuthorizationURL(flowLog, authURL, opts); err != nil {
		return nil, err
	}

	result, err := m.awaitCallback(ctx, srv, state, cfg.CallbackTimeout(), opts)
	if err != nil {
		return nil, err
	}

	flowLog.Debug("authorization code received; exchanging for session")

	session, err := m.apiClient.ExchangeAuthorizationCode(ctx, cfg.Provider, result.Code, pkce.CodeVerifier, cfg.RedirectURI())
	if err != nil {
		flowLog.Errorf("token exchange failed: %v", err)
		return nil, NewAuthenticationError(ErrCodeExchangeFailed, err)
	}

	if err = m.credStore.Save(session.SessionToken); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	flowLog.WithField("provider", cfg.Provider).Infof("login successful for %s", session.User.Email)
	return session, nil
}

// presentAuthorizationURL opens the browser, or prints the URL when the
// browser is suppressed or unusable and a manual path exists. Without a
// manual path a launch failure ends the attempt.
func (m *Manager) presentAuthorizationURL(flowLog *log.Entry, authURL string, opts *LoginOptions) error {
	if opts.NoBrowser {
		fmt.Printf("Visit the following URL to continue signing in:\n%s\n", authURL)
		return nil
	}

	launchErr := error(nil)
	if !m.browserAvailable() {
		launchErr = fmt.Errorf("no browser available")
	} else if err := m.openBrowser(authURL); err != nil {
		launchErr = err
	}
	if launchErr == nil {
		fmt.Println("Opening your browser to sign in to HighFlow")
		return nil
	}

	if opts.Prompt != nil {
		flowLog.Warnf("could not open browser automatically: %v", launchErr)
		fmt.Printf("Visit the following URL to continue signing in:\n%s\n", authURL)
		return nil
	}
	return NewAuthenticationError(ErrBrowserLaunchFailed, launchErr)
}

// awaitCallback waits for the loopback listener to resolve, racing the
// timeout, and optionally offers the manual paste prompt after a grace
// period. Manually entered callbacks flow through the same state validation
// as listener-delivered ones.
func (m *Manager) awaitCallback(ctx context.Context, srv *CallbackServer, state string, timeout time.Duration, opts *LoginOptions) (*CallbackResult, error) {
	serverResultCh := make(chan *CallbackResult, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		result, err := srv.Wait(ctx, timeout)
		if err != nil {
			serverErrCh <- err
			return
		}
		serverResultCh <- result
	}()

	var promptCh chan *CallbackResult
	var promptErrCh chan error
	if opts.Prompt != nil {
		promptCh = make(chan *CallbackResult, 1)
		promptErrCh = make(chan error, 1)
		go m.promptLoop(opts.Prompt, promptCh, promptErrCh)
	}

	fmt.Println("Waiting for the sign-in to complete...")

	var result *CallbackResult
	select {
	case result = <-serverResultCh:
	case err := <-serverErrCh:
		return nil, err
	case result = <-promptCh:
	case err := <-promptErrCh:
		return nil, err
	}

	// State is compared before the error or code parameters are looked at,
	// no matter how the callback arrived. The listener already enforces this
	// for its own requests; manually pasted callbacks get the same treatment.
	if result.State != state {
		log.Error("callback state does not match login attempt")
		return nil, NewAuthenticationError(ErrStateMismatch, fmt.Errorf("state mismatch"))
	}
	if result.Error != "" {
		return nil, NewOAuthError(result.Error, "", http.StatusBadRequest)
	}
	return result, nil
}

// promptLoop repeatedly offers the manual paste prompt until a parseable
// callback arrives or reading input fails.
func (m *Manager) promptLoop(prompt func(string) (string, error), resultCh chan<- *CallbackResult, errCh chan<- error) {
	time.Sleep(m.promptDelay)
	for {
		input, err := prompt("Paste the callback URL (or press Enter to keep waiting): ")
		if err != nil {
			errCh <- err
			return
		}
		parsed, err := ParseCallbackURL(input)
		if err != nil {
			log.Warnf("could not parse callback URL: %v", err)
			continue
		}
		if parsed == nil {
			continue
		}
		resultCh <- parsed
		return
	}
}

// CurrentUser returns the account behind the stored session, or nil when no
// usable session exists. It never reports an error: absence and backend
// unavailability look the same to callers, with the distinction in the logs.
// A credential the backend rejects outright is deleted so the next call
// skips the network entirely.
func (m *Manager) CurrentUser(ctx context.Context) *api.User {
	token, ok := m.credStore.Load()
	if !ok {
		return nil
	}

	user, err := m.apiClient.CurrentUser(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			log.Info("stored session rejected by backend; discarding credential")
			if delErr := m.credStore.Delete(); delErr != nil {
				log.Warnf("failed to discard rejected credential: %v", delErr)
			}
			return nil
		}
		log.Warnf("current-user check failed, keeping credential: %v", err)
		return nil
	}
	return user
}

// Logout ends the session. The remote logout is best-effort; the local
// credential is always deleted so the session ends even when the backend
// call fails.
func (m *Manager) Logout(ctx context.Context) error {
	if token, ok := m.credStore.Load(); ok {
		if err := m.apiClient.Logout(ctx, token); err != nil {
			log.Warnf("remote logout failed: %v", err)
		}
	}
	return m.credStore.Delete()
}

// HasCredential reports whether a persisted credential exists. Other
// subsystems use it to gate authenticated requests.
func (m *Manager) HasCredential() bool {
	return m.credStore.HasCredential()
}

// shortFlowID returns an eight-character identifier tying together the log
// lines of one login attempt.
func shortFlowID() string {
	return uuid.NewString()[:8]
}
