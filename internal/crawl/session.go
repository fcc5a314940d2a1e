package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoCredentials is returned by CredentialStore implementations when no
// persisted cookie set exists. Callers fall back to the manual sign-in path.
var ErrNoCredentials = errors.New("no persisted credentials")

// SessionConfig controls authentication and seed navigation behavior.
type SessionConfig struct {
	// SeedNavAttempts bounds navigation attempts to the seed URL. Exhausting
	// them is fatal for the run.
	SeedNavAttempts int
	// NavRetryDelay separates consecutive seed navigation attempts.
	NavRetryDelay time.Duration
	// LoginURLMarkers flag a logged-out state when found in the current URL.
	LoginURLMarkers []string
	// SignInText and JoinText must both appear in the page body to flag a
	// logged-out landing page. Requiring both avoids false positives on
	// result pages that merely mention signing in.
	SignInText string
	JoinText   string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SeedNavAttempts <= 0 {
		c.SeedNavAttempts = 3
	}
	if c.NavRetryDelay <= 0 {
		c.NavRetryDelay = 4 * time.Second
	}
	if len(c.LoginURLMarkers) == 0 {
		c.LoginURLMarkers = []string{"login", "checkpoint"}
	}
	if c.SignInText == "" {
		c.SignInText = "sign in"
	}
	if c.JoinText == "" {
		c.JoinText = "join"
	}
	return c
}

// Session couples a live agent with its authentication state. Sessions are
// exclusively owned: recovery constructs a new Session and disposes the old
// one rather than mutating a shared instance.
type Session struct {
	agent         Agent
	authenticated bool
	live          bool
}

// Agent returns the owned agent handle.
func (s *Session) Agent() Agent { return s.agent }

// Authenticated reports whether the session passed the logged-in check.
func (s *Session) Authenticated() bool { return s != nil && s.authenticated }

// Live reports whether the session's agent is still usable.
func (s *Session) Live() bool { return s != nil && s.live }

// Close disposes the agent. Safe to call on an already-closed session.
func (s *Session) Close() {
	if s == nil || !s.live {
		return
	}
	s.live = false
	if s.agent != nil {
		_ = s.agent.Close()
	}
}

// SessionManager owns agent lifecycle and authentication state for a run.
type SessionManager struct {
	factory   AgentFactory
	creds     CredentialStore
	confirmer Confirmer
	clock     Clock
	logger    *zap.Logger
	cfg       SessionConfig
}

// NewSessionManager builds a SessionManager.
func NewSessionManager(
	factory AgentFactory,
	creds CredentialStore,
	confirmer Confirmer,
	cfg SessionConfig,
	logger *zap.Logger,
) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		factory:   factory,
		creds:     creds,
		confirmer: confirmer,
		clock:     SystemClock{},
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// NewSession creates a fresh agent and restores persisted credentials into
// it on a best-effort basis. The returned session is live but not yet marked
// authenticated.
func (m *SessionManager) NewSession(ctx context.Context) (*Session, error) {
	agent, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	sess := &Session{agent: agent, live: true}
	if m.RestoreCredentials(ctx, agent) {
		m.logger.Info("restored persisted credentials")
	}
	return sess, nil
}

// EnsureAuthenticated creates a session, navigates to seedURL, and verifies
// the logged-in state. A logged-out or challenge page suspends the run at a
// single manual-intervention point, regardless of whether cached credentials
// existed: stale or partially valid cookies are never trusted silently.
// Fresh credentials are persisted before returning.
func (m *SessionManager) EnsureAuthenticated(ctx context.Context, seedURL string) (*Session, error) {
	sess, err := m.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.NavigateSeed(ctx, sess.agent, seedURL); err != nil {
		sess.Close()
		return nil, err
	}
	if m.LooksLoggedOut(ctx, sess.agent) {
		m.logger.Warn("not logged in or cookies invalid, manual sign-in required")
		if err := m.confirmer.Wait(ctx, "sign in using the agent browser, then confirm"); err != nil {
			sess.Close()
			return nil, fmt.Errorf("manual sign-in wait: %w", err)
		}
	}
	if err := m.PersistCredentials(ctx, sess.agent); err != nil {
		m.logger.Warn("could not persist credentials", zap.Error(err))
	}
	sess.authenticated = true
	return sess, nil
}

// NavigateSeed drives the agent to url with a bounded number of attempts.
// There is no session recovery inside this call; exhausting the attempts is
// fatal for the caller's scope.
func (m *SessionManager) NavigateSeed(ctx context.Context, agent Agent, url string) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.SeedNavAttempts; attempt++ {
		if err := agent.Navigate(ctx, url); err != nil {
			lastErr = err
			m.logger.Warn("seed navigation failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", m.cfg.SeedNavAttempts),
				zap.Error(err),
			)
			if err := sleepCtx(ctx, m.cfg.NavRetryDelay); err != nil {
				return err
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("navigate seed after %d attempts: %w", m.cfg.SeedNavAttempts, lastErr)
}

// LooksLoggedOut inspects the agent state for logged-out markers: a login or
// challenge URL, or a body showing both the sign-in and join prompts.
// Inspection failures report false; a dead agent surfaces through the next
// operation's classification instead.
func (m *SessionManager) LooksLoggedOut(ctx context.Context, agent Agent) bool {
	loc, err := agent.Location(ctx)
	if err == nil {
		lower := strings.ToLower(loc)
		for _, marker := range m.cfg.LoginURLMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	body, err := agent.BodyText(ctx)
	if err != nil {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, m.cfg.SignInText) && strings.Contains(lower, m.cfg.JoinText)
}

// PersistCredentials serializes the agent's full cookie set to the store.
func (m *SessionManager) PersistCredentials(ctx context.Context, agent Agent) error {
	cookies, err := agent.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read agent cookies: %w", err)
	}
	if err := m.creds.Save(cookies); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	m.logger.Info("persisted credentials", zap.Int("cookies", len(cookies)))
	return nil
}

// RestoreCredentials loads persisted cookies into the agent. Restore is
// best-effort: a missing or corrupt store routes to the manual path rather
// than failing.
func (m *SessionManager) RestoreCredentials(ctx context.Context, agent Agent) bool {
	cookies, err := m.creds.Load()
	if err != nil {
		if !errors.Is(err, ErrNoCredentials) {
			m.logger.Warn("could not load credentials", zap.Error(err))
		}
		return false
	}
	if len(cookies) == 0 {
		return false
	}
	if err := agent.SetCookies(ctx, cookies); err != nil {
		m.logger.Warn("could not install credentials", zap.Error(err))
		return false
	}
	return true
}

// Confirmer exposes the manager's confirmation channel to collaborators
// (recovery reuses the same suspension contract).
func (m *SessionManager) Confirmer() Confirmer { return m.confirmer }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
