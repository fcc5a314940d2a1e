package crawl

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// RecoveryConfig bounds session restart behavior.
type RecoveryConfig struct {
	// MaxAttempts caps consecutive restart attempts for one page before the
	// seed URL is abandoned.
	MaxAttempts int
	// BaseDelay and MaxDelay shape the capped exponential backoff between
	// attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (c RecoveryConfig) withDefaults() RecoveryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// RecoveryCoordinator classifies agent failures and performs restart/resume:
// dispose the dead agent, construct a fresh one, restore credentials, and
// re-display the last known page URL.
type RecoveryCoordinator struct {
	manager *SessionManager
	cfg     RecoveryConfig
	logger  *zap.Logger
}

// NewRecoveryCoordinator builds a coordinator on top of the session manager.
func NewRecoveryCoordinator(manager *SessionManager, cfg RecoveryConfig, logger *zap.Logger) *RecoveryCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryCoordinator{
		manager: manager,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// MaxAttempts exposes the configured restart bound.
func (r *RecoveryCoordinator) MaxAttempts() int { return r.cfg.MaxAttempts }

// Recover replaces a failed session and resumes at resumeURL. The old
// session is always disposed. Attempts are bounded with capped exponential
// backoff; a post-recovery auth challenge suspends for one manual
// confirmation, persists fresh credentials, and retries the navigation once
// more. The returned session is authenticated and positioned at resumeURL.
func (r *RecoveryCoordinator) Recover(ctx context.Context, old *Session, resumeURL string) (*Session, error) {
	old.Close()

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		r.logger.Warn("recovering agent session",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.String("resume_url", resumeURL),
		)
		sess, err := r.attempt(ctx, resumeURL)
		if err != nil {
			lastErr = err
			continue
		}
		return sess, nil
	}
	return nil, fmt.Errorf("recovery exhausted after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

func (r *RecoveryCoordinator) attempt(ctx context.Context, resumeURL string) (*Session, error) {
	sess, err := r.manager.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.agent.Navigate(ctx, resumeURL); err != nil {
		sess.Close()
		return nil, fmt.Errorf("resume navigation: %w", err)
	}
	if r.manager.LooksLoggedOut(ctx, sess.agent) {
		r.logger.Warn("auth challenge detected after recovery, waiting for manual intervention")
		if err := r.manager.Confirmer().Wait(ctx, "resolve the sign-in challenge, then confirm"); err != nil {
			sess.Close()
			return nil, fmt.Errorf("challenge wait: %w", err)
		}
		if err := r.manager.PersistCredentials(ctx, sess.agent); err != nil {
			r.logger.Warn("could not persist credentials after challenge", zap.Error(err))
		}
		if err := sess.agent.Navigate(ctx, resumeURL); err != nil {
			sess.Close()
			return nil, fmt.Errorf("post-challenge navigation: %w", err)
		}
		if r.manager.LooksLoggedOut(ctx, sess.agent) {
			sess.Close()
			return nil, NewAgentError(FailureAuthChallenge, "recover", ErrAuthChallenge)
		}
	}
	sess.authenticated = true
	return sess, nil
}

func (r *RecoveryCoordinator) backoff(attempt int) time.Duration {
	delay := float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
