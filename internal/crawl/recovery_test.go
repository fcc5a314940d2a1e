package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func TestRecoverReplacesDeadSession(t *testing.T) {
	site := newFakeSite()
	creds := &fakeCreds{cookies: []Cookie{{Name: "li_at", Value: "cached"}}}
	manager := NewSessionManager(site.factory(), creds, &fakeConfirmer{}, testSessionConfig(), nil)
	coordinator := NewRecoveryCoordinator(manager, testRecoveryConfig(), nil)

	old, err := manager.NewSession(context.Background())
	require.NoError(t, err)
	oldAgent := old.Agent().(*fakeAgent)

	sess, err := coordinator.Recover(context.Background(), old, "https://example.com/jobs?start=25")
	require.NoError(t, err)
	require.True(t, oldAgent.closed, "the failed session is always disposed")
	require.True(t, sess.Authenticated())
	require.NotSame(t, old, sess)
	require.Equal(t, "https://example.com/jobs?start=25", sess.Agent().(*fakeAgent).url)
}

func TestRecoverRetriesWithBackoff(t *testing.T) {
	site := newFakeSite()
	site.navFailuresLeft = 2
	manager := NewSessionManager(site.factory(), &fakeCreds{}, &fakeConfirmer{}, testSessionConfig(), nil)
	coordinator := NewRecoveryCoordinator(manager, testRecoveryConfig(), nil)

	old, err := manager.NewSession(context.Background())
	require.NoError(t, err)

	sess, err := coordinator.Recover(context.Background(), old, "https://example.com/jobs?start=50")
	require.NoError(t, err)
	require.True(t, sess.Live())
}

func TestRecoverGivesUpAfterMaxAttempts(t *testing.T) {
	site := newFakeSite()
	site.navFailuresLeft = 100
	manager := NewSessionManager(site.factory(), &fakeCreds{}, &fakeConfirmer{}, testSessionConfig(), nil)
	coordinator := NewRecoveryCoordinator(manager, testRecoveryConfig(), nil)

	old, err := manager.NewSession(context.Background())
	require.NoError(t, err)

	_, err = coordinator.Recover(context.Background(), old, "https://example.com/jobs?start=0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "recovery exhausted")
}

func TestRecoverHandlesAuthChallenge(t *testing.T) {
	site := newFakeSite()
	site.loggedOut = true
	creds := &fakeCreds{}
	confirmer := &fakeConfirmer{onWait: func() { site.loggedOut = false }}
	manager := NewSessionManager(site.factory(), creds, confirmer, testSessionConfig(), nil)
	coordinator := NewRecoveryCoordinator(manager, testRecoveryConfig(), nil)

	old, err := manager.NewSession(context.Background())
	require.NoError(t, err)

	sess, err := coordinator.Recover(context.Background(), old, "https://example.com/jobs?start=25")
	require.NoError(t, err)
	require.True(t, sess.Authenticated())
	require.Equal(t, 1, confirmer.calls, "challenge suspends exactly once")
	require.Equal(t, 1, creds.saves, "fresh credentials are persisted after the challenge")
}

func TestRecoverFailsWhenChallengePersists(t *testing.T) {
	site := newFakeSite()
	site.loggedOut = true
	manager := NewSessionManager(site.factory(), &fakeCreds{}, &fakeConfirmer{}, testSessionConfig(), nil)
	coordinator := NewRecoveryCoordinator(manager, RecoveryConfig{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}, nil)

	old, err := manager.NewSession(context.Background())
	require.NoError(t, err)

	_, err = coordinator.Recover(context.Background(), old, "https://example.com/jobs?start=0")
	require.Error(t, err)
	require.Equal(t, FailureAuthChallenge, Classify(err))
}
