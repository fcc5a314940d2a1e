package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldworks/postwatch/internal/checkpoint"
	"github.com/fieldworks/postwatch/internal/config"
	"github.com/fieldworks/postwatch/internal/crawl"
)

// fakeEnv records agent activity shared across the fakes of one test run.
type fakeEnv struct {
	mu     sync.Mutex
	navs   []string
	agents int
	waits  int
	saves  int
}

func (e *fakeEnv) factory() crawl.AgentFactory {
	return func(context.Context) (crawl.Agent, error) {
		e.mu.Lock()
		e.agents++
		e.mu.Unlock()
		return &fakeAgent{env: e}, nil
	}
}

func (e *fakeEnv) accessorFactory() crawl.AccessorFactory {
	return func(crawl.Agent) crawl.PageAccessor {
		return emptyPageAccessor{}
	}
}

type fakeAgent struct {
	env *fakeEnv
	loc string
}

func (a *fakeAgent) Navigate(_ context.Context, url string) error {
	a.env.mu.Lock()
	a.env.navs = append(a.env.navs, url)
	a.env.mu.Unlock()
	a.loc = url
	return nil
}

func (a *fakeAgent) Location(context.Context) (string, error) { return a.loc, nil }

func (a *fakeAgent) BodyText(context.Context) (string, error) {
	return "42 results for your search", nil
}

func (a *fakeAgent) Cookies(context.Context) ([]crawl.Cookie, error) {
	return []crawl.Cookie{{Name: "li_at", Value: "token", Domain: ".example.com"}}, nil
}

func (a *fakeAgent) SetCookies(context.Context, []crawl.Cookie) error { return nil }

func (a *fakeAgent) Close() error { return nil }

// emptyPageAccessor renders every page as an explicit no-results page.
type emptyPageAccessor struct{}

func (emptyPageAccessor) ListAnchors(context.Context) ([]crawl.Anchor, error) { return nil, nil }
func (emptyPageAccessor) Activate(context.Context, int) error                 { return nil }
func (emptyPageAccessor) CurrentRecordID(context.Context) (string, bool, error) {
	return "", false, nil
}
func (emptyPageAccessor) WaitForRecordChange(context.Context, string, time.Duration) (string, string, error) {
	return "", "", nil
}
func (emptyPageAccessor) WaitForDetailLoaded(context.Context, time.Duration) (bool, error) {
	return false, nil
}
func (emptyPageAccessor) ReadField(context.Context, crawl.FieldRole) (string, error) {
	return "", nil
}
func (emptyPageAccessor) ScrollResults(context.Context) error { return nil }
func (emptyPageAccessor) HasEmptyMarker(context.Context) (bool, error) {
	return true, nil
}

type envConfirmer struct{ env *fakeEnv }

func (c *envConfirmer) Wait(context.Context, string) error {
	c.env.mu.Lock()
	c.env.waits++
	c.env.mu.Unlock()
	return nil
}

type envCreds struct{ env *fakeEnv }

func (c *envCreds) Save([]crawl.Cookie) error {
	c.env.mu.Lock()
	c.env.saves++
	c.env.mu.Unlock()
	return nil
}

func (c *envCreds) Load() ([]crawl.Cookie, error) { return nil, crawl.ErrNoCredentials }

func testConfig(seed string) config.Config {
	return config.Config{
		Crawl: config.CrawlConfig{
			Concurrency:       1,
			PageSize:          5,
			MaxPagesPerSeed:   3,
			RequestsPerMinute: 6000,
		},
		Recovery: config.RecoveryConfig{MaxAttempts: 2},
		Targets:  []crawl.Target{{Name: "Acme", SeedURLs: []string{seed}}},
	}
}

func TestRunCompletesEmptyTarget(t *testing.T) {
	env := &fakeEnv{}
	dir := t.TempDir()
	checkpoints, err := checkpoint.NewStore(dir)
	require.NoError(t, err)

	seed := "https://example.com/jobs/search/?keywords=go&trackingId=zzz"
	r := New(Deps{
		Config:      testConfig(seed),
		Gate:        &envConfirmer{env: env},
		Checkpoints: checkpoints,
		Credentials: &envCreds{env: env},
		Agents:      env.factory(),
		Accessors:   env.accessorFactory(),
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, r.RunID().String(), report.RunID)
	require.Zero(t, report.Records)
	require.Zero(t, report.Abandoned)
	require.Len(t, report.Targets, 1)
	require.Len(t, report.Targets[0].Seeds, 1)
	require.Equal(t, crawl.SeedEmpty, report.Targets[0].Seeds[0].Outcome)

	require.GreaterOrEqual(t, env.agents, 2, "one bootstrap agent plus one per target")
	require.Equal(t, "https://example.com/jobs/search/?keywords=go&start=0", env.navs[0],
		"bootstrap navigates the normalized first seed")
	require.Zero(t, env.waits, "an authenticated session never prompts")
	require.GreaterOrEqual(t, env.saves, 1, "cookies persisted after sign-in check")

	_, err = os.Stat(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
}

func TestRunFailsWithoutSeeds(t *testing.T) {
	env := &fakeEnv{}
	checkpoints, err := checkpoint.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := testConfig("ignored")
	cfg.Targets = nil
	r := New(Deps{
		Config:      cfg,
		Gate:        &envConfirmer{env: env},
		Checkpoints: checkpoints,
		Credentials: &envCreds{env: env},
		Agents:      env.factory(),
		Accessors:   env.accessorFactory(),
	})

	_, err = r.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no seed urls")
}

func TestBuildReportCountsAbandonedTargets(t *testing.T) {
	r := New(Deps{})
	startedAt := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

	report := r.buildReport(startedAt, []crawl.TargetSummary{
		{Target: "Acme", Records: 40},
		{Target: "Globex", Records: 3, Abandoned: true},
	})
	require.Equal(t, 43, report.Records)
	require.Equal(t, 1, report.Abandoned)
	require.Equal(t, startedAt, report.StartedAt)
	require.Len(t, report.Targets, 2)
}
