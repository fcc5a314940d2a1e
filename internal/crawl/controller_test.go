package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testController(site *fakeSite, checkpoints *fakeCheckpointer, pageSize int) *Controller {
	creds := &fakeCreds{cookies: []Cookie{{Name: "li_at", Value: "cached"}}}
	manager := NewSessionManager(site.factory(), creds, &fakeConfirmer{}, testSessionConfig(), nil)
	recovery := NewRecoveryCoordinator(manager, testRecoveryConfig(), nil)
	extractor := NewExtractor(ExtractConfig{
		PageSize:            pageSize,
		MaxScrolls:          4,
		StabilityPolls:      2,
		PollDelay:           time.Millisecond,
		RecordChangeTimeout: 10 * time.Millisecond,
		DetailTimeout:       10 * time.Millisecond,
	}, &stepClock{}, nil)

	return NewController(ControllerDeps{
		Sessions:    manager,
		Recovery:    recovery,
		Navigator:   NewNavigator("", nil),
		Detector:    NewDetector(10),
		Extractor:   extractor,
		Checkpoints: checkpoints,
		Accessors:   site.accessorFactory(),
		RunID:       uuid.New(),
		Clock:       &stepClock{},
	}, ControllerConfig{MaxPagesPerSeed: 20})
}

func TestRunTargetStopsOnRepeatedSignature(t *testing.T) {
	site := newFakeSite()
	site.pages[0] = fakePage{anchors: []Anchor{{ID: "j1"}, {ID: "j2"}, {ID: "j3"}}}
	site.pages[3] = fakePage{anchors: []Anchor{{ID: "j4"}, {ID: "j5"}}}
	// The source re-serves the last page for offsets past the end.
	site.pages[6] = site.pages[3]

	checkpoints := &fakeCheckpointer{}
	controller := testController(site, checkpoints, 3)

	summary, err := controller.RunTarget(context.Background(), Target{
		Name:     "Acme",
		SeedURLs: []string{"https://example.com/jobs/search?keywords=go"},
	})
	require.NoError(t, err)
	require.Equal(t, 5, summary.Records)
	require.Equal(t, 2, summary.Pages)
	require.False(t, summary.Abandoned)
	require.Len(t, summary.Seeds, 1)
	require.Equal(t, SeedCompleted, summary.Seeds[0].Outcome)
	require.Equal(t, []string{"j1", "j2", "j3", "j4", "j5"}, anchorIDs(checkpoints.last))
	require.Equal(t, 2, checkpoints.persists, "one checkpoint per extracted page")
}

func TestRunTargetRecoversMidPageWithoutDuplicates(t *testing.T) {
	site := newFakeSite()
	site.pages[0] = fakePage{anchors: []Anchor{{ID: "j1"}, {ID: "j2"}, {ID: "j3"}}}
	site.pages[3] = fakePage{empty: true}
	site.activateFailures["0:1"] = 1

	checkpoints := &fakeCheckpointer{}
	controller := testController(site, checkpoints, 3)

	summary, err := controller.RunTarget(context.Background(), Target{
		Name:     "Acme",
		SeedURLs: []string{"https://example.com/jobs/search?keywords=go"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Records)
	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 1, summary.Recoveries)
	require.Equal(t, []string{"j1", "j2", "j3"}, anchorIDs(checkpoints.last),
		"the retried page must not duplicate records checkpointed before the failure")
	require.GreaterOrEqual(t, site.agentsMade, 2, "recovery creates a fresh agent")
}

func TestRunTargetReportsEmptySeed(t *testing.T) {
	site := newFakeSite()
	site.pages[0] = fakePage{empty: true}

	controller := testController(site, &fakeCheckpointer{}, 3)
	summary, err := controller.RunTarget(context.Background(), Target{
		Name:     "Acme",
		SeedURLs: []string{"https://example.com/jobs/search?keywords=nothing"},
	})
	require.NoError(t, err)
	require.Zero(t, summary.Records)
	require.Equal(t, SeedEmpty, summary.Seeds[0].Outcome)
}

func TestRunTargetAbandonsSeedAfterExhaustedRecovery(t *testing.T) {
	site := newFakeSite()
	site.pages[0] = fakePage{anchors: []Anchor{{ID: "j1"}, {ID: "j2"}}}
	// Every retry of the first record fails fatally.
	site.activateFailures["0:0"] = 100

	controller := testController(site, &fakeCheckpointer{}, 3)
	summary, err := controller.RunTarget(context.Background(), Target{
		Name:     "Acme",
		SeedURLs: []string{"https://example.com/jobs/search?keywords=go"},
	})
	require.Error(t, err)
	require.True(t, summary.Abandoned)
	require.Equal(t, SeedAbandoned, summary.Seeds[0].Outcome)
}

func TestRunTargetAccumulatesAcrossSeeds(t *testing.T) {
	site := newFakeSite()
	site.pages[0] = fakePage{anchors: []Anchor{{ID: "j1"}, {ID: "j2"}}}
	site.pages[3] = fakePage{empty: true}

	checkpoints := &fakeCheckpointer{}
	controller := testController(site, checkpoints, 3)

	// Both seeds resolve to the same result pages, so the second seed's
	// records are all duplicates of the first's.
	summary, err := controller.RunTarget(context.Background(), Target{
		Name: "Acme",
		SeedURLs: []string{
			"https://example.com/jobs/search?keywords=go",
			"https://example.com/jobs/search?keywords=golang",
		},
	})
	require.NoError(t, err)
	require.Len(t, summary.Seeds, 2)
	require.Equal(t, 2, summary.Records, "duplicate records across seeds are folded")
}
