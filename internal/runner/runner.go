// Package runner orchestrates a crawl run end to end: one-time sign-in,
// the bounded worker pool over targets, and the merged run report.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fieldworks/postwatch/internal/checkpoint"
	"github.com/fieldworks/postwatch/internal/config"
	"github.com/fieldworks/postwatch/internal/crawl"
	"github.com/fieldworks/postwatch/internal/progress"
	"github.com/fieldworks/postwatch/internal/storage/postgres"
)

// RunReport is the merged result of a whole run, written to summary.json.
type RunReport struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Records    int                   `json:"records"`
	Abandoned  int                   `json:"abandoned_targets"`
	Targets    []crawl.TargetSummary `json:"targets"`
}

// Deps carries everything a Runner needs. Records is optional; leave it nil
// to run without the Postgres mirror.
type Deps struct {
	Config      config.Config
	Logger      *zap.Logger
	Hub         *progress.Hub
	Gate        crawl.Confirmer
	Checkpoints *checkpoint.Store
	Credentials crawl.CredentialStore
	Agents      crawl.AgentFactory
	Accessors   crawl.AccessorFactory
	Records     *postgres.RecordStore
	Clock       crawl.Clock
}

// Runner executes one crawl run over the configured targets.
type Runner struct {
	deps  Deps
	runID uuid.UUID
}

// New builds a Runner with a fresh run ID.
func New(deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = crawl.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{deps: deps, runID: uuid.New()}
}

// RunID returns the run identifier.
func (r *Runner) RunID() uuid.UUID { return r.runID }

// Run signs in once, crawls every target through a bounded worker pool, and
// writes the merged run report. Abandoned targets do not abort the run; the
// report records them and Run returns the first abandonment error.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	cfg := r.deps.Config
	startedAt := r.deps.Clock.Now()
	r.emit(progress.Event{Stage: progress.StageRunStart})
	r.deps.Logger.Info("run starting",
		zap.String("run_id", r.runID.String()),
		zap.Int("targets", len(cfg.Targets)),
		zap.Int("concurrency", cfg.Crawl.Concurrency),
	)

	if r.deps.Records != nil {
		if err := r.deps.Records.BeginRun(ctx, r.runID, startedAt); err != nil {
			r.deps.Logger.Warn("could not register run in store", zap.Error(err))
		}
	}

	sessions := r.sessionManager()
	if err := r.bootstrapAuth(ctx, sessions); err != nil {
		return RunReport{}, err
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.Crawl.RequestsPerMinute)), 1)

	var (
		mu        sync.Mutex
		summaries []crawl.TargetSummary
		firstErr  error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Crawl.Concurrency)
	for _, target := range cfg.Targets {
		group.Go(func() error {
			controller := r.controller(sessions, limiter)
			summary, err := controller.RunTarget(groupCtx, target)
			mu.Lock()
			summaries = append(summaries, summary)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			if err != nil {
				r.deps.Logger.Error("target failed",
					zap.String("target", target.Name),
					zap.Error(err),
				)
			}
			if r.deps.Records != nil {
				r.mirrorRecords(groupCtx, target.Name)
			}
			// Target failures are reported, not propagated; one bad target
			// must not cancel the siblings.
			return nil
		})
	}
	_ = group.Wait()

	report := r.buildReport(startedAt, summaries)
	if err := r.deps.Checkpoints.WriteSummary(report); err != nil {
		r.deps.Logger.Error("could not write run summary", zap.Error(err))
	}
	if r.deps.Records != nil {
		if err := r.deps.Records.FinishRun(ctx, r.runID, report.FinishedAt, report.Records); err != nil {
			r.deps.Logger.Warn("could not finish run in store", zap.Error(err))
		}
	}
	r.emit(progress.Event{Stage: progress.StageRunDone, Records: report.Records})
	r.deps.Logger.Info("run finished",
		zap.String("run_id", r.runID.String()),
		zap.Int("records", report.Records),
		zap.Int("abandoned_targets", report.Abandoned),
	)
	return report, firstErr
}

// bootstrapAuth establishes the authenticated session once, before any
// worker starts, and disposes it. Workers restore the persisted cookies into
// their own agents, so the manual sign-in happens at most once per run.
func (r *Runner) bootstrapAuth(ctx context.Context, sessions *crawl.SessionManager) error {
	seedURL, err := r.firstSeed()
	if err != nil {
		return err
	}
	sess, err := sessions.EnsureAuthenticated(ctx, seedURL)
	if err != nil {
		return fmt.Errorf("initial sign-in: %w", err)
	}
	sess.Close()
	return nil
}

func (r *Runner) firstSeed() (string, error) {
	nav := crawl.NewNavigator(r.deps.Config.Extract.OffsetParam, nil)
	for _, target := range r.deps.Config.Targets {
		for _, seed := range target.SeedURLs {
			normalized, err := nav.Normalize(seed)
			if err != nil {
				return "", fmt.Errorf("target %s: %w", target.Name, err)
			}
			return normalized, nil
		}
	}
	return "", fmt.Errorf("no seed urls configured")
}

func (r *Runner) sessionManager() *crawl.SessionManager {
	cfg := r.deps.Config
	return crawl.NewSessionManager(
		r.deps.Agents,
		r.deps.Credentials,
		&emittingConfirmer{runner: r, inner: r.deps.Gate},
		crawl.SessionConfig{
			SeedNavAttempts: cfg.Session.SeedNavAttempts,
			NavRetryDelay:   time.Duration(cfg.Session.NavRetryDelaySec) * time.Second,
		},
		r.deps.Logger.Named("session"),
	)
}

func (r *Runner) controller(sessions *crawl.SessionManager, limiter *rate.Limiter) *crawl.Controller {
	cfg := r.deps.Config
	recovery := crawl.NewRecoveryCoordinator(sessions, crawl.RecoveryConfig{
		MaxAttempts: cfg.Recovery.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Recovery.BaseDelaySec) * time.Second,
		MaxDelay:    time.Duration(cfg.Recovery.MaxDelaySec) * time.Second,
	}, r.deps.Logger.Named("recovery"))

	extractor := crawl.NewExtractor(crawl.ExtractConfig{
		PageSize:            cfg.Crawl.PageSize,
		MaxScrolls:          cfg.Extract.MaxScrolls,
		StabilityPolls:      cfg.Extract.StabilityPolls,
		PollDelay:           time.Duration(cfg.Extract.PollDelayMs) * time.Millisecond,
		RecordChangeTimeout: time.Duration(cfg.Extract.RecordChangeSec) * time.Second,
		DetailTimeout:       time.Duration(cfg.Extract.DetailTimeoutSec) * time.Second,
		PermalinkFormat:     cfg.Extract.PermalinkFormat,
		ActivateJitter:      time.Duration(cfg.Extract.ActivateJitterMs) * time.Millisecond,
	}, r.deps.Clock, r.deps.Logger.Named("extract"))

	return crawl.NewController(crawl.ControllerDeps{
		Sessions:    sessions,
		Recovery:    recovery,
		Navigator:   crawl.NewNavigator(cfg.Extract.OffsetParam, nil),
		Detector:    crawl.NewDetector(cfg.SignatureDepth()),
		Extractor:   extractor,
		Checkpoints: r.deps.Checkpoints,
		Accessors:   r.deps.Accessors,
		Limiter:     limiter,
		Hub:         r.deps.Hub,
		RunID:       r.runID,
		Clock:       r.deps.Clock,
		Logger:      r.deps.Logger.Named("crawl"),
	}, crawl.ControllerConfig{
		MaxPagesPerSeed: cfg.Crawl.MaxPagesPerSeed,
	})
}

// mirrorRecords copies a target's checkpointed records into the Postgres
// store. Mirror failures never affect the crawl.
func (r *Runner) mirrorRecords(ctx context.Context, target string) {
	records, err := r.deps.Checkpoints.Load(target)
	if err != nil {
		r.deps.Logger.Warn("could not load checkpoint for mirroring",
			zap.String("target", target),
			zap.Error(err),
		)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := r.deps.Records.SaveRecords(ctx, r.runID, records); err != nil {
		r.deps.Logger.Warn("could not mirror records to store",
			zap.String("target", target),
			zap.Error(err),
		)
	}
}

func (r *Runner) buildReport(startedAt time.Time, summaries []crawl.TargetSummary) RunReport {
	report := RunReport{
		RunID:      r.runID.String(),
		StartedAt:  startedAt,
		FinishedAt: r.deps.Clock.Now(),
		Targets:    summaries,
	}
	for _, summary := range summaries {
		report.Records += summary.Records
		if summary.Abandoned {
			report.Abandoned++
		}
	}
	return report
}

func (r *Runner) emit(evt progress.Event) {
	if r.deps.Hub == nil {
		return
	}
	evt.RunID = r.runID
	evt.TS = r.deps.Clock.Now()
	r.deps.Hub.Emit(evt)
}

// emittingConfirmer surfaces manual suspensions on the progress stream
// before delegating to the real gate.
type emittingConfirmer struct {
	runner *Runner
	inner  crawl.Confirmer
}

func (c *emittingConfirmer) Wait(ctx context.Context, reason string) error {
	c.runner.emit(progress.Event{Stage: progress.StageAuthWait, Note: reason})
	return c.inner.Wait(ctx, reason)
}
