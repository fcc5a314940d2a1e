package crawl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldworks/postwatch/internal/progress"
)

// Waiter gates page fetches for politeness. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// ControllerConfig bounds the per-seed page loop.
type ControllerConfig struct {
	// MaxPagesPerSeed is a hard safety cap on pages fetched for one seed URL.
	// Signature termination normally ends a seed long before this.
	MaxPagesPerSeed int
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.MaxPagesPerSeed <= 0 {
		c.MaxPagesPerSeed = 400
	}
	return c
}

// ControllerDeps carries the collaborators a Controller drives.
type ControllerDeps struct {
	Sessions    *SessionManager
	Recovery    *RecoveryCoordinator
	Navigator   *Navigator
	Detector    *Detector
	Extractor   *Extractor
	Checkpoints Checkpointer
	Accessors   AccessorFactory
	Limiter     Waiter
	Hub         *progress.Hub
	RunID       uuid.UUID
	Clock       Clock
	Logger      *zap.Logger
}

// Controller runs the crawl loop for a single target. It exclusively owns one
// session at a time; on fatal agent failures the session is swapped through
// the recovery coordinator, never mutated in place. Controllers are not safe
// for concurrent use; the runner creates one per target worker.
type Controller struct {
	deps       ControllerDeps
	cfg        ControllerConfig
	sess       *Session
	recoveries int
}

// NewController builds a Controller.
func NewController(deps ControllerDeps, cfg ControllerConfig) *Controller {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{deps: deps, cfg: cfg.withDefaults()}
}

// pageResult reports what one page fetch produced.
type pageResult struct {
	sig   Signature
	added int
	empty bool
	ended bool
}

// recordSet accumulates records for one target, deduplicating by record ID.
// A page retried after mid-page recovery re-extracts records that were
// already checkpointed; the set keeps them from appearing twice.
type recordSet struct {
	items []Record
	seen  map[string]struct{}
}

func newRecordSet() *recordSet {
	return &recordSet{seen: make(map[string]struct{})}
}

func (s *recordSet) add(rec Record) bool {
	if _, dup := s.seen[rec.RecordID]; dup {
		return false
	}
	s.seen[rec.RecordID] = struct{}{}
	s.items = append(s.items, rec)
	return true
}

// RunTarget crawls every seed URL of the target in order, accumulating
// records across seeds into one checkpointed list. Seed failures abandon that
// seed only; remaining seeds still run so a partial crawl yields everything
// reachable.
func (c *Controller) RunTarget(ctx context.Context, target Target) (TargetSummary, error) {
	summary := TargetSummary{
		Target:    target.Name,
		StartedAt: c.deps.Clock.Now(),
	}
	c.emit(progress.Event{Stage: progress.StageTargetStart, Target: target.Name})
	defer c.closeSession()

	records := newRecordSet()
	for _, seed := range target.SeedURLs {
		if ctx.Err() != nil {
			summary.Abandoned = true
			break
		}
		res := c.runSeed(ctx, target, seed, records)
		summary.Seeds = append(summary.Seeds, res)
		summary.Pages += res.Pages
		if res.Outcome == SeedAbandoned {
			summary.Abandoned = true
		}
		c.emit(progress.Event{
			Stage:   progress.StageSeedDone,
			Target:  target.Name,
			Seed:    seed,
			Records: res.Records,
			Note:    string(res.Outcome),
		})
	}

	summary.Records = len(records.items)
	summary.Recoveries = c.recoveries
	summary.FinishedAt = c.deps.Clock.Now()

	stage := progress.StageTargetDone
	if summary.Abandoned {
		stage = progress.StageTargetAbandoned
	}
	c.emit(progress.Event{
		Stage:   stage,
		Target:  target.Name,
		Records: summary.Records,
		Dur:     summary.FinishedAt.Sub(summary.StartedAt),
	})

	if summary.Abandoned {
		return summary, fmt.Errorf("target %s abandoned after %d records", target.Name, summary.Records)
	}
	return summary, nil
}

// runSeed drives the cursor loop for one seed URL. The cursor only ever
// advances after a successfully extracted page, so a recovery retries the
// same offset and never skips or repeats a completed page.
func (c *Controller) runSeed(ctx context.Context, target Target, seedURL string, records *recordSet) SeedResult {
	res := SeedResult{SeedURL: seedURL}
	base, err := c.deps.Navigator.Normalize(seedURL)
	if err != nil {
		res.Outcome = SeedAbandoned
		res.Error = err.Error()
		return res
	}

	state := RunState{Cursor: Cursor{Base: base, PageSize: c.deps.Extractor.PageSize()}}
	failures := 0

	for page := 1; page <= c.cfg.MaxPagesPerSeed; {
		if err := ctx.Err(); err != nil {
			res.Outcome = SeedAbandoned
			res.Error = err.Error()
			return res
		}
		pageURL, err := c.deps.Navigator.PageURL(state.Cursor)
		if err != nil {
			res.Outcome = SeedAbandoned
			res.Error = err.Error()
			return res
		}
		if c.deps.Limiter != nil {
			if err := c.deps.Limiter.Wait(ctx); err != nil {
				res.Outcome = SeedAbandoned
				res.Error = err.Error()
				return res
			}
		}

		pageStart := c.deps.Clock.Now()
		pr, err := c.crawlPage(ctx, target, pageURL, state.LastSignature, records)
		res.Records += pr.added
		state.Processed += pr.added

		if err != nil {
			failures++
			kind := Classify(err)
			c.deps.Logger.Warn("page fetch failed",
				zap.String("target", target.Name),
				zap.Int("page", page),
				zap.String("kind", string(kind)),
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
			if failures > c.deps.Recovery.MaxAttempts() {
				res.Outcome = SeedAbandoned
				res.Error = err.Error()
				return res
			}
			if kind == FailureFatal || kind == FailureAuthChallenge {
				c.recoveries++
				state.RecoveryAttempts++
				c.emit(progress.Event{
					Stage:  progress.StageRecovery,
					Target: target.Name,
					Seed:   seedURL,
					Page:   page,
					Note:   err.Error(),
				})
				sess, rerr := c.deps.Recovery.Recover(ctx, c.sess, pageURL)
				c.sess = sess
				if rerr != nil {
					res.Outcome = SeedAbandoned
					res.Error = rerr.Error()
					return res
				}
			}
			continue
		}

		failures = 0
		if pr.ended || pr.empty {
			res.Outcome = SeedCompleted
			if pr.empty && res.Pages == 0 {
				res.Outcome = SeedEmpty
			}
			return res
		}

		res.Pages++
		state.LastSignature = pr.sig
		c.emit(progress.Event{
			Stage:   progress.StagePageDone,
			Target:  target.Name,
			Seed:    seedURL,
			Page:    page,
			Records: pr.added,
			Dur:     c.deps.Clock.Now().Sub(pageStart),
		})
		state.Cursor = state.Cursor.Advance()
		page++
	}

	res.Outcome = SeedCompleted
	res.Error = "page cap reached"
	return res
}

// crawlPage fetches one cursor position and extracts it: navigate, wait for
// the listings to render, compare signatures, then activate and read each
// record. Records gathered before a mid-page failure are still appended and
// checkpointed so recovery resumes without losing them.
func (c *Controller) crawlPage(
	ctx context.Context,
	target Target,
	pageURL string,
	prevSig Signature,
	records *recordSet,
) (pageResult, error) {
	if err := c.ensureSession(ctx, pageURL); err != nil {
		return pageResult{}, err
	}
	agent := c.sess.Agent()
	if err := agent.Navigate(ctx, pageURL); err != nil {
		return pageResult{}, fmt.Errorf("navigate page: %w", err)
	}
	acc := c.deps.Accessors(agent)

	if empty, err := acc.HasEmptyMarker(ctx); err != nil {
		if IsFatal(err) {
			return pageResult{}, fmt.Errorf("empty marker probe: %w", err)
		}
	} else if empty {
		return pageResult{empty: true}, nil
	}

	anchors, err := c.deps.Extractor.EnsureLoaded(ctx, acc)
	if err != nil {
		return pageResult{}, err
	}
	if len(anchors) == 0 {
		// No anchors and no explicit marker: treat as a soft empty page.
		return pageResult{empty: true}, nil
	}

	sig := c.deps.Detector.SignatureOf(anchors)
	if c.deps.Detector.HasEnded(prevSig, sig, false) {
		return pageResult{sig: sig, ended: true}, nil
	}

	recs, extractErr := c.deps.Extractor.ExtractPage(ctx, acc, target.Name, anchors, len(records.items))
	added := 0
	for _, rec := range recs {
		if !rec.Valid() {
			continue
		}
		if records.add(rec) {
			added++
		}
	}
	if added > 0 || extractErr == nil {
		if err := c.deps.Checkpoints.Persist(target.Name, records.items); err != nil {
			c.deps.Logger.Error("checkpoint persist failed",
				zap.String("target", target.Name),
				zap.Error(err),
			)
		}
	}
	return pageResult{sig: sig, added: added}, extractErr
}

// ensureSession lazily establishes the controller's session. Cached
// credentials are restored into the fresh agent; if they no longer hold, the
// session manager suspends at its manual confirmation point.
func (c *Controller) ensureSession(ctx context.Context, pageURL string) error {
	if c.sess.Live() && c.sess.Authenticated() {
		return nil
	}
	c.closeSession()
	sess, err := c.deps.Sessions.EnsureAuthenticated(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("establish session: %w", err)
	}
	c.sess = sess
	return nil
}

func (c *Controller) closeSession() {
	if c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}
}

func (c *Controller) emit(evt progress.Event) {
	if c.deps.Hub == nil {
		return
	}
	evt.RunID = c.deps.RunID
	evt.TS = c.deps.Clock.Now()
	c.deps.Hub.Emit(evt)
}
