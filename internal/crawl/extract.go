package crawl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldworks/postwatch/internal/fields"
)

// ExtractConfig controls the per-page extraction pipeline.
type ExtractConfig struct {
	// PageSize is the expected number of listings per result page.
	PageSize int
	// MaxScrolls bounds the scroll/poll loop that coaxes lazy-loaded
	// listings into rendering.
	MaxScrolls int
	// StabilityPolls ends the loop early once the anchor count stops
	// growing for this many consecutive polls.
	StabilityPolls int
	// PollDelay separates consecutive polls.
	PollDelay time.Duration
	// RecordChangeTimeout bounds the wait for the location to carry a new
	// record ID after activation. Activation is otherwise fire-and-forget.
	RecordChangeTimeout time.Duration
	// DetailTimeout bounds the wait for the detail region's title element.
	DetailTimeout time.Duration
	// PermalinkFormat renders a record ID into its canonical view URL.
	PermalinkFormat string
	// ActivateJitter is the upper bound of a random pause before each
	// activation, pacing record clicks like a reader would. Zero disables it.
	ActivateJitter time.Duration
}

func (c ExtractConfig) withDefaults() ExtractConfig {
	if c.PageSize <= 0 {
		c.PageSize = 25
	}
	if c.MaxScrolls <= 0 {
		c.MaxScrolls = 12
	}
	if c.StabilityPolls <= 0 {
		c.StabilityPolls = 2
	}
	if c.PollDelay <= 0 {
		c.PollDelay = 500 * time.Millisecond
	}
	if c.RecordChangeTimeout <= 0 {
		c.RecordChangeTimeout = 7 * time.Second
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = 10 * time.Second
	}
	if c.PermalinkFormat == "" {
		c.PermalinkFormat = "https://www.linkedin.com/jobs/view/%s/"
	}
	return c
}

// Extractor runs the per-page extraction pipeline: make sure enough listings
// are rendered, activate each in order, wait for the detail pane, and pull
// fields through the PageAccessor.
type Extractor struct {
	cfg    ExtractConfig
	clock  Clock
	logger *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(cfg ExtractConfig, clock Clock, logger *zap.Logger) *Extractor {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg.withDefaults(), clock: clock, logger: logger}
}

// PageSize reports the configured listings-per-page count.
func (e *Extractor) PageSize() int { return e.cfg.PageSize }

// EnsureLoaded polls until the rendered anchor count reaches the page size
// or stabilizes (no growth across StabilityPolls consecutive polls), scrolling
// the results container between polls to trigger lazy loading. It returns
// whatever anchors are rendered when the loop ends.
func (e *Extractor) EnsureLoaded(ctx context.Context, acc PageAccessor) ([]Anchor, error) {
	prevCount := -1
	stable := 0
	var anchors []Anchor
	for i := 0; i < e.cfg.MaxScrolls; i++ {
		var err error
		anchors, err = acc.ListAnchors(ctx)
		if err != nil {
			return nil, fmt.Errorf("list anchors: %w", err)
		}
		if len(anchors) >= e.cfg.PageSize {
			return anchors, nil
		}
		if len(anchors) == prevCount {
			stable++
		} else {
			stable = 0
		}
		if stable >= e.cfg.StabilityPolls {
			return anchors, nil
		}
		prevCount = len(anchors)
		if err := acc.ScrollResults(ctx); err != nil {
			e.logger.Debug("scroll failed", zap.Error(err))
		}
		if err := sleepCtx(ctx, e.cfg.PollDelay); err != nil {
			return nil, err
		}
	}
	return anchors, nil
}

// ExtractPage activates each rendered anchor in order and reads its detail
// fields. Per-record failures (activation timeout, missing title) skip that
// record and continue; a fatal agent failure returns the records gathered so
// far alongside the error so the caller can checkpoint before recovering.
// startSeq seeds the per-target sequence number of the first appended record.
func (e *Extractor) ExtractPage(
	ctx context.Context,
	acc PageAccessor,
	target string,
	anchors []Anchor,
	startSeq int,
) ([]Record, error) {
	prevID, _, err := acc.CurrentRecordID(ctx)
	if err != nil && IsFatal(err) {
		return nil, fmt.Errorf("current record id: %w", err)
	}

	limit := len(anchors)
	if limit > e.cfg.PageSize {
		limit = e.cfg.PageSize
	}

	records := make([]Record, 0, limit)
	seq := startSeq
	for i := 0; i < limit; i++ {
		if i > 0 && e.cfg.ActivateJitter > 0 {
			if err := sleepCtx(ctx, randomJitter(e.cfg.ActivateJitter)); err != nil {
				return records, err
			}
		}
		rec, newID, err := e.extractOne(ctx, acc, target, i, prevID, seq+1)
		if err != nil {
			if IsFatal(err) {
				return records, err
			}
			e.logger.Debug("skipping record",
				zap.String("target", target),
				zap.Int("index", i),
				zap.Error(err),
			)
			if newID != "" {
				prevID = newID
			}
			continue
		}
		prevID = newID
		records = append(records, rec)
		seq++
	}
	return records, nil
}

func (e *Extractor) extractOne(
	ctx context.Context,
	acc PageAccessor,
	target string,
	index int,
	prevID string,
	seq int,
) (Record, string, error) {
	if err := acc.Activate(ctx, index); err != nil {
		return Record{}, "", fmt.Errorf("activate anchor %d: %w", index, err)
	}

	_, newID, err := acc.WaitForRecordChange(ctx, prevID, e.cfg.RecordChangeTimeout)
	if err != nil {
		return Record{}, newID, fmt.Errorf("wait record change: %w", err)
	}
	if newID == "" || newID == prevID {
		return Record{}, newID, NewAgentError(FailureRenderTimeout, "record change", nil)
	}

	loaded, err := acc.WaitForDetailLoaded(ctx, e.cfg.DetailTimeout)
	if err != nil {
		return Record{}, newID, fmt.Errorf("wait detail loaded: %w", err)
	}
	if !loaded {
		return Record{}, newID, NewAgentError(FailureRenderTimeout, "detail load", nil)
	}

	title, err := acc.ReadField(ctx, FieldTitle)
	if err != nil {
		return Record{}, newID, fmt.Errorf("read title: %w", err)
	}
	title = strings.TrimSpace(title)
	if placeholderTitle(title) {
		return Record{}, newID, NewAgentError(FailureRenderTimeout, "title missing", nil)
	}

	header, _ := acc.ReadField(ctx, FieldLocationAndPosted)
	location, posted := fields.SplitLocationPosted(header)

	description, _ := acc.ReadField(ctx, FieldDescription)
	description = strings.TrimSpace(description)

	return Record{
		Title:       title,
		Company:     target,
		Location:    location,
		Posted:      posted,
		Description: description,
		Salary:      fields.SalaryFromText(description),
		RecordID:    newID,
		Permalink:   PermalinkForID(e.cfg.PermalinkFormat, newID),
		Seq:         seq,
		ScrapedAt:   e.clock.Now(),
	}, newID, nil
}

// placeholderTitle flags empty or junk titles that mean the detail pane
// never actually rendered this record.
func placeholderTitle(title string) bool {
	if title == "" {
		return true
	}
	if len(title) <= 3 || len(title) >= 200 {
		return true
	}
	return strings.EqualFold(title, "jobs")
}
