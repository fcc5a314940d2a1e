package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldworks/postwatch/internal/crawl"
)

// Selectors holds the DOM probe lists for the job search pages. Each list is
// tried in order; the source ships markup variants, so probes carry both the
// current and the legacy class names.
type Selectors struct {
	// Card matches one listing in the result list.
	Card string
	// CardIDAttr is the attribute on Card carrying the record ID.
	CardIDAttr string
	// PromotedText flags promoted listings when found in the card text.
	PromotedText string
	// List locates the scrollable result list container.
	List []string
	// Empty locates the explicit no-results banner.
	Empty []string
	// Title, Header and Description locate the detail pane regions.
	Title       []string
	Header      []string
	Description []string
}

// DefaultSelectors returns the probe lists for the job search source.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:         "li[data-occludable-job-id]",
		CardIDAttr:   "data-occludable-job-id",
		PromotedText: "promoted",
		List: []string{
			"div.scaffold-layout__list > div",
			".jobs-search-results-list",
			"ul.scaffold-layout__list-container",
		},
		Empty: []string{
			".jobs-search-no-results-banner",
			".jobs-search-two-pane__no-results-banner--expand",
		},
		Title: []string{
			".job-details-jobs-unified-top-card__job-title h1",
			".job-details-jobs-unified-top-card__job-title",
			"h1.t-24",
		},
		Header: []string{
			".job-details-jobs-unified-top-card__primary-description-container",
			".job-details-jobs-unified-top-card__tertiary-description-container",
			".jobs-unified-top-card__primary-description",
		},
		Description: []string{
			"#job-details",
			".jobs-description__content",
			".jobs-box__html-content",
		},
	}
}

// evaluator is the slice of the browser session the accessor needs.
type evaluator interface {
	Eval(ctx context.Context, js string, out any) error
	Location(ctx context.Context) (string, error)
}

// Accessor implements the page-accessor contract over a live browser
// session. All selector knowledge lives here; the controller above only sees
// anchors, fields and markers.
type Accessor struct {
	eval      evaluator
	sel       Selectors
	nav       *crawl.Navigator
	pollDelay time.Duration
}

// NewAccessor builds an Accessor over a browser session.
func NewAccessor(eval evaluator, sel Selectors, nav *crawl.Navigator, pollDelay time.Duration) *Accessor {
	if pollDelay <= 0 {
		pollDelay = 300 * time.Millisecond
	}
	return &Accessor{eval: eval, sel: sel, nav: nav, pollDelay: pollDelay}
}

// AccessorFactory adapts NewAccessor to the crawl.AccessorFactory contract.
// The agent must be a *Chrome; the factory is only ever paired with the
// chromedp agent factory.
func AccessorFactory(sel Selectors, nav *crawl.Navigator, pollDelay time.Duration) crawl.AccessorFactory {
	return func(a crawl.Agent) crawl.PageAccessor {
		chrome, ok := a.(*Chrome)
		if !ok {
			panic(fmt.Sprintf("accessor factory needs *agent.Chrome, got %T", a))
		}
		return NewAccessor(chrome, sel, nav, pollDelay)
	}
}

type anchorDTO struct {
	ID       string `json:"id"`
	Promoted bool   `json:"promoted"`
}

// ListAnchors returns the listings rendered on the current page in display
// order.
func (a *Accessor) ListAnchors(ctx context.Context) ([]crawl.Anchor, error) {
	js := fmt.Sprintf(`(() => {
		const cards = Array.from(document.querySelectorAll(%q));
		return cards.map(card => ({
			id: card.getAttribute(%q) || '',
			promoted: (card.innerText || '').toLowerCase().includes(%q),
		}));
	})()`, a.sel.Card, a.sel.CardIDAttr, a.sel.PromotedText)

	var dtos []anchorDTO
	if err := a.eval.Eval(ctx, js, &dtos); err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	anchors := make([]crawl.Anchor, 0, len(dtos))
	for _, dto := range dtos {
		anchors = append(anchors, crawl.Anchor{ID: dto.ID, Promoted: dto.Promoted})
	}
	return anchors, nil
}

// Activate clicks the anchor at index. The click targets the card link when
// one exists, falling back to the card itself.
func (a *Accessor) Activate(ctx context.Context, index int) error {
	js := fmt.Sprintf(`(() => {
		const cards = document.querySelectorAll(%q);
		if (%d >= cards.length) return false;
		const card = cards[%d];
		card.scrollIntoView({block: 'center'});
		const link = card.querySelector('a') || card;
		link.click();
		return true;
	})()`, a.sel.Card, index, index)

	var clicked bool
	if err := a.eval.Eval(ctx, js, &clicked); err != nil {
		return fmt.Errorf("activate anchor: %w", err)
	}
	if !clicked {
		return fmt.Errorf("anchor index %d not rendered", index)
	}
	return nil
}

// CurrentRecordID reports the record ID encoded in the current URL, if any.
func (a *Accessor) CurrentRecordID(ctx context.Context) (string, bool, error) {
	loc, err := a.eval.Location(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := a.nav.RecordIDFromURL(loc)
	return id, ok, nil
}

// WaitForRecordChange polls the location until it carries a record ID
// different from previous or the timeout elapses. The final location and ID
// are returned either way; the caller decides what a stale ID means.
func (a *Accessor) WaitForRecordChange(ctx context.Context, previous string, timeout time.Duration) (string, string, error) {
	deadline := time.Now().Add(timeout)
	var loc, id string
	for {
		var err error
		loc, err = a.eval.Location(ctx)
		if err != nil {
			return "", "", err
		}
		if got, ok := a.nav.RecordIDFromURL(loc); ok {
			id = got
			if id != previous {
				return loc, id, nil
			}
		}
		if time.Now().After(deadline) {
			return loc, id, nil
		}
		if err := a.sleep(ctx); err != nil {
			return loc, id, err
		}
	}
}

// WaitForDetailLoaded blocks until the detail pane shows a non-empty title,
// reporting false on timeout.
func (a *Accessor) WaitForDetailLoaded(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		title, err := a.ReadField(ctx, crawl.FieldTitle)
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(title) != "" {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if err := a.sleep(ctx); err != nil {
			return false, err
		}
	}
}

// ReadField returns the rendered text of the first matching probe for role.
func (a *Accessor) ReadField(ctx context.Context, role crawl.FieldRole) (string, error) {
	var probes []string
	switch role {
	case crawl.FieldTitle:
		probes = a.sel.Title
	case crawl.FieldLocationAndPosted:
		probes = a.sel.Header
	case crawl.FieldDescription:
		probes = a.sel.Description
	default:
		return "", fmt.Errorf("unknown field role %q", role)
	}
	for _, probe := range probes {
		js := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			return el ? (el.innerText || '') : '';
		})()`, probe)
		var text string
		if err := a.eval.Eval(ctx, js, &text); err != nil {
			return "", fmt.Errorf("read field %s: %w", role, err)
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", nil
}

// ScrollResults scrolls the result list container to its bottom to trigger
// lazy loading, falling back to a window scroll when no container matches.
func (a *Accessor) ScrollResults(ctx context.Context) error {
	js := fmt.Sprintf(`(() => {
		const probes = %s;
		for (const probe of probes) {
			const el = document.querySelector(probe);
			if (el) { el.scrollTop = el.scrollHeight; return true; }
		}
		window.scrollTo(0, document.body.scrollHeight);
		return false;
	})()`, jsStringArray(a.sel.List))

	var scrolled bool
	if err := a.eval.Eval(ctx, js, &scrolled); err != nil {
		return fmt.Errorf("scroll results: %w", err)
	}
	return nil
}

// HasEmptyMarker reports whether the page shows the no-results banner.
func (a *Accessor) HasEmptyMarker(ctx context.Context) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const probes = %s;
		return probes.some(probe => document.querySelector(probe) !== null);
	})()`, jsStringArray(a.sel.Empty))

	var found bool
	if err := a.eval.Eval(ctx, js, &found); err != nil {
		return false, fmt.Errorf("empty marker probe: %w", err)
	}
	return found, nil
}

func (a *Accessor) sleep(ctx context.Context) error {
	timer := time.NewTimer(a.pollDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jsStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
