package crawl

import (
	"context"
	"time"
)

// Agent is the external stateful rendering driver. Implementations wrap a
// live browser session; an Agent is never shared across concurrently running
// targets.
type Agent interface {
	// Navigate displays url and blocks until the document body is ready.
	Navigate(ctx context.Context, url string) error
	// Location returns the agent's current URL.
	Location(ctx context.Context) (string, error)
	// BodyText returns the rendered text of the page body.
	BodyText(ctx context.Context) (string, error)
	// Cookies returns the full cookie set held by the agent.
	Cookies(ctx context.Context) ([]Cookie, error)
	// SetCookies loads cookies into the agent before navigation.
	SetCookies(ctx context.Context, cookies []Cookie) error
	// Close disposes the underlying browser session.
	Close() error
}

// AgentFactory constructs a fresh Agent. Recovery disposes the failed agent
// and asks the factory for a replacement.
type AgentFactory func(ctx context.Context) (Agent, error)

// FieldRole names a rendered detail region read through the PageAccessor.
type FieldRole string

// Detail regions the extraction pipeline reads.
const (
	FieldTitle             FieldRole = "title"
	FieldLocationAndPosted FieldRole = "location_and_posted"
	FieldDescription       FieldRole = "description"
)

// PageAccessor exposes the rendered result page as capabilities. The concrete
// selector sets live with the implementation; the controller never sees them.
type PageAccessor interface {
	// ListAnchors returns the record anchors rendered on the current page,
	// in display order.
	ListAnchors(ctx context.Context) ([]Anchor, error)
	// Activate clicks the anchor at index, making its detail pane load.
	// Activation is fire-and-forget; completion is observed via
	// WaitForRecordChange.
	Activate(ctx context.Context, index int) error
	// CurrentRecordID reports the record ID encoded in the agent's current
	// location, if any.
	CurrentRecordID(ctx context.Context) (string, bool, error)
	// WaitForRecordChange polls until the location carries a record ID
	// different from previous, or the timeout elapses. It returns the final
	// location and ID either way.
	WaitForRecordChange(ctx context.Context, previous string, timeout time.Duration) (string, string, error)
	// WaitForDetailLoaded blocks until the detail region shows a title
	// element, reporting false on timeout.
	WaitForDetailLoaded(ctx context.Context, timeout time.Duration) (bool, error)
	// ReadField returns the rendered text for one detail region.
	ReadField(ctx context.Context, role FieldRole) (string, error)
	// ScrollResults scrolls the result list container to trigger lazy loads.
	ScrollResults(ctx context.Context) error
	// HasEmptyMarker reports whether the page shows an explicit
	// no-results marker.
	HasEmptyMarker(ctx context.Context) (bool, error)
}

// AccessorFactory binds a PageAccessor to a live Agent. A new accessor is
// obtained whenever the session (and therefore the agent) is replaced.
type AccessorFactory func(agent Agent) PageAccessor

// CredentialStore persists the cookie set between runs and across session
// restarts. Load returning ErrNoCredentials is not an error condition for
// callers; it routes them to the manual sign-in path.
type CredentialStore interface {
	Save(cookies []Cookie) error
	Load() ([]Cookie, error)
}

// Confirmer is the blocking external signal consumed at the manual
// intervention points: start-of-run sign-in and post-recovery auth
// challenges. Implementations may be an operator keypress or an HTTP call;
// the controller only waits on the contract.
type Confirmer interface {
	Wait(ctx context.Context, reason string) error
}

// Checkpointer durably persists the accumulated record list for a target.
// It is invoked after every page, not only at run end.
type Checkpointer interface {
	Persist(target string, records []Record) error
}

// Clock returns the current time (swapped out in tests).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with time.Now in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
