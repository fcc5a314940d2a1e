package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// fakeSite scripts the behavior the fake agents and accessors expose. Pages
// are keyed by pagination offset; failures are keyed by "offset:index".
type fakeSite struct {
	pages            map[int]fakePage
	activateFailures map[string]int
	navFailuresLeft  int
	loggedOut        bool
	agentsMade       int
}

type fakePage struct {
	anchors []Anchor
	empty   bool
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:            make(map[int]fakePage),
		activateFailures: make(map[string]int),
	}
}

func (s *fakeSite) factory() AgentFactory {
	return func(context.Context) (Agent, error) {
		s.agentsMade++
		return &fakeAgent{site: s}, nil
	}
}

func (s *fakeSite) accessorFactory() AccessorFactory {
	return func(a Agent) PageAccessor {
		return &fakeAccessor{agent: a.(*fakeAgent)}
	}
}

type fakeAgent struct {
	site      *fakeSite
	url       string
	currentID string
	cookies   []Cookie
	closed    bool
}

func (a *fakeAgent) Navigate(_ context.Context, target string) error {
	if a.site.navFailuresLeft > 0 {
		a.site.navFailuresLeft--
		return errors.New("websocket: close 1006 abnormal closure")
	}
	a.url = target
	a.currentID = ""
	return nil
}

func (a *fakeAgent) Location(context.Context) (string, error) {
	return a.url, nil
}

func (a *fakeAgent) BodyText(context.Context) (string, error) {
	if a.site.loggedOut {
		return "Please sign in to continue or join now", nil
	}
	return "results for your search", nil
}

func (a *fakeAgent) Cookies(context.Context) ([]Cookie, error) {
	return []Cookie{{Name: "li_at", Value: "session-token", Domain: ".example.com"}}, nil
}

func (a *fakeAgent) SetCookies(_ context.Context, cookies []Cookie) error {
	a.cookies = cookies
	return nil
}

func (a *fakeAgent) Close() error {
	a.closed = true
	return nil
}

func (a *fakeAgent) offset() int {
	u, err := url.Parse(a.url)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(u.Query().Get(DefaultOffsetParam))
	return n
}

type fakeAccessor struct {
	agent *fakeAgent
}

func (f *fakeAccessor) page() fakePage {
	return f.agent.site.pages[f.agent.offset()]
}

func (f *fakeAccessor) ListAnchors(context.Context) ([]Anchor, error) {
	return f.page().anchors, nil
}

func (f *fakeAccessor) Activate(_ context.Context, index int) error {
	key := fmt.Sprintf("%d:%d", f.agent.offset(), index)
	if f.agent.site.activateFailures[key] > 0 {
		f.agent.site.activateFailures[key]--
		return NewAgentError(FailureFatal, "activate", errors.New("target closed"))
	}
	anchors := f.page().anchors
	if index >= len(anchors) {
		return fmt.Errorf("anchor index %d not rendered", index)
	}
	f.agent.currentID = anchors[index].ID
	return nil
}

func (f *fakeAccessor) CurrentRecordID(context.Context) (string, bool, error) {
	return f.agent.currentID, f.agent.currentID != "", nil
}

func (f *fakeAccessor) WaitForRecordChange(_ context.Context, _ string, _ time.Duration) (string, string, error) {
	return f.agent.url, f.agent.currentID, nil
}

func (f *fakeAccessor) WaitForDetailLoaded(context.Context, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeAccessor) ReadField(_ context.Context, role FieldRole) (string, error) {
	switch role {
	case FieldTitle:
		return "Engineer " + f.agent.currentID, nil
	case FieldLocationAndPosted:
		return "Remote · 1 day ago", nil
	case FieldDescription:
		return "Pays $100,000 - $120,000 per year.", nil
	}
	return "", nil
}

func (f *fakeAccessor) ScrollResults(context.Context) error { return nil }

func (f *fakeAccessor) HasEmptyMarker(context.Context) (bool, error) {
	return f.page().empty, nil
}

type fakeCreds struct {
	cookies []Cookie
	loadErr error
	saves   int
}

func (f *fakeCreds) Save(cookies []Cookie) error {
	f.cookies = cookies
	f.saves++
	return nil
}

func (f *fakeCreds) Load() ([]Cookie, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if len(f.cookies) == 0 {
		return nil, ErrNoCredentials
	}
	return f.cookies, nil
}

type fakeConfirmer struct {
	calls  int
	err    error
	onWait func()
}

func (f *fakeConfirmer) Wait(_ context.Context, _ string) error {
	f.calls++
	if f.onWait != nil {
		f.onWait()
	}
	return f.err
}

type fakeCheckpointer struct {
	persists int
	last     []Record
	err      error
}

func (f *fakeCheckpointer) Persist(_ string, records []Record) error {
	if f.err != nil {
		return f.err
	}
	f.persists++
	f.last = append([]Record(nil), records...)
	return nil
}

// stepClock hands out strictly increasing timestamps.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func anchorIDs(records []Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.RecordID)
	}
	return ids
}
