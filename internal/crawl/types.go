package crawl

import (
	"fmt"
	"time"
)

// Target is one crawl target: a display name plus an ordered list of seed
// search URLs. Targets are immutable for the duration of a run.
type Target struct {
	Name     string   `json:"name" mapstructure:"name"`
	SeedURLs []string `json:"seed_urls" mapstructure:"seed_urls"`
}

// Cursor identifies which result page is being requested for a seed URL.
// Offset only ever advances, by exactly PageSize per successful page, and is
// reset to zero when a new seed URL begins.
type Cursor struct {
	Base     string
	Offset   int
	PageSize int
}

// Advance returns the cursor for the next page.
func (c Cursor) Advance() Cursor {
	c.Offset += c.PageSize
	return c
}

// Anchor is a stable per-page handle for one listing prior to activation.
type Anchor struct {
	ID       string
	Promoted bool
}

// Record is a single extracted job posting.
type Record struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Salary      string    `json:"salary_range"`
	Posted      string    `json:"posted_date"`
	Description string    `json:"description"`
	Permalink   string    `json:"url"`
	RecordID    string    `json:"job_id"`
	Seq         int       `json:"company_job_count"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Valid reports whether the record carries the mandatory fields. Records
// failing this check are dropped before being appended to a checkpoint.
func (r Record) Valid() bool {
	return r.RecordID != "" && r.Title != ""
}

// Cookie is one persisted credential entry for the authenticated domain.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

// RunState tracks per-target progress while the controller loop runs.
type RunState struct {
	Processed        int
	RecoveryAttempts int
	LastSignature    Signature
	Cursor           Cursor
}

// SeedOutcome describes how a seed URL finished.
type SeedOutcome string

// Seed URL terminal states.
const (
	SeedCompleted SeedOutcome = "completed"
	SeedEmpty     SeedOutcome = "empty"
	SeedAbandoned SeedOutcome = "abandoned"
)

// SeedResult summarizes one seed URL of a target.
type SeedResult struct {
	SeedURL string      `json:"seed_url"`
	Pages   int         `json:"pages"`
	Records int         `json:"records"`
	Outcome SeedOutcome `json:"outcome"`
	Error   string      `json:"error,omitempty"`
}

// TargetSummary is the per-target result reported to the runner. Record
// payloads live in the checkpoint file; the summary only carries counts.
type TargetSummary struct {
	Target     string       `json:"target"`
	Records    int          `json:"records"`
	Pages      int          `json:"pages"`
	Recoveries int          `json:"recoveries"`
	Abandoned  bool         `json:"abandoned"`
	Seeds      []SeedResult `json:"seeds"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// PermalinkForID builds the canonical view URL for a record ID using the
// supplied format (e.g. "https://www.linkedin.com/jobs/view/%s/"). The
// permalink is derived from the record ID alone, never from the current
// browsing URL, which carries transient query noise.
func PermalinkForID(format, id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf(format, id)
}
