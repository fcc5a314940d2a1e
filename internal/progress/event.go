// Package progress defines the event stream emitted by crawl controllers
// and the hub that fans events out to sinks (logs, metrics, run summary).
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageAuthWait        Stage = "AUTH_WAIT"
	StageTargetStart     Stage = "TARGET_START"
	StagePageDone        Stage = "PAGE_DONE"
	StageRecovery        Stage = "RECOVERY"
	StageSeedDone        Stage = "SEED_DONE"
	StageTargetDone      Stage = "TARGET_DONE"
	StageTargetAbandoned Stage = "TARGET_ABANDONED"
	StageRunDone         Stage = "RUN_DONE"
)

// Event captures one crawl milestone.
type Event struct {
	// RunID identifies the run the event belongs to.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage names the milestone.
	Stage Stage
	// Target scopes target- and page-level events.
	Target string
	// Seed optionally scopes page events to one seed URL.
	Seed string
	// Page is the 1-based page number for page events.
	Page int
	// Records carries the record count delta (pages) or total (target done).
	Records int
	// Dur captures elapsed time for completed stages.
	Dur time.Duration
	// Note attaches low-volume context, typically error text.
	Note string
}

// Validate performs coarse validation on event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageAuthWait, StageRunDone:
	case StageTargetStart, StagePageDone, StageRecovery, StageSeedDone, StageTargetDone, StageTargetAbandoned:
		if e.Target == "" {
			return fmt.Errorf("stage %s requires target", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
