package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fieldworks/postwatch/internal/progress"
)

// TargetStatus is the per-target slice of a run snapshot.
type TargetStatus struct {
	Target     string    `json:"target"`
	State      string    `json:"state"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	Recoveries int       `json:"recoveries"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RunStatus is a point-in-time view of the whole run, served by the
// status API.
type RunStatus struct {
	RunID      string         `json:"run_id"`
	Running    bool           `json:"running"`
	AwaitingOp bool           `json:"awaiting_operator"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Records    int            `json:"records"`
	Targets    []TargetStatus `json:"targets"`
}

// SummarySink folds the event stream into an in-memory run snapshot.
// Snapshot may be called concurrently with Consume.
type SummarySink struct {
	mu       sync.Mutex
	status   RunStatus
	targets  map[string]*TargetStatus
	awaiting bool
}

// NewSummarySink builds an empty SummarySink.
func NewSummarySink() *SummarySink {
	return &SummarySink{targets: make(map[string]*TargetStatus)}
}

// Consume folds the batch into the snapshot.
func (s *SummarySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if s.status.RunID == "" {
			s.status.RunID = evt.RunID.String()
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.status.Running = true
			s.status.StartedAt = evt.TS
		case progress.StageAuthWait:
			s.awaiting = true
		case progress.StageTargetStart:
			s.awaiting = false
			ts := s.target(evt.Target)
			ts.State = "crawling"
			ts.UpdatedAt = evt.TS
		case progress.StagePageDone:
			s.awaiting = false
			ts := s.target(evt.Target)
			ts.Pages++
			ts.Records += evt.Records
			ts.UpdatedAt = evt.TS
			s.status.Records += evt.Records
		case progress.StageRecovery:
			ts := s.target(evt.Target)
			ts.Recoveries++
			ts.UpdatedAt = evt.TS
		case progress.StageTargetDone:
			ts := s.target(evt.Target)
			ts.State = "done"
			ts.UpdatedAt = evt.TS
		case progress.StageTargetAbandoned:
			ts := s.target(evt.Target)
			ts.State = "abandoned"
			ts.UpdatedAt = evt.TS
		case progress.StageRunDone:
			s.status.Running = false
			s.status.FinishedAt = evt.TS
		}
	}
	return nil
}

// Snapshot returns a copy of the current run status with targets sorted
// by name.
func (s *SummarySink) Snapshot() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.status
	out.AwaitingOp = s.awaiting
	out.Targets = make([]TargetStatus, 0, len(s.targets))
	for _, ts := range s.targets {
		out.Targets = append(out.Targets, *ts)
	}
	sort.Slice(out.Targets, func(i, j int) bool {
		return out.Targets[i].Target < out.Targets[j].Target
	})
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *SummarySink) Close(context.Context) error { return nil }

func (s *SummarySink) target(name string) *TargetStatus {
	ts, ok := s.targets[name]
	if !ok {
		ts = &TargetStatus{Target: name, State: "pending"}
		s.targets[name] = ts
	}
	return ts
}
