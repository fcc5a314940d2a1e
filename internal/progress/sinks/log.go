// Package sinks provides progress.Sink implementations: structured logging,
// Prometheus collectors, and the live run summary served by the status API.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/fieldworks/postwatch/internal/progress"
)

// LogSink writes progress milestones to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event at a level matching its severity.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Target != "" {
			fields = append(fields, zap.String("target", evt.Target))
		}
		if evt.Page > 0 {
			fields = append(fields, zap.Int("page", evt.Page))
		}
		if evt.Records > 0 {
			fields = append(fields, zap.Int("records", evt.Records))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("duration", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageTargetAbandoned:
			s.logger.Warn("crawl progress", fields...)
		case progress.StageRecovery, progress.StageAuthWait:
			s.logger.Warn("crawl progress", fields...)
		default:
			s.logger.Info("crawl progress", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error { return nil }
