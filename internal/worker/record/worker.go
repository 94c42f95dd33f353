// Package record consumes finalized call status events and persists them:
// one attempt row per event plus the per-run outcome counters.
package record

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/app"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/queue"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
)

// Worker consumes call status events and persists them.
type Worker struct {
	container *app.Container
}

// New creates a new record worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run processes status events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.ConsumerGroupID + "-record"
	reader := w.container.Kafka.NewReader(cfg.Kafka.StatusTopic, groupID)
	defer reader.Close()

	repos := w.container.Repositories()
	attempts := repos.Attempts
	runs := repos.Runs
	logger := w.container.Logger

	tracer := otel.Tracer("autodial.recordworker")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("record worker: fetch", zap.Error(err))
			continue
		}

		var event queue.CallStatusEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("record worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		sctx, span := tracer.Start(ctx, "attempt.record", trace.WithAttributes(
			attribute.String("session.id", event.SessionID.String()),
			attribute.String("outcome", string(event.Outcome)),
			attribute.Bool("auto_dial", event.AutoDial),
		))

		record := repository.AttemptRecord{
			ID:         uuid.New(),
			SessionID:  event.SessionID,
			RunID:      event.RunID,
			EntryID:    event.EntryID,
			Number:     event.Number,
			Outcome:    event.Outcome,
			CallSID:    event.CallSID,
			Error:      event.Error,
			Duration:   time.Duration(event.DurationMs) * time.Millisecond,
			AutoDial:   event.AutoDial,
			OccurredAt: event.OccurredAt,
		}
		if err := attempts.AppendAttempt(sctx, record); err != nil {
			span.RecordError(err)
			logger.Error("record worker: append attempt", zap.Error(err))
		}

		if event.AutoDial && event.RunID != uuid.Nil {
			delta := repository.DeltaForOutcome(event.Outcome)
			if err := runs.ApplyDelta(sctx, event.RunID, delta); err != nil {
				span.RecordError(err)
				logger.Error("record worker: apply stats", zap.Error(err))
			}
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			logger.Error("record worker: commit", zap.Error(err))
		}
		span.End()
	}
}
