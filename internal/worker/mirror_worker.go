// Package worker applies record events to the spreadsheet mirror.
package worker

import (
	"context"
	"errors"
	"fmt"

	"finance/internal/amqp"
	"finance/internal/core"
	"finance/internal/log"
	"finance/internal/metrics"
	"finance/internal/sheets"
)

// RecordSource is the read side of the record store.
type RecordSource interface {
	Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error)
	ListByPeriod(ctx context.Context, kind core.Kind, period core.Period) ([]core.Record, error)
}

// MirrorWorker loads the current state of each announced record and writes
// it to the mirror. Events carry identity only, so redelivered or reordered
// events converge on the store's state.
type MirrorWorker struct {
	records RecordSource
	mirror  sheets.RecordMirror
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewMirrorWorker(records RecordSource, mirror sheets.RecordMirror, m *metrics.Metrics, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		records: records,
		mirror:  mirror,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Handle is an amqp.Handler. A returned error makes the broker redeliver.
func (w *MirrorWorker) Handle(ctx context.Context, ev *amqp.RecordEvent) error {
	err := w.apply(ctx, ev)
	w.metrics.EventConsumed(string(ev.Action), err)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Record event mirrored",
		log.FieldMessageID, ev.MessageID,
		log.FieldKind, ev.Kind,
		log.FieldRecordID, ev.ID,
		"action", ev.Action)
	return nil
}

func (w *MirrorWorker) apply(ctx context.Context, ev *amqp.RecordEvent) error {
	switch ev.Action {
	case amqp.ActionCreated, amqp.ActionUpdated:
		rec, err := w.records.Get(ctx, ev.Kind, ev.ID)
		if errors.Is(err, core.ErrNotFound) {
			w.logger.InfoContext(ctx, "Record no longer stored, clearing mirrored row",
				log.FieldKind, ev.Kind, log.FieldRecordID, ev.ID)
			return w.remove(ctx, ev.Kind, ev.ID)
		}
		if err != nil {
			return fmt.Errorf("load %s %d: %w", ev.Kind, ev.ID, err)
		}
		if err := w.mirror.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("mirror %s %d: %w", ev.Kind, ev.ID, err)
		}
		return nil
	case amqp.ActionDeleted:
		return w.remove(ctx, ev.Kind, ev.ID)
	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
}

func (w *MirrorWorker) remove(ctx context.Context, kind core.Kind, id int64) error {
	if err := w.mirror.Remove(ctx, kind, id); err != nil {
		return fmt.Errorf("clear %s %d: %w", kind, id, err)
	}
	return nil
}

// ResyncPeriod writes every record of period to the mirror. It recovers
// rows for events lost while the worker was down.
func (w *MirrorWorker) ResyncPeriod(ctx context.Context, period core.Period) (int, error) {
	synced := 0
	for _, kind := range core.Kinds {
		recs, err := w.records.ListByPeriod(ctx, kind, period)
		if err != nil {
			return synced, fmt.Errorf("list %s for %s: %w", kind, period, err)
		}
		for _, rec := range recs {
			if err := w.mirror.Upsert(ctx, rec); err != nil {
				return synced, fmt.Errorf("mirror %s %d: %w", rec.Kind, rec.ID, err)
			}
			synced++
		}
	}
	w.logger.InfoContext(ctx, "Startup resync completed",
		log.FieldOperation, log.OpSync, log.FieldPeriod, period.String(), "synced", synced)
	return synced, nil
}
