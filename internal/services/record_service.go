// Package services orchestrates record writes across the store and the
// event bus.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"finance/internal/amqp"
	"finance/internal/core"
	"finance/internal/log"
	"finance/internal/metrics"
)

// Store is the persistence the service writes through.
type Store interface {
	Create(ctx context.Context, rec core.Record) (core.Record, error)
	Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error)
	ListByPeriod(ctx context.Context, kind core.Kind, period core.Period) ([]core.Record, error)
	Update(ctx context.Context, rec core.Record) error
	Delete(ctx context.Context, kind core.Kind, id int64) (bool, error)
}

// EventPublisher announces record changes. It is optional.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, ev *amqp.RecordEvent) error
}

// RecordService is the single mutation path for records.
type RecordService struct {
	store     Store
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
}

func NewRecordService(store Store, publisher EventPublisher, m *metrics.Metrics, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecordService{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentRecords),
	}
}

// Create saves rec and publishes a created event.
func (s *RecordService) Create(ctx context.Context, rec core.Record) (core.Record, error) {
	created, err := s.store.Create(ctx, rec)
	if err != nil {
		return core.Record{}, fmt.Errorf("create %s: %w", rec.Kind, err)
	}
	s.afterWrite(ctx, amqp.ActionCreated, created)
	return created, nil
}

// Update replaces every mutable field of rec. A missing id is reported as
// core.ErrNotFound and nothing is published.
func (s *RecordService) Update(ctx context.Context, rec core.Record) error {
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update %s: %w", rec.Kind, err)
	}
	s.afterWrite(ctx, amqp.ActionUpdated, rec)
	return nil
}

// Delete removes a record. Deleting an absent id succeeds without effect.
func (s *RecordService) Delete(ctx context.Context, kind core.Kind, id int64) error {
	rec, err := s.store.Get(ctx, kind, id)
	if errors.Is(err, core.ErrNotFound) {
		s.logger.InfoContext(ctx, "Delete of missing record ignored", log.FieldKind, kind, log.FieldRecordID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	deleted, err := s.store.Delete(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if deleted {
		s.afterWrite(ctx, amqp.ActionDeleted, rec)
	}
	return nil
}

// Get loads a single record.
func (s *RecordService) Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error) {
	return s.store.Get(ctx, kind, id)
}

// List returns the records of one month, newest first.
func (s *RecordService) List(ctx context.Context, kind core.Kind, period core.Period) ([]core.Record, error) {
	recs, err := s.store.ListByPeriod(ctx, kind, period)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return recs, nil
}

func (s *RecordService) afterWrite(ctx context.Context, action amqp.Action, rec core.Record) {
	s.metrics.RecordWritten(rec.Kind.String(), string(action))

	fields := log.NewFields().
		WithOperation(string(action)).
		WithRecord(rec.Kind.String(), rec.ID, rec.Date.String(), rec.Amount.Cents)
	s.logger.InfoContext(ctx, "Record "+string(action), fields.ToSlice()...)

	if s.publisher == nil {
		return
	}
	ev := amqp.NewRecordEvent(action, rec)
	if err := s.publisher.PublishRecordEvent(ctx, ev); err != nil {
		// don't fail the request, the record is saved locally
		s.logger.ErrorContext(ctx, "Failed to publish record event",
			log.FieldMessageID, ev.MessageID,
			log.FieldKind, rec.Kind,
			log.FieldRecordID, rec.ID,
			log.FieldError, err)
	}
}

// Close releases the store and the publisher when they hold resources.
func (s *RecordService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
