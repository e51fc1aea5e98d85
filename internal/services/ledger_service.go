// Package services layers cross-cutting behaviour over a Backend.
package services

import (
	"context"
	"fmt"
	"io"

	"finex/internal/amqp"
	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/log"
	"finex/internal/metrics"
	"finex/internal/ports"
)

// Publisher sends ledger events to the message broker.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService decorates a Backend: every successful transaction or
// category mutation is followed by a ledger event. Reads pass through.
type LedgerService struct {
	ports.Backend
	publisher Publisher
	logger    *log.Logger
	events    *log.StructuredLogger
	metrics   *metrics.Metrics
}

func NewLedgerService(b ports.Backend, publisher Publisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Nop()
	}
	return &LedgerService{
		Backend:   b,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
		events:    log.NewStructuredLogger(logger),
		metrics:   metrics.Get(),
	}
}

func (s *LedgerService) AddTransaction(ctx context.Context, t core.Transaction) error {
	if err := s.Backend.AddTransaction(ctx, t); err != nil {
		return err
	}
	s.afterTransaction(ctx, amqp.TransactionCreated, t, nil)
	return nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	// the old date tells exporters which period to clean up
	prev, _ := s.Backend.GetTransaction(ctx, t.ID)
	if err := s.Backend.UpdateTransaction(ctx, t); err != nil {
		return err
	}
	s.afterTransaction(ctx, amqp.TransactionUpdated, t, prev)
	return nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	// snapshot first so consumers can locate what was removed
	prev, _ := s.Backend.GetTransaction(ctx, id)
	if err := s.Backend.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	p, _ := auth.PrincipalFrom(ctx)
	s.record(ctx, amqp.TransactionDeleted, string(p), log.LogFields{log.FieldTransactionID: id})
	ev := amqp.NewDeletionEvent(amqp.TransactionDeleted, p, id)
	if prev != nil {
		ev.WithTransaction(*prev, "")
	}
	s.publish(ctx, ev)
	return nil
}

func (s *LedgerService) AddCategory(ctx context.Context, c core.Category) error {
	if err := s.Backend.AddCategory(ctx, c); err != nil {
		return err
	}
	s.afterCategory(ctx, amqp.CategoryCreated, c)
	return nil
}

func (s *LedgerService) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := s.Backend.UpdateCategory(ctx, c); err != nil {
		return err
	}
	s.afterCategory(ctx, amqp.CategoryUpdated, c)
	return nil
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.Backend.DeleteCategory(ctx, id); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(ctx)
	s.record(ctx, amqp.CategoryDeleted, string(p), log.LogFields{log.FieldCategoryID: id})
	s.publish(ctx, amqp.NewDeletionEvent(amqp.CategoryDeleted, p, id))
	return nil
}

func (s *LedgerService) afterTransaction(ctx context.Context, kind amqp.EventKind, t core.Transaction, prev *core.Transaction) {
	p, _ := auth.PrincipalFrom(ctx)
	s.record(ctx, kind, string(p), log.NewFields().WithTransaction(t.ID, t.CategoryID, string(t.Type), t.Amount.Amount))

	// the category name makes exported rows readable; a lookup failure
	// only leaves it blank
	var name string
	if c, err := s.Backend.GetCategory(ctx, t.CategoryID); err == nil && c != nil {
		name = c.Name
	}
	ev := amqp.NewTransactionEvent(kind, p, t, name)
	if prev != nil {
		ev.WithPreviousDate(prev.Date)
	}
	s.publish(ctx, ev)
}

func (s *LedgerService) afterCategory(ctx context.Context, kind amqp.EventKind, c core.Category) {
	p, _ := auth.PrincipalFrom(ctx)
	s.record(ctx, kind, string(p), log.LogFields{log.FieldCategoryID: c.ID})
	s.publish(ctx, amqp.NewCategoryEvent(kind, p, c))
}

func (s *LedgerService) record(ctx context.Context, kind amqp.EventKind, principal string, fields log.LogFields) {
	s.metrics.LedgerMutationsTotal.WithLabelValues(string(kind)).Inc()
	s.events.LogLedgerMutation(ctx, string(kind), principal, fields)
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping ledger event", log.FieldEventKind, ev.Kind)
		return
	}
	// the mutation is already stored; a broker outage must not fail it
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventKind, ev.Kind,
			log.FieldRoutingKey, ev.RoutingKey(),
			log.FieldError, err)
	}
}

// Close closes the wrapped backend and the publisher when they hold
// resources.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.Backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}

// Ping forwards to the wrapped backend when it supports readiness checks.
func (s *LedgerService) Ping(ctx context.Context) error {
	if p, ok := s.Backend.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
