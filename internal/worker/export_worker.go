// Package worker turns ledger events into spreadsheet rows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finex/internal/amqp"
	"finex/internal/core"
	"finex/internal/log"
	"finex/internal/sheets"
)

var errUnknownKind = errors.New("unknown ledger event kind")

// ExportWorker mirrors transaction events into a LedgerExporter. Category
// events are acknowledged and ignored; rows keep the name captured when the
// transaction was written.
type ExportWorker struct {
	exporter sheets.LedgerExporter
	logger   *log.Logger
}

func NewExportWorker(exporter sheets.LedgerExporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &ExportWorker{
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// asks the broker to redeliver.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if !ev.IsTransaction() {
		return nil
	}

	start := time.Now()
	switch ev.Kind {
	case amqp.TransactionCreated, amqp.TransactionUpdated:
		if ev.Transaction == nil {
			// redelivery cannot fix this one
			w.logger.WarnContext(ctx, "Dropping transaction event without payload",
				log.FieldEventKind, ev.Kind,
				log.FieldTransactionID, ev.EntityID)
			return nil
		}
		if ev.MovedAcrossYears() {
			if err := w.exporter.Delete(ctx, ev.Principal, ev.EntityID, core.FromNanos(ev.PreviousDate)); err != nil {
				return fmt.Errorf("remove moved transaction %s: %w", ev.EntityID, err)
			}
		}
		row := sheets.RowFromTransaction(core.Principal(ev.Principal), ev.Transaction.ToCore(), ev.Transaction.CategoryName)
		if err := w.exporter.Upsert(ctx, row); err != nil {
			return fmt.Errorf("export transaction %s: %w", ev.EntityID, err)
		}

	case amqp.TransactionDeleted:
		var date time.Time
		if ev.Transaction != nil {
			date = core.FromNanos(ev.Transaction.Date)
		}
		if err := w.exporter.Delete(ctx, ev.Principal, ev.EntityID, date); err != nil {
			return fmt.Errorf("remove exported transaction %s: %w", ev.EntityID, err)
		}

	default:
		// requeueing would loop forever
		w.logger.WarnContext(ctx, "Dropping ledger event", log.FieldEventKind, ev.Kind, log.FieldError, errUnknownKind)
		return nil
	}

	w.logger.InfoContext(ctx, "Exported ledger event",
		log.FieldEventKind, ev.Kind,
		log.FieldTransactionID, ev.EntityID,
		log.FieldPrincipal, ev.Principal,
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}
