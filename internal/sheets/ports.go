// Package sheets mirrors records into a spreadsheet, one row per record.
package sheets

import (
	"context"
	"fmt"

	"finance/internal/core"
)

// Columns is the header row of the mirror tab.
var Columns = []string{
	"key", "type", "date", "category", "description", "amount",
	"payment_method", "tags", "mood", "need_or_want",
}

// RecordMirror keeps one row per record in sync with the store.
type RecordMirror interface {
	// Upsert writes rec into its keyed row, appending one if needed.
	Upsert(ctx context.Context, rec core.Record) error
	// Remove clears the keyed row. A missing row is not an error.
	Remove(ctx context.Context, kind core.Kind, id int64) error
}

// Key identifies the row of a record, e.g. "expense:12".
func Key(kind core.Kind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// RowValues renders rec in Columns order. Income rows leave the expense
// columns empty.
func RowValues(rec core.Record) []any {
	row := []any{
		Key(rec.Kind, rec.ID),
		rec.Kind.String(),
		rec.Date.String(),
		rec.Category,
		rec.Description,
		rec.Amount.String(),
		"", "", "", "",
	}
	if d := rec.Details; d != nil {
		row[6], row[7], row[8], row[9] = d.PaymentMethod, d.Tags, d.Mood, d.NeedOrWant
	}
	return row
}

// HeaderValues returns Columns as a sheet row.
func HeaderValues() []any {
	out := make([]any, len(Columns))
	for i, c := range Columns {
		out[i] = c
	}
	return out
}
