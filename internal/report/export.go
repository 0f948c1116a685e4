package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"golang.org/x/sync/errgroup"

	"finance/internal/core"
)

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\ufeff"

var csvHeader = []string{"date", "category", "description", "amount", "type"}

// Row is one line of the export.
type Row struct {
	ID          int64
	Date        core.Date
	Category    string
	Description string
	Amount      core.Money
	Kind        core.Kind
}

// Exporter flattens a month of income and expense records.
type Exporter struct {
	store Reader
}

func NewExporter(store Reader) *Exporter {
	return &Exporter{store: store}
}

// Filename is the attachment name for a period's export.
func Filename(period core.Period) string {
	return fmt.Sprintf("finance_report_%s.csv", period)
}

// Rows returns every record of period ordered by date ascending; on the same
// day income comes before expense, then lower ids first.
func (x *Exporter) Rows(ctx context.Context, period core.Period) ([]Row, error) {
	var incomes, expenses []core.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = x.store.ListByPeriod(gctx, core.KindIncome, period)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = x.store.ListByPeriod(gctx, core.KindExpense, period)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export rows for %s: %w", period, err)
	}

	rows := make([]Row, 0, len(incomes)+len(expenses))
	for _, recs := range [][]core.Record{incomes, expenses} {
		for _, r := range recs {
			rows = append(rows, Row{
				ID:          r.ID,
				Date:        r.Date,
				Category:    r.Category,
				Description: r.Description,
				Amount:      r.Amount,
				Kind:        r.Kind,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		if a.Kind != b.Kind {
			return a.Kind == core.KindIncome
		}
		return a.ID < b.ID
	})
	return rows, nil
}

// WriteCSV writes the export of period to w and returns the number of data rows.
func (x *Exporter) WriteCSV(ctx context.Context, w io.Writer, period core.Period) (int, error) {
	rows, err := x.Rows(ctx, period)
	if err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return 0, fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.Date.String(), r.Category, r.Description, r.Amount.String(), r.Kind.String()}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(rows), nil
}
