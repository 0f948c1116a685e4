package storage

import (
	"fmt"

	"finance/internal/core"
)

// querySet holds the statements for one record table. Table and column
// names come from the fixed kind switch below, never from input.
type querySet struct {
	insert        string
	update        string
	get           string
	listByRange   string
	delete        string
	categorySums  string
	monthlyTotals string
}

const (
	expenseColumns = "date, category, description, amount_cents, payment_method, tags, mood, need_or_want"
	incomeColumns  = "date, category, description, amount_cents"
)

var (
	expenseQueries = newQuerySet("expense", expenseColumns,
		"date = ?, category = ?, description = ?, amount_cents = ?, payment_method = ?, tags = ?, mood = ?, need_or_want = ?",
		"?, ?, ?, ?, ?, ?, ?, ?")
	incomeQueries = newQuerySet("income", incomeColumns,
		"date = ?, category = ?, description = ?, amount_cents = ?",
		"?, ?, ?, ?")
)

func newQuerySet(table, columns, assignments, placeholders string) querySet {
	return querySet{
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columns, placeholders),
		update: fmt.Sprintf("UPDATE %s SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?", table, assignments),
		get:    fmt.Sprintf("SELECT id, %s FROM %s WHERE id = ?", columns, table),
		listByRange: fmt.Sprintf(
			"SELECT id, %s FROM %s WHERE date BETWEEN ? AND ? ORDER BY date DESC, id DESC", columns, table),
		delete: fmt.Sprintf("DELETE FROM %s WHERE id = ?", table),
		categorySums: fmt.Sprintf(
			"SELECT COALESCE(category, ''), SUM(amount_cents) FROM %s WHERE date BETWEEN ? AND ? GROUP BY COALESCE(category, '')",
			table),
		monthlyTotals: fmt.Sprintf(
			"SELECT substr(date, 1, 7), SUM(amount_cents) FROM %s WHERE date BETWEEN ? AND ? GROUP BY substr(date, 1, 7)",
			table),
	}
}

func queriesFor(k core.Kind) (querySet, error) {
	switch k {
	case core.KindExpense:
		return expenseQueries, nil
	case core.KindIncome:
		return incomeQueries, nil
	default:
		return querySet{}, fmt.Errorf("unknown record kind %q: %w", k, core.ErrInvalidKind)
	}
}
