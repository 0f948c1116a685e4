package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"finance/internal/core"
	"finance/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores income and expense records in a single SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

// DSN adds the connection pragmas every pooled connection needs.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database file is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create inserts rec and returns it with the assigned id.
func (r *SQLiteRepository) Create(ctx context.Context, rec core.Record) (core.Record, error) {
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	q, err := queriesFor(rec.Kind)
	if err != nil {
		return core.Record{}, err
	}

	res, err := r.db.ExecContext(ctx, q.insert, recordArgs(rec)...)
	if err != nil {
		return core.Record{}, fmt.Errorf("insert %s: %w", rec.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Record{}, fmt.Errorf("read %s id: %w", rec.Kind, err)
	}

	rec.ID = id
	if rec.Kind == core.KindExpense && rec.Details == nil {
		rec.Details = &core.ExpenseDetails{}
	}

	r.logger.DebugContext(ctx, "Record saved",
		log.NewFields().WithRecord(rec.Kind.String(), id, rec.Date.String(), rec.Amount.Cents).ToSlice()...)
	return rec, nil
}

// Get loads one record; a missing id yields core.ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return core.Record{}, err
	}
	rec, err := scanRecord(kind, r.db.QueryRowContext(ctx, q.get, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return rec, nil
}

// ListByPeriod returns the records of one month, newest first.
func (r *SQLiteRepository) ListByPeriod(ctx context.Context, kind core.Kind, period core.Period) ([]core.Record, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	from, to := dateRange(period, period)
	rows, err := r.db.QueryContext(ctx, q.listByRange, from, to)
	if err != nil {
		return nil, fmt.Errorf("list %s for %s: %w", kind, period, err)
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return records, nil
}

// Update replaces every mutable field of rec in one statement.
func (r *SQLiteRepository) Update(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	q, err := queriesFor(rec.Kind)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, q.update, append(recordArgs(rec), rec.ID)...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", rec.Kind, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: %w", rec.Kind, rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", rec.Kind, rec.ID, core.ErrNotFound)
	}

	r.logger.DebugContext(ctx, "Record updated",
		log.NewFields().WithRecord(rec.Kind.String(), rec.ID, rec.Date.String(), rec.Amount.Cents).ToSlice()...)
	return nil
}

// Delete removes a record. Deleting an absent id is a no-op and reports false.
func (r *SQLiteRepository) Delete(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, q.delete, id)
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return n > 0, nil
}

// CategorySums totals one month by category. Empty and NULL categories
// share the uncategorized bucket.
func (r *SQLiteRepository) CategorySums(ctx context.Context, kind core.Kind, period core.Period) ([]core.CategoryAmount, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	from, to := dateRange(period, period)
	rows, err := r.db.QueryContext(ctx, q.categorySums, from, to)
	if err != nil {
		return nil, fmt.Errorf("category sums %s for %s: %w", kind, period, err)
	}
	defer rows.Close()

	byName := map[string]int64{}
	order := []string{}
	for rows.Next() {
		var name string
		var cents int64
		if err := rows.Scan(&name, &cents); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		label := core.CategoryLabel(name)
		if _, ok := byName[label]; !ok {
			order = append(order, label)
		}
		byName[label] += cents
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category sums: %w", err)
	}

	sums := make([]core.CategoryAmount, 0, len(order))
	for _, name := range order {
		sums = append(sums, core.CategoryAmount{Name: name, Amount: core.Money{Cents: byName[name]}})
	}
	return sums, nil
}

// MonthlyTotals sums each month from..to inclusive. Months without records
// are absent from the map.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, kind core.Kind, from, to core.Period) (map[core.Period]core.Money, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	start, end := dateRange(from, to)
	rows, err := r.db.QueryContext(ctx, q.monthlyTotals, start, end)
	if err != nil {
		return nil, fmt.Errorf("monthly totals %s: %w", kind, err)
	}
	defer rows.Close()

	totals := map[core.Period]core.Money{}
	for rows.Next() {
		var key string
		var cents int64
		if err := rows.Scan(&key, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		p, err := core.ParsePeriod(key)
		if err != nil {
			return nil, fmt.Errorf("monthly total period %q: %w", key, err)
		}
		totals[p] = core.Money{Cents: cents}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly totals: %w", err)
	}
	return totals, nil
}

// dateRange turns an inclusive month range into inclusive bounds over the
// YYYY-MM-DD strings stored in the tables. Day 31 bounds every month and
// stays inside the four-digit years, unlike the first day of the next month.
func dateRange(from, to core.Period) (string, string) {
	return from.Start().String(), to.String() + "-31"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(kind core.Kind, s scanner) (core.Record, error) {
	var (
		rec         = core.Record{Kind: kind}
		date        string
		category    sql.NullString
		description sql.NullString
		cents       int64
	)
	dest := []any{&rec.ID, &date, &category, &description, &cents}

	var payment, tags, mood, needOrWant sql.NullString
	if kind == core.KindExpense {
		dest = append(dest, &payment, &tags, &mood, &needOrWant)
	}
	if err := s.Scan(dest...); err != nil {
		return core.Record{}, err
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Record{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	rec.Date = d
	rec.Category = category.String
	rec.Description = description.String
	rec.Amount = core.Money{Cents: cents}
	if kind == core.KindExpense {
		rec.Details = &core.ExpenseDetails{
			PaymentMethod: payment.String,
			Tags:          tags.String,
			Mood:          mood.String,
			NeedOrWant:    needOrWant.String,
		}
	}
	return rec, nil
}

func recordArgs(rec core.Record) []any {
	args := []any{
		rec.Date.String(),
		nullString(rec.Category),
		nullString(rec.Description),
		rec.Amount.Cents,
	}
	if rec.Kind == core.KindExpense {
		d := rec.Details
		if d == nil {
			d = &core.ExpenseDetails{}
		}
		args = append(args,
			nullString(d.PaymentMethod),
			nullString(d.Tags),
			nullString(d.Mood),
			nullString(d.NeedOrWant),
		)
	}
	return args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
