// Package report computes the monthly aggregates and the CSV export.
package report

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"finance/internal/core"
)

// TrendMonths is the length of the trailing trend window.
const TrendMonths = 6

// Reader is the read side of the record store.
type Reader interface {
	ListByPeriod(ctx context.Context, kind core.Kind, period core.Period) ([]core.Record, error)
	CategorySums(ctx context.Context, kind core.Kind, period core.Period) ([]core.CategoryAmount, error)
	MonthlyTotals(ctx context.Context, kind core.Kind, from, to core.Period) (map[core.Period]core.Money, error)
}

// Engine builds chart data for a month.
type Engine struct {
	store Reader
}

func NewEngine(store Reader) *Engine {
	return &Engine{store: store}
}

// ChartData aggregates period: totals, per-category sums and the trend over
// the TrendMonths calendar months ending at period.
func (e *Engine) ChartData(ctx context.Context, period core.Period) (core.ChartData, error) {
	var (
		incomeSums, expenseSums   []core.CategoryAmount
		incomeTrend, expenseTrend map[core.Period]core.Money
		months                    = period.Trailing(TrendMonths)
		first, last               = months[0], months[len(months)-1]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomeSums, err = e.store.CategorySums(gctx, core.KindIncome, period)
		return err
	})
	g.Go(func() error {
		var err error
		expenseSums, err = e.store.CategorySums(gctx, core.KindExpense, period)
		return err
	})
	g.Go(func() error {
		var err error
		incomeTrend, err = e.store.MonthlyTotals(gctx, core.KindIncome, first, last)
		return err
	})
	g.Go(func() error {
		var err error
		expenseTrend, err = e.store.MonthlyTotals(gctx, core.KindExpense, first, last)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.ChartData{}, fmt.Errorf("chart data for %s: %w", period, err)
	}

	data := core.ChartData{
		Period:            period,
		IncomeByCategory:  bucket(incomeSums),
		ExpenseByCategory: bucket(expenseSums),
		Trend:             make([]core.TrendPoint, 0, len(months)),
	}
	data.TotalIncome = total(data.IncomeByCategory)
	data.TotalExpense = total(data.ExpenseByCategory)

	for _, m := range months {
		data.Trend = append(data.Trend, core.TrendPoint{
			Period:  m,
			Income:  incomeTrend[m],
			Expense: expenseTrend[m],
		})
	}
	return data, nil
}

// bucket merges duplicate labels and orders by amount descending, then name.
func bucket(sums []core.CategoryAmount) []core.CategoryAmount {
	merged := map[string]int64{}
	for _, s := range sums {
		merged[core.CategoryLabel(s.Name)] += s.Amount.Cents
	}
	out := make([]core.CategoryAmount, 0, len(merged))
	for name, cents := range merged {
		out = append(out, core.CategoryAmount{Name: name, Amount: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func total(sums []core.CategoryAmount) core.Money {
	var m core.Money
	for _, s := range sums {
		m = m.Add(s.Amount)
	}
	return m
}
