package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period identifies a calendar month.
type Period struct {
	Year  int
	Month int // 1-12
}

// NewPeriod validates year and month.
func NewPeriod(year, month int) (Period, error) {
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod parses a YYYY-MM key. The month may omit its leading zero,
// as in 2024-3.
func ParsePeriod(s string) (Period, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || !isDigits(y) || !isDigits(m) || len(m) > 2 {
		return Period{}, ErrInvalidPeriod
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	return NewPeriod(year, month)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Start returns the first day of the month.
func (p Period) Start() Date {
	return NewDate(p.Year, p.Month, 1)
}

// AddMonths moves by whole calendar months; n may be negative.
func (p Period) AddMonths(n int) Period {
	return PeriodOf(time.Date(p.Year, time.Month(p.Month)+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// Trailing returns the n months ending at p, oldest first.
func (p Period) Trailing(n int) []Period {
	out := make([]Period, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, p.AddMonths(-i))
	}
	return out
}
