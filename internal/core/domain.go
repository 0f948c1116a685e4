package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Uncategorized is the bucket for records without a category.
const Uncategorized = "uncategorized"

const (
	MaxLabelLength = 64
	MaxTextLength  = 200
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

type (
	// Kind selects which table a record lives in.
	Kind string

	Date struct {
		time.Time
	}

	// ExpenseDetails holds the fields only expenses carry.
	ExpenseDetails struct {
		PaymentMethod string
		Tags          string
		Mood          string
		NeedOrWant    string
	}

	// Record is a single income or expense entry. Details is set only
	// for expenses.
	Record struct {
		ID          int64
		Kind        Kind
		Date        Date
		Category    string
		Description string
		Amount      Money
		Details     *ExpenseDetails
	}
)

// Kinds lists every record kind in report order.
var Kinds = []Kind{KindIncome, KindExpense}

// ParseKind accepts "income" or "expense".
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (k Kind) String() string {
	return string(k)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil || t.Year() < 1 {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// Period returns the month the date belongs to.
func (d Date) Period() Period {
	return PeriodOf(d.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// Validate checks every field before the record reaches storage.
func (r Record) Validate() error {
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if err := checkLength("category", r.Category, MaxLabelLength); err != nil {
		return err
	}
	if err := checkLength("description", r.Description, MaxTextLength); err != nil {
		return err
	}
	if r.Details == nil {
		return nil
	}
	if r.Kind == KindIncome {
		return ErrDetailsOnIncome
	}
	return r.Details.Validate()
}

func (d ExpenseDetails) Validate() error {
	if err := checkLength("payment_method", d.PaymentMethod, MaxLabelLength); err != nil {
		return err
	}
	if err := checkLength("tags", d.Tags, MaxTextLength); err != nil {
		return err
	}
	if err := checkLength("mood", d.Mood, MaxLabelLength); err != nil {
		return err
	}
	return checkLength("need_or_want", d.NeedOrWant, MaxLabelLength)
}

// Period returns the month the record is filed under.
func (r Record) Period() Period {
	return r.Date.Period()
}

// CategoryLabel returns the category or the uncategorized bucket.
func (r Record) CategoryLabel() string {
	return CategoryLabel(r.Category)
}

// CategoryLabel maps an empty category to Uncategorized.
func CategoryLabel(category string) string {
	if strings.TrimSpace(category) == "" {
		return Uncategorized
	}
	return category
}

func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return invalid(field, fmt.Sprintf("%s too long (max %d characters)", field, max))
	}
	return nil
}
