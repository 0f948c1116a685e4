package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-05", true},
		{"2024-02-29", true},
		{" 2024-12-31 ", true},
		{"9999-12-31", true},
		{"2023-02-29", false},
		{"0000-05-01", false},
		{"2024-13-01", false},
		{"2024-3-5", false},
		{"05/03/2024", false},
		{"", false},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q expected error, got %v", tc.in, d)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("%q error %v should wrap ErrInvalidInput", tc.in, err)
			}
		}
	}
}

func TestDatePeriod(t *testing.T) {
	d := NewDate(2024, 3, 5)
	if got := d.String(); got != "2024-03-05" {
		t.Errorf("String() = %q, want 2024-03-05", got)
	}
	if got := d.Period(); got != (Period{Year: 2024, Month: 3}) {
		t.Errorf("Period() = %v, want 2024-03", got)
	}
	if err := (Date{Time: time.Time{}}).Validate(); err == nil {
		t.Error("zero date should not validate")
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"income":   KindIncome,
		"expense":  KindExpense,
		" Income ": KindIncome,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "transfer", "expenses"} {
		if _, err := ParseKind(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseKind(%q) error = %v, want ErrInvalidInput", in, err)
		}
	}
}

func TestRecordValidate(t *testing.T) {
	good := Record{
		Kind:     KindExpense,
		Date:     NewDate(2025, 1, 1),
		Category: "food",
		Amount:   Money{Cents: 100},
		Details:  &ExpenseDetails{PaymentMethod: "card", NeedOrWant: "need"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	income := Record{Kind: KindIncome, Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}}
	if err := income.Validate(); err != nil {
		t.Fatalf("income without category expected ok, got %v", err)
	}

	long := strings.Repeat("x", MaxLabelLength+1)
	bads := []Record{
		{Kind: "transfer", Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}},
		{Kind: KindExpense, Amount: Money{Cents: 1}},
		{Kind: KindExpense, Date: NewDate(2025, 1, 1), Amount: Money{Cents: 0}},
		{Kind: KindExpense, Date: NewDate(2025, 1, 1), Amount: Money{Cents: -5}},
		{Kind: KindExpense, Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}, Category: long},
		{Kind: KindExpense, Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}, Description: strings.Repeat("y", MaxTextLength+1)},
		{Kind: KindExpense, Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}, Details: &ExpenseDetails{Mood: long}},
		{Kind: KindIncome, Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}, Details: &ExpenseDetails{}},
	}
	for i, r := range bads {
		err := r.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d error %v is not a ValidationError", i, err)
		}
	}
}

func TestCategoryLabel(t *testing.T) {
	if got := CategoryLabel(""); got != Uncategorized {
		t.Errorf("CategoryLabel(\"\") = %q, want %q", got, Uncategorized)
	}
	if got := CategoryLabel("  "); got != Uncategorized {
		t.Errorf("CategoryLabel(blank) = %q, want %q", got, Uncategorized)
	}
	if got := (Record{Category: "rent"}).CategoryLabel(); got != "rent" {
		t.Errorf("CategoryLabel() = %q, want rent", got)
	}
}
