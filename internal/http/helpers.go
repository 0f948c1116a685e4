package http

import (
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"finance/internal/core"
)

// amountPrinter groups digits for display; stored and exported values are
// never localized.
var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders cents as "1,234.50".
func formatAmount(m core.Money) string {
	neg := m.Cents < 0
	cents := m.Cents
	if neg {
		cents = -cents
	}
	s := amountPrinter.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
	if neg {
		return "-" + s
	}
	return s
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, then trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if (r < 32 && r != 9 && r != 10 && r != 13) || r == 127 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": formatAmount,
		"orDash": func(s string) string {
			if s == "" {
				return "-"
			}
			return s
		},
	}
}

// recordJSON is the wire form of a record. Optional text is null when empty.
type recordJSON struct {
	ID          int64      `json:"id"`
	Type        core.Kind  `json:"type"`
	Date        core.Date  `json:"date"`
	Category    *string    `json:"category"`
	Description *string    `json:"description"`
	Amount      core.Money `json:"amount"`
	*DetailsJSON
}

// DetailsJSON carries the expense-only fields; absent for income.
type DetailsJSON struct {
	PaymentMethod *string `json:"payment_method"`
	Tags          *string `json:"tags"`
	Mood          *string `json:"mood"`
	NeedOrWant    *string `json:"need_or_want"`
}

func toRecordJSON(r core.Record) recordJSON {
	out := recordJSON{
		ID:          r.ID,
		Type:        r.Kind,
		Date:        r.Date,
		Category:    nullable(r.Category),
		Description: nullable(r.Description),
		Amount:      r.Amount,
	}
	if r.Details != nil {
		out.DetailsJSON = &DetailsJSON{
			PaymentMethod: nullable(r.Details.PaymentMethod),
			Tags:          nullable(r.Details.Tags),
			Mood:          nullable(r.Details.Mood),
			NeedOrWant:    nullable(r.Details.NeedOrWant),
		}
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
