// Package google implements the record mirror on the Google Sheets API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finance/internal/config"
	"finance/internal/core"
	"finance/internal/log"
	ports "finance/internal/sheets"
)

const (
	valueInputOption = "USER_ENTERED"
	lastColumn       = "J"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ ports.RecordMirror = (*Client)(nil)

// New creates a Sheets client authenticated with the configured service
// account.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.GoogleSpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	credentialsJSON, err := cfg.ServiceAccountCredentials()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test
// endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	if sheetName == "" {
		sheetName = "Records"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// Upsert overwrites the keyed row of rec or writes it below the last used
// row. An empty tab gets the header first.
func (c *Client) Upsert(ctx context.Context, rec core.Record) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	key := ports.Key(rec.Kind, rec.ID)
	keys, err := c.readKeys(ctx)
	if err != nil {
		return err
	}

	row := findRow(keys, key)
	if row == 0 {
		if len(keys) == 0 {
			if err := c.writeRow(ctx, 1, ports.HeaderValues()); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			keys = append(keys, ports.Columns[0])
		}
		row = len(keys) + 1
	}

	if err := c.writeRow(ctx, row, ports.RowValues(rec)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	c.logger.DebugContext(ctx, "Mirrored record",
		log.FieldKind, rec.Kind, log.FieldRecordID, rec.ID, log.FieldSheetsRange, c.rowRange(row))
	return nil
}

// Remove clears the keyed row, leaving a blank line so that other rows
// keep their position.
func (c *Client) Remove(ctx context.Context, kind core.Kind, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	key := ports.Key(kind, id)
	keys, err := c.readKeys(ctx)
	if err != nil {
		return err
	}
	row := findRow(keys, key)
	if row == 0 {
		c.logger.DebugContext(ctx, "No mirrored row to clear", log.FieldKind, kind, log.FieldRecordID, id)
		return nil
	}

	rng := c.rowRange(row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	c.logger.DebugContext(ctx, "Cleared mirrored record",
		log.FieldKind, kind, log.FieldRecordID, id, log.FieldSheetsRange, rng)
	return nil
}

// readKeys returns column A, one entry per sheet row up to the last used
// one. Blank rows read as "".
func (c *Client) readKeys(ctx context.Context) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return firstColumn(resp.Values), nil
}

func (c *Client) writeRow(ctx context.Context, row int, values []any) error {
	rng := c.rowRange(row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, lastColumn, row)
}

func firstColumn(values [][]any) []string {
	out := make([]string, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
	}
	return out
}

// findRow returns the 1-based sheet row holding key, or 0. The header row
// never matches.
func findRow(keys []string, key string) int {
	for i, k := range keys {
		if i == 0 {
			continue
		}
		if k == key {
			return i + 1
		}
	}
	return 0
}
