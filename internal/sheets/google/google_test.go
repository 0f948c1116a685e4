package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finance/internal/config"
	"finance/internal/core"
)

const testSpreadsheet = "sheet-123"

// fakeSheet serves the subset of the Sheets values API the client uses,
// backed by an in-memory grid of one tab.
type fakeSheet struct {
	mu    sync.Mutex
	rows  [][]string
	calls []string
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/v4/spreadsheets/" + testSpreadsheet + "/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get "+rng)
		values := make([][]string, 0, len(f.rows))
		for _, row := range f.rows {
			if len(row) == 0 || row[0] == "" {
				values = append(values, []string{})
				continue
			}
			values = append(values, []string{row[0]})
		}
		for len(values) > 0 && len(values[len(values)-1]) == 0 {
			values = values[:len(values)-1]
		}
		writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})

	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update "+rng)
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Values) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		row := make([]string, len(body.Values[0]))
		for i, v := range body.Values[0] {
			row[i], _ = v.(string)
		}
		f.set(rowNumber(rng), row)
		writeJSON(w, map[string]any{"updatedRange": rng})

	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		rng = strings.TrimSuffix(rng, ":clear")
		f.calls = append(f.calls, "clear "+rng)
		f.set(rowNumber(rng), nil)
		writeJSON(w, map[string]any{"clearedRange": rng})

	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (f *fakeSheet) set(row int, values []string) {
	for len(f.rows) < row {
		f.rows = append(f.rows, nil)
	}
	f.rows[row-1] = values
}

func (f *fakeSheet) snapshot() ([][]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([][]string, len(f.rows))
	copy(rows, f.rows)
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return rows, calls
}

// rowNumber extracts 5 from "Records!A5:J5".
func rowNumber(rng string) int {
	cells := rng[strings.Index(rng, "!")+1:]
	start := strings.SplitN(cells, ":", 2)[0]
	n, err := strconv.Atoi(strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewWithService(svc, testSpreadsheet, "Records", nil), fake
}

func record(kind core.Kind, id int64, date string, cents int64) core.Record {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	rec := core.Record{ID: id, Kind: kind, Date: d, Category: "food", Amount: core.Money{Cents: cents}}
	if kind == core.KindExpense {
		rec.Details = &core.ExpenseDetails{PaymentMethod: "card"}
	}
	return rec
}

func TestClient_UpsertWritesHeaderThenRow(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record(core.KindExpense, 1, "2024-03-05", 1250)))

	rows, calls := fake.snapshot()
	require.Len(t, rows, 2)
	assert.Equal(t, "key", rows[0][0])
	assert.Equal(t, []string{"expense:1", "expense", "2024-03-05", "food", "", "12.50", "card", "", "", ""}, rows[1])
	assert.Equal(t, []string{"get Records!A:A", "update Records!A1:J1", "update Records!A2:J2"}, calls)
}

func TestClient_UpsertOverwritesKeyedRow(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record(core.KindExpense, 1, "2024-03-05", 1250)))
	require.NoError(t, client.Upsert(ctx, record(core.KindIncome, 1, "2024-03-01", 500000)))

	updated := record(core.KindExpense, 1, "2024-03-06", 999)
	require.NoError(t, client.Upsert(ctx, updated))

	rows, _ := fake.snapshot()
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-03-06", rows[1][2])
	assert.Equal(t, "9.99", rows[1][5])
	assert.Equal(t, "income:1", rows[2][0])
}

func TestClient_RemoveClearsRow(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record(core.KindExpense, 1, "2024-03-05", 100)))
	require.NoError(t, client.Upsert(ctx, record(core.KindExpense, 2, "2024-03-06", 200)))
	require.NoError(t, client.Remove(ctx, core.KindExpense, 1))

	rows, _ := fake.snapshot()
	require.Len(t, rows, 3)
	assert.Nil(t, rows[1])
	assert.Equal(t, "expense:2", rows[2][0])

	// The cleared line stays blank; new records go below the last used row.
	require.NoError(t, client.Upsert(ctx, record(core.KindExpense, 3, "2024-03-07", 300)))
	rows, _ = fake.snapshot()
	require.Len(t, rows, 4)
	assert.Equal(t, "expense:3", rows[3][0])
}

func TestClient_RemoveMissingIsNoop(t *testing.T) {
	client, fake := newTestClient(t)

	require.NoError(t, client.Remove(context.Background(), core.KindIncome, 42))

	_, calls := fake.snapshot()
	assert.Equal(t, []string{"get Records!A:A"}, calls)
}

func TestClient_APIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	client := NewWithService(svc, testSpreadsheet, "", nil)

	err = client.Upsert(context.Background(), record(core.KindExpense, 1, "2024-03-05", 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read Records!A:A")
}

func TestNew_RequiresSpreadsheetAndCredentials(t *testing.T) {
	_, err := New(context.Background(), &config.Config{}, nil)
	assert.ErrorContains(t, err, "GOOGLE_SPREADSHEET_ID")

	_, err = New(context.Background(), &config.Config{
		GoogleSpreadsheetID:      testSpreadsheet,
		GoogleServiceAccountFile: "/nonexistent/key.json",
	}, nil)
	assert.ErrorContains(t, err, "read service account file")
}

func TestFindRow(t *testing.T) {
	keys := []string{"key", "expense:1", "", "income:1"}
	assert.Equal(t, 2, findRow(keys, "expense:1"))
	assert.Equal(t, 4, findRow(keys, "income:1"))
	assert.Equal(t, 0, findRow(keys, "expense:9"))
	assert.Equal(t, 0, findRow(keys, "key"))
}

func TestFirstColumn(t *testing.T) {
	got := firstColumn([][]any{{"key", "type"}, {}, {" expense:1 "}, {float64(3)}})
	assert.Equal(t, []string{"key", "", "expense:1", "3"}, got)
}
