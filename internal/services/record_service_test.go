package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance/internal/amqp"
	"finance/internal/core"
	"finance/internal/metrics"
	"finance/internal/storage"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.RecordEvent
	err    error
}

func (f *fakePublisher) PublishRecordEvent(_ context.Context, ev *amqp.RecordEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) actions() []amqp.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]amqp.Action, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Action)
	}
	return out
}

func newService(t *testing.T, pub EventPublisher) (*RecordService, *metrics.Metrics) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "svc.db"), nil)
	require.NoError(t, err)
	m := metrics.New()
	svc := NewRecordService(repo, pub, m, nil)
	t.Cleanup(func() { svc.Close() })
	return svc, m
}

func newExpense(date string, cents int64) core.Record {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Record{Kind: core.KindExpense, Date: d, Category: "food", Amount: core.Money{Cents: cents}}
}

func TestRecordService_Lifecycle(t *testing.T) {
	pub := &fakePublisher{}
	svc, m := newService(t, pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, newExpense("2024-03-05", 10000))
	require.NoError(t, err)
	assert.Positive(t, created.ID)

	list, err := svc.List(ctx, core.KindExpense, core.Period{Year: 2024, Month: 3})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	edited := created
	edited.Amount = core.Money{Cents: 2000}
	require.NoError(t, svc.Update(ctx, edited))

	got, err := svc.Get(ctx, core.KindExpense, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.Amount.Cents)

	require.NoError(t, svc.Delete(ctx, core.KindExpense, created.ID))
	_, err = svc.Get(ctx, core.KindExpense, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []amqp.Action{amqp.ActionCreated, amqp.ActionUpdated, amqp.ActionDeleted}, pub.actions())
	assert.Equal(t, "2024-03", pub.events[2].Period)
	assert.Equal(t, created.ID, pub.events[2].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsWrittenCounter("expense", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsWrittenCounter("expense", "deleted")))
}

func TestRecordService_DeleteMissingIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	require.NoError(t, svc.Delete(context.Background(), core.KindIncome, 404))
	assert.Empty(t, pub.actions())
}

func TestRecordService_UpdateMissing(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	rec := newExpense("2024-03-05", 100)
	rec.ID = 99
	err := svc.Update(context.Background(), rec)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, pub.actions())
}

func TestRecordService_InvalidInputLeavesStoreUnchanged(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)
	ctx := context.Background()

	_, err := svc.Create(ctx, newExpense("2024-03-05", 0))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	list, err := svc.List(ctx, core.KindExpense, core.Period{Year: 2024, Month: 3})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, pub.actions())
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, _ := newService(t, pub)

	created, err := svc.Create(context.Background(), newExpense("2024-03-05", 100))
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Len(t, pub.actions(), 1)
}

func TestRecordService_WithoutPublisher(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Create(context.Background(), newExpense("2024-03-05", 100))
	require.NoError(t, err)
}
