package merger

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	kind      models.SourceKind
	records   []models.UnifiedTransaction
	excluded  bool
	countErr  error
	pageErr   error
	delay     time.Duration
	pageCalls int32
}

func (f *fakeReader) Kind() models.SourceKind { return f.kind }

func (f *fakeReader) Applies(source.Filter) bool { return !f.excluded }

func (f *fakeReader) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeReader) Count(ctx context.Context, _ source.Filter) (int64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.records)), nil
}

func (f *fakeReader) Page(ctx context.Context, req source.PageRequest) ([]models.UnifiedTransaction, error) {
	atomic.AddInt32(&f.pageCalls, 1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	sorted := append([]models.UnifiedTransaction(nil), f.records...)
	sort.SliceStable(sorted, func(i, j int) bool { return Before(&sorted[i], &sorted[j], req.Sort) })
	if req.Offset >= len(sorted) {
		return nil, nil
	}
	end := req.Offset + req.Limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[req.Offset:end], nil
}

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func rec(kind models.SourceKind, id uint64, at time.Time, amount string, status models.Status) models.UnifiedTransaction {
	return models.UnifiedTransaction{
		ID:         id,
		SourceKind: kind,
		Type:       kind.APIType(),
		Reference:  fmt.Sprintf("%s-%d", kind, id),
		Status:     status,
		CreatedAt:  at,
		Amount:     models.Amount{Crypto: &models.Money{Value: decimal.RequireFromString(amount), Asset: "BTC"}},
	}
}

func scenarioReaders() []*fakeReader {
	return []*fakeReader{
		{kind: models.SourceConversion, records: []models.UnifiedTransaction{
			rec(models.SourceConversion, 1, day.Add(1*time.Hour), "1", models.StatusPending),
			rec(models.SourceConversion, 2, day.Add(5*time.Hour), "2", models.StatusCompleted),
		}},
		{kind: models.SourceWalletTransfer, records: []models.UnifiedTransaction{
			rec(models.SourceWalletTransfer, 1, day.Add(3*time.Hour), "3", models.StatusFailed),
		}},
		{kind: models.SourceFiatTransfer, records: []models.UnifiedTransaction{
			rec(models.SourceFiatTransfer, 1, day.Add(2*time.Hour), "4", models.StatusProcessing),
			rec(models.SourceFiatTransfer, 2, day.Add(4*time.Hour), "5", models.StatusCancelled),
		}},
	}
}

func asReaders(fs []*fakeReader) []source.Reader {
	out := make([]source.Reader, 0, len(fs))
	for _, f := range fs {
		out = append(out, f)
	}
	return out
}

func keys(recs []models.UnifiedTransaction) []models.RecordKey {
	out := make([]models.RecordKey, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].Key())
	}
	return out
}

func TestMergeScenarioTwoPages(t *testing.T) {
	m := New(asReaders(scenarioReaders()), Config{}, zap.NewNop())
	desc := source.Sort{Key: source.SortCreatedAt, Order: source.SortDesc}

	page1, err := m.Merge(context.Background(), Request{Sort: desc, Skip: 0, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page1.Total)
	assert.False(t, page1.Partial)
	assert.Equal(t, []models.RecordKey{
		{Kind: models.SourceConversion, ID: 2},
		{Kind: models.SourceFiatTransfer, ID: 2},
		{Kind: models.SourceWalletTransfer, ID: 1},
	}, keys(page1.Records))

	page2, err := m.Merge(context.Background(), Request{Sort: desc, Skip: 3, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page2.Total)
	assert.Equal(t, []models.RecordKey{
		{Kind: models.SourceFiatTransfer, ID: 1},
		{Kind: models.SourceConversion, ID: 1},
	}, keys(page2.Records))
}

func TestMergeTieBreakOnKindThenID(t *testing.T) {
	readers := []*fakeReader{
		{kind: models.SourceFiatTransfer, records: []models.UnifiedTransaction{
			rec(models.SourceFiatTransfer, 1, day, "1", models.StatusPending),
		}},
		{kind: models.SourceConversion, records: []models.UnifiedTransaction{
			rec(models.SourceConversion, 9, day, "1", models.StatusPending),
			rec(models.SourceConversion, 3, day, "1", models.StatusPending),
		}},
		{kind: models.SourceWalletTransfer, records: []models.UnifiedTransaction{
			rec(models.SourceWalletTransfer, 1, day, "1", models.StatusPending),
		}},
	}
	for _, order := range []source.SortOrder{source.SortAsc, source.SortDesc} {
		m := New(asReaders(readers), Config{}, zap.NewNop())
		res, err := m.Merge(context.Background(), Request{Sort: source.Sort{Key: source.SortCreatedAt, Order: order}, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []models.RecordKey{
			{Kind: models.SourceConversion, ID: 3},
			{Kind: models.SourceConversion, ID: 9},
			{Kind: models.SourceWalletTransfer, ID: 1},
			{Kind: models.SourceFiatTransfer, ID: 1},
		}, keys(res.Records), "order %s", order)
	}
}

func bigReaders() []*fakeReader {
	statuses := models.AllStatuses
	var readers []*fakeReader
	for k, kind := range models.AllSourceKinds {
		f := &fakeReader{kind: kind}
		for i := 1; i <= 7+k*3; i++ {
			// repeated timestamps and amounts force tie-breaks across sources
			at := day.Add(time.Duration(i%4) * time.Hour)
			amount := fmt.Sprintf("%d.5", (i*7+k)%5)
			f.records = append(f.records, rec(kind, uint64(i), at, amount, statuses[(i+k)%len(statuses)]))
		}
		readers = append(readers, f)
	}
	return readers
}

func TestMergeCoverageAndOrder(t *testing.T) {
	readers := bigReaders()
	var all []models.RecordKey
	for _, f := range readers {
		all = append(all, keys(f.records)...)
	}

	sorts := []source.Sort{}
	for _, key := range []source.SortKey{source.SortCreatedAt, source.SortAmount, source.SortStatus} {
		for _, order := range []source.SortOrder{source.SortAsc, source.SortDesc} {
			sorts = append(sorts, source.Sort{Key: key, Order: order})
		}
	}

	for _, s := range sorts {
		for limit := 1; limit <= 8; limit++ {
			for _, batch := range []int{0, 1, 4} {
				m := New(asReaders(readers), Config{BatchSize: batch}, zap.NewNop())
				seen := map[models.RecordKey]bool{}
				var merged []models.UnifiedTransaction
				for skip := 0; ; skip += limit {
					res, err := m.Merge(context.Background(), Request{Sort: s, Skip: skip, Limit: limit})
					require.NoError(t, err)
					require.Equal(t, int64(len(all)), res.Total)
					if skip >= int(res.Total) {
						assert.Empty(t, res.Records)
						break
					}
					for _, r := range res.Records {
						assert.False(t, seen[r.Key()], "duplicate %v", r.Key())
						seen[r.Key()] = true
					}
					merged = append(merged, res.Records...)
				}
				assert.Len(t, seen, len(all), "sort=%v limit=%d batch=%d", s, limit, batch)
				for i := 1; i < len(merged); i++ {
					assert.True(t, Before(&merged[i-1], &merged[i], s), "sort=%v limit=%d pos=%d", s, limit, i)
				}
			}
		}
	}
}

func TestMergeBoundedRoundTrips(t *testing.T) {
	readers := bigReaders()
	m := New(asReaders(readers), Config{BatchSize: 2}, zap.NewNop())

	_, err := m.Merge(context.Background(), Request{Sort: source.DefaultSort, Skip: 2, Limit: 2})
	require.NoError(t, err)
	for _, f := range readers {
		// skip+limit = 4 rows at batch 2
		assert.LessOrEqual(t, atomic.LoadInt32(&f.pageCalls), int32(2), "source %s", f.kind)
	}
}

func TestMergeSkipsInapplicableSources(t *testing.T) {
	readers := scenarioReaders()
	readers[2].excluded = true
	m := New(asReaders(readers), Config{}, zap.NewNop())

	res, err := m.Merge(context.Background(), Request{Sort: source.DefaultSort, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Len(t, res.Records, 3)
	assert.Zero(t, atomic.LoadInt32(&readers[2].pageCalls))
	assert.False(t, res.Partial)
}

func TestMergeStrictModeFailsClosed(t *testing.T) {
	readers := scenarioReaders()
	readers[1].pageErr = fmt.Errorf("connection reset")
	m := New(asReaders(readers), Config{Mode: ModeStrict}, zap.NewNop())

	_, err := m.Merge(context.Background(), Request{Sort: source.DefaultSort, Limit: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Unavailable))
	assert.NotContains(t, err.(*errors.Error).Message, "connection reset")
}

func TestMergePartialModeDropsFailingSource(t *testing.T) {
	readers := scenarioReaders()
	readers[2].countErr = fmt.Errorf("boom")
	m := New(asReaders(readers), Config{Mode: ModePartial}, zap.NewNop())

	res, err := m.Merge(context.Background(), Request{Sort: source.DefaultSort, Limit: 10})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, []models.SourceKind{models.SourceFiatTransfer}, res.Unavailable)
	assert.Equal(t, int64(3), res.Total)
	for _, r := range res.Records {
		assert.NotEqual(t, models.SourceFiatTransfer, r.SourceKind)
	}
}

func TestMergePartialModeAllSourcesDown(t *testing.T) {
	readers := scenarioReaders()
	for _, r := range readers {
		r.pageErr = fmt.Errorf("down")
	}
	m := New(asReaders(readers), Config{Mode: ModePartial}, zap.NewNop())

	_, err := m.Merge(context.Background(), Request{Sort: source.DefaultSort, Limit: 10})
	assert.True(t, errors.Is(err, errors.Unavailable))
}

func TestMergeAdapterTimeout(t *testing.T) {
	readers := scenarioReaders()
	readers[0].delay = time.Second
	m := New(asReaders(readers), Config{Mode: ModePartial, AdapterTimeout: 20 * time.Millisecond}, zap.NewNop())

	res, err := m.Merge(context.Background(), Request{Sort: source.DefaultSort, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []models.SourceKind{models.SourceConversion}, res.Unavailable)
	assert.Equal(t, int64(3), res.Total)
}

func TestMergeParentCancellation(t *testing.T) {
	readers := scenarioReaders()
	readers[1].delay = time.Second
	m := New(asReaders(readers), Config{Mode: ModePartial}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Merge(ctx, Request{Sort: source.DefaultSort, Limit: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMergeRejectsBadRequest(t *testing.T) {
	m := New(asReaders(scenarioReaders()), Config{}, zap.NewNop())

	_, err := m.Merge(context.Background(), Request{Limit: 0})
	assert.True(t, errors.Is(err, errors.Invalid))

	from, to := day.Add(time.Hour), day
	_, err = m.Merge(context.Background(), Request{Limit: 1, Filter: source.Filter{DateFrom: &from, DateTo: &to}})
	assert.True(t, errors.Is(err, errors.Invalid))
}
