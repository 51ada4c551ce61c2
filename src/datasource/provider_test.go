package datasource

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FlightScheduleOptimizer/src/config"
	"FlightScheduleOptimizer/src/datasource/live"
	"FlightScheduleOptimizer/src/processor"
	"FlightScheduleOptimizer/src/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeFetcher struct {
	records []processor.LiveRecord
	err     error
	calls   int
}

func (f *fakeFetcher) FetchDepartures(_ context.Context, _ string, _ int) ([]processor.LiveRecord, error) {
	f.calls++
	return f.records, f.err
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveLoad(source Source, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, string(source)+":"+outcome)
}

func newTestProvider(t *testing.T, dataPath string, fetcher DepartureFetcher, clock clockwork.Clock) *Provider {
	t.Helper()
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	epoch := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	n := processor.NewNormalizer(config.DefaultColumnSynonyms(), epoch, rand.New(rand.NewPCG(1, 1)), clock)
	return NewProvider(dataPath, n, fetcher, logger, clock)
}

func writeFlights(t *testing.T, path string, header []string, rows ...[]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for c, h := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		require.NoError(t, f.SetCellValue("Sheet1", cell, h))
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoadBatch_CachesUntilInvalidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Flight_Data.xlsx")
	writeFlights(t, path, []string{"Flight No", "Origin", "Destination", "Scheduled", "Actual"},
		[]interface{}{"AI101", "DEL", "BOM", "2025-08-10 06:00", "2025-08-10 06:40"},
	)
	p := newTestProvider(t, path, &fakeFetcher{}, clockwork.NewFakeClock())
	obs := &recordingObserver{}
	p.Observer = obs

	res := p.LoadBatch()
	require.False(t, res.Empty())
	assert.Empty(t, res.Notice)
	assert.Equal(t, []float64{40}, res.Table.Col(processor.ColDelay).Float())

	writeFlights(t, path, []string{"flight"}, []interface{}{"X1"}, []interface{}{"X2"})
	assert.Equal(t, 1, p.LoadBatch().Table.Nrow(), "served from cache")

	assert.Equal(t, 1, p.InvalidateBatch())
	assert.Equal(t, 2, p.LoadBatch().Table.Nrow())
	assert.Equal(t, []string{"excel:ok", "excel:ok"}, obs.outcomes)
}

func TestLoadBatch_ConcurrentCallersShareOneTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Flight_Data.xlsx")
	writeFlights(t, path, []string{"flight"}, []interface{}{"AI101"}, []interface{}{"6E202"}, []interface{}{"UK303"})
	p := newTestProvider(t, path, &fakeFetcher{}, clockwork.NewFakeClock())
	obs := &recordingObserver{}
	p.Observer = obs

	const callers = 6
	tables := make([][]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			tables[i] = p.LoadBatch().Table.Col(processor.ColScheduled).Records()
		}(i)
	}
	wg.Wait()

	for _, tbl := range tables {
		assert.Equal(t, tables[0], tbl, "random fallback times must come from a single normalization")
	}
	assert.Equal(t, []string{"excel:ok"}, obs.outcomes)
}

func TestLoadBatch_MissingFile(t *testing.T) {
	p := newTestProvider(t, filepath.Join(t.TempDir(), "missing.xlsx"), &fakeFetcher{}, clockwork.NewFakeClock())

	res := p.LoadBatch()
	assert.True(t, res.Empty())
	assert.Contains(t, res.Notice, "Error reading Excel data")
}

func TestLoadBatch_NoFlightColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Flight_Data.xlsx")
	writeFlights(t, path, []string{"origin"}, []interface{}{"DEL"})
	p := newTestProvider(t, path, &fakeFetcher{}, clockwork.NewFakeClock())

	res := p.LoadBatch()
	assert.True(t, res.Empty())
	assert.Equal(t, "The spreadsheet has no flight number column.", res.Notice)

	// 失败结果不缓存, 文件修好后直接生效
	writeFlights(t, path, []string{"flight"}, []interface{}{"AI101"})
	assert.Equal(t, 1, p.LoadBatch().Table.Nrow())
}

func TestLoadLive_TTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &fakeFetcher{records: []processor.LiveRecord{
		{FlightIATA: "AI101", Scheduled: "2025-08-10T06:00:00+00:00"},
	}}
	p := newTestProvider(t, "unused.xlsx", fetcher, clock)
	p.LiveTTL = time.Minute

	ctx := context.Background()
	require.Equal(t, 1, p.Load(ctx, SourceLive, "DEL").Table.Nrow())
	p.LoadLive(ctx, "DEL")
	assert.Equal(t, 1, fetcher.calls)

	p.LoadLive(ctx, "BOM")
	assert.Equal(t, 2, fetcher.calls, "different airport is a different key")

	clock.Advance(time.Minute)
	p.LoadLive(ctx, "DEL")
	assert.Equal(t, 3, fetcher.calls)
}

func TestLoadLive_Failures(t *testing.T) {
	ctx := context.Background()

	p := newTestProvider(t, "unused.xlsx", &fakeFetcher{err: live.ErrNoAPIKey}, clockwork.NewFakeClock())
	res := p.LoadLive(ctx, "DEL")
	assert.True(t, res.Empty())
	assert.Contains(t, res.Notice, "AVIATIONSTACK_API_KEY")

	fetcher := &fakeFetcher{err: errors.New("timeout")}
	p = newTestProvider(t, "unused.xlsx", fetcher, clockwork.NewFakeClock())
	assert.Equal(t, "Live data is unavailable right now.", p.LoadLive(ctx, "DEL").Notice)
	p.LoadLive(ctx, "DEL")
	assert.Equal(t, 2, fetcher.calls, "failures are not cached")

	p = newTestProvider(t, "unused.xlsx", &fakeFetcher{}, clockwork.NewFakeClock())
	res = p.LoadLive(ctx, "BOM")
	assert.True(t, res.Empty())
	assert.Equal(t, "No live flights returned for BOM.", res.Notice)
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceLive, ParseSource("live"))
	assert.Equal(t, SourceExcel, ParseSource("excel"))
	assert.Equal(t, SourceExcel, ParseSource(""))
}
