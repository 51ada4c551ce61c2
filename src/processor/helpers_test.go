package processor

import (
	"math/rand/v2"
	"testing"
	"time"

	"FlightScheduleOptimizer/src/config"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)

func newTestNormalizer(clock clockwork.Clock) *Normalizer {
	return NewNormalizer(config.DefaultColumnSynonyms(), testEpoch, rand.New(rand.NewPCG(1, 2)), clock)
}

func newTestResolver(clock clockwork.Clock) *Resolver {
	return NewResolver(rand.New(rand.NewPCG(3, 4)), clock)
}

type flightRow struct {
	flight, from, to, airline, scheduled string
	delay                                float64
}

// flightsTable 构造规范航班表
func flightsTable(t *testing.T, rows ...flightRow) dataframe.DataFrame {
	t.Helper()
	var fn, from, to, airline, sched []string
	var delay []float64
	for _, r := range rows {
		fn = append(fn, r.flight)
		from = append(from, r.from)
		to = append(to, r.to)
		airline = append(airline, r.airline)
		sched = append(sched, r.scheduled)
		delay = append(delay, r.delay)
	}
	df := dataframe.New(
		series.New(fn, series.String, ColFlightNumber),
		series.New(from, series.String, ColFrom),
		series.New(to, series.String, ColTo),
		series.New(airline, series.String, ColAirline),
		series.New(sched, series.String, ColScheduled),
		series.New(delay, series.Float, ColDelay),
	)
	require.NoError(t, df.Err)
	return df
}

func sampleFlights(t *testing.T) dataframe.DataFrame {
	return flightsTable(t,
		flightRow{"A", "DEL", "BOM", "AI", "2025-08-10 06:05:00", 5},
		flightRow{"B", "DEL", "BOM", "6E", "2025-08-10 06:40:00", 40},
		flightRow{"C", "BOM", "BLR", "AI", "2025-08-10 09:15:00", 10},
	)
}

func column(df dataframe.DataFrame, name string) []string {
	return df.Col(name).Records()
}
