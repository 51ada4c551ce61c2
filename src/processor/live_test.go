package processor

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLive_FlattensRecords(t *testing.T) {
	n := newTestNormalizer(clockwork.NewFakeClock())
	df := n.NormalizeLive([]LiveRecord{
		{
			FlightIATA: "AI101", FlightNumber: "101", Airline: "Air India",
			From: "DEL", To: "BOM", Status: "active",
			Scheduled: "2025-08-10T06:00:00+00:00", Actual: "2025-08-10T06:45:00+00:00",
		},
		{FlightNumber: "202", Scheduled: "2025-08-10T07:00:00+00:00"},
		{},
	})

	require.Equal(t, 3, df.Nrow())
	assert.Equal(t, []string{"AI101", "202", Unknown}, column(df, ColFlightNumber))
	assert.Equal(t, []string{"Air India", Unknown, Unknown}, column(df, ColAirline))
	assert.Equal(t, []string{"DEL", Unknown, Unknown}, column(df, ColFrom))
	assert.Equal(t, []string{"active", Unknown, Unknown}, column(df, ColStatus))
	assert.Equal(t, []float64{45, 0, 0}, df.Col(ColDelay).Float())

	// 没有实际时间时用计划时间
	assert.Equal(t, "2025-08-10 07:00:00", column(df, ColActual)[1])
	assert.Equal(t, "", column(df, ColActual)[2])
}

func TestNormalizeLive_FillsScheduled(t *testing.T) {
	n := newTestNormalizer(clockwork.NewFakeClock())
	df := n.NormalizeLive([]LiveRecord{
		{FlightIATA: "A"},
		{FlightIATA: "B", Scheduled: "2025-08-10T06:00:00+00:00"},
		{FlightIATA: "C", Scheduled: "bad"},
		{FlightIATA: "D", Scheduled: "2025-08-10T08:00:00+00:00"},
		{FlightIATA: "E"},
	})

	assert.Equal(t, []string{
		"2025-08-10 06:00:00",
		"2025-08-10 06:00:00",
		"2025-08-10 06:00:00",
		"2025-08-10 08:00:00",
		"2025-08-10 08:00:00",
	}, column(df, ColScheduled))
}

func TestNormalizeLive_AllScheduledMissing(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 12, 15, 4, 5, 0, time.UTC))
	n := newTestNormalizer(clock)

	df := n.NormalizeLive([]LiveRecord{{FlightIATA: "A"}, {FlightIATA: "B"}})
	assert.Equal(t, []string{"2025-08-12 06:00:00", "2025-08-12 06:00:00"}, column(df, ColScheduled))
}

func TestNormalizeLive_Empty(t *testing.T) {
	n := newTestNormalizer(clockwork.NewFakeClock())
	df := n.NormalizeLive(nil)
	assert.Equal(t, 0, df.Nrow())
}

func TestNormalizeLive_AnswersQueries(t *testing.T) {
	n := newTestNormalizer(clockwork.NewFakeClock())
	df := n.NormalizeLive([]LiveRecord{
		{FlightIATA: "AI101", From: "DEL", To: "BOM", Status: "cancelled",
			Scheduled: "2025-08-10T06:00:00+00:00", Actual: "2025-08-10T06:30:00+00:00"},
		{FlightIATA: "6E202", From: "DEL", To: "BLR", Status: "scheduled",
			Scheduled: "2025-08-10T09:00:00+00:00"},
	})

	r := newTestResolver(clockwork.NewFakeClock())
	assert.Equal(t, "🚫 Cancelled flights: 1", r.Resolve(df, "cancelled"))
	assert.Equal(t, "⏱️ 1 flights departed on time.", r.Resolve(df, "on time"))
	assert.Equal(t, "✈️ The most delayed flight is AI101 from DEL to BOM with a delay of 30 min.",
		r.Resolve(df, "most delayed"))
}
