package report

import (
	"bytes"
	"testing"

	"FlightScheduleOptimizer/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable(t *testing.T) dataframe.DataFrame {
	t.Helper()
	df := dataframe.New(
		series.New([]string{"AI101", "6E202"}, series.String, processor.ColFlightNumber),
		series.New([]string{"AI", "6E"}, series.String, processor.ColAirline),
		series.New([]string{"2025-08-10 06:00:00", "2025-08-10 09:30:00"}, series.String, processor.ColScheduled),
		series.New([]float64{12.5, 40}, series.Float, processor.ColDelay),
	)
	require.NoError(t, df.Err)
	return df
}

func TestWriteWorkbook(t *testing.T) {
	df := sampleTable(t)
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, df, processor.BuildCharts(df)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DataSheet, ChartSheet}, f.GetSheetList())

	rows, err := f.GetRows(DataSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"flight_number", "airline", "scheduled_departure", "delay"}, rows[0])
	assert.Equal(t, "AI101", rows[1][0])
	assert.Equal(t, "12.5", rows[1][3])

	title, err := f.GetCellValue(ChartSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Top 5 Delayed Flights", title)
	top, err := f.GetCellValue(ChartSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "6E202", top)
}

func TestWriteWorkbook_NoCharts(t *testing.T) {
	df := dataframe.New(series.New([]string{"AI101"}, series.String, processor.ColFlightNumber))
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, df, processor.BuildCharts(df)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(ChartSheet, "D2")
	require.NoError(t, err)
	assert.Equal(t, "No data available.", v)
}

func TestWriteChartsPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChartsPDF(&buf, "Flight Schedule Charts", processor.BuildCharts(sampleTable(t))))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	var empty bytes.Buffer
	require.NoError(t, WriteChartsPDF(&empty, "Empty", processor.Charts{}))
	assert.True(t, bytes.HasPrefix(empty.Bytes(), []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "AI101", truncate("AI101", 14))
	assert.Equal(t, "航班数.", truncate("航班数据分析", 4))
	assert.Equal(t, "40", formatValue(40))
	assert.Equal(t, "7.5", formatValue(7.5))
}
