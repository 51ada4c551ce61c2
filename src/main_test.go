package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"FlightScheduleOptimizer/src/config"
	"FlightScheduleOptimizer/src/processor"
	"FlightScheduleOptimizer/src/storage"
	"FlightScheduleOptimizer/src/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T) (*config.Config, *config.DataConfig) {
	t.Helper()
	cfg := &config.Config{
		DataDir:       filepath.Join(t.TempDir(), "data"),
		DataFile:      "Flight_Data.xlsx",
		LogMaxSize:    "10 * 1024 * 1024",
		HTTPAddr:      "127.0.0.1:0",
		CacheTTL:      config.Duration(time.Minute),
		FallbackEpoch: "2025-08",
		Airports:      map[string]string{"Delhi (DEL)": "DEL"},
	}
	cfg.Live.BaseURL = "http://127.0.0.1:1"
	cfg.Live.Timeout = config.Duration(time.Second)
	cfg.Live.Limit = 50
	cfg.Email.CheckInterval = config.Duration(5 * time.Minute)

	dcfg := &config.DataConfig{
		ColumnSynonyms: config.DefaultColumnSynonyms(),
		ExampleQueries: config.DefaultExampleQueries(),
	}
	return cfg, dcfg
}

func newTestApp(t *testing.T, cfg *config.Config, dcfg *config.DataConfig) *app {
	t.Helper()
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	a, err := newApp(cfg, dcfg, logger, web.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.stop(context.Background()) })
	return a
}

func writeDataFile(t *testing.T, path string, flights ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Flight No"))
	for i, fn := range flights {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, f.SetCellValue("Sheet1", cell, fn))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestNewApp_Wiring(t *testing.T) {
	cfg, dcfg := testConfig(t)
	a := newTestApp(t, cfg, dcfg)

	assert.Nil(t, a.poller, "mailbox disabled without server")
	assert.Len(t, a.cron.Entries(), 1)

	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_EmailJob(t *testing.T) {
	cfg, dcfg := testConfig(t)
	cfg.Email.Server = "imap.example.com:993"
	cfg.Email.Username = "ops@example.com"
	cfg.Email.TargetSubject = "Flight_Data"

	a := newTestApp(t, cfg, dcfg)
	require.NotNil(t, a.poller)
	assert.Equal(t, cfg.DataPath(), a.poller.Handler.TargetPath)
	assert.Len(t, a.cron.Entries(), 2)
}

func TestNewApp_BadEpoch(t *testing.T) {
	cfg, dcfg := testConfig(t)
	cfg.FallbackEpoch = "August"

	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	_, err = newApp(cfg, dcfg, logger, web.NewMetricsForTesting())
	assert.Error(t, err)
}

func TestDataFileChange_InvalidatesCache(t *testing.T) {
	cfg, dcfg := testConfig(t)
	a := newTestApp(t, cfg, dcfg)
	writeDataFile(t, cfg.DataPath(), "AI101")

	res := a.provider.LoadBatch()
	require.Equal(t, 1, res.Table.Nrow())

	writeDataFile(t, cfg.DataPath(), "AI101", "6E202")
	assert.Equal(t, 1, a.provider.LoadBatch().Table.Nrow())

	a.onDataFileChanged(cfg.DataPath())
	assert.Equal(t, []string{"AI101", "6E202"}, a.provider.LoadBatch().Table.Col(processor.ColFlightNumber).Records())
}

func TestDataFileChange_Watched(t *testing.T) {
	cfg, dcfg := testConfig(t)
	a := newTestApp(t, cfg, dcfg)
	writeDataFile(t, cfg.DataPath(), "AI101")
	require.Equal(t, 1, a.provider.LoadBatch().Table.Nrow())

	a.start()
	writeDataFile(t, cfg.DataPath(), "AI101", "6E202")

	assert.Eventually(t, func() bool {
		return a.provider.LoadBatch().Table.Nrow() == 2
	}, 5*time.Second, 50*time.Millisecond)
}
