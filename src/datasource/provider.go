package datasource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"FlightScheduleOptimizer/src/datasource/file"
	"FlightScheduleOptimizer/src/datasource/live"
	"FlightScheduleOptimizer/src/processor"
	"FlightScheduleOptimizer/src/storage"

	"github.com/go-gota/gota/dataframe"
	"github.com/jonboulle/clockwork"
)

// Source 数据源
type Source string

const (
	SourceExcel Source = "excel"
	SourceLive  Source = "live"
)

// ParseSource 未知取值按离线Excel处理
func ParseSource(s string) Source {
	if Source(s) == SourceLive {
		return SourceLive
	}
	return SourceExcel
}

// Result 规范航班表和给用户的提示, 加载失败时表为空
type Result struct {
	Table  dataframe.DataFrame
	Notice string
}

// Empty 表中没有任何航班
func (r Result) Empty() bool {
	return r.Table.Nrow() == 0
}

// DepartureFetcher 实时离港航班查询
type DepartureFetcher interface {
	FetchDepartures(ctx context.Context, iata string, limit int) ([]processor.LiveRecord, error)
}

// LoadObserver 记录每次实际加载(不含缓存命中)
type LoadObserver interface {
	ObserveLoad(source Source, outcome string, elapsed time.Duration)
}

// Provider 按数据源加载并缓存规范航班表
// Excel 结果在进程内一直有效, 文件变化时由 InvalidateBatch 清除; 实时结果按 TTL 过期
type Provider struct {
	DataPath   string
	LiveTTL    time.Duration
	LiveLimit  int
	Normalizer *processor.Normalizer
	Live       DepartureFetcher
	Logger     *storage.Logger
	Observer   LoadObserver

	cache *storage.Cache[Result]
	clock clockwork.Clock
}

func NewProvider(dataPath string, normalizer *processor.Normalizer, fetcher DepartureFetcher, logger *storage.Logger, clock clockwork.Clock) *Provider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Provider{
		DataPath:   dataPath,
		LiveTTL:    time.Minute,
		LiveLimit:  50,
		Normalizer: normalizer,
		Live:       fetcher,
		Logger:     logger,
		cache:      storage.NewCache[Result](clock),
		clock:      clock,
	}
}

// Load 按数据源取表, airport 只对实时数据源有效
func (p *Provider) Load(ctx context.Context, source Source, airport string) Result {
	if source == SourceLive {
		return p.LoadLive(ctx, airport)
	}
	return p.LoadBatch()
}

// LoadBatch 读取并清洗离线Excel
func (p *Provider) LoadBatch() Result {
	key := storage.Key(string(SourceExcel), p.DataPath)
	return p.cache.GetOrLoad(key, storage.NoExpiry, func() (Result, bool) {
		start := p.clock.Now()
		res, err := p.loadBatch()
		p.observe(SourceExcel, err, res, start)
		if err != nil {
			p.Logger.Error(fmt.Sprintf("加载Excel数据失败(%s): %v", p.DataPath, err))
			return res, false
		}
		p.Logger.Info(fmt.Sprintf("Excel数据已加载: %d 条航班", res.Table.Nrow()))
		return res, true
	})
}

func (p *Provider) loadBatch() (Result, error) {
	sheets, err := file.ReadWorkbook(p.DataPath)
	if err != nil {
		return Result{Notice: fmt.Sprintf("Error reading Excel data: %v", err)}, err
	}

	df, err := p.Normalizer.NormalizeSheets(sheets)
	if errors.Is(err, processor.ErrNoFlightNumber) {
		return Result{Notice: "The spreadsheet has no flight number column."}, err
	}
	if err != nil {
		return Result{Notice: fmt.Sprintf("Error reading/filling Excel: %v", err)}, err
	}
	return Result{Table: df}, nil
}

// LoadLive 查询某机场的实时离港航班
func (p *Provider) LoadLive(ctx context.Context, iata string) Result {
	key := storage.Key(string(SourceLive), iata, strconv.Itoa(p.LiveLimit))
	return p.cache.GetOrLoad(key, p.LiveTTL, func() (Result, bool) {
		start := p.clock.Now()
		res, err := p.loadLive(ctx, iata)
		p.observe(SourceLive, err, res, start)
		if err != nil {
			p.Logger.Warning(fmt.Sprintf("实时数据加载失败(%s): %v", iata, err))
			return res, false
		}
		if res.Empty() {
			p.Logger.Info(fmt.Sprintf("实时数据为空(%s)", iata))
			return res, false
		}
		p.Logger.Info(fmt.Sprintf("实时数据已加载(%s): %d 条航班", iata, res.Table.Nrow()))
		return res, true
	})
}

func (p *Provider) loadLive(ctx context.Context, iata string) (Result, error) {
	records, err := p.Live.FetchDepartures(ctx, iata, p.LiveLimit)
	if errors.Is(err, live.ErrNoAPIKey) {
		return Result{Notice: "Live data is unavailable: AVIATIONSTACK_API_KEY is not set."}, err
	}
	if err != nil {
		return Result{Notice: "Live data is unavailable right now."}, err
	}
	if len(records) == 0 {
		return Result{Notice: fmt.Sprintf("No live flights returned for %s.", iata)}, nil
	}
	return Result{Table: p.Normalizer.NormalizeLive(records)}, nil
}

// InvalidateBatch 数据文件变化后清除Excel缓存
func (p *Provider) InvalidateBatch() int {
	return p.cache.Invalidate(storage.Key(string(SourceExcel)))
}

func (p *Provider) observe(source Source, err error, res Result, start time.Time) {
	if p.Observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Empty():
		outcome = "empty"
	}
	p.Observer.ObserveLoad(source, outcome, p.clock.Since(start))
}
