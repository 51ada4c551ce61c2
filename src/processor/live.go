package processor

import (
	"time"

	"FlightScheduleOptimizer/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// LiveRecord 实时接口里一条航班记录, 字段为原始字符串, 缺失为空
type LiveRecord struct {
	FlightIATA   string
	FlightNumber string
	Airline      string
	From         string
	To           string
	Status       string
	Scheduled    string
	Actual       string
}

// NormalizeLive 把实时航班记录整理成规范航班表
// 计划时间缺失时依次用前值、后值填充, 全部缺失时取当天 06:00
func (n *Normalizer) NormalizeLive(records []LiveRecord) dataframe.DataFrame {
	if len(records) == 0 {
		return dataframe.DataFrame{}
	}

	size := len(records)
	flight := make([]string, size)
	airline := make([]string, size)
	from := make([]string, size)
	to := make([]string, size)
	status := make([]string, size)
	actual := make([]string, size)
	delay := make([]float64, size)
	scheduled := make([]time.Time, size)
	hasSched := make([]bool, size)

	for i, rec := range records {
		flight[i] = firstNonEmpty(rec.FlightIATA, rec.FlightNumber)
		airline[i] = firstNonEmpty(rec.Airline)
		from[i] = firstNonEmpty(rec.From)
		to[i] = firstNonEmpty(rec.To)
		status[i] = firstNonEmpty(rec.Status)

		act := rec.Actual
		if act == "" {
			act = rec.Scheduled
		}
		s, sok := utils.ParseTime(rec.Scheduled)
		a, aok := utils.ParseTime(act)
		if sok {
			scheduled[i] = utils.Naive(s)
			hasSched[i] = true
		}
		if aok {
			actual[i] = utils.FormatTime(utils.Naive(a))
		}
		if sok && aok {
			delay[i] = a.Sub(s).Minutes()
		}
	}

	n.fillScheduled(scheduled, hasSched)
	sched := make([]string, size)
	for i, t := range scheduled {
		sched[i] = utils.FormatTime(t)
	}

	return dataframe.New(
		series.New(flight, series.String, ColFlightNumber),
		series.New(airline, series.String, ColAirline),
		series.New(from, series.String, ColFrom),
		series.New(to, series.String, ColTo),
		series.New(sched, series.String, ColScheduled),
		series.New(actual, series.String, ColActual),
		series.New(delay, series.Float, ColDelay),
		series.New(status, series.String, ColStatus),
	)
}

func (n *Normalizer) fillScheduled(times []time.Time, ok []bool) {
	// 前向填充
	var last time.Time
	seen := false
	for i := range times {
		if ok[i] {
			last, seen = times[i], true
			continue
		}
		if seen {
			times[i], ok[i] = last, true
		}
	}

	// 后向填充
	seen = false
	for i := len(times) - 1; i >= 0; i-- {
		if ok[i] {
			last, seen = times[i], true
			continue
		}
		if seen {
			times[i], ok[i] = last, true
		}
	}

	now := n.Clock.Now()
	fallback := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, time.UTC)
	for i := range times {
		if !ok[i] {
			times[i] = fallback
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if !utils.IsMissing(v) {
			return v
		}
	}
	return Unknown
}
