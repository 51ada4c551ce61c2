package processor

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"FlightScheduleOptimizer/src/datasource/file"
	"FlightScheduleOptimizer/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jonboulle/clockwork"
)

// ErrNoFlightNumber 没有任何列能映射到 flight_number
var ErrNoFlightNumber = errors.New("no column maps to flight_number")

// 始终按文本处理的规范列
var textColumns = []string{ColFlightNumber, ColFrom, ColTo, ColAirline, ColStatus}

// Normalizer 把原始工作表或实时航班记录整理成规范航班表
type Normalizer struct {
	Synonyms map[string]string
	// Epoch 计划时间缺失时随机生成时间所在的月份(取该月第一天)
	Epoch time.Time
	Clock clockwork.Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewNormalizer(synonyms map[string]string, epoch time.Time, rnd *rand.Rand, clock clockwork.Clock) *Normalizer {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Normalizer{
		Synonyms: synonyms,
		Epoch:    time.Date(epoch.Year(), epoch.Month(), 1, 0, 0, 0, 0, time.UTC),
		Clock:    clock,
		rnd:      rnd,
	}
}

// rawTable 拼接后的原始数据, 缺失单元格为空串
type rawTable struct {
	names []string
	index map[string]int
	rows  [][]string
}

func (t *rawTable) column(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], "")
	}
	return t.index[name]
}

// NormalizeSheets 合并全部工作表并清洗
// 任何意外失败(包括 dataframe 库 panic)都返回空表和错误
func (n *Normalizer) NormalizeSheets(sheets []file.Sheet) (df dataframe.DataFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			df = dataframe.DataFrame{}
			err = fmt.Errorf("normalize sheets: %v", r)
		}
	}()

	raw := n.concat(sheets)
	if _, ok := raw.index[ColFlightNumber]; !ok {
		return dataframe.DataFrame{}, ErrNoFlightNumber
	}

	// 去掉航班号缺失的行
	fn := raw.index[ColFlightNumber]
	kept := raw.rows[:0:0]
	for _, row := range raw.rows {
		if !utils.IsMissing(row[fn]) {
			kept = append(kept, row)
		}
	}
	raw.rows = kept

	n.mu.Lock()
	scheduled, actual := n.cleanTimes(raw)
	n.mu.Unlock()

	cols := make([]series.Series, 0, len(raw.names)+3)
	for i, name := range raw.names {
		switch name {
		case ColScheduled, ColActual, ColDelay:
			continue
		}
		cols = append(cols, fillColumn(name, raw.columnValues(i)))
	}

	sched := make([]string, len(raw.rows))
	act := make([]string, len(raw.rows))
	delay := make([]float64, len(raw.rows))
	for i := range raw.rows {
		sched[i] = utils.FormatTime(scheduled[i])
		act[i] = utils.FormatTime(actual[i])
		delay[i] = actual[i].Sub(scheduled[i]).Minutes()
	}
	cols = append(cols,
		series.New(sched, series.String, ColScheduled),
		series.New(act, series.String, ColActual),
		series.New(delay, series.Float, ColDelay),
	)

	return dataframe.New(cols...), nil
}

// concat 规范化列名并按列并集拼接, 同一工作表内映射到同一规范名的列取第一个非空值
func (n *Normalizer) concat(sheets []file.Sheet) *rawTable {
	raw := &rawTable{index: make(map[string]int)}
	for _, sheet := range sheets {
		targets := make([]int, len(sheet.Header))
		for i, h := range sheet.Header {
			name := utils.NormalizeColumnName(h)
			if canon, ok := n.Synonyms[name]; ok {
				name = canon
			}
			targets[i] = raw.column(name)
		}

		for _, row := range sheet.Rows {
			out := make([]string, len(raw.names))
			for i, v := range row {
				if i >= len(targets) {
					break
				}
				if utils.IsMissing(out[targets[i]]) {
					out[targets[i]] = v
				}
			}
			raw.rows = append(raw.rows, out)
		}
	}
	return raw
}

func (t *rawTable) columnValues(i int) []string {
	out := make([]string, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out
}

// fillColumn 文本列缺失填 Unknown, 数值列(所有非空值都是数字)缺失填 0
func fillColumn(name string, values []string) series.Series {
	numeric := !utils.Contains(textColumns, name)
	if numeric {
		for _, v := range values {
			if utils.IsMissing(v) {
				continue
			}
			if _, ok := utils.ParseFloat(v); !ok {
				numeric = false
				break
			}
		}
	}

	if numeric {
		nums := make([]float64, len(values))
		for i, v := range values {
			nums[i], _ = utils.ParseFloat(v)
		}
		return series.New(nums, series.Float, name)
	}

	texts := make([]string, len(values))
	for i, v := range values {
		if utils.IsMissing(v) {
			texts[i] = Unknown
		} else {
			texts[i] = v
		}
	}
	return series.New(texts, series.String, name)
}

// cleanTimes 解析计划和实际起飞时间, 调用方持有 n.mu
func (n *Normalizer) cleanTimes(raw *rawTable) (scheduled, actual []time.Time) {
	si, hasSched := raw.index[ColScheduled]
	ai, hasActual := raw.index[ColActual]

	scheduled = make([]time.Time, len(raw.rows))
	actual = make([]time.Time, len(raw.rows))
	for r, row := range raw.rows {
		var ok bool
		if hasSched {
			scheduled[r], ok = parseValid(row[si])
		}
		if !ok {
			scheduled[r] = n.randomEpochTime()
		}

		ok = false
		if hasActual {
			actual[r], ok = parseValid(row[ai])
		}
		if !ok {
			actual[r] = scheduled[r].Add(time.Duration(n.rnd.IntN(121)) * time.Minute)
		}
	}
	return scheduled, actual
}

// 航班时间的合理年份范围, 范围外按无效时间回填
const (
	minValidYear = 2000
	maxValidYear = 2100
)

// parseValid 解析时间, 年份不在合理范围内视为无效
func parseValid(v string) (time.Time, bool) {
	t, ok := utils.ParseTime(v)
	if !ok || t.Year() < minValidYear || t.Year() > maxValidYear {
		return time.Time{}, false
	}
	return utils.Naive(t), true
}

// randomEpochTime 兜底月份内的随机时间, 日期不超过当月天数
func (n *Normalizer) randomEpochTime() time.Time {
	days := n.Epoch.AddDate(0, 1, -1).Day()
	day := n.rnd.IntN(days) + 1
	hour := n.rnd.IntN(24)
	minute := n.rnd.IntN(60)
	return time.Date(n.Epoch.Year(), n.Epoch.Month(), day, hour, minute, 0, 0, time.UTC)
}
