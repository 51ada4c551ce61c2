package processor

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"FlightScheduleOptimizer/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 规范列名
const (
	ColFlightNumber = "flight_number"
	ColFrom         = "from"
	ColTo           = "to"
	ColAirline      = "airline"
	ColScheduled    = "scheduled_departure"
	ColActual       = "actual_departure"
	ColDelay        = "delay"
	ColStatus       = "status"
)

// Unknown 文本列缺失值
const Unknown = "Unknown"

// frame 只读视图, 列名按 去空格+小写 访问, 不修改原表
type frame struct {
	df    dataframe.DataFrame
	names map[string]string
	nrow  int
}

func newFrame(df dataframe.DataFrame) *frame {
	f := &frame{df: df, names: make(map[string]string)}
	for _, n := range df.Names() {
		key := strings.ToLower(strings.TrimSpace(n))
		if _, ok := f.names[key]; !ok {
			f.names[key] = n
		}
	}
	if len(f.names) > 0 {
		f.nrow = df.Nrow()
	}
	return f
}

func (f *frame) has(name string) bool {
	_, ok := f.names[name]
	return ok
}

func (f *frame) col(name string) (series.Series, bool) {
	orig, ok := f.names[name]
	if !ok {
		return series.Series{}, false
	}
	return f.df.Col(orig), true
}

// texts 文本值, 列不存在时全部为 Unknown
func (f *frame) texts(name string) []string {
	s, ok := f.col(name)
	out := make([]string, f.nrow)
	if !ok {
		for i := range out {
			out[i] = Unknown
		}
		return out
	}
	for i := 0; i < f.nrow; i++ {
		out[i] = s.Elem(i).String()
	}
	return out
}

// floats 数值, 无法解析的为 NaN
func (f *frame) floats(name string) []float64 {
	s, ok := f.col(name)
	out := make([]float64, f.nrow)
	if !ok {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	copy(out, s.Float())
	return out
}

// delays 去掉 NaN 的延误序列
func (f *frame) delays() []float64 {
	if !f.has(ColDelay) {
		return nil
	}
	var out []float64
	for _, v := range f.floats(ColDelay) {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// hours 计划起飞的小时, 无法解析的行 valid 为 false
func (f *frame) hours() (hours []int, valid []bool) {
	hours = make([]int, f.nrow)
	valid = make([]bool, f.nrow)
	for i, v := range f.texts(ColScheduled) {
		if t, ok := utils.ParseTime(v); ok {
			hours[i] = t.Hour()
			valid[i] = true
		}
	}
	return hours, valid
}

// ranked 按延误降序的行号, 相同延误保持原行序, NaN 不参与
func (f *frame) ranked() []int {
	delay := f.floats(ColDelay)
	var idx []int
	for i, v := range delay {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(delay[b], delay[a])
	})
	return idx
}

// argBest 第一个最大(或最小)值的行号
func argBest(vals []float64, larger bool) (int, bool) {
	best := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || (larger && v > vals[best]) || (!larger && v < vals[best]) {
			best = i
		}
	}
	return best, best >= 0
}

type group[K cmp.Ordered] struct {
	Key  K
	Mean float64
}

// groupMeans 分组均值, 忽略 NaN, 没有有效值的分组不输出, 结果按键升序
func groupMeans[K cmp.Ordered](keys []K, valid []bool, vals []float64) []group[K] {
	sums := make(map[K]float64)
	counts := make(map[K]int)
	for i, k := range keys {
		if valid != nil && !valid[i] {
			continue
		}
		if math.IsNaN(vals[i]) {
			continue
		}
		sums[k] += vals[i]
		counts[k]++
	}

	out := make([]group[K], 0, len(counts))
	for k, n := range counts {
		out = append(out, group[K]{Key: k, Mean: sums[k] / float64(n)})
	}
	slices.SortFunc(out, func(a, b group[K]) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// bestGroup 第一个均值最大(或最小)的分组
func bestGroup[K cmp.Ordered](groups []group[K], larger bool) (K, bool) {
	var zero K
	if len(groups) == 0 {
		return zero, false
	}
	best := 0
	for i, g := range groups {
		if (larger && g.Mean > groups[best].Mean) || (!larger && g.Mean < groups[best].Mean) {
			best = i
		}
	}
	return groups[best].Key, true
}

// modeHour 出现次数最多的小时, 次数相同取先出现的
func modeHour(hours []int, valid []bool) (int, bool) {
	counts := make(map[int]int)
	var order []int
	for i, h := range hours {
		if !valid[i] {
			continue
		}
		if counts[h] == 0 {
			order = append(order, h)
		}
		counts[h]++
	}
	if len(order) == 0 {
		return 0, false
	}
	best := order[0]
	for _, h := range order[1:] {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best, true
}
