package processor

import (
	"strconv"

	"github.com/go-gota/gota/dataframe"
)

// Point 图表上的一个点
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Charts 看板上的三张图
type Charts struct {
	TopDelayed     []Point `json:"top_delayed"`
	FlightsByHour  []Point `json:"flights_by_hour"`
	DelayByAirline []Point `json:"delay_by_airline"`
}

// BuildCharts 计算三张图, 不适用的图为空
func BuildCharts(df dataframe.DataFrame) Charts {
	return Charts{
		TopDelayed:     TopDelayed(df, 5),
		FlightsByHour:  FlightsByHour(df),
		DelayByAirline: AverageDelayByAirline(df, 10),
	}
}

// TopDelayed 延误最大的 n 个航班
func TopDelayed(df dataframe.DataFrame, n int) []Point {
	f := newFrame(df)
	if len(f.delays()) == 0 {
		return nil
	}
	idx := f.ranked()
	if len(idx) > n {
		idx = idx[:n]
	}
	fn, delay := f.texts(ColFlightNumber), f.floats(ColDelay)

	points := make([]Point, len(idx))
	for k, i := range idx {
		points[k] = Point{Label: fn[i], Value: delay[i]}
	}
	return points
}

// FlightsByHour 每小时计划起飞的航班数, 按小时升序
func FlightsByHour(df dataframe.DataFrame) []Point {
	f := newFrame(df)
	if !f.has(ColScheduled) {
		return nil
	}

	var counts [24]int
	hours, valid := f.hours()
	for i, h := range hours {
		if valid[i] {
			counts[h]++
		}
	}

	var points []Point
	for h, c := range counts {
		if c > 0 {
			points = append(points, Point{Label: strconv.Itoa(h), Value: float64(c)})
		}
	}
	return points
}

// AverageDelayByAirline 各航司平均延误, 降序取前 n 个
func AverageDelayByAirline(df dataframe.DataFrame, n int) []Point {
	f := newFrame(df)
	if !f.has(ColAirline) || len(f.delays()) == 0 {
		return nil
	}

	groups := groupMeans(f.texts(ColAirline), nil, f.floats(ColDelay))
	sortGroupsDesc(groups)
	if len(groups) > n {
		groups = groups[:n]
	}

	points := make([]Point, len(groups))
	for i, g := range groups {
		points[i] = Point{Label: g.Key, Value: g.Mean}
	}
	return points
}
