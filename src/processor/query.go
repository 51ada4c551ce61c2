package processor

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"FlightScheduleOptimizer/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
)

// FallbackAnswer 没有规则命中时的回答
const FallbackAnswer = "🤔 Noted down! I'm still learning — your query will help me improve."

// FallbackRule 兜底规则名
const FallbackRule = "fallback"

// rule 关键字规则, 按顺序匹配, 第一个满足条件且 handler 给出回答的规则生效
type rule struct {
	name       string
	trigger    string
	requires   []string
	needDelays bool
	handler    func(r *Resolver, f *frame) (string, bool)
}

var rules = []rule{
	{"most_delayed", "most delayed", nil, true, mostDelayed},
	{"average_delay", "average delay", nil, true, averageDelay},
	{"busiest_hour", "busiest hour", []string{ColScheduled}, false, busiestHour},
	{"total_flights", "total flights", nil, false, totalFlights},
	{"worst_airline", "worst airline", []string{ColAirline}, true, worstAirline},
	{"top5_delayed", "top 5 delayed", nil, true, topDelayedTable(5, "Top 5 delayed flights:\n")},
	{"shortest_delay", "shortest delay", nil, true, shortestDelay},
	{"cancelled", "cancelled", []string{ColStatus}, false, cancelledFlights},
	{"on_time", "on time", []string{ColDelay}, false, onTime},
	{"worst_destination", "destination with most delays", []string{ColTo}, true, worstDestination},
	{"airline_delays", "compare delays between airlines", []string{ColAirline}, true, airlineDelays},
	{"delay_trend", "delay trend", []string{ColScheduled}, true, delayTrend},
	{"busiest_slot_tomorrow", "busiest slot tomorrow", []string{ColScheduled}, false, busiestSlotTomorrow},
	{"downstream_delays", "flights cause most downstream delays", nil, true,
		topDelayedTable(3, "🚨 Flights causing most downstream delays:\n")},
	{"optimal_slot", "suggest optimal slot for a flight", []string{ColScheduled, ColDelay}, false, optimalSlot},
	{"cascading_impact", "top 10 flights with highest cascading impact", nil, true,
		topDelayedTable(10, "📊 Top 10 flights with highest cascading impact:\n")},
	{"optimized_schedule", "optimized schedule suggestion", []string{ColScheduled}, true, optimizedSchedule},
}

// Resolver 按关键字规则回答航班表上的问题
type Resolver struct {
	Clock clockwork.Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewResolver(rnd *rand.Rand, clock clockwork.Clock) *Resolver {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{Clock: clock, rnd: rnd}
}

// Resolve 返回问题的回答, 从不失败
func (r *Resolver) Resolve(df dataframe.DataFrame, query string) string {
	answer, _ := r.ResolveRule(df, query)
	return answer
}

// ResolveRule 返回回答和命中的规则名
func (r *Resolver) ResolveRule(df dataframe.DataFrame, query string) (string, string) {
	q := cases.Fold().String(query)
	f := newFrame(df)
	hasDelays := len(f.delays()) > 0

	for _, rl := range rules {
		if !strings.Contains(q, rl.trigger) {
			continue
		}
		if rl.needDelays && !hasDelays {
			continue
		}
		if !f.hasAll(rl.requires) {
			continue
		}
		if answer, ok := rl.handler(r, f); ok {
			return answer, rl.name
		}
	}
	return FallbackAnswer, FallbackRule
}

func (f *frame) hasAll(names []string) bool {
	for _, n := range names {
		if !f.has(n) {
			return false
		}
	}
	return true
}

func mostDelayed(_ *Resolver, f *frame) (string, bool) {
	delay := f.floats(ColDelay)
	i, ok := argBest(delay, true)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("✈️ The most delayed flight is %s from %s to %s with a delay of %.0f min.",
		f.texts(ColFlightNumber)[i], f.texts(ColFrom)[i], f.texts(ColTo)[i], delay[i]), true
}

func averageDelay(_ *Resolver, f *frame) (string, bool) {
	delays := f.delays()
	sum := 0.0
	for _, v := range delays {
		sum += v
	}
	return fmt.Sprintf("📊 The average delay is %.2f min.", sum/float64(len(delays))), true
}

func busiestHour(_ *Resolver, f *frame) (string, bool) {
	h, ok := modeHour(f.hours())
	if !ok {
		return "", false
	}
	return fmt.Sprintf("🕒 The busiest hour is %d:00.", h), true
}

func totalFlights(_ *Resolver, f *frame) (string, bool) {
	return fmt.Sprintf("📌 Total flights: %d", f.nrow), true
}

func worstAirline(_ *Resolver, f *frame) (string, bool) {
	a, ok := bestGroup(groupMeans(f.texts(ColAirline), nil, f.floats(ColDelay)), true)
	if !ok {
		return "", false
	}
	return "🚨 Worst airline by delays: " + a, true
}

func shortestDelay(_ *Resolver, f *frame) (string, bool) {
	delay := f.floats(ColDelay)
	i, ok := argBest(delay, false)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("✅ Shortest delay is %.0f min on flight %s", delay[i], f.texts(ColFlightNumber)[i]), true
}

func cancelledFlights(_ *Resolver, f *frame) (string, bool) {
	n := 0
	for _, s := range f.texts(ColStatus) {
		if strings.EqualFold(strings.TrimSpace(s), "cancelled") {
			n++
		}
	}
	return fmt.Sprintf("🚫 Cancelled flights: %d", n), true
}

func onTime(_ *Resolver, f *frame) (string, bool) {
	n := 0
	for _, v := range f.floats(ColDelay) {
		if v <= 0 {
			n++
		}
	}
	return fmt.Sprintf("⏱️ %d flights departed on time.", n), true
}

func worstDestination(_ *Resolver, f *frame) (string, bool) {
	to, ok := bestGroup(groupMeans(f.texts(ColTo), nil, f.floats(ColDelay)), true)
	if !ok {
		return "", false
	}
	return "📍 Destination with most delays: " + to, true
}

func airlineDelays(_ *Resolver, f *frame) (string, bool) {
	groups := groupMeans(f.texts(ColAirline), nil, f.floats(ColDelay))
	if len(groups) == 0 {
		return "", false
	}
	sortGroupsDesc(groups)

	rows := make([][]string, len(groups))
	for i, g := range groups {
		rows[i] = []string{g.Key, formatMean(g.Mean)}
	}
	return "Airline delays:\n" + renderTable([]string{ColAirline, ColDelay}, rows), true
}

func delayTrend(_ *Resolver, f *frame) (string, bool) {
	hours, valid := f.hours()
	groups := groupMeans(hours, valid, f.floats(ColDelay))
	if len(groups) == 0 {
		return "", false
	}

	rows := make([][]string, len(groups))
	for i, g := range groups {
		rows[i] = []string{strconv.Itoa(g.Key), formatMean(g.Mean)}
	}
	return "⏳ Delay trend by hour:\n" + renderTable([]string{"hour", ColDelay}, rows), true
}

func busiestSlotTomorrow(r *Resolver, f *frame) (string, bool) {
	tomorrow := r.Clock.Now().AddDate(0, 0, 1)
	ty, tm, td := tomorrow.Date()

	hours := make([]int, 0, f.nrow)
	valid := make([]bool, 0, f.nrow)
	for _, v := range f.texts(ColScheduled) {
		t, ok := utils.ParseTime(v)
		if !ok {
			continue
		}
		if y, m, d := t.Date(); y == ty && m == tm && d == td {
			hours = append(hours, t.Hour())
			valid = append(valid, true)
		}
	}

	h, ok := modeHour(hours, valid)
	if !ok {
		return "No flights scheduled for tomorrow.", true
	}
	return fmt.Sprintf("⏱️ Busiest slot tomorrow is %d:00–%d:00", h, h+1), true
}

func optimalSlot(_ *Resolver, f *frame) (string, bool) {
	hours, valid := f.hours()
	h, ok := bestGroup(groupMeans(hours, valid, f.floats(ColDelay)), false)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("✅ Suggested optimal slot for your flight: %d:00–%d:00 (lowest average delay)", h, h+1), true
}

// topDelayedTable 延误最大的前 n 个航班
func topDelayedTable(n int, title string) func(*Resolver, *frame) (string, bool) {
	return func(_ *Resolver, f *frame) (string, bool) {
		idx := f.ranked()
		if len(idx) > n {
			idx = idx[:n]
		}
		fn, from, to, delay := f.texts(ColFlightNumber), f.texts(ColFrom), f.texts(ColTo), f.floats(ColDelay)

		rows := make([][]string, len(idx))
		for k, i := range idx {
			rows[k] = []string{fn[i], from[i], to[i], formatDelay(delay[i])}
		}
		return title + renderTable([]string{ColFlightNumber, ColFrom, ColTo, ColDelay}, rows), true
	}
}

// optimizedSchedule 延误最大的5个航班, 建议提前15到29分钟
func optimizedSchedule(r *Resolver, f *frame) (string, bool) {
	idx := f.ranked()
	if len(idx) > 5 {
		idx = idx[:5]
	}
	fn, sched, delay := f.texts(ColFlightNumber), f.texts(ColScheduled), f.floats(ColDelay)

	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([][]string, len(idx))
	for k, i := range idx {
		optimized := Unknown
		shift := time.Duration(15+r.rnd.IntN(15)) * time.Minute
		if t, ok := utils.ParseTime(sched[i]); ok {
			optimized = utils.FormatTime(utils.Naive(t).Add(-shift))
		}
		rows[k] = []string{fn[i], sched[i], formatDelay(delay[i]), optimized}
	}
	return "🛠️ Optimized schedule suggestion (Before vs After):\n" +
		renderTable([]string{ColFlightNumber, ColScheduled, ColDelay, "optimized_departure"}, rows), true
}

// sortGroupsDesc 均值降序, 相同均值保持键升序
func sortGroupsDesc[K cmp.Ordered](groups []group[K]) {
	slices.SortStableFunc(groups, func(a, b group[K]) int { return cmp.Compare(b.Mean, a.Mean) })
}

func formatDelay(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatMean(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// renderTable 无边框的纯文本表格
func renderTable(header []string, rows [][]string) string {
	var buf strings.Builder
	tw := tablewriter.NewWriter(&buf)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(header)
	tw.SetBorder(false)
	tw.SetHeaderLine(false)
	tw.SetColumnSeparator("")
	tw.SetCenterSeparator("")
	tw.SetRowSeparator("")
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.AppendBulk(rows)
	tw.Render()
	return strings.TrimRight(buf.String(), "\n ")
}
