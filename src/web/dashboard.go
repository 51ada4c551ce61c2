package web

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"FlightScheduleOptimizer/src/processor"
)

type barView struct {
	Label string
	Value string
	Pct   float64
}

type chartView struct {
	Title string
	Line  bool
	Bars  []barView
}

type dashboardView struct {
	Title    string
	Source   string
	Airport  string
	Airports []airport
	Examples []string
	Query    string
	Notice   string
	Empty    bool
	Preview  TablePreview
	Answer   string
	Charts   []chartView
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	source, iata, res := s.load(r)
	view := dashboardView{
		Title:    Title,
		Source:   string(source),
		Airport:  iata,
		Airports: s.airports,
		Examples: s.examples,
		Notice:   res.Notice,
		Empty:    res.Empty(),
	}

	if !view.Empty {
		view.Preview = preview(res.Table, PreviewRows)

		// 下拉框选中的示例优先
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if ex := strings.TrimSpace(r.URL.Query().Get("example")); ex != "" {
			query = ex
		}
		view.Query = query
		if query != "" {
			view.Answer, _ = s.answer(res.Table, query)
		}

		charts := processor.BuildCharts(res.Table)
		view.Charts = []chartView{
			chartOf("Top 5 Delayed Flights", charts.TopDelayed, false),
			chartOf("Flights Distribution by Hour", charts.FlightsByHour, true),
			chartOf("Average Delay by Airline", charts.DelayByAirline, false),
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, view); err != nil {
		s.logger.Error("渲染看板失败: " + err.Error())
	}
}

// chartOf 条形长度按最大值换算成百分比
func chartOf(title string, points []processor.Point, line bool) chartView {
	c := chartView{Title: title, Line: line}
	maxVal := 0.0
	for _, p := range points {
		maxVal = max(maxVal, p.Value)
	}
	for _, p := range points {
		pct := 0.0
		if maxVal > 0 && p.Value > 0 {
			pct = p.Value / maxVal * 100
		}
		c.Bars = append(c.Bars, barView{
			Label: p.Label,
			Value: strconv.FormatFloat(p.Value, 'f', -1, 64),
			Pct:   pct,
		})
	}
	return c
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table.preview { border-collapse: collapse; font-size: 13px; }
table.preview td, table.preview th { border: 1px solid #ddd; padding: 3px 6px; }
.answer { background: #e6f4ea; border: 1px solid #34a853; padding: 1em; white-space: pre-wrap; font-family: monospace; }
.warning { background: #fef7e0; border: 1px solid #f9ab00; padding: 1em; }
.notice { color: #b06000; }
.chart { display: inline-block; vertical-align: top; width: 30%; margin-right: 2%; }
.bar { background: #1f77b4; height: 14px; }
.chart.line .bar { background: #ff7f0e; }
.row { display: flex; align-items: center; font-size: 12px; margin: 2px 0; }
.row .label { width: 30%; }
.row .track { width: 55%; }
.row .value { width: 15%; text-align: right; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<form method="get" action="/">
  <fieldset>
    <legend>Choose Data Source</legend>
    <label><input type="radio" name="source" value="excel" {{if eq .Source "excel"}}checked{{end}}> Offline Excel</label>
    <label><input type="radio" name="source" value="live" {{if eq .Source "live"}}checked{{end}}> Live API (AviationStack)</label>
    <label>Select Airport
      <select name="airport">
      {{range .Airports}}<option value="{{.IATA}}" {{if eq .IATA $.Airport}}selected{{end}}>{{.Label}}</option>{{end}}
      </select>
    </label>
  </fieldset>
  {{if not .Empty}}
  <p>
    <label>Ask a question about the flights
      <input type="text" name="q" size="60" value="{{.Query}}" placeholder="e.g., most delayed flight, average delay, busiest hour">
    </label>
  </p>
  <p>
    <label>Or pick an example query:
      <select name="example">
        <option value=""></option>
        {{range .Examples}}<option value="{{.}}">{{.}}</option>{{end}}
      </select>
    </label>
  </p>
  {{end}}
  <button type="submit">Go</button>
</form>

{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}

{{if .Empty}}
<div class="warning">No data available.</div>
{{else}}
<h2>Flights ({{.Preview.Total}})</h2>
<table class="preview">
  <tr>{{range .Preview.Columns}}<th>{{.}}</th>{{end}}</tr>
  {{range .Preview.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}
</table>

{{if .Answer}}<h2>Answer</h2><div class="answer">{{.Answer}}</div>{{end}}

<h2>Visualizations</h2>
{{range .Charts}}
<div class="chart{{if .Line}} line{{end}}">
  <h3>{{.Title}}</h3>
  {{if .Bars}}
    {{range .Bars}}<div class="row"><span class="label">{{.Label}}</span><span class="track"><div class="bar" style="width: {{printf "%.1f" .Pct}}%"></div></span><span class="value">{{.Value}}</span></div>{{end}}
  {{else}}<p>No data available.</p>{{end}}
</div>
{{end}}
<p><a href="/charts.pdf?source={{.Source}}&airport={{.Airport}}">Charts (PDF)</a> | <a href="/export.xlsx?source={{.Source}}&airport={{.Airport}}">Export (xlsx)</a> | <a href="/logs">Logs</a></p>
{{end}}
</body>
</html>
`))
