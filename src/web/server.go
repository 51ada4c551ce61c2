package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"FlightScheduleOptimizer/src/datasource"
	"FlightScheduleOptimizer/src/processor"
	"FlightScheduleOptimizer/src/report"
	"FlightScheduleOptimizer/src/storage"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PreviewRows = 20
	NoDataText  = "No data available."
	Title       = "Flight Schedule Optimizer with NLP Queries"
)

// FlightLoader 按数据源加载规范航班表
type FlightLoader interface {
	Load(ctx context.Context, source datasource.Source, airport string) datasource.Result
}

// AnswerPusher 把回答推送到群机器人
type AnswerPusher interface {
	Enabled() bool
	SendText(ctx context.Context, content string) error
}

// Options 服务依赖, Pusher 可为空
type Options struct {
	Loader   FlightLoader
	Resolver *processor.Resolver
	Pusher   AnswerPusher
	Logger   *storage.Logger
	Metrics  *Metrics
	Airports map[string]string // 显示名 -> IATA
	Examples []string
}

type airport struct {
	Label string
	IATA  string
}

// Server 看板和 JSON 接口
type Server struct {
	loader   FlightLoader
	resolver *processor.Resolver
	pusher   AnswerPusher
	logger   *storage.Logger
	metrics  *Metrics
	airports []airport
	examples []string

	router     *mux.Router
	httpServer *http.Server
}

func NewServer(addr string, opts Options) *Server {
	s := &Server{
		loader:   opts.Loader,
		resolver: opts.Resolver,
		pusher:   opts.Pusher,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		examples: opts.Examples,
		router:   mux.NewRouter(),
	}
	for label, iata := range opts.Airports {
		s.airports = append(s.airports, airport{Label: label, IATA: iata})
	}
	sort.Slice(s.airports, func(i, j int) bool { return s.airports[i].Label < s.airports[j].Label })

	s.router.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/api/query", s.handleQuery).Methods(http.MethodPost)
	s.router.HandleFunc("/api/flights", s.handleFlights).Methods(http.MethodGet)
	s.router.HandleFunc("/api/charts", s.handleCharts).Methods(http.MethodGet)
	s.router.HandleFunc("/charts.pdf", s.handleChartsPDF).Methods(http.MethodGet)
	s.router.HandleFunc("/export.xlsx", s.handleExport).Methods(http.MethodGet)
	s.router.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// /logs 是长连接, 不设 WriteTimeout
	}
	return s
}

// Start 开始监听, 正常关闭时返回 http.ErrServerClosed
func (s *Server) Start() error {
	s.logger.Info(fmt.Sprintf("看板已启动: %s", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown 在 ctx 截止前关闭连接
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// selection 解析数据源和机场, 机场为空时取下拉框第一项
func (s *Server) selection(source, iata string) (datasource.Source, string) {
	iata = strings.ToUpper(strings.TrimSpace(iata))
	if iata == "" && len(s.airports) > 0 {
		iata = s.airports[0].IATA
	}
	return datasource.ParseSource(source), iata
}

func (s *Server) load(r *http.Request) (datasource.Source, string, datasource.Result) {
	source, iata := s.selection(r.URL.Query().Get("source"), r.URL.Query().Get("airport"))
	return source, iata, s.loader.Load(r.Context(), source, iata)
}

// answer 解析问题并记录命中的规则
func (s *Server) answer(df dataframe.DataFrame, query string) (string, string) {
	answer, rule := s.resolver.ResolveRule(df, query)
	if s.metrics != nil {
		s.metrics.observeQuery(rule)
	}
	s.logger.Debug(fmt.Sprintf("问题 %q 命中规则 %s", query, rule))
	return answer, rule
}

// QueryRequest POST /api/query 请求体, Example 非空时覆盖 Query
type QueryRequest struct {
	Source  string `json:"source"`
	Airport string `json:"airport"`
	Query   string `json:"query"`
	Example string `json:"example"`
	Push    bool   `json:"push"`
}

// QueryResponse 回答和命中的规则
type QueryResponse struct {
	Answer    string `json:"answer"`
	Rule      string `json:"rule,omitempty"`
	Rows      int    `json:"rows"`
	Notice    string `json:"notice,omitempty"`
	Pushed    bool   `json:"pushed"`
	PushError string `json:"push_error,omitempty"`
}

// ErrorResponse 接口错误
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(req.Query)
	if ex := strings.TrimSpace(req.Example); ex != "" {
		query = ex
	}
	if query == "" {
		s.sendError(w, "query is required", http.StatusBadRequest)
		return
	}

	source, iata := s.selection(req.Source, req.Airport)
	res := s.loader.Load(r.Context(), source, iata)
	resp := QueryResponse{Rows: res.Table.Nrow(), Notice: res.Notice}
	if res.Empty() {
		if resp.Notice == "" {
			resp.Notice = NoDataText
		}
		s.sendJSON(w, resp, http.StatusOK)
		return
	}

	resp.Answer, resp.Rule = s.answer(res.Table, query)

	if req.Push && s.pusher != nil && s.pusher.Enabled() {
		err := s.pusher.SendText(r.Context(), fmt.Sprintf("%s\n\n%s", query, resp.Answer))
		if s.metrics != nil {
			s.metrics.observePush(err)
		}
		if err != nil {
			s.logger.Warning("推送回答失败: " + err.Error())
			resp.PushError = err.Error()
		} else {
			resp.Pushed = true
		}
	}
	s.sendJSON(w, resp, http.StatusOK)
}

// TablePreview 表头和前几行
type TablePreview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total"`
}

// FlightsResponse GET /api/flights
type FlightsResponse struct {
	Source  string `json:"source"`
	Airport string `json:"airport,omitempty"`
	Notice  string `json:"notice,omitempty"`
	TablePreview
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	limit := PreviewRows
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	source, iata, res := s.load(r)
	resp := FlightsResponse{Source: string(source), Notice: res.Notice, TablePreview: preview(res.Table, limit)}
	if source == datasource.SourceLive {
		resp.Airport = iata
	}
	s.sendJSON(w, resp, http.StatusOK)
}

// ChartsResponse GET /api/charts
type ChartsResponse struct {
	Notice string `json:"notice,omitempty"`
	processor.Charts
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	_, _, res := s.load(r)
	s.sendJSON(w, ChartsResponse{Notice: res.Notice, Charts: processor.BuildCharts(res.Table)}, http.StatusOK)
}

func (s *Server) handleChartsPDF(w http.ResponseWriter, r *http.Request) {
	_, _, res := s.load(r)
	if res.Empty() {
		s.sendError(w, noticeOrDefault(res.Notice), http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteChartsPDF(&buf, Title, processor.BuildCharts(res.Table)); err != nil {
		s.logger.Error("生成PDF失败: " + err.Error())
		s.sendError(w, "failed to render charts", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="charts.pdf"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	_, _, res := s.load(r)
	if res.Empty() {
		s.sendError(w, noticeOrDefault(res.Notice), http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, res.Table, processor.BuildCharts(res.Table)); err != nil {
		s.logger.Error("导出Excel失败: " + err.Error())
		s.sendError(w, "failed to export workbook", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="flights.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

// handleLogs 把日志实时推给浏览器
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	logChan := s.logger.Subscribe()
	defer s.logger.Unsubscribe(logChan)

	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("写入响应失败: " + err.Error())
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, ErrorResponse{Error: message, Code: status}, status)
}

func noticeOrDefault(notice string) string {
	if notice == "" {
		return NoDataText
	}
	return notice
}

// preview 前 n 行, 数值列去掉多余的零
func preview(df dataframe.DataFrame, n int) TablePreview {
	p := TablePreview{Columns: df.Names(), Total: df.Nrow()}
	if p.Columns == nil {
		p.Columns = []string{}
	}
	rows := min(n, df.Nrow())
	p.Rows = make([][]string, rows)
	for i := range p.Rows {
		p.Rows[i] = make([]string, len(p.Columns))
	}

	for c, name := range p.Columns {
		col := df.Col(name)
		var floats []float64
		if col.Type() == series.Float {
			floats = col.Float()
		}
		for i := 0; i < rows; i++ {
			if floats == nil {
				p.Rows[i][c] = col.Elem(i).String()
				continue
			}
			if math.IsNaN(floats[i]) {
				p.Rows[i][c] = ""
				continue
			}
			p.Rows[i][c] = strconv.FormatFloat(floats[i], 'f', -1, 64)
		}
	}
	return p
}
