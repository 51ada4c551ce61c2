package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 环境变量名
const (
	EnvAPIKey   = "AVIATIONSTACK_API_KEY"
	EnvHTTPAddr = "HTTP_ADDR"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataFile      string   `json:"data_file"`      // 离线航班Excel文件名
	DataDir       string   `json:"data_dir"`       // 应用程序数据存储目录
	LogName       string   `json:"log_name"`       // 日志文件
	LogMaxSize    string   `json:"log_max_size"`   // 日志轮转阈值, 例如 "10 * 1024 * 1024"
	HTTPAddr      string   `json:"http_addr"`      // 看板监听地址
	CacheTTL      Duration `json:"cache_ttl"`      // 实时数据缓存时长
	FallbackEpoch string   `json:"fallback_epoch"` // 无效日期回填月份, 格式 "2006-01"

	Live struct {
		BaseURL string   `json:"base_url"` // aviationstack 接口地址
		Timeout Duration `json:"timeout"`  // 请求超时
		Limit   int      `json:"limit"`    // 单次返回条数
		APIKey  string   `json:"-"`        // 只从环境变量读取
	} `json:"live"`

	// Airports 下拉框: 显示名 -> IATA
	Airports map[string]string `json:"airports"`

	Email struct {
		Server        string   `json:"server"`         // 邮件服务器地址
		Username      string   `json:"username"`       // 邮箱用户名
		Password      string   `json:"password"`       // 邮箱密码
		TargetSubject string   `json:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email"`

	DingTalk struct {
		Webhook string `json:"webhook"` // 机器人推送地址, 为空则不推送
		Secret  string `json:"secret"`  // 加签密钥, 可选
	} `json:"dingtalk"`
}

// DataConfig 数据相关配置: 列名同义词与示例查询
type DataConfig struct {
	ColumnSynonyms map[string]string `json:"column_synonyms"`
	ExampleQueries []string          `json:"example_queries"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

// LoadConfig 只加载一次配置, 之后返回同一实例
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	// .env 不存在不是错误
	_ = godotenv.Load(filepath.Join(jsonFolder, ".env"))
	cfg.applyEnv()
	cfg.applyDefaults()
	dcfg.applyDefaults()

	if _, err := cfg.Epoch(); err != nil {
		return nil, nil, err
	}

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

func (c *Config) applyEnv() {
	c.Live.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	if addr := os.Getenv(EnvHTTPAddr); addr != "" {
		c.HTTPAddr = addr
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DataFile == "" {
		c.DataFile = "Flight_Data.xlsx"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = Duration(60 * time.Second)
	}
	if c.FallbackEpoch == "" {
		c.FallbackEpoch = "2025-08"
	}
	if c.Live.BaseURL == "" {
		c.Live.BaseURL = "http://api.aviationstack.com/v1"
	}
	if c.Live.Timeout <= 0 {
		c.Live.Timeout = Duration(20 * time.Second)
	}
	if c.Live.Limit <= 0 {
		c.Live.Limit = 50
	}
	if len(c.Airports) == 0 {
		c.Airports = map[string]string{
			"Delhi (DEL)":  "DEL",
			"Mumbai (BOM)": "BOM",
		}
	}
	if c.Email.CheckInterval <= 0 {
		c.Email.CheckInterval = Duration(5 * time.Minute)
	}
}

// DataPath 离线Excel文件的完整路径
func (c *Config) DataPath() string {
	if filepath.IsAbs(c.DataFile) {
		return c.DataFile
	}
	return filepath.Join(c.DataDir, c.DataFile)
}

// Epoch 解析 fallback_epoch, 返回该月第一天(UTC)
func (c *Config) Epoch() (time.Time, error) {
	t, err := time.Parse("2006-01", c.FallbackEpoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid fallback_epoch %q: %w", c.FallbackEpoch, err)
	}
	return t, nil
}

// EmailEnabled 是否配置了邮箱数据源
func (c *Config) EmailEnabled() bool {
	return c.Email.Server != "" && c.Email.Username != ""
}

func (dc *DataConfig) applyDefaults() {
	if len(dc.ColumnSynonyms) == 0 {
		dc.ColumnSynonyms = DefaultColumnSynonyms()
	}
	if len(dc.ExampleQueries) == 0 {
		dc.ExampleQueries = DefaultExampleQueries()
	}
}

// DefaultColumnSynonyms 标准列名映射
func DefaultColumnSynonyms() map[string]string {
	return map[string]string{
		"flight":              "flight_number",
		"flight_no":           "flight_number",
		"flight_number":       "flight_number",
		"origin":              "from",
		"source":              "from",
		"departure_airport":   "from",
		"dest":                "to",
		"destination":         "to",
		"scheduled":           "scheduled_departure",
		"scheduled_time":      "scheduled_departure",
		"scheduled_departure": "scheduled_departure",
		"actual":              "actual_departure",
		"actual_time":         "actual_departure",
		"actual_departure":    "actual_departure",
		"delay_min":           "delay",
		"delay_(min)":         "delay",
		"delay":               "delay",
	}
}

// DefaultExampleQueries 下拉框中的示例问题
func DefaultExampleQueries() []string {
	return []string{
		"most delayed flight",
		"average delay",
		"busiest hour",
		"total flights",
		"worst airline",
		"top 5 delayed flights",
		"shortest delay",
		"cancelled flights",
		"on time flights",
		"destination with most delays",
		"compare delays between airlines",
		"delay trend",
	}
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 转回 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (dc *DataConfig) GetSynonym(colName string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := dc.ColumnSynonyms[colName]
	return v, ok
}

func (dc *DataConfig) SetSynonym(colName, canonical string) {
	mu.Lock()
	defer mu.Unlock()
	if dc.ColumnSynonyms == nil {
		dc.ColumnSynonyms = make(map[string]string)
	}
	dc.ColumnSynonyms[colName] = canonical
}

// Synonyms 返回同义词表的副本
func (dc *DataConfig) Synonyms() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(dc.ColumnSynonyms))
	for k, v := range dc.ColumnSynonyms {
		out[k] = v
	}
	return out
}
