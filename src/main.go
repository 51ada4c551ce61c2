package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"FlightScheduleOptimizer/src/config"
	"FlightScheduleOptimizer/src/datapush"
	"FlightScheduleOptimizer/src/datasource"
	"FlightScheduleOptimizer/src/datasource/email"
	"FlightScheduleOptimizer/src/datasource/file"
	"FlightScheduleOptimizer/src/datasource/live"
	"FlightScheduleOptimizer/src/processor"
	"FlightScheduleOptimizer/src/storage"
	"FlightScheduleOptimizer/src/web"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron"
)

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	a, err := newApp(cfg, dcfg, logger, web.NewMetrics())
	if err != nil {
		logger.Fatal("启动失败: " + err.Error())
		_ = logger.Close()
		os.Exit(1)
	}

	a.start()
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("看板服务异常退出: " + err.Error())
		}
	}()

	waitForShutdown(logger, a)
}

// app 进程内的全部组件
type app struct {
	cfg      *config.Config
	logger   *storage.Logger
	provider *datasource.Provider
	server   *web.Server
	monitor  *file.FileMonitor
	cron     *cron.Cron
	poller   *email.Poller
}

func newApp(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger, metrics *web.Metrics) (*app, error) {
	epoch, err := cfg.Epoch()
	if err != nil {
		return nil, err
	}
	clock := clockwork.NewRealClock()

	if err := os.MkdirAll(filepath.Dir(cfg.DataPath()), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	normalizer := processor.NewNormalizer(dcfg.Synonyms(), epoch, nil, clock)
	liveClient := live.NewClient(cfg.Live.APIKey, cfg.Live.BaseURL, cfg.Live.Timeout.Std())
	provider := datasource.NewProvider(cfg.DataPath(), normalizer, liveClient, logger, clock)
	provider.LiveTTL = cfg.CacheTTL.Std()
	provider.LiveLimit = cfg.Live.Limit
	provider.Observer = metrics

	monitor, err := file.NewFileMonitor(cfg.DataPath())
	if err != nil {
		return nil, fmt.Errorf("监听数据文件失败: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		monitor:  monitor,
		cron:     cron.New(),
	}

	a.server = web.NewServer(cfg.HTTPAddr, web.Options{
		Loader:   provider,
		Resolver: processor.NewResolver(nil, clock),
		Pusher:   datapush.NewRobotPusher(cfg.DingTalk.Webhook, cfg.DingTalk.Secret, clock),
		Logger:   logger,
		Metrics:  metrics,
		Airports: cfg.Airports,
		Examples: dcfg.ExampleQueries,
	})

	if cfg.EmailEnabled() {
		a.poller = &email.Poller{
			Service: email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password),
			Handler: email.NewXLSXAttachmentHandler(cfg.DataPath(), logger),
			Subject: cfg.Email.TargetSubject,
			Logger:  logger,
		}
	}

	if err := a.scheduleJobs(); err != nil {
		_ = monitor.Close()
		return nil, err
	}
	return a, nil
}

// scheduleJobs 日志轮转和邮箱轮询
func (a *app) scheduleJobs() error {
	err := a.cron.AddFunc("@every 1m", func() {
		if err := a.logger.CheckRotate(a.cfg.LogMaxSize); err != nil {
			a.logger.Error("日志轮转失败: " + err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("创建日志轮转任务失败: %w", err)
	}

	if a.poller == nil {
		return nil
	}
	interval := a.cfg.Email.CheckInterval.Std().String() // 例如 "5m0s"
	cronSpec := fmt.Sprintf("@every %s", interval)
	err = a.cron.AddFunc(cronSpec, func() {
		t1 := time.Now()
		if a.poller.Poll() {
			a.logger.Info(fmt.Sprintf("数据文件已从邮箱更新, 耗时: %v", time.Since(t1)))
		}
	})
	if err != nil {
		return fmt.Errorf("创建邮箱轮询任务失败: %w", err)
	}
	a.logger.Info(fmt.Sprintf("邮件监控已启用(检查间隔: %v)", interval))
	return nil
}

// start 启动定时任务和文件监听
func (a *app) start() {
	a.cron.Start()
	go a.monitor.Watch(a.onDataFileChanged, func(err error) {
		a.logger.Error("文件监听错误: " + err.Error())
	})
}

// onDataFileChanged 数据文件变化后丢弃Excel缓存, 下次请求重新读取
func (a *app) onDataFileChanged(path string) {
	n := a.provider.InvalidateBatch()
	a.logger.Info(fmt.Sprintf("数据文件已变化: %s, 清除缓存 %d 条", path, n))
}

func (a *app) stop(ctx context.Context) error {
	a.cron.Stop()
	err := a.server.Shutdown(ctx)
	if cerr := a.monitor.Close(); err == nil {
		err = cerr
	}
	return err
}

func waitForShutdown(logger *storage.Logger, a *app) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal: " + sig.String() + ", shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.stop(ctx); err != nil {
		logger.Error("关闭失败: " + err.Error())
	}
	_ = logger.Close()
}
