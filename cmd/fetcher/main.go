package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/fetcher"
	"smc-trader/internal/log"
	"smc-trader/internal/store"
)

func main() {
	var (
		configPath string
		exportCSV  bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&exportCSV, "export", true, "回填完成后导出 CSV 数据集")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	client, err := exchange.NewClient(cfg.Exchange, logger.Named("exchange"))
	if err != nil {
		logger.Error("初始化交易所客户端失败", zap.Error(err))
		os.Exit(1)
	}

	repo, err := store.NewCandleRepository(sqliteStore)
	if err != nil {
		logger.Error("初始化K线仓库失败", zap.Error(err))
		os.Exit(1)
	}

	f, err := fetcher.New(cfg.Fetcher, client, repo, logger.Named("fetcher"))
	if err != nil {
		logger.Error("初始化抓取器失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress, err := f.Backfill(ctx)
	if err != nil {
		logger.Error("回填K线失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("回填完成",
		zap.String("symbol", progress.Symbol),
		zap.String("timeframe", progress.Timeframe),
		zap.Int("batches", progress.Batches),
		zap.Int("fetched", progress.Fetched),
		zap.Int("stored", progress.Stored),
		zap.Int("gaps", progress.Gaps),
		zap.Time("from", progress.From),
		zap.Time("to", progress.To),
	)

	if !exportCSV {
		return
	}

	count, err := f.ExportCSV(ctx, time.Time{}, time.Now().UTC())
	if err != nil {
		logger.Error("导出 CSV 失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("CSV 导出完成",
		zap.String("path", cfg.Fetcher.CSVPath),
		zap.Int("rows", count),
	)
}
