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

	"smc-trader/internal/backtest"
	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/feature"
	"smc-trader/internal/fetcher"
	"smc-trader/internal/indicator"
	"smc-trader/internal/log"
	"smc-trader/internal/risk"
	"smc-trader/internal/smc"
	"smc-trader/internal/store"
)

func main() {
	var (
		configPath     string
		csvPath        string
		targetExposure float64
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&csvPath, "csv", "", "从 CSV 读取1小时K线，留空则读取数据库")
	flag.Float64Var(&targetExposure, "exposure", 0, "规则策略的目标仓位比例，0 表示使用默认值")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	candles, err := loadCandles(ctx, cfg, csvPath)
	if err != nil {
		logger.Error("加载历史K线失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("历史K线加载完成",
		zap.String("symbol", cfg.Exchange.Market),
		zap.Int("count", len(candles)),
	)

	provider, err := backtest.NewArchiveProvider(cfg.Exchange.Market, candles, cfg.Backtest.WindowSize, cfg.Backtest.StepSize)
	if err != nil {
		logger.Error("构建快照源失败", zap.Error(err))
		os.Exit(1)
	}

	// 风控状态落在内存库里，回测不污染线上数据。
	riskStore, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		logger.Error("初始化回测数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = riskStore.Close() }()

	riskMgr, err := risk.NewManager(cfg.Risk, riskStore, logger.Named("risk"))
	if err != nil {
		logger.Error("初始化风险管理器失败", zap.Error(err))
		os.Exit(1)
	}

	extractor := feature.NewExtractor(indicator.NewCalculator(), smcParams(cfg.SMC), logger.Named("feature"))

	engine, err := backtest.NewEngine(
		backtest.Config{
			Symbol:        cfg.Exchange.Market,
			InitialEquity: cfg.Backtest.InitialEquity,
			WindowSize:    cfg.Backtest.WindowSize,
			StepSize:      cfg.Backtest.StepSize,
		},
		provider,
		extractor,
		backtest.NewRuleDecisionProvider(targetExposure),
		riskMgr,
		logger.Named("backtest"),
	)
	if err != nil {
		logger.Error("构建回测引擎失败", zap.Error(err))
		os.Exit(1)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		logger.Error("回测执行失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("回测完成",
		zap.Int("trades", result.Trades),
		zap.Float64("final_equity", result.FinalEquity),
		zap.Float64("total_return", result.Metrics.TotalReturn),
		zap.Float64("max_drawdown", result.Metrics.MaxDrawdown),
		zap.Float64("sharpe_ratio", result.Metrics.SharpeRatio),
	)
}

// loadCandles 优先读取 CSV，其次从数据库取1小时K线。
func loadCandles(ctx context.Context, cfg *config.Config, csvPath string) ([]exchange.Candle, error) {
	if csvPath != "" {
		return fetcher.ReadCSV(csvPath)
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sqliteStore.Close() }()

	repo, err := store.NewCandleRepository(sqliteStore)
	if err != nil {
		return nil, err
	}

	return repo.Range(ctx, cfg.Exchange.Market, exchange.Timeframe1h, time.Time{}, time.Now().UTC())
}

func smcParams(cfg config.SMCConfig) smc.Params {
	params := smc.DefaultParams()
	if cfg.Lookback > 0 {
		params.Lookback = cfg.Lookback
	}
	if cfg.VolumeThreshold > 0 {
		params.VolumeThreshold = cfg.VolumeThreshold
	}
	if cfg.GapThreshold > 0 {
		params.GapThreshold = cfg.GapThreshold
	}
	if cfg.ReversalThreshold > 0 {
		params.ReversalThreshold = cfg.ReversalThreshold
	}
	return params
}
