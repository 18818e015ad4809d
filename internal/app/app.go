package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smc-trader/internal/ai"
	"smc-trader/internal/config"
	"smc-trader/internal/exchange"
	"smc-trader/internal/execution"
	"smc-trader/internal/feature"
	"smc-trader/internal/indicator"
	"smc-trader/internal/monitor"
	"smc-trader/internal/position"
	"smc-trader/internal/risk"
	"smc-trader/internal/smc"
	"smc-trader/internal/store"
	"smc-trader/internal/stream"
)

// App 组装并驱动整个交易机器人。
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	orch       *orchestrator
	streamCli  *stream.Client
	monitorSvc *monitor.Service
}

// New 根据配置组装应用。数据库由调用方创建并负责关闭。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: 配置不能为空")
	}
	if st == nil {
		return nil, errors.New("app: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := exchange.NewClient(cfg.Exchange, logger.Named("exchange"))
	if err != nil {
		return nil, fmt.Errorf("app: 初始化交易所客户端失败: %w", err)
	}

	market := exchange.NewMarketDataService(client, logger.Named("market"))
	extractor := feature.NewExtractor(indicator.NewCalculator(), smcParams(cfg.SMC), logger.Named("feature"))
	positions := position.NewManager(client.Raw(), cfg.Exchange.Market, logger.Named("position"))

	decider, err := ai.NewClient(cfg.OpenAI, logger.Named("ai"))
	if err != nil {
		return nil, fmt.Errorf("app: 初始化 AI 客户端失败: %w", err)
	}

	riskMgr, err := risk.NewManager(cfg.Risk, st, logger.Named("risk"))
	if err != nil {
		return nil, fmt.Errorf("app: 初始化风险管理器失败: %w", err)
	}

	execOpts := execution.Options{
		Slippage:    cfg.Execution.Slippage,
		TimeInForce: cfg.Execution.TimeInForce,
		PostOnly:    cfg.Execution.PostOnly,
	}

	var trader execution.Trader
	if cfg.Execution.Simulation {
		trader = execution.NewSimulatedExecutor(execOpts, logger.Named("execution"))
		logger.Info("执行模块运行在模拟模式，不会提交真实订单")
	} else {
		trader = execution.NewExecutor(client.Raw(), cfg.Exchange.Market, execOpts, logger.Named("execution"))
	}

	monitorSvc, err := monitor.NewService(st, logger.Named("monitor"))
	if err != nil {
		return nil, fmt.Errorf("app: 初始化监控服务失败: %w", err)
	}

	orch, err := newOrchestrator(cfg, market, extractor, positions, decider, riskMgr, trader, monitorSvc, logger.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	var streamCli *stream.Client
	if cfg.Stream.Enabled {
		streamCli, err = stream.NewClient(cfg.Stream, cfg.Exchange.Coin, logger.Named("stream"))
		if err != nil {
			return nil, fmt.Errorf("app: 初始化行情推送失败: %w", err)
		}
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		orch:       orch,
		streamCli:  streamCli,
		monitorSvc: monitorSvc,
	}, nil
}

// Run 启动调度循环、监控接口与行情推送，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Monitor.Enabled {
		monitor.StartServer(ctx, a.monitorSvc, a.cfg.Monitor.Port, a.logger.Named("monitor"))
	}

	if a.streamCli != nil {
		a.streamCli.OnStateChange(func(state, detail string, attempt int) {
			a.monitorSvc.RecordStream(ctx, monitor.StreamPayload{
				State:   state,
				Detail:  detail,
				Symbol:  a.cfg.Exchange.Coin,
				Attempt: attempt,
			})
		})

		g.Go(func() error {
			err := a.streamCli.Run(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})

		g.Go(func() error {
			a.consumeStream(ctx)
			return nil
		})
	}

	g.Go(func() error {
		return a.loop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) loop(ctx context.Context) error {
	interval := a.cfg.Scheduler.LoopInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	a.logger.Info("交易循环启动",
		zap.String("symbol", a.cfg.Exchange.Market),
		zap.Duration("loop_interval", interval),
		zap.Duration("decision_interval", a.cfg.Scheduler.DecisionInterval),
	)

	// 启动后立刻跑一轮，随后按固定间隔调度。
	a.runTick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("交易循环退出")
			return ctx.Err()
		case <-ticker.C:
			a.runTick(ctx)
		}
	}
}

// runTick 单轮失败只记录日志，循环继续运行。
func (a *App) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := a.orch.Tick(ctx); err != nil {
		a.logger.Error("本轮决策流程失败", zap.Error(err))
	}
}

// consumeStream 消费实时K线：更新流水线的实时标记价，K线收盘时提前触发一轮决策。
// 是否真正产生新决策仍由 decision_interval 把关。
func (a *App) consumeStream(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-a.streamCli.Updates():
			if !ok {
				return
			}
			closed := a.orch.ObserveUpdate(update)
			a.logger.Debug("收到实时K线",
				zap.String("coin", update.Coin),
				zap.String("interval", update.Interval),
				zap.Float64("close", update.Candle.Close),
				zap.Bool("bar_closed", closed),
			)
			if closed {
				a.runTick(ctx)
			}
		}
	}
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
