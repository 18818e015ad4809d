package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	SMC       SMCConfig       `mapstructure:"smc"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述 Hyperliquid 连接信息，行情与交易共用。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	Coin       string      `mapstructure:"coin"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Wallet     string      `mapstructure:"wallet_address"`
	PrivateKey string      `mapstructure:"private_key"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RiskConfig 管理风控参数。
type RiskConfig struct {
	MaxTradeRisk        float64 `mapstructure:"max_trade_risk"`
	MaxDailyLoss        float64 `mapstructure:"max_daily_loss"`
	MaxExposure         float64 `mapstructure:"max_exposure"`
	ConfidenceFullRisk  float64 `mapstructure:"confidence_full_risk"`
	ConfidenceHalfRisk  float64 `mapstructure:"confidence_half_risk"`
	DailyLossResetHour  int     `mapstructure:"daily_loss_reset_hour"`
	EnableDailyStopLoss bool    `mapstructure:"enable_daily_stop_loss"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	Slippage    float64 `mapstructure:"slippage"`
	TimeInForce string  `mapstructure:"time_in_force"`
	PostOnly    bool    `mapstructure:"post_only"`
	Simulation  bool    `mapstructure:"simulation"`
}

// SMCConfig 控制 Smart Money Concepts 特征参数。
type SMCConfig struct {
	Lookback          int     `mapstructure:"lookback"`
	VolumeThreshold   float64 `mapstructure:"volume_threshold"`
	GapThreshold      float64 `mapstructure:"gap_threshold"`
	ReversalThreshold float64 `mapstructure:"reversal_threshold"`
}

// FetcherConfig 控制历史K线抓取。
type FetcherConfig struct {
	Timeframe     string        `mapstructure:"timeframe"`
	Lookback      time.Duration `mapstructure:"lookback"`
	BatchSize     int           `mapstructure:"batch_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	RateBurst     int           `mapstructure:"rate_burst"`
	CSVPath       string        `mapstructure:"csv_path"`
}

// StreamConfig 控制 Hyperliquid WebSocket 行情订阅。
type StreamConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Interval       string        `mapstructure:"interval"`
	BufferSize     int           `mapstructure:"buffer_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval     time.Duration `mapstructure:"loop_interval"`
	DecisionInterval time.Duration `mapstructure:"decision_interval"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// BacktestConfig 控制回测运行参数。
type BacktestConfig struct {
	InitialEquity float64 `mapstructure:"initial_equity"`
	WindowSize    int     `mapstructure:"window_size"`
	StepSize      int     `mapstructure:"step_size"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.Coin == "" {
		err = multierr.Append(err, errors.New("exchange.coin 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if strings.EqualFold(c.Exchange.Name, "hyperliquid") && !c.Execution.Simulation {
		if c.Exchange.Wallet == "" || c.Exchange.PrivateKey == "" {
			err = multierr.Append(err, errors.New("hyperliquid 实盘交易需要配置 wallet_address 与 private_key"))
		}
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Risk.MaxTradeRisk <= 0 || c.Risk.MaxTradeRisk > 1 {
		err = multierr.Append(err, errors.New("risk.max_trade_risk 必须位于(0,1]"))
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss > 1 {
		err = multierr.Append(err, errors.New("risk.max_daily_loss 必须位于(0,1]"))
	}
	if c.Risk.MaxExposure <= 0 || c.Risk.MaxExposure > 1 {
		err = multierr.Append(err, errors.New("risk.max_exposure 必须位于(0,1]"))
	}
	if c.Risk.ConfidenceFullRisk <= 0 || c.Risk.ConfidenceFullRisk > 1 {
		err = multierr.Append(err, errors.New("risk.confidence_full_risk 必须位于(0,1]"))
	}
	if c.Risk.ConfidenceHalfRisk <= 0 || c.Risk.ConfidenceHalfRisk > 1 {
		err = multierr.Append(err, errors.New("risk.confidence_half_risk 必须位于(0,1]"))
	}
	if c.Risk.ConfidenceHalfRisk >= c.Risk.ConfidenceFullRisk {
		err = multierr.Append(err, errors.New("risk.confidence_half_risk 必须小于 confidence_full_risk"))
	}
	if c.Risk.EnableDailyStopLoss && (c.Risk.DailyLossResetHour < 0 || c.Risk.DailyLossResetHour > 23) {
		err = multierr.Append(err, errors.New("risk.daily_loss_reset_hour 必须位于[0,23]"))
	}
	if c.Execution.Slippage < 0 || c.Execution.Slippage > 0.2 {
		err = multierr.Append(err, errors.New("execution.slippage 应位于[0,0.2]"))
	}
	if c.SMC.Lookback <= 1 {
		err = multierr.Append(err, errors.New("smc.lookback 必须大于1"))
	}
	if c.SMC.VolumeThreshold <= 0 {
		err = multierr.Append(err, errors.New("smc.volume_threshold 必须大于0"))
	}
	if c.SMC.GapThreshold < 0 {
		err = multierr.Append(err, errors.New("smc.gap_threshold 不能为负"))
	}
	if c.SMC.ReversalThreshold <= 0 {
		err = multierr.Append(err, errors.New("smc.reversal_threshold 必须大于0"))
	}
	if c.Fetcher.Timeframe == "" {
		err = multierr.Append(err, errors.New("fetcher.timeframe 不能为空"))
	}
	if c.Fetcher.Lookback <= 0 {
		err = multierr.Append(err, errors.New("fetcher.lookback 必须大于0"))
	}
	if c.Fetcher.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("fetcher.batch_size 必须大于0"))
	}
	if c.Fetcher.RatePerSecond <= 0 {
		err = multierr.Append(err, errors.New("fetcher.rate_per_second 必须大于0"))
	}
	if c.Fetcher.RateBurst <= 0 {
		err = multierr.Append(err, errors.New("fetcher.rate_burst 必须大于0"))
	}
	if c.Stream.Enabled {
		if c.Stream.URL == "" {
			err = multierr.Append(err, errors.New("stream.url 不能为空"))
		}
		if c.Stream.Interval == "" {
			err = multierr.Append(err, errors.New("stream.interval 不能为空"))
		}
		if c.Stream.BufferSize <= 0 {
			err = multierr.Append(err, errors.New("stream.buffer_size 必须大于0"))
		}
		if c.Stream.PingInterval <= 0 || c.Stream.ReconnectDelay <= 0 {
			err = multierr.Append(err, errors.New("stream.ping_interval 与 reconnect_delay 必须为正"))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}
	if c.Scheduler.DecisionInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.decision_interval 必须大于0"))
	}
	if c.Scheduler.DecisionInterval < c.Scheduler.LoopInterval {
		err = multierr.Append(err, errors.New("scheduler.decision_interval 不应小于 loop_interval"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}
	if c.Backtest.InitialEquity <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_equity 必须大于0"))
	}
	if c.Backtest.WindowSize <= 0 {
		err = multierr.Append(err, errors.New("backtest.window_size 必须大于0"))
	}
	if c.Backtest.StepSize <= 0 {
		err = multierr.Append(err, errors.New("backtest.step_size 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
