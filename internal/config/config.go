package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "smc"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "hyperliquid")
	v.SetDefault("exchange.market", "BTC/USDC:USDC")
	v.SetDefault("exchange.coin", "BTC")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.wallet_address", "")
	v.SetDefault("exchange.private_key", "")
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "15s")

	v.SetDefault("risk.max_trade_risk", 0.01)
	v.SetDefault("risk.max_daily_loss", 0.03)
	v.SetDefault("risk.max_exposure", 0.20)
	v.SetDefault("risk.confidence_full_risk", 0.80)
	v.SetDefault("risk.confidence_half_risk", 0.60)
	v.SetDefault("risk.daily_loss_reset_hour", 0)
	v.SetDefault("risk.enable_daily_stop_loss", true)

	v.SetDefault("execution.slippage", 0.01)
	v.SetDefault("execution.time_in_force", "")
	v.SetDefault("execution.post_only", false)
	v.SetDefault("execution.simulation", true)

	v.SetDefault("smc.lookback", 20)
	v.SetDefault("smc.volume_threshold", 1.5)
	v.SetDefault("smc.gap_threshold", 0.001)
	v.SetDefault("smc.reversal_threshold", 0.002)

	v.SetDefault("fetcher.timeframe", "1m")
	v.SetDefault("fetcher.lookback", "720h")
	v.SetDefault("fetcher.batch_size", 1000)
	v.SetDefault("fetcher.rate_per_second", 2)
	v.SetDefault("fetcher.rate_burst", 1)
	v.SetDefault("fetcher.csv_path", "data/btc_1m_mainnet_data.csv")

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.url", "wss://api.hyperliquid.xyz/ws")
	v.SetDefault("stream.interval", "1m")
	v.SetDefault("stream.buffer_size", 256)
	v.SetDefault("stream.ping_interval", "30s")
	v.SetDefault("stream.reconnect_delay", "5s")

	v.SetDefault("database.path", "data/smc_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.loop_interval", "5m")
	v.SetDefault("scheduler.decision_interval", "1h")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8787)

	v.SetDefault("backtest.initial_equity", 10000)
	v.SetDefault("backtest.window_size", 240)
	v.SetDefault("backtest.step_size", 1)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
