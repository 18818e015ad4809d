package backtest

import "time"

// Config 定义回测参数。
type Config struct {
	Symbol        string    // 交易对名称
	InitialEquity float64   // 初始净值
	StartTime     time.Time // 开始时间
	EndTime       time.Time // 结束时间
	WindowSize    int       // 每个快照包含的1小时K线数
	StepSize      int       // 相邻快照之间前进的K线数
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 10000
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 240
	}
	if cfg.StepSize <= 0 {
		cfg.StepSize = 1
	}
	return cfg
}
