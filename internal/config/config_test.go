package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

const minimalConfig = `
openai:
  api_key: test-key
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Exchange.Market != "BTC/USDC:USDC" {
		t.Errorf("market = %s", cfg.Exchange.Market)
	}
	if cfg.Exchange.Coin != "BTC" {
		t.Errorf("coin = %s", cfg.Exchange.Coin)
	}
	if cfg.Risk.MaxExposure != 0.20 {
		t.Errorf("max_exposure = %f", cfg.Risk.MaxExposure)
	}
	if !cfg.Execution.Simulation {
		t.Errorf("simulation 默认应为 true")
	}
	if cfg.Scheduler.DecisionInterval != time.Hour {
		t.Errorf("decision_interval = %v", cfg.Scheduler.DecisionInterval)
	}
	if cfg.Backtest.WindowSize != 240 {
		t.Errorf("backtest window = %d", cfg.Backtest.WindowSize)
	}
	if cfg.OpenAI.Timeout != 15*time.Second {
		t.Errorf("openai timeout = %v", cfg.OpenAI.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfigFile(t, `
openai:
  api_key: test-key
  model: gpt-4o-mini
risk:
  max_trade_risk: 0.02
scheduler:
  loop_interval: 1m
  decision_interval: 30m
stream:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("model = %s", cfg.OpenAI.Model)
	}
	if cfg.Risk.MaxTradeRisk != 0.02 {
		t.Errorf("max_trade_risk = %f", cfg.Risk.MaxTradeRisk)
	}
	if cfg.Scheduler.DecisionInterval != 30*time.Minute {
		t.Errorf("decision_interval = %v", cfg.Scheduler.DecisionInterval)
	}
	// stream 打开时沿用默认的 URL 与缓冲参数。
	if cfg.Stream.URL == "" || cfg.Stream.BufferSize != 256 {
		t.Errorf("stream defaults missing: %+v", cfg.Stream)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.OpenAI.APIKey = ""
	cfg.Risk.MaxTradeRisk = 2
	cfg.Scheduler.LoopInterval = 0

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"openai.api_key", "risk.max_trade_risk", "scheduler.loop_interval"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %s, got %v", want, msg)
		}
	}
}

func TestValidateLiveTradingNeedsWallet(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Execution.Simulation = false
	if err := cfg.Validate(); err == nil {
		t.Fatalf("实盘模式缺少钱包信息应校验失败")
	}

	cfg.Exchange.Wallet = "0xabc"
	cfg.Exchange.PrivateKey = "0xdef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
