package ai

import (
	"strings"
	"testing"
)

func validDecision() Decision {
	return Decision{
		Symbol:            "BTC/USDC:USDC",
		Intent:            IntentOpen,
		Direction:         DirectionLong,
		TargetExposurePct: 0.15,
		Confidence:        0.8,
		Reasoning:         "一小时级别扫荡后出现看多吞没，趋势延续概率高。",
		OrderPreference:   "MARKET",
		NewStopLoss:       "48000",
		NewTakeProfit:     "53000",
	}
}

func TestDecisionValidateOK(t *testing.T) {
	if err := validDecision().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecisionValidateNormalizesCase(t *testing.T) {
	d := validDecision()
	d.Intent = " open "
	d.Direction = "long"
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.NormalizedIntent() != IntentOpen {
		t.Errorf("intent = %s, want OPEN", d.NormalizedIntent())
	}
	if d.NormalizedDirection() != DirectionLong {
		t.Errorf("direction = %s, want LONG", d.NormalizedDirection())
	}
}

func TestDecisionValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Decision)
		want   string
	}{
		{"缺少symbol", func(d *Decision) { d.Symbol = "" }, "symbol"},
		{"非法intent", func(d *Decision) { d.Intent = "PANIC" }, "intent"},
		{"非法direction", func(d *Decision) { d.Direction = "SIDEWAYS" }, "direction"},
		{"仓位越界", func(d *Decision) { d.TargetExposurePct = 1.2 }, "target_exposure_pct"},
		{"调整幅度越界", func(d *Decision) { d.AdjustmentPct = -1.5 }, "adjustment_pct"},
		{"信心度越界", func(d *Decision) { d.Confidence = 2 }, "confidence"},
		{"缺少理由", func(d *Decision) { d.Reasoning = " " }, "reasoning"},
		{"非法下单偏好", func(d *Decision) { d.OrderPreference = "TWAP" }, "order_preference"},
		{"开仓缺止损", func(d *Decision) { d.NewStopLoss = "" }, "new_stop_loss"},
		{"开仓缺止盈", func(d *Decision) { d.NewTakeProfit = "" }, "new_take_profit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDecision()
			tc.mutate(&d)
			err := d.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestDecisionObserveSkipsStops(t *testing.T) {
	d := validDecision()
	d.Intent = IntentObserve
	d.NewStopLoss = ""
	d.NewTakeProfit = ""
	if err := d.Validate(); err != nil {
		t.Fatalf("OBSERVE 不应强制止损止盈: %v", err)
	}

	d.Intent = IntentClose
	if err := d.Validate(); err != nil {
		t.Fatalf("CLOSE 不应强制止损止盈: %v", err)
	}
}
