package position

import (
	"time"

	"smc-trader/internal/indicator"
)

// Summary 为提供给决策引擎的仓位摘要。
type Summary struct {
	Side                 string  `json:"side"`
	SizePercent          float64 `json:"size_percent"`
	EntryPrice           float64 `json:"entry_price"`
	UnrealizedPnlPercent float64 `json:"unrealized_pnl_percent"`
	PositionAgeHours     float64 `json:"position_age_hours"`
	StopLoss             float64 `json:"stop_loss"`
	TakeProfit           float64 `json:"take_profit"`
}

// EmptySummary 返回空仓摘要。
func EmptySummary() Summary {
	return Summary{Side: "FLAT"}
}

// BuildSummary 将账户与仓位快照压缩为摘要。
// openedAt 为本地记录的开仓时间，stopLoss/takeProfit 为本地维护的风控价位，
// 交易所侧不保存这些信息。
func BuildSummary(balance AccountBalance, positions []PositionDetail, openedAt time.Time, stopLoss, takeProfit float64) Summary {
	if len(positions) == 0 {
		return EmptySummary()
	}

	// 单市场模式下只有一个方向的仓位。
	pos := positions[0]

	summary := Summary{
		Side:        pos.Side,
		SizePercent: indicator.SafeDivide(pos.PositionValue, balance.TotalEquity) * 100,
		EntryPrice:  pos.EntryPrice,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
	}

	summary.UnrealizedPnlPercent = indicator.SafeDivide(pos.UnrealizedPnl, pos.MarginUsed) * 100
	if pos.ReturnOnEquity != 0 {
		summary.UnrealizedPnlPercent = pos.ReturnOnEquity * 100
	}

	if !openedAt.IsZero() {
		summary.PositionAgeHours = time.Since(openedAt).Hours()
	}

	return summary
}
