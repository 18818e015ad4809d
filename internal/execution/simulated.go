package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SimulatedExecutor 只生成订单不真实提交，用于干跑验证策略链路。
type SimulatedExecutor struct {
	opts   Options
	logger *zap.Logger
}

// NewSimulatedExecutor 创建模拟执行器。
func NewSimulatedExecutor(opts Options, logger *zap.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{
		opts:   opts,
		logger: logger,
	}
}

// BuildPlan 与真实执行器使用相同的订单生成逻辑。
func (s *SimulatedExecutor) BuildPlan(plan ExecutionPlan) ([]OrderRequest, error) {
	return buildOrderRequests(plan, s.opts)
}

// Execute 记录订单内容后直接返回成功。
func (s *SimulatedExecutor) Execute(ctx context.Context, orders []OrderRequest) (Result, error) {
	result := Result{
		Orders:        orders,
		Executed:      len(orders) > 0,
		Simulated:     true,
		ExecutionTime: time.Now().UTC(),
		Notes:         make([]string, 0, len(orders)),
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	for _, order := range orders {
		s.logger.Info("模拟下单",
			zap.String("type", order.Type),
			zap.String("side", string(order.Side)),
			zap.Float64("amount", order.Amount),
			zap.Float64("price", order.Price),
			zap.Bool("reduce_only", order.ReduceOnly),
			zap.Bool("close_all", order.CloseAll),
			zap.String("client_order", order.ClientOrder),
		)
		result.Notes = append(result.Notes,
			fmt.Sprintf("模拟执行 %s %s %.6f @ %.2f", order.Type, order.Side, order.Amount, order.Price),
		)
	}

	return result, nil
}
