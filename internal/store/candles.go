package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smc-trader/internal/exchange"
)

// CandleRepository 管理历史K线归档，供抓取器写入、回测读取。
type CandleRepository struct {
	db *sql.DB
}

// NewCandleRepository 创建K线仓储并初始化表结构。
func NewCandleRepository(store *Store) (*CandleRepository, error) {
	if store == nil {
		return nil, errors.New("store: store 不能为空")
	}

	repo := &CandleRepository{db: store.DB()}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *CandleRepository) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			start_timestamp INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (symbol, timeframe, start_timestamp)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf ON candles(symbol, timeframe, start_timestamp);`,
	}

	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: 初始化K线表失败: %w", err)
		}
	}
	return nil
}

// Upsert 批量写入K线，同一根K线以最新数据覆盖。
func (r *CandleRepository) Upsert(ctx context.Context, symbol, timeframe string, candles []exchange.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candles (symbol, timeframe, start_timestamp, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol, timeframe, start_timestamp)
		 DO UPDATE SET open=excluded.open, high=excluded.high, low=excluded.low,
		               close=excluded.close, volume=excluded.volume`,
	)
	if err != nil {
		return 0, fmt.Errorf("store: 预编译K线写入失败: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, c := range candles {
		if _, execErr := stmt.ExecContext(ctx,
			symbol, timeframe, c.Timestamp.UTC().UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		); execErr != nil {
			err = fmt.Errorf("store: 写入K线失败: %w", execErr)
			return 0, err
		}
		count++
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return 0, fmt.Errorf("store: 提交K线事务失败: %w", commitErr)
	}

	return count, nil
}

// LatestTimestamp 返回归档中最新一根K线的起始时间；无数据时返回零值。
func (r *CandleRepository) LatestTimestamp(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var ms sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(start_timestamp) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe,
	).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: 查询最新K线时间失败: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

// Range 按时间升序读取指定区间的K线，from/to 为零值时不限制。
func (r *CandleRepository) Range(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]exchange.Candle, error) {
	query := `SELECT start_timestamp, open, high, low, close, volume FROM candles
	          WHERE symbol = ? AND timeframe = ?`
	args := []interface{}{symbol, timeframe}

	if !from.IsZero() {
		query += ` AND start_timestamp >= ?`
		args = append(args, from.UTC().UnixMilli())
	}
	if !to.IsZero() {
		query += ` AND start_timestamp <= ?`
		args = append(args, to.UTC().UnixMilli())
	}
	query += ` ORDER BY start_timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: 查询K线失败: %w", err)
	}
	defer rows.Close()

	var candles []exchange.Candle
	for rows.Next() {
		var (
			ms     int64
			candle exchange.Candle
		)
		if scanErr := rows.Scan(&ms, &candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); scanErr != nil {
			return nil, fmt.Errorf("store: 解析K线失败: %w", scanErr)
		}
		candle.Timestamp = time.UnixMilli(ms).UTC()
		candles = append(candles, candle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取K线失败: %w", err)
	}

	return candles, nil
}

// Count 返回归档内K线数量。
func (r *CandleRepository) Count(ctx context.Context, symbol, timeframe string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: 统计K线失败: %w", err)
	}
	return n, nil
}
