package fetcher

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"smc-trader/internal/exchange"
)

var csvHeader = []string{"start_timestamp", "open", "high", "low", "close", "volume"}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ExportCSV 把库内指定区间的K线导出为CSV，供离线分析与回测使用。
func (f *Fetcher) ExportCSV(ctx context.Context, from, to time.Time) (int, error) {
	if f.cfg.CSVPath == "" {
		return 0, nil
	}

	candles, err := f.candles.Range(ctx, f.source.Symbol(), f.cfg.Timeframe, from, to)
	if err != nil {
		return 0, err
	}

	if err := writeCandlesCSV(f.cfg.CSVPath, candles); err != nil {
		return 0, err
	}

	f.logger.Info("K线已导出CSV",
		zap.String("path", f.cfg.CSVPath),
		zap.Int("rows", len(candles)),
	)

	return len(candles), nil
}

func writeCandlesCSV(path string, candles []exchange.Candle) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fetcher: 创建CSV目录失败: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fetcher: 创建CSV文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("fetcher: 写入CSV表头失败: %w", err)
	}

	for _, c := range candles {
		record := []string{
			c.Timestamp.UTC().Format(time.RFC3339),
			formatPrice(c.Open),
			formatPrice(c.High),
			formatPrice(c.Low),
			formatPrice(c.Close),
			formatPrice(c.Volume),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("fetcher: 写入CSV行失败: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("fetcher: 刷新CSV失败: %w", err)
	}

	return nil
}

// ReadCSV 读取 ExportCSV 产出的文件，按时间升序返回K线。
func ReadCSV(path string) ([]exchange.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fetcher: 打开CSV失败: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("fetcher: 读取CSV失败: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// 跳过表头。
	records = records[1:]

	candles := make([]exchange.Candle, 0, len(records))
	for i, record := range records {
		if len(record) < 6 {
			return nil, fmt.Errorf("fetcher: CSV第%d行字段不足", i+2)
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return nil, fmt.Errorf("fetcher: CSV第%d行时间解析失败: %w", i+2, err)
		}

		values := make([]float64, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("fetcher: CSV第%d行数值解析失败: %w", i+2, err)
			}
			values[j] = v
		}

		candles = append(candles, exchange.Candle{
			Timestamp: ts.UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	return candles, nil
}
