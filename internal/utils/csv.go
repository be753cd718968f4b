package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"rsiScanner/internal/domain"
)

// WriteKlinesToCSV writes klines, oldest first, to filename.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteKlines(w, klines) })
}

// WriteKlines writes klines as CSV with a header row.
func WriteKlines(w io.Writer, klines []*domain.Kline) error {
	writer := csv.NewWriter(w)

	// Write header
	writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume", "final"})

	for _, k := range klines {
		writer.Write([]string{
			k.OpenTime.UTC().Format(time.RFC3339),
			k.CloseTime.UTC().Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			formatFloat(k.Open),
			formatFloat(k.High),
			formatFloat(k.Low),
			formatFloat(k.Close),
			formatFloat(k.Volume),
			strconv.FormatBool(k.IsFinal),
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteSnapshotToCSV writes both buckets of snap to filename.
func WriteSnapshotToCSV(snap domain.Snapshot, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteSnapshot(w, snap) })
}

// WriteSnapshot writes one CSV row per result, overbought bucket first, keeping bucket order.
func WriteSnapshot(w io.Writer, snap domain.Snapshot) error {
	writer := csv.NewWriter(w)

	writer.Write([]string{"bucket", "symbol", "price", "rsi_1h", "rsi_15m", "rsi_1d", "trend_1h", "trend_15m", "trend_1d"})

	write := func(bucket string, rows []domain.ResultRow) {
		for _, r := range rows {
			writer.Write([]string{
				bucket,
				r.Symbol,
				formatFloat(r.Price),
				strconv.FormatFloat(r.RSI, 'f', 2, 64),
				strconv.FormatFloat(r.RSISecondary, 'f', 2, 64),
				strconv.FormatFloat(r.RSITertiary, 'f', 2, 64),
				string(r.Trend),
				string(r.TrendSecondary),
				string(r.TrendTertiary),
			})
		}
	}
	write("overbought", snap.Overbought)
	write("oversold", snap.Oversold)

	writer.Flush()
	return writer.Error()
}

func writeFile(filename string, fn func(io.Writer) error) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
