package backtest

import (
	"encoding/csv"
	"os"
	"strconv"
)

// WriteCSV exports an equity curve (and optional benchmark curve over the
// same dates) as date,equity[,benchmark] rows.
func WriteCSV(path string, dates []string, equity, benchmark []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"date", "equity"}
	withBench := len(benchmark) == len(equity)
	if withBench {
		header = append(header, "benchmark")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, date := range dates {
		row := []string{date, formatF(equity[i])}
		if withBench {
			row = append(row, formatF(benchmark[i]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
