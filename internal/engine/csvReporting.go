package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"tradesim/internal/account"
	"tradesim/types"
)

// writeReportFiles writes <path>/<name>-executions.csv and
// <path>/<name>-transactions.csv.
func (e *Engine) writeReportFiles(report *BacktestReport) error {
	name := e.reportingConfig.reportName
	if name == "" {
		name = report.RunID
	}
	dir := e.reportingConfig.filePath
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	if err := writeCSVFile(filepath.Join(dir, name+"-executions.csv"), func(w io.Writer) error {
		return writeExecutionsCSV(w, report.Executions)
	}); err != nil {
		return err
	}
	return writeCSVFile(filepath.Join(dir, name+"-transactions.csv"), func(w io.Writer) error {
		return writeTransactionsCSV(w, report.Transactions)
	})
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// writeExecutionsCSV writes one row per fill.
func writeExecutionsCSV(w io.Writer, executions []types.ExecutionReport) error {
	cw := csv.NewWriter(w)

	header := []string{
		"execution_id",
		"order_id",
		"account",
		"symbol",
		"side",
		"status",
		"price",
		"quantity",
		"cumulative_qty",
		"avg_price",
		"remaining_qty",
		"fee",
		"time", // RFC3339
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, er := range executions {
		if err := writeExecutionRow(cw, er); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeExecutionRow(cw *csv.Writer, er types.ExecutionReport) error {
	record := []string{
		er.ExecutionID,
		er.OrderID,
		er.Account,
		er.Symbol,
		string(er.Side),
		string(er.Status),
		er.Price.String(),
		er.Quantity.String(),
		er.CumulativeQty.String(),
		er.AvgPrice.String(),
		er.RemainingQty.String(),
		er.Fee.String(),
		er.Time.Format(time.RFC3339),
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// writeTransactionsCSV writes one row per closed or partly closed position.
func writeTransactionsCSV(w io.Writer, trades []account.Transaction) error {
	cw := csv.NewWriter(w)

	header := []string{
		"transaction_id",
		"account",
		"symbol",
		"direction",
		"quantity",
		"entry_price",
		"exit_price",
		"entry_time",
		"exit_time",
		"profit",
		"commission",
		"net_profit",
		"partial",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, tr := range trades {
		record := []string{
			strconv.FormatInt(tr.ID, 10),
			tr.Account,
			tr.Symbol,
			string(tr.Direction),
			tr.Quantity.String(),
			tr.EntryPrice.String(),
			tr.ExitPrice.String(),
			tr.EntryTime.Format(time.RFC3339),
			tr.ExitTime.Format(time.RFC3339),
			tr.Profit.String(),
			tr.Commission.String(),
			tr.NetProfit().String(),
			strconv.FormatBool(tr.Partial),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
