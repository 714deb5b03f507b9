// Package export writes tabular data to CSV workbooks on local disk. Sheets
// are plain directories of CSV files so batch output can be appended to
// incrementally and handed out as files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Sink is the spreadsheet interface consumed by the flow engines and the
// draft generator.
type Sink interface {
	// AppendRows adds rows to the named sheet inside a workbook, creating
	// both on first use.
	AppendRows(sheetID, sheetName string, rows [][]string) error
	// CreateWorkbook writes rows to a fresh single-sheet workbook and
	// returns its path.
	CreateWorkbook(rows [][]string, fileName string) (string, error)
}

// CSVSink stores workbooks as CSV files under a base directory.
type CSVSink struct {
	baseDir string
}

// NewCSVSink creates the sink, making the base directory if needed.
func NewCSVSink(baseDir string) (*CSVSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", baseDir, err)
	}
	return &CSVSink{baseDir: baseDir}, nil
}

func (s *CSVSink) AppendRows(sheetID, sheetName string, rows [][]string) error {
	dir := filepath.Join(s.baseDir, sheetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sheet dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, sheetName+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("append rows to %s: %w", path, err)
	}
	return nil
}

func (s *CSVSink) CreateWorkbook(rows [][]string, fileName string) (string, error) {
	dir := filepath.Join(s.baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workbook dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create workbook %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write workbook %s: %w", path, err)
	}
	return path, nil
}
