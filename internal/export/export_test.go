package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestCreateWorkbook(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	rows := [][]string{
		{"email", "name"},
		{"a@x.com", "Анна, менеджер"},
	}
	path, err := sink.CreateWorkbook(rows, "leads.csv")
	if err != nil {
		t.Fatalf("CreateWorkbook: %v", err)
	}
	if filepath.Base(path) != "leads.csv" {
		t.Fatalf("unexpected file name in %s", path)
	}
	if got := readCSV(t, path); !reflect.DeepEqual(got, rows) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestCreateWorkbookPathsAreUnique(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	first, err := sink.CreateWorkbook([][]string{{"a"}}, "out.csv")
	if err != nil {
		t.Fatalf("first workbook: %v", err)
	}
	second, err := sink.CreateWorkbook([][]string{{"b"}}, "out.csv")
	if err != nil {
		t.Fatalf("second workbook: %v", err)
	}
	if first == second {
		t.Fatalf("workbooks must not overwrite each other: %s", first)
	}
}

func TestAppendRowsAccumulates(t *testing.T) {
	base := t.TempDir()
	sink, err := NewCSVSink(base)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	if err := sink.AppendRows("campaign_1", "wave_2", [][]string{{"a@x.com", "Тема", "Текст"}}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := sink.AppendRows("campaign_1", "wave_2", [][]string{{"b@x.com", "Тема", "Текст"}}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	got := readCSV(t, filepath.Join(base, "campaign_1", "wave_2.csv"))
	if len(got) != 2 || got[0][0] != "a@x.com" || got[1][0] != "b@x.com" {
		t.Fatalf("expected both batches in order, got %v", got)
	}
}
