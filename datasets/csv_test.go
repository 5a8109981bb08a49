package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

func TestLoadCSV(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "energy.csv")
	writeCSV(t, path, "Time,Temp,Load", []string{
		"2020-01-01T00:00:00Z,1.5,10",
		"2020-01-01T01:00:00Z,2.5,11",
		"2020-01-01T02:00:00Z,,12", // missing covariate, skipped
		"2020-01-01T03:00:00Z,3.5,13",
	})

	s, err := LoadCSV(path, CSVOptions{
		TimeColumn:    "time",
		InputColumns:  []string{"temp"},
		TargetColumns: []string{"load"},
	})
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", s.Len())
	}
	if s.Freq != time.Hour {
		t.Fatalf("expected hourly freq, got %v", s.Freq)
	}
	if s.Inputs[2][0] != 3.5 || s.Targets[2][0] != 13 {
		t.Fatalf("unexpected last row: inputs=%v targets=%v", s.Inputs[2], s.Targets[2])
	}
}

func TestLoadCSVTimeFeatures(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "a.csv")
	writeCSV(t, path, "ts,y", []string{
		"2020-01-01 00:00,1",
		"2020-01-01 06:00,2",
	})
	s, err := LoadCSV(path, CSVOptions{
		TimeColumn:    "ts",
		TimeLayout:    "2006-01-02 15:04",
		TargetColumns: []string{"y"},
		TimeFeatures:  true,
	})
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if len(s.InputCols) != 4 || len(s.Inputs[0]) != 4 {
		t.Fatalf("expected 4 calendar covariates, got cols=%v row=%v", s.InputCols, s.Inputs[0])
	}
	// 06:00 is a quarter of the day: sin = 1
	if got := s.Inputs[1][0]; got < 0.999 {
		t.Fatalf("expected hour_sin ~1 at 06:00, got %v", got)
	}
}

func TestLoadCSVMissingColumns(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "bad.csv")
	writeCSV(t, path, "time,x", []string{"2020-01-01T00:00:00Z,1"})

	_, err := LoadCSV(path, CSVOptions{TimeColumn: "time", TargetColumns: []string{"y"}})
	if err == nil {
		t.Fatalf("expected error when required columns missing, got nil")
	}
	if !strings.Contains(err.Error(), `required column "y"`) {
		t.Fatalf("unexpected error: %v", err)
	}
	if trace := fmt.Sprintf("%+v", err); !strings.Contains(trace, "LoadCSV") {
		t.Fatalf("error carries no stack trace:\n%s", trace)
	}
}

func TestLoadCSVBadValue(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "bad_value.csv")
	writeCSV(t, path, "time,y", []string{
		"2020-01-01T00:00:00Z,1",
		"2020-01-01T01:00:00Z,abc",
	})

	_, err := LoadCSV(path, CSVOptions{TimeColumn: "time", TargetColumns: []string{"y"}})
	if err == nil {
		t.Fatalf("expected error for a non-numeric value")
	}
	if !strings.Contains(err.Error(), "failed to parse y") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := errors.Cause(err).(*strconv.NumError); !ok {
		t.Fatalf("cause %T, want *strconv.NumError", errors.Cause(err))
	}
}

func TestLoadCSVUnsortedTimes(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "unsorted.csv")
	writeCSV(t, path, "time,y", []string{
		"2020-01-01T01:00:00Z,1",
		"2020-01-01T00:00:00Z,2",
	})
	if _, err := LoadCSV(path, CSVOptions{TimeColumn: "time", TargetColumns: []string{"y"}}); err == nil {
		t.Fatalf("expected error for time going backwards")
	}
}

func TestFindCSVInAssets(t *testing.T) {
	tmp := t.TempDir()
	if _, err := FindCSVInAssets(tmp); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	writeCSV(t, filepath.Join(tmp, "x.csv"), "time,y", nil)
	got, err := FindCSVInAssets(tmp)
	if err != nil {
		t.Fatalf("FindCSVInAssets: %v", err)
	}
	if filepath.Base(got) != "x.csv" {
		t.Fatalf("unexpected file %s", got)
	}
}
