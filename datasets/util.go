package datasets

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %q", s)
	}
	return float32(v), nil
}

func normalizeColumn(col string) string {
	return strings.TrimSpace(strings.ToLower(col))
}

func copyRows(rows [][]float32) [][]float32 {
	out := make([][]float32, len(rows))
	for i, r := range rows {
		out[i] = append([]float32(nil), r...)
	}
	return out
}

// FindCSVInAssets finds the first CSV file in a directory.
func FindCSVInAssets(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", errors.Wrap(err, "glob")
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no CSV files found in %s", dir)
	}
	return matches[0], nil
}
