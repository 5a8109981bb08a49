package results

import (
	"bytes"
	"html/template"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Places is the number of decimals rendered in exported leaderboards.
const Places = 2

// FormatValue renders v rounded half away from zero to Places decimals.
// Missing cells render as the empty string.
func FormatValue(c Cell) string {
	if !c.Present {
		return ""
	}
	switch {
	case math.IsNaN(c.Value):
		return "nan"
	case math.IsInf(c.Value, 1):
		return "inf"
	case math.IsInf(c.Value, -1):
		return "-inf"
	}
	return decimal.NewFromFloat(c.Value).StringFixed(Places)
}

func (lb *Leaderboard) header() []string {
	return append([]string{"model"}, lb.Columns...)
}

// Text renders an aligned plain-text table. If bold is non-nil it is applied
// to best cells (call HighlightBest first), e.g. a fatih/color SprintFunc.
// Cells are padded before bold is applied so escape codes do not shift the
// columns.
func (lb *Leaderboard) Text(bold func(a ...interface{}) string) string {
	rows := [][]string{lb.header()}
	for _, r := range lb.Rows {
		cells := make([]string, 0, len(r.Cells)+1)
		cells = append(cells, r.Model)
		for _, c := range r.Cells {
			cells = append(cells, FormatValue(c))
		}
		rows = append(rows, cells)
	}
	widths := make([]int, len(rows[0]))
	for _, cells := range rows {
		for j, c := range cells {
			if n := utf8.RuneCountInString(c); n > widths[j] {
				widths[j] = n
			}
		}
	}

	var sb strings.Builder
	for i, cells := range rows {
		for j, c := range cells {
			pad := strings.Repeat(" ", widths[j]-utf8.RuneCountInString(c)+2)
			if i > 0 && j > 0 && bold != nil && lb.Rows[i-1].Cells[j-1].Best {
				c = bold(c)
			}
			sb.WriteString(c + pad)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Markdown renders a pipe table with best cells in bold.
func (lb *Leaderboard) Markdown() string {
	var sb strings.Builder
	h := lb.header()
	sb.WriteString("| " + strings.Join(h, " | ") + " |\n")
	sep := make([]string, len(h))
	sep[0] = ":---"
	for i := 1; i < len(sep); i++ {
		sep[i] = "---:"
	}
	sb.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, r := range lb.Rows {
		cells := []string{r.Model}
		for _, c := range r.Cells {
			s := FormatValue(c)
			if c.Best && s != "" {
				s = "**" + s + "**"
			}
			cells = append(cells, s)
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}

var htmlTmpl = template.Must(template.New("leaderboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
table.leaderboard { border-collapse: collapse; font-family: monospace; }
table.leaderboard th, table.leaderboard td { padding: 2px 8px; text-align: right; }
table.leaderboard td.model { text-align: left; }
td.best { font-weight: bold; }
</style>
</head>
<body>
<h2>{{.Title}}</h2>
<table class="leaderboard" data-metric="{{.Metric}}">
<thead><tr><th>model</th>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr data-model="{{.Model}}"><td class="model">{{.Model}}</td>{{range .Cells}}{{if .Best}}<td class="best"><strong>{{.Text}}</strong></td>{{else}}<td>{{.Text}}</td>{{end}}{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

type htmlCell struct {
	Text string
	Best bool
}

type htmlRow struct {
	Model string
	Cells []htmlCell
}

// HTML renders a standalone page. Best cells carry class "best".
func (lb *Leaderboard) HTML(title string) (string, error) {
	data := struct {
		Title   string
		Metric  string
		Columns []string
		Rows    []htmlRow
	}{Title: title, Metric: lb.Metric, Columns: lb.Columns}
	for _, r := range lb.Rows {
		hr := htmlRow{Model: r.Model}
		for _, c := range r.Cells {
			hr.Cells = append(hr.Cells, htmlCell{Text: FormatValue(c), Best: c.Best && c.Present})
		}
		data.Rows = append(data.Rows, hr)
	}
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render leaderboard html")
	}
	return buf.String(), nil
}
