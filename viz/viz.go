// Package viz renders forecasts, training curves and leaderboards as PNGs
// with gonum/plot.
package viz

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Noofbiz/seq2seqTime/predict"
	"github.com/Noofbiz/seq2seqTime/results"
	"github.com/Noofbiz/seq2seqTime/train"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Size of every saved figure.
var (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

var (
	colorTruth = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	colorPast  = color.RGBA{R: 120, G: 120, B: 120, A: 220}
	colorNow   = color.RGBA{R: 200, G: 30, B: 30, A: 200}
)

func timeX(t time.Time) float64 { return float64(t.Unix()) }

func series(times []time.Time, ys []float64) plotter.XYs {
	out := make(plotter.XYs, 0, len(ys))
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		out = append(out, plotter.XY{X: timeX(times[i]), Y: y})
	}
	return out
}

// band is the closed polygon mean +- width*std.
func band(times []time.Time, mean, std []float64, width float64) plotter.XYs {
	n := len(mean)
	out := make(plotter.XYs, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, plotter.XY{X: timeX(times[i]), Y: mean[i] + width*std[i]})
	}
	for i := n - 1; i >= 0; i-- {
		out = append(out, plotter.XY{X: timeX(times[i]), Y: mean[i] - width*std[i]})
	}
	return out
}

func addLine(p *plot.Plot, xys plotter.XYs, c color.Color, width vg.Length, label string) error {
	if len(xys) == 0 {
		return nil
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	l.Color = c
	l.Width = width
	p.Add(l)
	if label != "" {
		p.Legend.Add(label, l)
	}
	return nil
}

// yRange computes a padded min/max over all points.
func yRange(sets ...plotter.XYs) (ymin, ymax float64) {
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, xs := range sets {
		for _, p := range xs {
			ymin = math.Min(ymin, p.Y)
			ymax = math.Max(ymax, p.Y)
		}
	}
	if math.IsInf(ymin, 0) {
		return -1, 1
	}
	pad := (ymax - ymin) * 0.06
	if pad == 0 {
		pad = 1
	}
	return ymin - pad, ymax + pad
}

func save(p *plot.Plot, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	return errors.Wrapf(p.Save(Width, Height, path), "save %s", path)
}

func newTimePlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02\n15:04"}
	p.Add(plotter.NewGrid())
	return p
}

// PlotPrediction draws one forecast: the true past and future, a vertical
// line at the origin, the predicted mean and a 2 std band.
func PlotPrediction(p *predict.Predictions, origin, target int, path string) error {
	f, err := p.At(origin, target)
	if err != nil {
		return err
	}
	name := ""
	if target < len(p.Targets) {
		name = p.Targets[target]
	}
	pl := newTimePlot(p.Dataset+" "+p.Model+" @ "+f.Origin.Format(time.RFC3339), name)

	past := series(f.PastTimes, f.Past)
	truth := series(f.TargetTimes, f.True)
	mean := series(f.TargetTimes, f.Mean)
	poly := band(f.TargetTimes, f.Mean, f.Std, 2)

	if err := checkFinite(poly); err == nil {
		b, err := plotter.NewPolygon(poly)
		if err != nil {
			return err
		}
		b.Color = color.RGBA{R: 20, G: 80, B: 200, A: 60}
		b.LineStyle.Width = 0
		pl.Add(b)
		pl.Legend.Add("2 std", b)
	}
	if err := addLine(pl, past, colorPast, vg.Points(1), "past"); err != nil {
		return err
	}
	if err := addLine(pl, truth, colorTruth, vg.Points(1.2), "true"); err != nil {
		return err
	}
	if err := addLine(pl, mean, plotutil.Color(0), vg.Points(1.5), "mean"); err != nil {
		return err
	}

	ymin, ymax := yRange(past, truth, mean, poly)
	now := plotter.XYs{{X: timeX(f.Origin), Y: ymin}, {X: timeX(f.Origin), Y: ymax}}
	if err := addLine(pl, now, colorNow, vg.Points(1), "now"); err != nil {
		return err
	}
	pl.Y.Min, pl.Y.Max = ymin, ymax
	return save(pl, path)
}

// PlotModels overlays the forecasts of several models made at the same
// origin time. Models lacking that origin use their closest one.
func PlotModels(preds map[string]*predict.Predictions, order []string, at time.Time, target int, path string) error {
	pl := newTimePlot("forecasts @ "+at.Format(time.RFC3339), "")
	var all []plotter.XYs
	drewTruth := false
	for i, name := range order {
		p := preds[name]
		if p == nil || p.Len() == 0 {
			continue
		}
		f, err := p.At(p.IndexOf(at), target)
		if err != nil {
			return errors.Wrap(err, name)
		}
		if !drewTruth {
			past := series(f.PastTimes, f.Past)
			truth := series(f.TargetTimes, f.True)
			if err := addLine(pl, past, colorPast, vg.Points(1), "past"); err != nil {
				return err
			}
			if err := addLine(pl, truth, colorTruth, vg.Points(1.2), "true"); err != nil {
				return err
			}
			all = append(all, past, truth)
			drewTruth = true
		}
		mean := series(f.TargetTimes, f.Mean)
		l, err := plotter.NewLine(mean)
		if err != nil {
			return errors.Wrap(err, name)
		}
		l.Color = plotutil.Color(i)
		l.Dashes = plotutil.Dashes(i)
		l.Width = vg.Points(1.2)
		pl.Add(l)
		pl.Legend.Add(name, l)
		all = append(all, mean)
	}
	if !drewTruth {
		return errors.New("no predictions to plot")
	}
	pl.Y.Min, pl.Y.Max = yRange(all...)
	return save(pl, path)
}

// PlotNLLByAhead draws the mean NLL of every model per step ahead.
func PlotNLLByAhead(preds map[string]*predict.Predictions, order []string, path string) error {
	pl := plot.New()
	pl.Title.Text = "NLL by steps ahead"
	pl.X.Label.Text = "steps ahead"
	pl.Y.Label.Text = "NLL"
	pl.Add(plotter.NewGrid())
	n := 0
	for i, name := range order {
		p := preds[name]
		if p == nil {
			continue
		}
		var xys plotter.XYs
		for j, v := range p.NLLByAhead() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(p.TAhead[j]), Y: v})
		}
		if len(xys) == 0 {
			continue
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, name)
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1.2)
		pl.Add(l)
		pl.Legend.Add(name, l)
		n++
	}
	if n == 0 {
		return errors.New("no finite NLL to plot")
	}
	pl.Legend.Top = true
	return save(pl, path)
}

// PlotNLLByOrigin draws the mean NLL of every model against the time the
// forecast was made.
func PlotNLLByOrigin(preds map[string]*predict.Predictions, order []string, path string) error {
	pl := newTimePlot("Error vs time of prediction", "NLL")
	var all []plotter.XYs
	for i, name := range order {
		p := preds[name]
		if p == nil {
			continue
		}
		xys := series(p.TSource, p.NLLByOrigin())
		if len(xys) == 0 {
			continue
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, name)
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1)
		pl.Add(l)
		pl.Legend.Add(name, l)
		all = append(all, xys)
	}
	if len(all) == 0 {
		return errors.New("no finite NLL to plot")
	}
	pl.Y.Min, pl.Y.Max = yRange(all...)
	pl.Legend.Top = true
	return save(pl, path)
}

// PlotTrueVsPred scatters the predicted mean against the true value of one
// target over every origin and step ahead, with the y = x diagonal.
func PlotTrueVsPred(p *predict.Predictions, target int, path string) error {
	if target < 0 || target >= len(p.Targets) {
		return errors.Errorf("target %d out of range [0,%d)", target, len(p.Targets))
	}
	var xys plotter.XYs
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range p.YTrue {
		for j := range p.YTrue[i] {
			x, y := p.YTrue[i][j][target], p.YPred[i][j][target]
			if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
				continue
			}
			xys = append(xys, plotter.XY{X: x, Y: y})
			lo = math.Min(lo, math.Min(x, y))
			hi = math.Max(hi, math.Max(x, y))
		}
	}
	if len(xys) == 0 {
		return errors.New("no finite predictions to plot")
	}
	pl := plot.New()
	pl.Title.Text = p.Dataset + " " + p.Model + ": true vs predicted"
	pl.X.Label.Text = "true " + p.Targets[target]
	pl.Y.Label.Text = "predicted " + p.Targets[target]
	pl.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = plotutil.Color(0)
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(1.5)
	pl.Add(sc)
	if err := addLine(pl, plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}}, colorNow, vg.Points(1), "y = x"); err != nil {
		return err
	}
	return save(pl, path)
}

// PlotHistory draws the train and validation loss per epoch.
func PlotHistory(h *train.History, title, path string) error {
	if h == nil || len(h.Epochs) == 0 {
		return errors.New("empty history")
	}
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "epoch"
	pl.Y.Label.Text = "loss"
	pl.Add(plotter.NewGrid())
	var trainXY, valXY plotter.XYs
	for _, e := range h.Epochs {
		if !math.IsNaN(e.TrainLoss) && !math.IsInf(e.TrainLoss, 0) {
			trainXY = append(trainXY, plotter.XY{X: float64(e.Epoch), Y: e.TrainLoss})
		}
		if !math.IsNaN(e.ValLoss) && !math.IsInf(e.ValLoss, 0) {
			valXY = append(valXY, plotter.XY{X: float64(e.Epoch), Y: e.ValLoss})
		}
	}
	if len(trainXY)+len(valXY) == 0 {
		return errors.New("history has no finite loss")
	}
	if err := addLine(pl, trainXY, plotutil.Color(0), vg.Points(1.2), "loss/train"); err != nil {
		return err
	}
	if err := addLine(pl, valXY, plotutil.Color(1), vg.Points(1.2), "loss/val"); err != nil {
		return err
	}
	return save(pl, path)
}

// PlotLeaderboard draws one bar per model for the ranking column of lb: the
// baseline deviation when present, otherwise the first dataset. Missing and
// non-finite values are left out.
func PlotLeaderboard(lb *results.Leaderboard, path string) error {
	if len(lb.Columns) == 0 {
		return errors.New("empty leaderboard")
	}
	col := 0
	if lb.Derived {
		col = len(lb.Columns) - 1
	}
	var vals plotter.Values
	var names []string
	for _, r := range lb.Rows {
		c := r.Cells[col]
		if !c.Present || math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			continue
		}
		vals = append(vals, c.Value)
		names = append(names, r.Model)
	}
	if len(vals) == 0 {
		return errors.New("no values in ranking column")
	}
	pl := plot.New()
	pl.Title.Text = lb.Metric + ": " + lb.Columns[col]
	pl.Y.Label.Text = lb.Metric
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return err
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	pl.Add(plotter.NewGrid(), bars)
	pl.NominalX(names...)
	return save(pl, path)
}

func checkFinite(xys plotter.XYs) error {
	for _, p := range xys {
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return errors.New("non-finite point")
		}
	}
	if len(xys) == 0 {
		return errors.New("no points")
	}
	return nil
}
