package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Noofbiz/seq2seqTime/experiment"
	"github.com/Noofbiz/seq2seqTime/results"
	"github.com/Noofbiz/seq2seqTime/train"
	"github.com/Noofbiz/seq2seqTime/viz"
	"github.com/sirupsen/logrus"
)

// writePlots renders, from the saved artifacts of a run, the leaderboard
// bars and per dataset forecast, error and training curve plots into
// <out>/<ts>/plots.
func writePlots(cfg *experiment.Config, lb *results.Leaderboard, log logrus.FieldLogger) error {
	dir := filepath.Join(experiment.RunDir(cfg.OutDir, cfg.Timestamp), "plots")
	if err := viz.PlotLeaderboard(lb, filepath.Join(dir, "leaderboard.png")); err != nil {
		log.Warnf("leaderboard plot: %v", err)
	}

	arts, err := experiment.LoadArtifacts(cfg.OutDir, cfg.Timestamp, log)
	if err != nil {
		return err
	}
	for _, ds := range arts.Datasets() {
		names := arts.Models(ds)
		preds := arts[ds]
		first := preds[names[0]]
		if first.Len() == 0 {
			continue
		}
		at := first.TSource[first.Len()/2]
		if err := viz.PlotModels(preds, names, at, 0, filepath.Join(dir, ds+"_models.png")); err != nil {
			log.Warnf("%s models plot: %v", ds, err)
		}
		if err := viz.PlotNLLByAhead(preds, names, filepath.Join(dir, ds+"_nll_by_ahead.png")); err != nil {
			log.Warnf("%s nll plot: %v", ds, err)
		}
		if err := viz.PlotNLLByOrigin(preds, names, filepath.Join(dir, ds+"_nll_by_origin.png")); err != nil {
			log.Warnf("%s nll by origin plot: %v", ds, err)
		}
		for _, m := range names {
			p := preds[m]
			out := filepath.Join(dir, fmt.Sprintf("%s_%s_pred.png", ds, m))
			if err := viz.PlotPrediction(p, p.IndexOf(at), 0, out); err != nil {
				log.Warnf("%s/%s prediction plot: %v", ds, m, err)
			}
			if err := viz.PlotTrueVsPred(p, 0, filepath.Join(dir, fmt.Sprintf("%s_%s_true_vs_pred.png", ds, m))); err != nil {
				log.Warnf("%s/%s true vs predicted plot: %v", ds, m, err)
			}
			histPath := experiment.HistoryPath(cfg.OutDir, cfg.Timestamp, ds, m)
			if _, err := os.Stat(histPath); err != nil {
				continue
			}
			h, err := train.ReadHistoryCSV(histPath)
			if err != nil {
				log.Warnf("%s/%s history: %v", ds, m, err)
				continue
			}
			if err := viz.PlotHistory(h, ds+" "+m, filepath.Join(dir, fmt.Sprintf("%s_%s_history.png", ds, m))); err != nil {
				log.Warnf("%s/%s history plot: %v", ds, m, err)
			}
		}
	}
	log.Infof("plots written to %s", dir)
	return nil
}
