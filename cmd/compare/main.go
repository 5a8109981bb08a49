package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Noofbiz/seq2seqTime/experiment"
	"github.com/Noofbiz/seq2seqTime/results"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML sweep config (empty uses the built-in default)")
	outDir := flag.String("out", "", "output directory (overrides out_dir)")
	timestamp := flag.String("timestamp", "", "run timestamp, "+experiment.TimestampLayout+" (default now; required with -plot-only)")
	metric := flag.String("metric", "", "leaderboard metric: rmse, smape or nll (overrides metric)")
	fastDevRun := flag.Bool("fast-dev-run", false, "train every model on a single batch (smoke test)")
	workers := flag.Int("workers", -1, "loader workers per split (overrides workers)")
	plotOnly := flag.Bool("plot-only", false, "skip training; rebuild leaderboard and plots from a previous run")
	noPlots := flag.Bool("no-plots", false, "do not render PNG plots")
	writeDefault := flag.String("write-default-config", "", "write the default config to this path and exit")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (YAML+CLI merged) configuration and exit")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *writeDefault != "" {
		if err := experiment.WriteDefaultConfig(*writeDefault); err != nil {
			log.Fatalf("%+v", err)
		}
		log.Infof("default config written to %s", *writeDefault)
		return
	}

	var (
		cfg *experiment.Config
		err error
	)
	if *configPath == "" {
		cfg, err = experiment.ParseConfig(experiment.DefaultConfigYAML())
	} else {
		cfg, err = experiment.LoadConfig(*configPath)
	}
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *timestamp != "" {
		cfg.Timestamp = *timestamp
	}
	if *metric != "" {
		cfg.Metric = *metric
	}
	if *fastDevRun {
		cfg.Train.FastDevRun = true
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%+v", err)
	}

	if *printEffectiveConfig {
		b, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("%+v", err)
		}
		fmt.Print(string(b))
		return
	}

	var table *results.Table
	if *plotOnly {
		if *timestamp == "" {
			log.Fatal("-plot-only needs -timestamp of a previous run")
		}
		table, err = results.LoadTable(experiment.ResultsPath(cfg.OutDir, cfg.Timestamp))
		if err != nil {
			log.Fatalf("%+v", err)
		}
		if _, err := experiment.WriteLeaderboards(table, cfg.Metric, cfg.Baseline, cfg.OutDir, cfg.Timestamp); err != nil {
			log.Fatalf("%+v", err)
		}
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runner := experiment.NewRunner(cfg, log)
		table, err = runner.Run(ctx, nil)
		if err != nil {
			log.Warnf("%v; writing partial results", err)
		}
	}

	if table.Len() == 0 {
		log.Warn("no results recorded")
		return
	}
	lb := table.Format(cfg.Metric, true, cfg.Baseline).HighlightBest()
	fmt.Println()
	fmt.Print(lb.Text(color.New(color.Bold).SprintFunc()))
	fmt.Println()
	log.Infof("leaderboard written to %s", experiment.LeaderboardPath(cfg.OutDir, cfg.Timestamp, "html"))

	if !*noPlots {
		if err := writePlots(cfg, lb, log); err != nil {
			log.Errorf("plots: %+v", err)
		}
	}
}
