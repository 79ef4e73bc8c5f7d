package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/db"
	"github.com/fundlens/lead-engine/internal/predict"
	"github.com/fundlens/lead-engine/internal/usac"
)

func main() {
	states := flag.String("states", "", "comma-separated state codes to scope the run (e.g. TX,OH)")
	force := flag.Bool("force", false, "dismiss uncontacted leads and regenerate")
	timeout := flag.Duration("timeout", 30*time.Minute, "run deadline")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Load()
	detectorCfg, err := config.LoadDetectorConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		log.Fatal(err)
	}

	store := db.NewStore(pool)
	source := usac.NewClient(cfg.USACBaseURL, logger)

	engine := predict.NewEngine(store, []predict.Detector{
		predict.NewContractExpiryDetector(source, store, detectorCfg.ContractExpiry, logger),
		predict.NewEquipmentRefreshDetector(source, store, detectorCfg.EquipmentRefresh, logger),
		predict.NewBudgetCycleDetector(source, store, detectorCfg.BudgetCycle, logger),
	}, logger)

	opts := predict.RunOptions{ForceRefresh: *force}
	if *states != "" {
		for _, st := range strings.Split(*states, ",") {
			if st = strings.TrimSpace(st); st != "" {
				opts.States = append(opts.States, strings.ToUpper(st))
			}
		}
	}

	summary, err := engine.Run(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Batch", "Status", "Total", "Duration"})
	t.AppendRow(table.Row{
		summary.BatchID, string(summary.Status), summary.Total,
		(time.Duration(summary.DurationSeconds * float64(time.Second))).Round(time.Second),
	})
	t.Render()

	detail := table.NewWriter()
	detail.SetOutputMirror(os.Stdout)
	detail.AppendHeader(table.Row{"Detector", "Inserted"})
	for typ, count := range summary.CountsByType {
		detail.AppendRow(table.Row{string(typ), count})
	}
	detail.Render()

	if len(summary.Errors) > 0 {
		log.Printf("run finished with %d error(s):", len(summary.Errors))
		for _, e := range summary.Errors {
			log.Printf("  - %s", e)
		}
		os.Exit(1)
	}
}
