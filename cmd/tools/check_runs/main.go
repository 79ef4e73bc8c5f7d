package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fundlens/lead-engine/internal/db"
)

func main() {
	limit := flag.Int("limit", 10, "number of recent runs to show")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	runs, err := store.RecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Batch", "Status", "Contracts", "Equipment", "Budget", "Total", "Errors", "Duration", "Started At"})

	for _, run := range runs {
		duration := "Running..."
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
		}

		t.AppendRow(table.Row{
			run.BatchID, string(run.Status),
			run.ContractExpiryCount, run.EquipmentRefreshCount, run.BudgetCycleCount,
			run.Total(), len(run.Errors), duration,
			run.StartedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}
