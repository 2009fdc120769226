package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/report"
	"github.com/cognicore/painrank/pkg/painrank/store"
	"github.com/cognicore/painrank/pkg/painrank/store/sqlite"
)

// Covers the current and the previous reporting week at a few rounds
// per day.
const maxRounds = 200

func main() {
	var (
		configPath = flag.String("config", "", "Config YAML path (optional)")
		dbPath     = flag.String("db", "", "Database path (overrides config)")
		outPath    = flag.String("out", "", "Output markdown file (default stdout)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if cfg.Store.Path == "" {
		log.Fatal("--db or store.path required")
	}

	ctx := context.Background()
	st, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer st.Close()

	snaps, err := st.RecentSnapshots(ctx, maxRounds)
	if err != nil {
		log.Fatal("Failed to load snapshots: ", err)
	}
	if len(snaps) == 0 {
		log.Fatal("No snapshots recorded yet")
	}

	now := time.Now().UTC()
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	var current, previous []store.RankingEntry
	rounds := 0
	for _, snap := range snaps {
		switch {
		case snap.TakenAt.After(weekAgo):
			current = append(current, snap.Entries...)
			rounds++
		case snap.TakenAt.After(twoWeeksAgo):
			previous = append(previous, snap.Entries...)
		}
	}
	if len(current) == 0 {
		log.Fatal("No snapshots in the past week")
	}

	md := report.Build(current, previous, report.Meta{
		From:   weekAgo,
		To:     now,
		Rounds: rounds,
	})

	if *outPath == "" {
		fmt.Print(md)
		return
	}
	if err := os.WriteFile(*outPath, []byte(md), 0o644); err != nil {
		log.Fatal("Failed to write report: ", err)
	}
	log.Printf("Report written to %s", *outPath)
}
