package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/cognicore/painrank/internal/ingest"
	"github.com/cognicore/painrank/internal/llm"
	"github.com/cognicore/painrank/internal/logging"
	"github.com/cognicore/painrank/pkg/painrank"
	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/store/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config YAML path (optional)")
		dbPath     = flag.String("db", "", "Database path (overrides config)")
		dataPath   = flag.String("data", "", "Input JSONL file (required)")
	)
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("--data required")
	}

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

	logger := logging.New(cfg.Logging.Level)
	ctx := context.Background()

	st, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer st.Close()

	oracle := llm.New(cfg, st, logger)

	engine, err := painrank.New(painrank.Options{
		Store:      st,
		Classifier: oracle,
		Extractor:  oracle,
		Inferrer:   oracle,
		Reviewer:   oracle,
		Merger:     oracle,
		Downgrader: oracle,
		Config:     cfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatal("Failed to build pipeline: ", err)
	}

	records, err := ingest.LoadFromJSONL(*dataPath, logger)
	if err != nil {
		log.Fatal("Failed to load records: ", err)
	}
	log.Printf("Loaded %d records from %s", len(records), *dataPath)

	report, err := engine.RunRound(ctx, records)
	if err != nil {
		log.Fatal("Round failed: ", err)
	}

	fmt.Printf("Round %s: %d/%d new records, %d deep, %d light, %d mentions, %d topics\n",
		report.RoundID, report.RecordsNew, report.RecordsIn,
		report.Deep, report.Light, report.Mentions, report.Topics)
	fmt.Printf("Budget: %s ($%.2f spent this month)\n\n", report.BudgetState, report.SpentUSD)

	for _, e := range report.Entries {
		if e.Rank > 10 {
			break
		}
		fmt.Printf("%2d. %-24s %6.1f  %-6s %-8s %s\n",
			e.Rank, e.Name, e.Score, e.Tier, e.Trend, e.Category)
	}
}
