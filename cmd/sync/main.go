package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AngelCh415/amazon-brain/internal/app"
	"github.com/AngelCh415/amazon-brain/internal/config"
	"github.com/AngelCh415/amazon-brain/internal/ingest"
)

// selection maps the CLI flags to datasets. No flag means the defaults.
func selection(fs *flag.FlagSet, args []string) ([]ingest.Dataset, int, error) {
	flags := map[ingest.Dataset]*bool{
		ingest.Products:    fs.Bool("products", false, "sync active listings, brands and stock"),
		ingest.Orders:      fs.Bool("orders", false, "sync orders into brand and SKU weeks"),
		ingest.Ads:         fs.Bool("ads", false, "sync campaigns and ad metrics"),
		ingest.Targeting:   fs.Bool("targeting", false, "sync ASIN targeting reports"),
		ingest.SearchTerms: fs.Bool("searchterms", false, "sync search term reports"),
		ingest.Inventory:   fs.Bool("inventory", false, "sync FBA inventory (deprecated, use --products)"),
	}
	all := fs.Bool("all", false, "sync every default dataset")
	days := fs.Int("days", 0, "days to look back (default SYNC_DAYS_BACK)")
	if err := fs.Parse(args); err != nil {
		return nil, 0, err
	}
	if *days < 0 {
		return nil, 0, errors.New("--days must be positive")
	}
	var out []ingest.Dataset
	if !*all {
		for _, d := range ingest.DefaultDatasets {
			if *flags[d] {
				out = append(out, d)
			}
		}
	} else {
		out = append(out, ingest.DefaultDatasets...)
	}
	if *flags[ingest.Inventory] {
		out = append(out, ingest.Inventory)
	}
	return out, *days, nil
}

func main() {
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ds, days, err := selection(flag.NewFlagSet("sync", flag.ExitOnError), os.Args[1:])
	if err != nil {
		logger.Error("flags", slog.String("err", err.Error()))
		os.Exit(2)
	}
	if err := cfg.ValidateSync(); err != nil {
		logger.Error("invalid config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	orch := app.NewOrchestrator(cfg, st, app.Calendar(cfg, logger), logger)
	sum, err := orch.WithDays(days).Run(ctx, ds)
	if err != nil {
		logger.Error("sync", slog.String("err", err.Error()))
		closeStore()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", " ")
	enc.Encode(sum)
	if sum.Failed() > 0 {
		closeStore()
		os.Exit(1)
	}
}
