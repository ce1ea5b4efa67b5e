package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/sgruendel/stonks-local/config"
	"github.com/sgruendel/stonks-local/internal/adapters/alphavantage"
	"github.com/sgruendel/stonks-local/internal/adapters/cboe"
	"github.com/sgruendel/stonks-local/internal/adapters/storage"
	"github.com/sgruendel/stonks-local/internal/updater"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	since := flag.String("since", "2018-01-01", "fetch data from this date (YYYY-MM-DD)")
	rsi2 := flag.Bool("rsi2", false, "backfill only the rsi2 column and exit")
	daemon := flag.Bool("daemon", false, "keep running and update on a schedule")
	schedule := flag.String("schedule", "0 18 * * 1-5", "cron schedule for daemon mode")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	setupLogger(cfg.Log)

	if cfg.API.AlphaVantageKey == "" {
		slog.Error("missing Alpha Vantage API key: set ALPHAVANTAGE_API_KEY or api.alphavantage_key")
		os.Exit(1)
	}

	symbols := parseSymbols(cfg, flag.Args())

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	market := alphavantage.NewClient(cfg.API.AlphaVantageBase, cfg.API.AlphaVantageKey, cfg.API.IntervalCap)
	volatility := cboe.NewClient(cfg.API.VIXHistory)
	u := updater.New(store, market, volatility)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run := func() {
		if *rsi2 {
			if err := u.BackfillRSI2(ctx, symbols, *since); err != nil {
				slog.Error("rsi2 backfill failed", "err", err)
			}
			return
		}
		if err := u.UpdateVolatility(ctx, *since); err != nil {
			slog.Error("volatility update failed", "err", err)
		}
		if err := u.UpdateSymbols(ctx, symbols, *since); err != nil {
			slog.Error("symbol update failed", "err", err)
		}
	}

	if !*daemon {
		run()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, run); err != nil {
		slog.Error("invalid cron schedule", "err", err, "schedule", *schedule)
		os.Exit(1)
	}
	c.Start()
	slog.Info("update daemon started", "schedule", *schedule, "symbols", len(symbols))

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("update daemon stopped cleanly")
}

func parseSymbols(cfg *config.Config, args []string) []string {
	symbolsArg := "*"
	if len(args) > 0 {
		symbolsArg = args[0]
	}
	if symbolsArg == "*" {
		if len(cfg.Symbols) == 0 {
			slog.Error("no symbols to update: pass a list or configure 'symbols'")
			os.Exit(1)
		}
		return cfg.Symbols
	}

	var symbols []string
	for _, s := range strings.Split(symbolsArg, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	if len(symbols) == 0 {
		slog.Error("no symbols to update: pass a list or configure 'symbols'")
		os.Exit(1)
	}
	return symbols
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"usage: %s [flags] [symbols|*]\n\n"+
			"  symbols  comma separated list, or '*' for the configured universe\n\nflags:\n",
		os.Args[0])
	flag.PrintDefaults()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
