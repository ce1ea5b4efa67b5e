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
	"time"

	"github.com/sgruendel/stonks-local/config"
	"github.com/sgruendel/stonks-local/internal/adapters/notify"
	"github.com/sgruendel/stonks-local/internal/adapters/storage"
	"github.com/sgruendel/stonks-local/internal/emulator"
)

const dateLayout = "2006-01-02"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
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
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	symbols, from, to, strategyName := parseArgs(cfg, flag.Args())

	strategy, err := emulator.StrategyFor(strategyName)
	if err != nil {
		slog.Error("unknown strategy", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	emCfg := emulator.DefaultConfig()
	emCfg.StartingCash = cfg.Simulation.StartingCash
	emCfg.MinBuy = cfg.Simulation.MinBuy
	emCfg.MaxBuy = cfg.Simulation.MaxBuy
	emCfg.TransactionFee = cfg.Simulation.TransactionFee
	emCfg.TaxRate = cfg.Simulation.TaxRate
	emCfg.StopLoss = cfg.Simulation.StopLoss
	if cfg.Simulation.Workers > 0 {
		emCfg.Workers = cfg.Simulation.Workers
	}

	em := emulator.New(emCfg, store, notify.NewConsole(), strategy, symbols)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := em.Run(ctx, from, to); err != nil {
		slog.Error("emulation failed", "err", err)
		os.Exit(1)
	}
}

// parseArgs resuelve los posicionales [symbols [from [to [strategy]]]].
// symbols es una lista separada por comas o '*' para el universo del config;
// por defecto simula los últimos 7 días con la estrategia MACD.
func parseArgs(cfg *config.Config, args []string) (symbols []string, from, to, strategy string) {
	now := time.Now()
	from = now.AddDate(0, 0, -7).Format(dateLayout)
	to = now.Format(dateLayout)
	strategy = "MACD"

	symbolsArg := "*"
	if len(args) > 0 {
		symbolsArg = args[0]
	}
	if len(args) > 1 {
		from = args[1]
	}
	if len(args) > 2 {
		to = args[2]
	}
	if len(args) > 3 {
		strategy = args[3]
	}

	if symbolsArg == "*" {
		symbols = cfg.Symbols
	} else {
		for _, s := range strings.Split(symbolsArg, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	if len(symbols) == 0 {
		slog.Error("no symbols to simulate: pass a list or configure 'symbols'")
		os.Exit(1)
	}
	return symbols, from, to, strategy
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"usage: %s [flags] [symbols|* [from [to [strategy]]]]\n\n"+
			"  symbols   comma separated list, or '*' for the configured universe\n"+
			"  from/to   YYYY-MM-DD (default: last 7 days)\n"+
			"  strategy  one of %s (default: MACD)\n\nflags:\n",
		os.Args[0], strings.Join(emulator.StrategyNames(), ", "))
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
