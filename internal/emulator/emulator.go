// Package emulator recorre un rango de fechas día a día y ejecuta una
// estrategia de señales contra una cartera simulada, sobre los datos de
// mercado ya descargados en el almacén local.
package emulator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sgruendel/stonks-local/internal/domain"
	"github.com/sgruendel/stonks-local/internal/ports"
)

const dateLayout = "2006-01-02"

// Config son los parámetros económicos y de ejecución de una simulación.
type Config struct {
	StartingCash   float64
	MinBuy         float64
	MaxBuy         float64
	TransactionFee float64
	TaxRate        float64
	// StopLoss activa las salidas forzadas por stop-loss y profit target.
	StopLoss bool
	// Workers limita cuántos símbolos se procesan en paralelo por jornada.
	Workers int
}

// DefaultConfig devuelve los parámetros por defecto de una simulación.
func DefaultConfig() Config {
	return Config{
		StartingCash:   1_000_000,
		MinBuy:         1_000,
		MaxBuy:         5_000,
		TransactionFee: 0,
		TaxRate:        0.25,
		Workers:        8,
	}
}

// Emulator orquesta una simulación completa sobre un conjunto de símbolos.
type Emulator struct {
	cfg       Config
	store     ports.Store
	notifier  ports.Notifier
	strategy  Strategy
	symbols   []string
	portfolio *Portfolio
	state     map[string]*symbolState
}

// New construye el emulador. El mapa de estado por símbolo se rellena aquí
// y no vuelve a mutar: las goroutines por símbolo solo leen el mapa.
func New(cfg Config, store ports.Store, notifier ports.Notifier, strategy Strategy, symbols []string) *Emulator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	state := make(map[string]*symbolState, len(symbols))
	for _, symbol := range symbols {
		state[symbol] = &symbolState{}
	}
	return &Emulator{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		strategy:  strategy,
		symbols:   symbols,
		portfolio: NewPortfolio(cfg, symbols),
		state:     state,
	}
}

// Run ejecuta la simulación entre from y to (ambos inclusive, YYYY-MM-DD) y
// entrega el informe final al notifier. El extremo final se recorta a la
// última jornada con datos para que el mark-to-market use precios reales.
func (e *Emulator) Run(ctx context.Context, from, to string) (*domain.RunReport, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("parsing from date: %w", err)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("parsing to date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("empty date range: %s is after %s", from, to)
	}

	if last, err := e.lastTradingDate(ctx, to); err != nil {
		return nil, err
	} else if last.Before(end) {
		slog.Info("clamping end of range to last trading date", "to", to, "last", last.Format(dateLayout))
		end = last
	}

	runID := uuid.NewString()
	slog.Info("starting emulation",
		"run_id", runID,
		"strategy", e.strategy.Name,
		"from", start.Format(dateLayout),
		"to", end.Format(dateLayout),
		"symbols", len(e.symbols),
		"cash", domain.FormatMoney(e.portfolio.Cash()),
	)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.runDay(ctx, day.Format(dateLayout)); err != nil {
			return nil, err
		}
	}

	report, err := e.buildReport(ctx, runID, start, end)
	if err != nil {
		return nil, err
	}
	if e.notifier != nil {
		if err := e.notifier.Report(ctx, *report); err != nil {
			return nil, fmt.Errorf("delivering report: %w", err)
		}
	}
	return report, nil
}

// lastTradingDate devuelve la fecha de la última vela conocida en o antes de
// to, usando el primer símbolo como referencia del calendario de mercado.
func (e *Emulator) lastTradingDate(ctx context.Context, to string) (time.Time, error) {
	bar, err := e.store.LatestBarOnOrBefore(ctx, e.symbols[0], to)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last trading date: %w", err)
	}
	if bar == nil {
		return time.Time{}, fmt.Errorf("no market data on or before %s for %s", to, e.symbols[0])
	}
	return time.Parse(dateLayout, bar.Date)
}

// runDay procesa todos los símbolos de una jornada en paralelo y espera a
// que terminen antes de devolver: el día siguiente no empieza hasta que la
// cartera queda consistente. Un pánico en un símbolo no tumba la jornada.
func (e *Emulator) runDay(ctx context.Context, date string) error {
	vixs, err := e.store.VolatilityPairOnOrBefore(ctx, date)
	if err != nil {
		return fmt.Errorf("querying volatility for %s: %w", date, err)
	}

	slog.Info("trading day", "date", date)

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Workers)
	for _, symbol := range e.symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in trade step",
						"symbol", symbol,
						"date", date,
						"panic", r,
						"stack", string(debug.Stack()),
					)
				}
			}()
			if err := e.tradeStep(ctx, date, symbol, e.state[symbol], vixs); err != nil {
				slog.Error("trade step failed", "symbol", symbol, "date", date, "error", err)
			}
		}(symbol)
	}
	wg.Wait()
	return nil
}

// buildReport hace el mark-to-market de las posiciones abiertas al precio de
// la última jornada y arma el informe final.
func (e *Emulator) buildReport(ctx context.Context, runID string, start, end time.Time) (*domain.RunReport, error) {
	report := &domain.RunReport{
		RunID:    runID,
		Strategy: e.strategy.Name,
		From:     start.Format(dateLayout),
		To:       end.Format(dateLayout),
	}

	depot := 0.0
	for _, symbol := range e.symbols {
		pos := e.portfolio.Position(symbol)
		if pos.Amount > 0 {
			bar, err := e.store.LatestBarOnOrBefore(ctx, symbol, report.To)
			if err != nil {
				return nil, fmt.Errorf("marking %s to market: %w", symbol, err)
			}
			if bar != nil {
				e.portfolio.AddUnrealized(symbol, bar.AdjustedClose)
				depot += pos.Amount * bar.AdjustedClose
				pos = e.portfolio.Position(symbol)
			}
		}

		summary := domain.PositionSummary{
			Symbol:        symbol,
			Amount:        pos.Amount,
			AvgSharePrice: pos.AvgSharePrice,
			Profit:        pos.Profit,
		}
		switch {
		case pos.Amount > 0:
			report.Open = append(report.Open, summary)
		case pos.Profit != 0:
			report.Closed = append(report.Closed, summary)
		}
	}

	byProfit := func(s []domain.PositionSummary) func(i, j int) bool {
		return func(i, j int) bool { return s[i].Profit < s[j].Profit }
	}
	sort.Slice(report.Closed, byProfit(report.Closed))
	sort.Slice(report.Open, byProfit(report.Open))

	report.Cash = e.portfolio.Cash()
	report.DepotValue = depot
	report.TotalValue = report.Cash + depot
	report.Fees = e.portfolio.Fees()
	report.Taxes = e.portfolio.Taxes()
	return report, nil
}
