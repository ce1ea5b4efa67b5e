// Package updater descarga barras, indicadores y volatilidad desde los
// proveedores externos y los deja en el almacén local, listos para simular.
package updater

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markcheno/go-talib"

	"github.com/sgruendel/stonks-local/internal/domain"
	"github.com/sgruendel/stonks-local/internal/ports"
)

var (
	smaPeriods = []int{15, 20, 50, 100, 200}
	emaPeriods = []int{5, 8, 9, 12, 13, 20, 21, 26, 34, 50, 100, 200}

	// Períodos de SMA calculados sobre la serie de volatilidad.
	vixSmaPeriods = []int{10, 15, 20, 50, 100, 200}
)

const (
	rsiPeriod    = 14
	atrPeriod    = 14
	bbandsPeriod = 20
)

// Updater orquesta las descargas y los upserts. Los upserts hacen merge por
// columna, así que actualizar dos veces el mismo día es idempotente.
type Updater struct {
	store      ports.Store
	market     ports.MarketData
	volatility ports.VolatilityProvider
}

// New construye el Updater.
func New(store ports.Store, market ports.MarketData, volatility ports.VolatilityProvider) *Updater {
	return &Updater{store: store, market: market, volatility: volatility}
}

// UpdateSymbols actualiza barras e indicadores de cada símbolo desde since.
// Un símbolo que falla se registra y no detiene a los demás; devuelve error
// solo si fallaron todos.
func (u *Updater) UpdateSymbols(ctx context.Context, symbols []string, since string) error {
	failed := 0
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.updateSymbol(ctx, symbol, since); err != nil {
			slog.Error("symbol update failed", "symbol", symbol, "error", err)
			failed++
		}
	}
	if failed == len(symbols) && len(symbols) > 0 {
		return fmt.Errorf("all %d symbol updates failed", failed)
	}
	return nil
}

func (u *Updater) updateSymbol(ctx context.Context, symbol, since string) error {
	bars, err := u.market.QueryDailyAdjusted(ctx, symbol, since)
	if err != nil {
		return fmt.Errorf("daily bars: %w", err)
	}
	if len(bars) == 0 {
		slog.Info("no updates", "symbol", symbol, "since", since)
		return nil
	}

	for _, bar := range bars {
		if bar.SplitCoefficient != 0 && bar.SplitCoefficient != 1 {
			slog.Info("split detected", "symbol", symbol, "date", bar.Date, "coefficient", bar.SplitCoefficient)
		}
	}

	snapshots, err := u.fetchSnapshots(ctx, symbol, since, bars)
	if err != nil {
		return err
	}

	if err := u.store.UpsertBars(ctx, bars); err != nil {
		return fmt.Errorf("storing bars: %w", err)
	}
	if err := u.store.UpsertIndicators(ctx, snapshots); err != nil {
		return fmt.Errorf("storing indicators: %w", err)
	}

	slog.Info("symbol updated", "symbol", symbol, "bars", len(bars), "snapshots", len(snapshots))
	return nil
}

// fetchSnapshots descarga todas las series de indicadores y las une por
// posición: todas vienen descendentes y comparten las fechas más recientes,
// solo difieren en la longitud por el warm-up de cada indicador. Un desfase
// de fechas en la cabecera es un error del proveedor, no algo reparable.
func (u *Updater) fetchSnapshots(ctx context.Context, symbol, since string, bars []domain.Bar) ([]domain.IndicatorSnapshot, error) {
	snapshots := make([]domain.IndicatorSnapshot, len(bars))
	for i, bar := range bars {
		snapshots[i] = domain.IndicatorSnapshot{Symbol: symbol, Date: bar.Date}
	}

	merge := func(points []domain.SeriesPoint, field func(*domain.IndicatorSnapshot) **float64) error {
		for i := range points {
			if i >= len(snapshots) {
				break
			}
			if points[i].Date != snapshots[i].Date {
				return fmt.Errorf("series misaligned at %s, expected %s", points[i].Date, snapshots[i].Date)
			}
			v := points[i].Value
			*field(&snapshots[i]) = &v
		}
		return nil
	}

	for _, period := range smaPeriods {
		points, err := u.market.QuerySMA(ctx, symbol, period, since)
		if err != nil {
			return nil, fmt.Errorf("sma%d: %w", period, err)
		}
		if err := merge(points, smaField(period)); err != nil {
			return nil, fmt.Errorf("sma%d: %w", period, err)
		}
	}

	for _, period := range emaPeriods {
		points, err := u.market.QueryEMA(ctx, symbol, period, since)
		if err != nil {
			return nil, fmt.Errorf("ema%d: %w", period, err)
		}
		if err := merge(points, emaField(period)); err != nil {
			return nil, fmt.Errorf("ema%d: %w", period, err)
		}
	}

	rsis, err := u.market.QueryRSI(ctx, symbol, rsiPeriod, since)
	if err != nil {
		return nil, fmt.Errorf("rsi%d: %w", rsiPeriod, err)
	}
	if err := merge(rsis, func(s *domain.IndicatorSnapshot) **float64 { return &s.Rsi14 }); err != nil {
		return nil, fmt.Errorf("rsi%d: %w", rsiPeriod, err)
	}

	atrs, err := u.market.QueryATR(ctx, symbol, atrPeriod, since)
	if err != nil {
		return nil, fmt.Errorf("atr%d: %w", atrPeriod, err)
	}
	if err := merge(atrs, func(s *domain.IndicatorSnapshot) **float64 { return &s.Atr14 }); err != nil {
		return nil, fmt.Errorf("atr%d: %w", atrPeriod, err)
	}

	natrs, err := u.market.QueryNATR(ctx, symbol, atrPeriod, since)
	if err != nil {
		return nil, fmt.Errorf("natr%d: %w", atrPeriod, err)
	}
	if err := merge(natrs, func(s *domain.IndicatorSnapshot) **float64 { return &s.Natr14 }); err != nil {
		return nil, fmt.Errorf("natr%d: %w", atrPeriod, err)
	}

	macds, err := u.market.QueryMACD(ctx, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	for i := range macds {
		if i >= len(snapshots) {
			break
		}
		if macds[i].Date != snapshots[i].Date {
			return nil, fmt.Errorf("macd: series misaligned at %s, expected %s", macds[i].Date, snapshots[i].Date)
		}
		macd, hist, signal := macds[i].Macd, macds[i].Hist, macds[i].Signal
		snapshots[i].Macd = &macd
		snapshots[i].MacdHist = &hist
		snapshots[i].MacdSignal = &signal
	}

	bands, err := u.market.QueryBBands(ctx, symbol, bbandsPeriod, since)
	if err != nil {
		return nil, fmt.Errorf("bbands: %w", err)
	}
	for i := range bands {
		if i >= len(snapshots) {
			break
		}
		if bands[i].Date != snapshots[i].Date {
			return nil, fmt.Errorf("bbands: series misaligned at %s, expected %s", bands[i].Date, snapshots[i].Date)
		}
		lower, upper, middle := bands[i].Lower, bands[i].Upper, bands[i].Middle
		snapshots[i].BbandLower = &lower
		snapshots[i].BbandUpper = &upper
		snapshots[i].BbandMiddle = &middle
	}

	return snapshots, nil
}

// BackfillRSI2 rellena solo la columna rsi2 de los snapshots ya guardados;
// el merge por columna del almacén conserva el resto de indicadores.
func (u *Updater) BackfillRSI2(ctx context.Context, symbols []string, since string) error {
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		points, err := u.market.QueryRSI(ctx, symbol, 2, since)
		if err != nil {
			slog.Error("rsi2 backfill failed", "symbol", symbol, "error", err)
			continue
		}
		if len(points) == 0 {
			slog.Info("no rsi2 updates", "symbol", symbol, "since", since)
			continue
		}

		snapshots := make([]domain.IndicatorSnapshot, len(points))
		for i, p := range points {
			v := p.Value
			snapshots[i] = domain.IndicatorSnapshot{Symbol: symbol, Date: p.Date, Rsi2: &v}
		}
		if err := u.store.UpsertIndicators(ctx, snapshots); err != nil {
			return fmt.Errorf("storing rsi2 for %s: %w", symbol, err)
		}
		slog.Info("rsi2 backfilled", "symbol", symbol, "snapshots", len(snapshots))
	}
	return nil
}

// UpdateVolatility descarga la historia completa del índice de volatilidad,
// calcula sus medias móviles y guarda los puntos desde since. Las medias se
// calculan sobre la historia completa para que el warm-up no dependa de since.
func (u *Updater) UpdateVolatility(ctx context.Context, since string) error {
	points, err := u.volatility.FetchHistory(ctx)
	if err != nil {
		return fmt.Errorf("volatility history: %w", err)
	}
	if len(points) == 0 {
		slog.Info("no volatility updates")
		return nil
	}

	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	for _, period := range vixSmaPeriods {
		if len(closes) < period {
			continue
		}
		smas := talib.Sma(closes, period)
		for i := period - 1; i < len(points); i++ {
			v := smas[i]
			*vixSmaField(&points[i], period) = &v
		}
	}

	keep := points[:0]
	for _, p := range points {
		if p.Date >= since {
			keep = append(keep, p)
		}
	}
	if err := u.store.UpsertVolatility(ctx, keep); err != nil {
		return fmt.Errorf("storing volatility: %w", err)
	}

	slog.Info("volatility updated", "points", len(keep), "since", since)
	return nil
}

func smaField(period int) func(*domain.IndicatorSnapshot) **float64 {
	return func(s *domain.IndicatorSnapshot) **float64 {
		switch period {
		case 15:
			return &s.Sma15
		case 20:
			return &s.Sma20
		case 50:
			return &s.Sma50
		case 100:
			return &s.Sma100
		case 200:
			return &s.Sma200
		}
		panic(fmt.Sprintf("unsupported sma period %d", period))
	}
}

func emaField(period int) func(*domain.IndicatorSnapshot) **float64 {
	return func(s *domain.IndicatorSnapshot) **float64 {
		switch period {
		case 5:
			return &s.Ema5
		case 8:
			return &s.Ema8
		case 9:
			return &s.Ema9
		case 12:
			return &s.Ema12
		case 13:
			return &s.Ema13
		case 20:
			return &s.Ema20
		case 21:
			return &s.Ema21
		case 26:
			return &s.Ema26
		case 34:
			return &s.Ema34
		case 50:
			return &s.Ema50
		case 100:
			return &s.Ema100
		case 200:
			return &s.Ema200
		}
		panic(fmt.Sprintf("unsupported ema period %d", period))
	}
}

func vixSmaField(p *domain.VolatilityPoint, period int) **float64 {
	switch period {
	case 10:
		return &p.Sma10
	case 15:
		return &p.Sma15
	case 20:
		return &p.Sma20
	case 50:
		return &p.Sma50
	case 100:
		return &p.Sma100
	case 200:
		return &p.Sma200
	}
	panic(fmt.Sprintf("unsupported volatility sma period %d", period))
}
