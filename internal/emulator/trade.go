package emulator

// trade.go — el paso de trading de un símbolo en un día concreto.
//
// tradeStep encapsula todo lo que le pasa a un símbolo durante una jornada:
// avisos informativos (zonas de RSI, cruces de medias), salidas forzadas por
// stop-loss o profit target, y la resolución de las señales de la estrategia
// contra la cartera. Se ejecuta una goroutine por símbolo y día; el estado
// por símbolo no se comparte y la cartera se protege sola.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// symbolState es el estado local de un símbolo entre jornadas. El emulador
// lo crea al construirse (una entrada por símbolo, el mapa no muta después)
// y solo lo toca la goroutine del propio símbolo.
type symbolState struct {
	belowSma50 bool
	window     lowWindow
}

func (e *Emulator) tradeStep(ctx context.Context, date, symbol string, state *symbolState, vixs []domain.VolatilityPoint) error {
	bar, err := e.store.LatestBarOnOrBefore(ctx, symbol, date)
	if err != nil {
		return fmt.Errorf("querying bar for %s: %w", symbol, err)
	}
	if bar == nil || bar.Date != date {
		// Sin vela propia ese día: festivo del símbolo, o todavía no cotizaba.
		return nil
	}

	before, current, err := e.store.IndicatorPairOnOrBefore(ctx, symbol, date)
	if err != nil {
		return fmt.Errorf("querying indicators for %s: %w", symbol, err)
	}
	if before == nil || current == nil {
		slog.Debug("not enough indicator history", "symbol", symbol, "date", date)
		return nil
	}

	e.portfolio.TickHoldingDay(symbol, bar.AdjustedClose < bar.Open)
	pos := e.portfolio.Position(symbol)

	logRSIZoneExits(symbol, date, before, current, pos)
	logCrosses(symbol, date, before, current)
	logBelowSma50(symbol, date, *bar, current, state)

	forced := false
	if e.cfg.StopLoss && pos.Amount > 0 {
		forced = e.forcedExit(date, symbol, *bar, pos)
	}

	if !forced {
		e.resolveSignals(date, symbol, *bar, state, before, current, vixs)
	}

	if pos = e.portfolio.Position(symbol); pos.Amount > 0 && bar.SplitCoefficient != 0 && bar.SplitCoefficient != 1 {
		e.portfolio.SplitAdjust(symbol, bar.SplitCoefficient)
	}

	state.window.Push(bar.AdjustedClose)
	return nil
}

// forcedExit vende a mercado si el mínimo del día perfora el stop-loss, o si
// el cierre ajustado supera el profit target. Devuelve true si vendió.
func (e *Emulator) forcedExit(date, symbol string, bar domain.Bar, pos Position) bool {
	if pos.StopLoss != nil && bar.Low < *pos.StopLoss {
		slog.Info("stop loss hit",
			"symbol", symbol,
			"date", date,
			"low", domain.FormatMoney(bar.Low),
			"stop_loss", domain.FormatMoney(*pos.StopLoss),
		)
		return e.portfolio.Sell(date, symbol, bar, true, *pos.StopLoss)
	}
	if pos.ProfitTarget != nil && bar.AdjustedClose > *pos.ProfitTarget {
		slog.Info("profit target hit",
			"symbol", symbol,
			"date", date,
			"adjusted_close", domain.FormatMoney(bar.AdjustedClose),
			"profit_target", domain.FormatMoney(*pos.ProfitTarget),
		)
		return e.portfolio.Sell(date, symbol, bar, true, *pos.ProfitTarget)
	}
	return false
}

// resolveSignals evalúa las señales de compra y venta de la estrategia y
// las ejecuta contra la cartera. Si las dos disparan a la vez no toca nada:
// eso es una anomalía de la estrategia y se deja rastro en el log.
func (e *Emulator) resolveSignals(date, symbol string, bar domain.Bar, state *symbolState, before, current *domain.IndicatorSnapshot, vixs []domain.VolatilityPoint) {
	buy := e.strategy.Buy(before, current, bar, vixs)
	sell := e.strategy.Sell(before, current, bar, vixs)

	if buy == SignalYes && sell.Signal == SignalYes {
		slog.Error("strategy wants to buy and sell on the same day, ignoring both",
			"strategy", e.strategy.Name,
			"symbol", symbol,
			"date", date,
		)
		return
	}

	if buy == SignalYes {
		if e.portfolio.Buy(date, symbol, bar) {
			e.portfolio.ResetBuyCounters(symbol)
			if low, ok := state.window.Min(); ok {
				e.portfolio.MaybeLowerStopLoss(symbol, low)
			}
		}
		return
	}

	if sell.Signal == SignalYes {
		e.portfolio.Sell(date, symbol, bar, false, sell.Price)
	}
}

// logRSIZoneExits avisa cuando el RSI de 14 días abandona la zona de
// sobreventa o de sobrecompra. La salida de sobrecompra solo interesa con
// posición abierta: es el aviso bajista de que conviene mirar la posición.
func logRSIZoneExits(symbol, date string, before, current *domain.IndicatorSnapshot, pos Position) {
	if before.Rsi14 == nil || current.Rsi14 == nil {
		return
	}
	if *before.Rsi14 < 30 && *current.Rsi14 >= 30 {
		slog.Info("rsi leaving oversold zone",
			"symbol", symbol,
			"date", date,
			"rsi14", *current.Rsi14,
		)
	}
	if *before.Rsi14 > 70 && *current.Rsi14 <= 70 && pos.Amount > 0 {
		slog.Info("rsi leaving overbought zone while holding",
			"symbol", symbol,
			"date", date,
			"rsi14", *current.Rsi14,
			"holding", pos.Amount,
		)
	}
}

// logCrosses avisa de cruces dorados y de la muerte entre la SMA de 50 y la
// de 200 días. Solo informativo, ninguna estrategia opera sobre ellos.
func logCrosses(symbol, date string, before, current *domain.IndicatorSnapshot) {
	if before.Sma50 == nil || before.Sma200 == nil || current.Sma50 == nil || current.Sma200 == nil {
		return
	}
	if *before.Sma50 <= *before.Sma200 && *current.Sma50 > *current.Sma200 {
		slog.Info("golden cross", "symbol", symbol, "date", date)
	}
	if *before.Sma50 >= *before.Sma200 && *current.Sma50 < *current.Sma200 {
		slog.Info("death cross", "symbol", symbol, "date", date)
	}
}

// logBelowSma50 avisa la primera jornada en la que el cierre cae por debajo
// de la SMA de 50 días; los días siguientes por debajo no repiten el aviso.
func logBelowSma50(symbol, date string, bar domain.Bar, current *domain.IndicatorSnapshot, state *symbolState) {
	if current.Sma50 == nil {
		return
	}
	below := bar.AdjustedClose < *current.Sma50
	if below && !state.belowSma50 {
		slog.Info("close dropped below sma50",
			"symbol", symbol,
			"date", date,
			"adjusted_close", domain.FormatMoney(bar.AdjustedClose),
			"sma50", domain.FormatMoney(*current.Sma50),
		)
	}
	state.belowSma50 = below
}
