package emulator

// strategies.go — los pares de evaluadores compra/venta.
//
// Todos son funciones puras sobre (before, current, bar, vixs). Cada
// evaluador devuelve SignalNone cuando sus indicadores no están definidos
// todavía (warm-up) o cuando su precondición no aplica; SignalNo solo
// aparece donde la condición interna se evalúa explícitamente a false.

import (
	"github.com/sgruendel/stonks-local/internal/domain"
)

func toSignal(b bool) Signal {
	if b {
		return SignalYes
	}
	return SignalNo
}

// --- MACD: cruce por cero del valor MACD ---

func buyMACD(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) Signal {
	if before.Macd == nil || current.Macd == nil {
		return SignalNone
	}
	if *before.Macd < 0 && *current.Macd > 0 {
		return SignalYes
	}
	return SignalNone
}

func sellMACD(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) SellDecision {
	if before.Macd == nil || current.Macd == nil {
		return SellDecision{Signal: SignalNone}
	}
	if *before.Macd > 0 && *current.Macd < 0 {
		return SellDecision{Signal: SignalYes}
	}
	return SellDecision{Signal: SignalNone}
}

// --- MACD-Hist: cruce por cero del histograma ---
//
// Ojo: la condición de guarda comprueba macd, no macdHist. Es intencional:
// cambiaría sutilmente el timing del warm-up si se "corrigiera".

func buyMACDHist(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) Signal {
	if before.Macd == nil || current.Macd == nil {
		return SignalNone
	}
	if before.MacdHist == nil || current.MacdHist == nil {
		return SignalNone
	}
	if *before.MacdHist < 0 && *current.MacdHist > 0 {
		return SignalYes
	}
	return SignalNone
}

func sellMACDHist(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) SellDecision {
	if before.Macd == nil || current.Macd == nil {
		return SellDecision{Signal: SignalNone}
	}
	if before.MacdHist == nil || current.MacdHist == nil {
		return SellDecision{Signal: SignalNone}
	}
	if *before.MacdHist > 0 && *current.MacdHist < 0 {
		return SellDecision{Signal: SignalYes}
	}
	return SellDecision{Signal: SignalNone}
}

// --- BB: estrechamiento/expansión de Bollinger Bands ---

func buyBB(before, current *domain.IndicatorSnapshot, bar domain.Bar, _ []domain.VolatilityPoint) Signal {
	if before.BbandUpper == nil || current.BbandUpper == nil {
		return SignalNone
	}
	if before.BbandLower == nil || current.BbandLower == nil {
		return SignalNone
	}
	if *before.BbandUpper > *current.BbandUpper && *before.BbandLower < *current.BbandLower {
		return toSignal(bar.AdjustedClose < *current.BbandLower)
	}
	return SignalNone
}

func sellBB(before, current *domain.IndicatorSnapshot, bar domain.Bar, _ []domain.VolatilityPoint) SellDecision {
	if before.BbandUpper == nil || current.BbandUpper == nil {
		return SellDecision{Signal: SignalNone}
	}
	if before.BbandLower == nil || current.BbandLower == nil {
		return SellDecision{Signal: SignalNone}
	}
	if *before.BbandUpper < *current.BbandUpper && *before.BbandLower > *current.BbandLower {
		inBand := bar.AdjustedClose > *before.BbandUpper && bar.AdjustedClose < *current.BbandUpper
		return SellDecision{Signal: toSignal(inBand)}
	}
	return SellDecision{Signal: SignalNone}
}

// --- RSI: reversión a la media con umbrales 33/70 ---

func buyRSI(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) Signal {
	if before.Rsi14 == nil || current.Rsi14 == nil {
		return SignalNone
	}
	if *before.Rsi14 < *current.Rsi14 && *before.Rsi14 < 33.0 {
		return SignalYes
	}
	return SignalNone
}

func sellRSI(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) SellDecision {
	return sellRSIAbove(before, current, 70.0)
}

// sellRSIAbove es la venta RSI con umbral parametrizado; VIXss la reutiliza
// con 65 en vez de 70.
func sellRSIAbove(before, current *domain.IndicatorSnapshot, threshold float64) SellDecision {
	if before.Rsi14 == nil || current.Rsi14 == nil {
		return SellDecision{Signal: SignalNone}
	}
	if *before.Rsi14 > *current.Rsi14 && *before.Rsi14 > threshold {
		return SellDecision{Signal: SignalYes}
	}
	return SellDecision{Signal: SignalNone}
}

// --- EMA2: cruce de nubes EMA 5/13 ---

func buyEMACloud2(before, current *domain.IndicatorSnapshot, bar domain.Bar, _ []domain.VolatilityPoint) Signal {
	if before.Ema13 == nil || current.Ema13 == nil {
		return SignalNone
	}
	if before.Ema5 == nil || current.Ema5 == nil {
		return SignalNone
	}
	if *current.Ema13 < *current.Ema5 && *before.Ema5 < *current.Ema5 {
		return toSignal(bar.AdjustedClose > *current.Ema5)
	}
	return SignalNone
}

func sellEMACloud2(before, current *domain.IndicatorSnapshot, bar domain.Bar, _ []domain.VolatilityPoint) SellDecision {
	if before.Ema13 == nil || current.Ema13 == nil {
		return SellDecision{Signal: SignalNone}
	}

	// Take profit: el mínimo del día perforó la EMA13 de ayer.
	if bar.Low < *before.Ema13 {
		return SellDecision{Signal: SignalYes, Price: *before.Ema13}
	}

	if *before.Ema13 > *current.Ema13 && bar.AdjustedClose < *current.Ema13 {
		return SellDecision{Signal: SignalYes, Price: bar.AdjustedClose}
	}
	return SellDecision{Signal: SignalNone}
}

// --- VIXss: VIX stretch ---
//
// Compra cuando el cierre está sobre la EMA200 y el índice de volatilidad
// lleva dos días un 5% o más por encima de su SMA10; vende como RSI pero
// con umbral 65. Ver
// http://www.traderslaboratory.com/forums/topic/6931-combining-rsi-and-vix-into-a-winning-system/

func buyVIXStretch(_, current *domain.IndicatorSnapshot, bar domain.Bar, vixs []domain.VolatilityPoint) Signal {
	if current.Ema200 == nil || bar.AdjustedClose <= *current.Ema200 {
		return SignalNone
	}
	if len(vixs) < 2 {
		return SignalNone
	}
	if vixs[0].Sma10 == nil || vixs[1].Sma10 == nil {
		return SignalNo
	}
	stretched := vixs[0].Close >= *vixs[0].Sma10*1.05 && vixs[1].Close >= *vixs[1].Sma10*1.05
	return toSignal(stretched)
}

func sellVIXStretch(before, current *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) SellDecision {
	return sellRSIAbove(before, current, 65.0)
}
