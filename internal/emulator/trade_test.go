package emulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgruendel/stonks-local/internal/domain"
)

func newTestEmulator(t *testing.T, store *mockStore, name string, cfg Config) *Emulator {
	t.Helper()
	strategy, err := StrategyFor(name)
	require.NoError(t, err)
	return New(cfg, store, &mockNotifier{}, strategy, []string{"AAPL"})
}

func TestTradeStepSkipsDaysWithoutOwnBar(t *testing.T) {
	store := newMockStore()
	// La última barra es de un día anterior: festivo del símbolo.
	store.addBar("AAPL", "2024-03-01", domain.Bar{AdjustedClose: 100})
	b, c := macdPair(-0.5, 0.3)
	store.addPair("AAPL", "2024-03-04", b, c)

	em := newTestEmulator(t, store, "MACD", DefaultConfig())
	err := em.tradeStep(context.Background(), "2024-03-04", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	assert.Zero(t, em.portfolio.Position("AAPL").Amount)
}

func TestTradeStepSkipsWithoutIndicatorPair(t *testing.T) {
	store := newMockStore()
	store.addBar("AAPL", "2024-03-01", domain.Bar{AdjustedClose: 100})
	_, c := macdPair(0, 0.3)
	store.addPair("AAPL", "2024-03-01", nil, c)

	em := newTestEmulator(t, store, "MACD", DefaultConfig())
	err := em.tradeStep(context.Background(), "2024-03-01", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	assert.Zero(t, em.portfolio.Position("AAPL").Amount)
}

func TestTradeStepAmbiguousSignalsDoNothing(t *testing.T) {
	store := newMockStore()
	store.addBar("AAPL", "2024-03-01", domain.Bar{AdjustedClose: 100})
	b, c := macdPair(-0.5, 0.3)
	store.addPair("AAPL", "2024-03-01", b, c)

	em := newTestEmulator(t, store, "MACD", DefaultConfig())
	// Estrategia artificial que compra y vende a la vez.
	em.strategy = Strategy{
		Name: "ambiguous",
		Buy: func(_, _ *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) Signal {
			return SignalYes
		},
		Sell: func(_, _ *domain.IndicatorSnapshot, _ domain.Bar, _ []domain.VolatilityPoint) SellDecision {
			return SellDecision{Signal: SignalYes}
		},
	}

	cash := em.portfolio.Cash()
	err := em.tradeStep(context.Background(), "2024-03-01", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	assert.Zero(t, em.portfolio.Position("AAPL").Amount)
	assert.Equal(t, cash, em.portfolio.Cash())
}

func TestTradeStepBuyArmsStopFromSwingLow(t *testing.T) {
	store := newMockStore()
	// Tres jornadas sin señal para llenar la ventana de cierres, luego compra.
	closes := []float64{95, 92, 94}
	dates := []string{"2024-03-01", "2024-03-04", "2024-03-05"}
	for i, date := range dates {
		store.addBar("AAPL", date, domain.Bar{Open: 100, Low: closes[i] - 1, AdjustedClose: closes[i]})
		b, c := macdPair(0.1, 0.2)
		store.addPair("AAPL", date, b, c)
	}
	store.addBar("AAPL", "2024-03-06", domain.Bar{Open: 100, Low: 96, AdjustedClose: 100})
	b, c := macdPair(-0.5, 0.3)
	store.addPair("AAPL", "2024-03-06", b, c)

	cfg := DefaultConfig()
	cfg.StopLoss = true
	em := newTestEmulator(t, store, "MACD", cfg)

	ctx := context.Background()
	for _, date := range append(dates, "2024-03-06") {
		require.NoError(t, em.tradeStep(ctx, date, "AAPL", em.state["AAPL"], nil))
	}

	pos := em.portfolio.Position("AAPL")
	require.Equal(t, 50.0, pos.Amount)
	require.NotNil(t, pos.StopLoss)
	assert.Equal(t, 92.0, *pos.StopLoss)
	assert.Equal(t, 138.0, *pos.ProfitTarget)
}

func TestTradeStepStopLossForcesExit(t *testing.T) {
	store := newMockStore()
	store.addBar("AAPL", "2024-03-01", domain.Bar{Open: 100, Low: 88, AdjustedClose: 95})
	b, c := macdPair(0.1, 0.2)
	store.addPair("AAPL", "2024-03-01", b, c)

	cfg := DefaultConfig()
	cfg.StopLoss = true
	em := newTestEmulator(t, store, "MACD", cfg)
	require.True(t, em.portfolio.Buy("2024-02-29", "AAPL", domain.Bar{AdjustedClose: 100}))
	em.portfolio.MaybeLowerStopLoss("AAPL", 90)

	err := em.tradeStep(context.Background(), "2024-03-01", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	pos := em.portfolio.Position("AAPL")
	assert.Zero(t, pos.Amount)
	// Vendió al precio del stop, no al cierre: 50 acciones con -10 cada una.
	assert.Equal(t, 50*-10.0, pos.Profit)
}

func TestTradeStepProfitTargetForcesExit(t *testing.T) {
	store := newMockStore()
	store.addBar("AAPL", "2024-03-01", domain.Bar{Open: 130, Low: 128, AdjustedClose: 140})
	b, c := macdPair(0.1, 0.2)
	store.addPair("AAPL", "2024-03-01", b, c)

	cfg := DefaultConfig()
	cfg.StopLoss = true
	em := newTestEmulator(t, store, "MACD", cfg)
	require.True(t, em.portfolio.Buy("2024-02-29", "AAPL", domain.Bar{AdjustedClose: 100}))
	em.portfolio.MaybeLowerStopLoss("AAPL", 90) // target 135

	err := em.tradeStep(context.Background(), "2024-03-01", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	pos := em.portfolio.Position("AAPL")
	assert.Zero(t, pos.Amount)
	assert.Equal(t, 50*35.0, pos.Profit)
}

func TestTradeStepStopLossDisabledByDefault(t *testing.T) {
	store := newMockStore()
	store.addBar("AAPL", "2024-03-01", domain.Bar{Open: 100, Low: 88, AdjustedClose: 95})
	b, c := macdPair(0.1, 0.2)
	store.addPair("AAPL", "2024-03-01", b, c)

	em := newTestEmulator(t, store, "MACD", DefaultConfig())
	require.True(t, em.portfolio.Buy("2024-02-29", "AAPL", domain.Bar{AdjustedClose: 100}))
	em.portfolio.MaybeLowerStopLoss("AAPL", 90)

	err := em.tradeStep(context.Background(), "2024-03-01", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	assert.Equal(t, 50.0, em.portfolio.Position("AAPL").Amount)
}

func TestTradeStepAppliesSplit(t *testing.T) {
	store := newMockStore()
	store.addBar("AAPL", "2024-03-01", domain.Bar{Open: 50, Low: 49, AdjustedClose: 50, SplitCoefficient: 2})
	b, c := macdPair(0.1, 0.2)
	store.addPair("AAPL", "2024-03-01", b, c)

	em := newTestEmulator(t, store, "MACD", DefaultConfig())
	require.True(t, em.portfolio.Buy("2024-02-29", "AAPL", domain.Bar{AdjustedClose: 100}))

	err := em.tradeStep(context.Background(), "2024-03-01", "AAPL", em.state["AAPL"], nil)
	require.NoError(t, err)

	pos := em.portfolio.Position("AAPL")
	assert.Equal(t, 100.0, pos.Amount)
	assert.Equal(t, 50.0, pos.AvgSharePrice)
}

func TestLowWindow(t *testing.T) {
	var w lowWindow

	_, ok := w.Min()
	assert.False(t, ok)

	w.Push(5)
	w.Push(3)
	w.Push(7)
	min, ok := w.Min()
	require.True(t, ok)
	assert.Equal(t, 3.0, min)

	// Al llenarse, los mínimos antiguos se caen de la ventana.
	for i := 0; i < lowWindowSize; i++ {
		w.Push(10 + float64(i))
	}
	min, ok = w.Min()
	require.True(t, ok)
	assert.Equal(t, 10.0, min)
	assert.Len(t, w.lows, lowWindowSize)

	// Con la ventana ya llena, cada push expulsa el valor más antiguo.
	w.Push(50)
	assert.Len(t, w.lows, lowWindowSize)
	min, ok = w.Min()
	require.True(t, ok)
	assert.Equal(t, 11.0, min)

	for i := 1; i < lowWindowSize; i++ {
		w.Push(50 + float64(i))
		assert.Len(t, w.lows, lowWindowSize)
	}
	min, ok = w.Min()
	require.True(t, ok)
	assert.Equal(t, 50.0, min)
	assert.Equal(t, 50.0+float64(lowWindowSize-1), w.lows[lowWindowSize-1])
}
