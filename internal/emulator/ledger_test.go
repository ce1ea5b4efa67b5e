package emulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgruendel/stonks-local/internal/domain"
)

func newTestPortfolio(cash float64) *Portfolio {
	cfg := DefaultConfig()
	cfg.StartingCash = cash
	cfg.TransactionFee = 5
	return NewPortfolio(cfg, []string{"AAPL", "MSFT"})
}

func barAt(price float64) domain.Bar {
	return domain.Bar{Open: price, High: price, Low: price, Close: price, AdjustedClose: price}
}

func TestPortfolioBuy(t *testing.T) {
	t.Run("caps spend at max buy", func(t *testing.T) {
		p := newTestPortfolio(1_000_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))

		pos := p.Position("AAPL")
		assert.Equal(t, 50.0, pos.Amount) // floor(5000/100)
		assert.Equal(t, 100.0, pos.AvgSharePrice)
		assert.Equal(t, 1_000_000-50*100.0-5, p.Cash())
		assert.Equal(t, 5.0, p.Fees())
	})

	t.Run("refuses to average up", func(t *testing.T) {
		p := newTestPortfolio(1_000_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		assert.False(t, p.Buy("2024-03-02", "AAPL", barAt(100)))
		assert.False(t, p.Buy("2024-03-02", "AAPL", barAt(120)))
		assert.Equal(t, 50.0, p.Position("AAPL").Amount)
	})

	t.Run("averages down", func(t *testing.T) {
		p := newTestPortfolio(1_000_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		require.True(t, p.Buy("2024-03-02", "AAPL", barAt(50)))

		pos := p.Position("AAPL")
		// 50 @ 100 + 100 @ 50 → 150 acciones a coste medio 66,67.
		assert.Equal(t, 150.0, pos.Amount)
		assert.InDelta(t, (50*100.0+100*50.0)/150.0, pos.AvgSharePrice, 1e-9)
	})

	t.Run("refuses below min buy", func(t *testing.T) {
		p := newTestPortfolio(900)
		assert.False(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		assert.Equal(t, 900.0, p.Cash())
		assert.Zero(t, p.Fees())
	})
}

func TestPortfolioSell(t *testing.T) {
	t.Run("no-op without shares", func(t *testing.T) {
		p := newTestPortfolio(10_000)
		assert.False(t, p.Sell("2024-03-01", "AAPL", barAt(100), false, 0))
		assert.Equal(t, 10_000.0, p.Cash())
	})

	t.Run("refuses unforced sale below cost", func(t *testing.T) {
		p := newTestPortfolio(10_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		assert.False(t, p.Sell("2024-03-02", "AAPL", barAt(95), false, 0))
		assert.Equal(t, 50.0, p.Position("AAPL").Amount)
	})

	t.Run("taxes profit on winning sale", func(t *testing.T) {
		p := newTestPortfolio(10_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		cashAfterBuy := p.Cash()

		require.True(t, p.Sell("2024-03-10", "AAPL", barAt(110), false, 0))

		pos := p.Position("AAPL")
		assert.Zero(t, pos.Amount)
		assert.Zero(t, pos.AvgSharePrice)
		assert.Equal(t, 50*10.0, pos.Profit)
		assert.Equal(t, 50*10.0*0.25, p.Taxes())
		assert.InDelta(t, cashAfterBuy+50*110.0-5-50*10.0*0.25, p.Cash(), 1e-9)
	})

	t.Run("negative tax credits the cash on a forced loss", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StartingCash = 10_000
		cfg.TransactionFee = 5
		p := NewPortfolio(cfg, []string{"AAPL"})

		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		cashAfterBuy := p.Cash()

		require.True(t, p.Sell("2024-03-10", "AAPL", barAt(90), true, 0))

		profit := 50 * -10.0
		tax := profit * 0.25
		assert.Equal(t, tax, p.Taxes())
		assert.InDelta(t, cashAfterBuy+50*90.0-5-tax, p.Cash(), 1e-9)
		assert.Equal(t, profit, p.Position("AAPL").Profit)
	})

	t.Run("override price wins over adjusted close", func(t *testing.T) {
		p := newTestPortfolio(10_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		require.True(t, p.Sell("2024-03-10", "AAPL", barAt(120), false, 105))
		assert.Equal(t, 50*5.0, p.Position("AAPL").Profit)
	})

	t.Run("sale clears stop levels", func(t *testing.T) {
		p := newTestPortfolio(10_000)
		require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
		p.MaybeLowerStopLoss("AAPL", 90)
		require.True(t, p.Sell("2024-03-10", "AAPL", barAt(120), false, 0))

		pos := p.Position("AAPL")
		assert.Nil(t, pos.StopLoss)
		assert.Nil(t, pos.ProfitTarget)
	})
}

func TestPortfolioSplitAdjust(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartingCash = 10_000
	cfg.MaxBuy = 500
	cfg.TransactionFee = 0
	p := NewPortfolio(cfg, []string{"AAPL"})

	require.True(t, p.Buy("2024-03-01", "AAPL", barAt(50)))
	p.MaybeLowerStopLoss("AAPL", 40)

	p.SplitAdjust("AAPL", 2)

	pos := p.Position("AAPL")
	assert.Equal(t, 20.0, pos.Amount)
	assert.Equal(t, 25.0, pos.AvgSharePrice)
	require.NotNil(t, pos.StopLoss)
	assert.Equal(t, 20.0, *pos.StopLoss)
	require.NotNil(t, pos.ProfitTarget)
	assert.Equal(t, 30.0, *pos.ProfitTarget)
}

func TestPortfolioStopLoss(t *testing.T) {
	p := newTestPortfolio(10_000)

	p.MaybeLowerStopLoss("AAPL", 90)
	pos := p.Position("AAPL")
	require.NotNil(t, pos.StopLoss)
	assert.Equal(t, 90.0, *pos.StopLoss)
	assert.Equal(t, 135.0, *pos.ProfitTarget)

	// Un candidato más alto no sube el stop armado.
	p.MaybeLowerStopLoss("AAPL", 95)
	assert.Equal(t, 90.0, *p.Position("AAPL").StopLoss)

	p.MaybeLowerStopLoss("AAPL", 85)
	pos = p.Position("AAPL")
	assert.Equal(t, 85.0, *pos.StopLoss)
	assert.Equal(t, 127.5, *pos.ProfitTarget)
}

func TestPortfolioCounters(t *testing.T) {
	p := newTestPortfolio(10_000)

	// Sin posición los contadores no se mueven.
	p.TickHoldingDay("AAPL", true)
	assert.Zero(t, p.Position("AAPL").DaysSinceBuy)

	require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))
	p.TickHoldingDay("AAPL", false)
	p.TickHoldingDay("AAPL", true)

	pos := p.Position("AAPL")
	assert.Equal(t, 2, pos.DaysSinceBuy)
	assert.Equal(t, 1, pos.RedDaysSinceBuy)

	p.ResetBuyCounters("AAPL")
	pos = p.Position("AAPL")
	assert.Zero(t, pos.DaysSinceBuy)
	assert.Zero(t, pos.RedDaysSinceBuy)
}

func TestPortfolioAddUnrealized(t *testing.T) {
	p := newTestPortfolio(10_000)
	require.True(t, p.Buy("2024-03-01", "AAPL", barAt(100)))

	cash := p.Cash()
	p.AddUnrealized("AAPL", 110)

	assert.Equal(t, 50*10.0, p.Position("AAPL").Profit)
	assert.Equal(t, cash, p.Cash())

	// Sin posición es un no-op.
	p.AddUnrealized("MSFT", 110)
	assert.Zero(t, p.Position("MSFT").Profit)
}
