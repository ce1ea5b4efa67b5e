package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgruendel/stonks-local/internal/adapters/notify"
	"github.com/sgruendel/stonks-local/internal/domain"
)

func makeReport() domain.RunReport {
	return domain.RunReport{
		RunID:    "7b6a1c2e",
		Strategy: "MACD",
		From:     "2024-01-02",
		To:       "2024-03-01",
		Closed: []domain.PositionSummary{
			{Symbol: "INTC", Profit: -123.45},
			{Symbol: "MSFT", Profit: 1000},
		},
		Open: []domain.PositionSummary{
			{Symbol: "AAPL", Amount: 50, AvgSharePrice: 100, Profit: 500},
		},
		Cash:       994_875,
		DepotValue: 6_376.55,
		TotalValue: 1_001_251.55,
		Fees:       15,
		Taxes:      344.14,
	}
}

func TestConsoleReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	require.NoError(t, n.Report(context.Background(), makeReport()))
	out := buf.String()

	assert.Contains(t, out, "MACD 2024-01-02 → 2024-03-01")
	assert.Contains(t, out, "closed positions (2)")
	assert.Contains(t, out, "open positions (1)")
	assert.Contains(t, out, "INTC")
	assert.Contains(t, out, "AAPL")

	// Formato de/DE y profit agregado de cerradas y abiertas.
	assert.Contains(t, out, "-123,45")
	assert.Contains(t, out, "1.376,55")

	// Depot (solo posiciones) y cash+depot salen como filas separadas.
	assert.Contains(t, out, "Depot value")
	assert.Contains(t, out, "6.376,55")
	assert.Contains(t, out, "Cash + depot")
	assert.Contains(t, out, "1.001.251,55")
}

func TestConsoleReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	report := domain.RunReport{RunID: "x", Strategy: "BB", From: "2024-01-02", To: "2024-01-05", Cash: 1_000_000, TotalValue: 1_000_000}
	require.NoError(t, n.Report(context.Background(), report))

	assert.Contains(t, buf.String(), "no positions traded")
}
