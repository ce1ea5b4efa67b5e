package ports

import (
	"context"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// MarketData obtiene series diarias de precios e indicadores desde el
// proveedor externo. Todas las series vienen ordenadas por fecha descendente
// (la más reciente primero) y filtradas a date >= since.
type MarketData interface {
	// QueryDailyAdjusted devuelve las barras diarias ajustadas del símbolo.
	QueryDailyAdjusted(ctx context.Context, symbol, since string) ([]domain.Bar, error)

	// QuerySMA devuelve la media móvil simple del período dado.
	QuerySMA(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error)

	// QueryEMA devuelve la media móvil exponencial del período dado.
	QueryEMA(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error)

	// QueryMACD devuelve la serie MACD con histograma y línea de señal.
	QueryMACD(ctx context.Context, symbol, since string) ([]domain.MACDPoint, error)

	// QueryRSI devuelve el RSI del período dado.
	QueryRSI(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error)

	// QueryBBands devuelve las Bollinger Bands del período dado.
	QueryBBands(ctx context.Context, symbol string, period int, since string) ([]domain.BandsPoint, error)

	// QueryATR devuelve el average true range del período dado.
	QueryATR(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error)

	// QueryNATR devuelve el ATR normalizado del período dado.
	QueryNATR(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error)
}

// VolatilityProvider obtiene la historia completa del índice de volatilidad.
type VolatilityProvider interface {
	// FetchHistory devuelve todos los puntos diarios disponibles, ordenados
	// por fecha ascendente y sin las SMA calculadas (eso es del pipeline).
	FetchHistory(ctx context.Context) ([]domain.VolatilityPoint, error)
}
