package ports

import (
	"context"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// Store persiste barras diarias, indicadores y la serie de volatilidad,
// consultables por símbolo y fecha. Los upserts hacen merge por columna:
// un campo nil en el registro entrante nunca pisa un valor ya guardado.
type Store interface {
	// LatestBarOnOrBefore devuelve la barra más reciente con date <= la dada,
	// o nil si no existe ninguna (hueco de datos, no es un error).
	LatestBarOnOrBefore(ctx context.Context, symbol, date string) (*domain.Bar, error)

	// IndicatorPairOnOrBefore devuelve los dos snapshots más recientes con
	// date <= la dada: current es el más cercano, before el segundo.
	// Si existen menos de 2, los que falten son nil.
	IndicatorPairOnOrBefore(ctx context.Context, symbol, date string) (before, current *domain.IndicatorSnapshot, err error)

	// VolatilityPairOnOrBefore devuelve como máximo los 2 puntos de
	// volatilidad más recientes con date <= la dada, el más reciente primero.
	VolatilityPairOnOrBefore(ctx context.Context, date string) ([]domain.VolatilityPoint, error)

	// UpsertBars inserta o actualiza barras por clave (symbol, date).
	UpsertBars(ctx context.Context, bars []domain.Bar) error

	// UpsertIndicators inserta o actualiza snapshots por (symbol, date),
	// conservando los campos ya guardados que vengan nil.
	UpsertIndicators(ctx context.Context, snapshots []domain.IndicatorSnapshot) error

	// UpsertVolatility inserta o actualiza puntos de volatilidad por fecha.
	UpsertVolatility(ctx context.Context, points []domain.VolatilityPoint) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
