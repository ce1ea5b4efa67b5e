package storage

// sqlite.go — el almacén de barras, indicadores y serie de volatilidad.
//
// Estrategia:
//   - `bars`: una fila por (symbol, date), inmutable tras el fetch.
//   - `indicators`: una fila por (symbol, date) con columnas NULLables; el
//     upsert hace merge por columna con COALESCE, así un backfill parcial
//     (p.ej. solo rsi2) nunca pisa los campos ya guardados.
//   - `vix`: una fila por fecha, independiente de símbolo.
//   - Retry con backoff exponencial y jitter sobre SQLITE_BUSY, el mismo
//     esquema que usa el cliente HTTP contra el throttling del proveedor.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sgruendel/stonks-local/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
    symbol            TEXT NOT NULL,
    date              TEXT NOT NULL,
    open              REAL NOT NULL,
    high              REAL NOT NULL,
    low               REAL NOT NULL,
    close             REAL NOT NULL,
    adjusted_close    REAL NOT NULL,
    volume            REAL NOT NULL,
    dividend_amount   REAL NOT NULL DEFAULT 0,
    split_coefficient REAL NOT NULL DEFAULT 1,
    PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS indicators (
    symbol      TEXT NOT NULL,
    date        TEXT NOT NULL,
    sma15       REAL, sma20  REAL, sma50  REAL, sma100 REAL, sma200 REAL,
    ema5        REAL, ema8   REAL, ema9   REAL, ema12  REAL, ema13  REAL,
    ema20       REAL, ema21  REAL, ema26  REAL, ema34  REAL, ema50  REAL,
    ema100      REAL, ema200 REAL,
    macd        REAL, macd_hist REAL, macd_signal REAL,
    rsi2        REAL, rsi14  REAL,
    bband_lower REAL, bband_upper REAL, bband_middle REAL,
    atr14       REAL, natr14 REAL,
    PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS vix (
    date   TEXT PRIMARY KEY,
    open   REAL NOT NULL,
    high   REAL NOT NULL,
    low    REAL NOT NULL,
    close  REAL NOT NULL,
    sma10  REAL, sma15 REAL, sma20 REAL, sma50 REAL, sma100 REAL, sma200 REAL
);

CREATE INDEX IF NOT EXISTS idx_bars_symbol_date       ON bars(symbol, date DESC);
CREATE INDEX IF NOT EXISTS idx_indicators_symbol_date ON indicators(symbol, date DESC);
CREATE INDEX IF NOT EXISTS idx_vix_date               ON vix(date DESC);
`

const (
	backOffBase = 500 * time.Millisecond // base del backoff sobre SQLITE_BUSY
	backOffCap  = 10 * time.Second
	maxAttempts = 6
)

// SQLiteStore implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// LatestBarOnOrBefore devuelve la barra más reciente con date <= la dada,
// o nil si el símbolo no cotizaba todavía.
func (s *SQLiteStore) LatestBarOnOrBefore(ctx context.Context, symbol, date string) (*domain.Bar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, date, open, high, low, close, adjusted_close, volume,
		       dividend_amount, split_coefficient
		FROM bars
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC
		LIMIT 1
	`, symbol, date)

	var bar domain.Bar
	err := row.Scan(
		&bar.Symbol, &bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close,
		&bar.AdjustedClose, &bar.Volume, &bar.DividendAmount, &bar.SplitCoefficient,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LatestBarOnOrBefore: %s@%s: %w", symbol, date, err)
	}
	return &bar, nil
}

// IndicatorPairOnOrBefore devuelve los dos snapshots más recientes con
// date <= la dada, desempaquetados posicionalmente: current el más cercano,
// before el segundo. Con menos de 2 filas, los que falten quedan nil.
func (s *SQLiteStore) IndicatorPairOnOrBefore(ctx context.Context, symbol, date string) (*domain.IndicatorSnapshot, *domain.IndicatorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date,
		       sma15, sma20, sma50, sma100, sma200,
		       ema5, ema8, ema9, ema12, ema13, ema20, ema21, ema26, ema34, ema50, ema100, ema200,
		       macd, macd_hist, macd_signal,
		       rsi2, rsi14,
		       bband_lower, bband_upper, bband_middle,
		       atr14, natr14
		FROM indicators
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC
		LIMIT 2
	`, symbol, date)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.IndicatorPairOnOrBefore: %s@%s: %w", symbol, date, err)
	}
	defer rows.Close()

	var snapshots []*domain.IndicatorSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("storage.IndicatorPairOnOrBefore: scan %s@%s: %w", symbol, date, err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage.IndicatorPairOnOrBefore: %s@%s: %w", symbol, date, err)
	}

	var before, current *domain.IndicatorSnapshot
	if len(snapshots) >= 1 {
		current = snapshots[0]
	}
	if len(snapshots) >= 2 {
		before = snapshots[1]
	}
	return before, current, nil
}

// VolatilityPairOnOrBefore devuelve como máximo los 2 puntos más recientes
// con date <= la dada, el más reciente primero.
func (s *SQLiteStore) VolatilityPairOnOrBefore(ctx context.Context, date string) ([]domain.VolatilityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, sma10, sma15, sma20, sma50, sma100, sma200
		FROM vix
		WHERE date <= ?
		ORDER BY date DESC
		LIMIT 2
	`, date)
	if err != nil {
		return nil, fmt.Errorf("storage.VolatilityPairOnOrBefore: %s: %w", date, err)
	}
	defer rows.Close()

	var points []domain.VolatilityPoint
	for rows.Next() {
		var p domain.VolatilityPoint
		var sma10, sma15, sma20, sma50, sma100, sma200 sql.NullFloat64
		if err := rows.Scan(&p.Date, &p.Open, &p.High, &p.Low, &p.Close,
			&sma10, &sma15, &sma20, &sma50, &sma100, &sma200); err != nil {
			return nil, fmt.Errorf("storage.VolatilityPairOnOrBefore: scan %s: %w", date, err)
		}
		p.Sma10 = fromNull(sma10)
		p.Sma15 = fromNull(sma15)
		p.Sma20 = fromNull(sma20)
		p.Sma50 = fromNull(sma50)
		p.Sma100 = fromNull(sma100)
		p.Sma200 = fromNull(sma200)
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpsertBars inserta o actualiza barras por (symbol, date).
func (s *SQLiteStore) UpsertBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.withBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage.UpsertBars: begin tx: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bars
				(symbol, date, open, high, low, close, adjusted_close, volume,
				 dividend_amount, split_coefficient)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				open              = excluded.open,
				high              = excluded.high,
				low               = excluded.low,
				close             = excluded.close,
				adjusted_close    = excluded.adjusted_close,
				volume            = excluded.volume,
				dividend_amount   = excluded.dividend_amount,
				split_coefficient = excluded.split_coefficient
		`)
		if err != nil {
			return fmt.Errorf("storage.UpsertBars: prepare: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if _, err := stmt.ExecContext(ctx,
				bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close,
				bar.AdjustedClose, bar.Volume, bar.DividendAmount, bar.SplitCoefficient,
			); err != nil {
				return fmt.Errorf("storage.UpsertBars: upsert %s@%s: %w", bar.Symbol, bar.Date, err)
			}
		}
		return tx.Commit()
	})
}

// UpsertIndicators inserta o actualiza snapshots por (symbol, date).
// Cada columna hace COALESCE con el valor ya guardado: un campo nil del
// snapshot entrante nunca borra un valor existente.
func (s *SQLiteStore) UpsertIndicators(ctx context.Context, snapshots []domain.IndicatorSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return s.withBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage.UpsertIndicators: begin tx: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO indicators
				(symbol, date,
				 sma15, sma20, sma50, sma100, sma200,
				 ema5, ema8, ema9, ema12, ema13, ema20, ema21, ema26, ema34, ema50, ema100, ema200,
				 macd, macd_hist, macd_signal,
				 rsi2, rsi14,
				 bband_lower, bband_upper, bband_middle,
				 atr14, natr14)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				sma15        = COALESCE(excluded.sma15, sma15),
				sma20        = COALESCE(excluded.sma20, sma20),
				sma50        = COALESCE(excluded.sma50, sma50),
				sma100       = COALESCE(excluded.sma100, sma100),
				sma200       = COALESCE(excluded.sma200, sma200),
				ema5         = COALESCE(excluded.ema5, ema5),
				ema8         = COALESCE(excluded.ema8, ema8),
				ema9         = COALESCE(excluded.ema9, ema9),
				ema12        = COALESCE(excluded.ema12, ema12),
				ema13        = COALESCE(excluded.ema13, ema13),
				ema20        = COALESCE(excluded.ema20, ema20),
				ema21        = COALESCE(excluded.ema21, ema21),
				ema26        = COALESCE(excluded.ema26, ema26),
				ema34        = COALESCE(excluded.ema34, ema34),
				ema50        = COALESCE(excluded.ema50, ema50),
				ema100       = COALESCE(excluded.ema100, ema100),
				ema200       = COALESCE(excluded.ema200, ema200),
				macd         = COALESCE(excluded.macd, macd),
				macd_hist    = COALESCE(excluded.macd_hist, macd_hist),
				macd_signal  = COALESCE(excluded.macd_signal, macd_signal),
				rsi2         = COALESCE(excluded.rsi2, rsi2),
				rsi14        = COALESCE(excluded.rsi14, rsi14),
				bband_lower  = COALESCE(excluded.bband_lower, bband_lower),
				bband_upper  = COALESCE(excluded.bband_upper, bband_upper),
				bband_middle = COALESCE(excluded.bband_middle, bband_middle),
				atr14        = COALESCE(excluded.atr14, atr14),
				natr14       = COALESCE(excluded.natr14, natr14)
		`)
		if err != nil {
			return fmt.Errorf("storage.UpsertIndicators: prepare: %w", err)
		}
		defer stmt.Close()

		for _, snap := range snapshots {
			if _, err := stmt.ExecContext(ctx,
				snap.Symbol, snap.Date,
				toNull(snap.Sma15), toNull(snap.Sma20), toNull(snap.Sma50), toNull(snap.Sma100), toNull(snap.Sma200),
				toNull(snap.Ema5), toNull(snap.Ema8), toNull(snap.Ema9), toNull(snap.Ema12), toNull(snap.Ema13),
				toNull(snap.Ema20), toNull(snap.Ema21), toNull(snap.Ema26), toNull(snap.Ema34), toNull(snap.Ema50),
				toNull(snap.Ema100), toNull(snap.Ema200),
				toNull(snap.Macd), toNull(snap.MacdHist), toNull(snap.MacdSignal),
				toNull(snap.Rsi2), toNull(snap.Rsi14),
				toNull(snap.BbandLower), toNull(snap.BbandUpper), toNull(snap.BbandMiddle),
				toNull(snap.Atr14), toNull(snap.Natr14),
			); err != nil {
				return fmt.Errorf("storage.UpsertIndicators: upsert %s@%s: %w", snap.Symbol, snap.Date, err)
			}
		}
		return tx.Commit()
	})
}

// UpsertVolatility inserta o actualiza puntos de volatilidad por fecha.
func (s *SQLiteStore) UpsertVolatility(ctx context.Context, points []domain.VolatilityPoint) error {
	if len(points) == 0 {
		return nil
	}
	return s.withBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage.UpsertVolatility: begin tx: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vix (date, open, high, low, close, sma10, sma15, sma20, sma50, sma100, sma200)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				open   = excluded.open,
				high   = excluded.high,
				low    = excluded.low,
				close  = excluded.close,
				sma10  = COALESCE(excluded.sma10, sma10),
				sma15  = COALESCE(excluded.sma15, sma15),
				sma20  = COALESCE(excluded.sma20, sma20),
				sma50  = COALESCE(excluded.sma50, sma50),
				sma100 = COALESCE(excluded.sma100, sma100),
				sma200 = COALESCE(excluded.sma200, sma200)
		`)
		if err != nil {
			return fmt.Errorf("storage.UpsertVolatility: prepare: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx,
				p.Date, p.Open, p.High, p.Low, p.Close,
				toNull(p.Sma10), toNull(p.Sma15), toNull(p.Sma20),
				toNull(p.Sma50), toNull(p.Sma100), toNull(p.Sma200),
			); err != nil {
				return fmt.Errorf("storage.UpsertVolatility: upsert %s: %w", p.Date, err)
			}
		}
		return tx.Commit()
	})
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// withBackoff reintenta fn con backoff exponencial y jitter mientras la DB
// esté ocupada (escrituras concurrentes del pipeline de update).
func (s *SQLiteStore) withBackoff(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}

		temp := backOffBase * (1 << attempt)
		if temp > backOffCap {
			temp = backOffCap
		}
		sleep := temp/2 + time.Duration(rand.Int63n(int64(temp)/2))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}

// isBusy detecta el error de contención de SQLite.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func scanSnapshot(rows *sql.Rows) (*domain.IndicatorSnapshot, error) {
	var snap domain.IndicatorSnapshot
	fields := make([]sql.NullFloat64, 27)
	args := []any{&snap.Symbol, &snap.Date}
	for i := range fields {
		args = append(args, &fields[i])
	}
	if err := rows.Scan(args...); err != nil {
		return nil, err
	}

	dests := []**float64{
		&snap.Sma15, &snap.Sma20, &snap.Sma50, &snap.Sma100, &snap.Sma200,
		&snap.Ema5, &snap.Ema8, &snap.Ema9, &snap.Ema12, &snap.Ema13,
		&snap.Ema20, &snap.Ema21, &snap.Ema26, &snap.Ema34, &snap.Ema50,
		&snap.Ema100, &snap.Ema200,
		&snap.Macd, &snap.MacdHist, &snap.MacdSignal,
		&snap.Rsi2, &snap.Rsi14,
		&snap.BbandLower, &snap.BbandUpper, &snap.BbandMiddle,
		&snap.Atr14, &snap.Natr14,
	}
	for i, dest := range dests {
		*dest = fromNull(fields[i])
	}
	return &snap, nil
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
