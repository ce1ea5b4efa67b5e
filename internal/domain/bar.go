package domain

// Bar es el registro OHLCV diario de un símbolo, ya ajustado por el proveedor.
// Inmutable una vez guardado; existe como máximo uno por (symbol, date).
type Bar struct {
	Symbol        string
	Date          string // YYYY-MM-DD, ordenable como string
	Open          float64
	High          float64
	Low           float64
	Close         float64
	AdjustedClose float64
	Volume        float64
	// DividendAmount es el dividendo pagado ese día, 0 si no hubo.
	DividendAmount float64
	// SplitCoefficient es el factor de split del día; 1 significa sin split.
	SplitCoefficient float64
}

// VolatilityPoint es un punto diario del índice de volatilidad (tipo VIX),
// independiente de símbolo, con las SMA de su cierre precalculadas.
// Las SMA son nil hasta que exista historia suficiente (warm-up = el período).
type VolatilityPoint struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Sma10  *float64
	Sma15  *float64
	Sma20  *float64
	Sma50  *float64
	Sma100 *float64
	Sma200 *float64
}
