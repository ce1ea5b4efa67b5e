package domain

// IndicatorSnapshot es el conjunto de indicadores técnicos de un símbolo para
// un día. Cada campo es nil hasta que exista historia suficiente para
// calcularlo (warm-up = la longitud del período). Un campo nil significa
// "sin opinión": los evaluadores de señales nunca lo tratan como 0 o false.
type IndicatorSnapshot struct {
	Symbol string
	Date   string // YYYY-MM-DD

	Sma15  *float64
	Sma20  *float64
	Sma50  *float64
	Sma100 *float64
	Sma200 *float64

	Ema5   *float64
	Ema8   *float64
	Ema9   *float64
	Ema12  *float64
	Ema13  *float64
	Ema20  *float64
	Ema21  *float64
	Ema26  *float64
	Ema34  *float64
	Ema50  *float64
	Ema100 *float64
	Ema200 *float64

	Macd       *float64
	MacdHist   *float64
	MacdSignal *float64

	Rsi2  *float64
	Rsi14 *float64

	BbandLower  *float64
	BbandUpper  *float64
	BbandMiddle *float64

	Atr14  *float64
	Natr14 *float64
}

// SeriesPoint es un valor de una serie de indicador simple (SMA, EMA, RSI)
// tal como lo devuelve el proveedor de datos.
type SeriesPoint struct {
	Date  string
	Value float64
}

// MACDPoint es un punto de la serie MACD: valor, histograma y línea de señal.
type MACDPoint struct {
	Date   string
	Macd   float64
	Hist   float64
	Signal float64
}

// BandsPoint es un punto de la serie de Bollinger Bands.
type BandsPoint struct {
	Date   string
	Lower  float64
	Upper  float64
	Middle float64
}
