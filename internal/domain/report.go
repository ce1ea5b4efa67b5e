package domain

// PositionSummary es el resultado por símbolo al final de una simulación.
// Amount es float64 porque los splits pueden dejar cantidades fraccionarias.
type PositionSummary struct {
	Symbol        string
	Amount        float64
	AvgSharePrice float64
	// Profit es el beneficio realizado más, para posiciones abiertas,
	// el no realizado a precio de cierre del último día de trading.
	Profit float64
}

// RunReport es el informe final de una simulación completa.
type RunReport struct {
	RunID    string
	Strategy string
	From     string
	To       string
	// Closed son las posiciones ya cerradas con profit distinto de 0,
	// ordenadas por profit ascendente.
	Closed []PositionSummary
	// Open son las posiciones aún abiertas al final del rango,
	// ordenadas por profit ascendente.
	Open []PositionSummary

	Cash float64
	// DepotValue es el valor de mercado de las posiciones abiertas,
	// sin contar el cash.
	DepotValue float64
	// TotalValue es cash más depot.
	TotalValue float64
	Fees       float64
	Taxes      float64
}
