package emulator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// Signal es el resultado tri-estado de un evaluador. SignalNone significa
// "sin opinión" (faltan indicadores o la precondición no aplica) y es
// distinto de SignalNo: un campo ausente nunca se convierte en un veto.
type Signal int8

const (
	SignalNone Signal = iota
	SignalNo
	SignalYes
)

// Fired devuelve true solo para una señal afirmativa explícita.
func (s Signal) Fired() bool { return s == SignalYes }

// BuyFunc evalúa la señal de compra a partir de los snapshots del día
// anterior y del actual, la barra del día y la ventana de volatilidad.
// Es una función pura: no muta nada.
type BuyFunc func(before, current *domain.IndicatorSnapshot, bar domain.Bar, vixs []domain.VolatilityPoint) Signal

// SellDecision es el resultado de un evaluador de venta. Price > 0 indica
// un precio de ejecución distinto del cierre ajustado (take-profit/stop
// de la estrategia EMA2).
type SellDecision struct {
	Signal Signal
	Price  float64
}

// SellFunc evalúa la señal de venta; simétrica a BuyFunc.
type SellFunc func(before, current *domain.IndicatorSnapshot, bar domain.Bar, vixs []domain.VolatilityPoint) SellDecision

// Strategy es un par (compra, venta) resuelto una sola vez al inicio del run.
type Strategy struct {
	Name string
	Buy  BuyFunc
	Sell SellFunc
}

// strategies es el conjunto cerrado de estrategias disponibles.
var strategies = map[string]Strategy{
	"MACD":      {Name: "MACD", Buy: buyMACD, Sell: sellMACD},
	"MACD-Hist": {Name: "MACD-Hist", Buy: buyMACDHist, Sell: sellMACDHist},
	"BB":        {Name: "BB", Buy: buyBB, Sell: sellBB},
	"RSI":       {Name: "RSI", Buy: buyRSI, Sell: sellRSI},
	"EMA2":      {Name: "EMA2", Buy: buyEMACloud2, Sell: sellEMACloud2},
	"VIXss":     {Name: "VIXss", Buy: buyVIXStretch, Sell: sellVIXStretch},
}

// StrategyFor devuelve la estrategia con el nombre dado. Un nombre
// desconocido es un error de configuración: aborta antes de empezar a operar.
func StrategyFor(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("emulator.StrategyFor: unknown strategy %q (available: %s)",
			name, strings.Join(StrategyNames(), ", "))
	}
	return s, nil
}

// StrategyNames devuelve los nombres de estrategia disponibles, ordenados.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
