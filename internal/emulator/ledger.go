package emulator

// ledger.go — el libro de la cartera simulada.
//
// Portfolio es dueño exclusivo del cash, de las posiciones por símbolo y de
// los acumuladores de fees e impuestos. Sus mutaciones van siempre bajo el
// mutex: los trade steps de un mismo día corren en paralelo y comparten el
// saldo de cash.

import (
	"log/slog"
	"math"
	"sync"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// Position es el estado mutable de un símbolo dentro de la cartera.
// StopLoss y ProfitTarget son nil mientras no haya nivel armado; se limpian
// al cerrar la posición por completo.
type Position struct {
	Amount          float64
	AvgSharePrice   float64
	Profit          float64
	DaysSinceBuy    int
	RedDaysSinceBuy int
	StopLoss        *float64
	ProfitTarget    *float64
}

// Portfolio agrega el estado de una simulación: se construye al empezar el
// run y se descarta al terminar, sin singletons de proceso.
type Portfolio struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*Position
	fees      float64
	taxes     float64

	minBuy  float64
	maxBuy  float64
	fee     float64
	taxRate float64
}

// NewPortfolio crea la cartera con el cash inicial y una posición vacía por símbolo.
func NewPortfolio(cfg Config, symbols []string) *Portfolio {
	positions := make(map[string]*Position, len(symbols))
	for _, symbol := range symbols {
		positions[symbol] = &Position{}
	}
	return &Portfolio{
		cash:      cfg.StartingCash,
		positions: positions,
		minBuy:    cfg.MinBuy,
		maxBuy:    cfg.MaxBuy,
		fee:       cfg.TransactionFee,
		taxRate:   cfg.TaxRate,
	}
}

// Buy compra al cierre ajustado de la barra. Devuelve true si ejecutó.
//
// Política de promediar solo a la baja: con posición abierta se rechaza
// recomprar a un precio >= el coste medio actual. Si hay cash suficiente
// (>= minBuy y >= precio+fee), compra floor(min(maxBuy, cash-fee)/precio)
// acciones y actualiza el coste medio ponderado.
func (p *Portfolio) Buy(date, symbol string, bar domain.Bar) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	sharePrice := bar.AdjustedClose

	if pos.Amount > 0 && sharePrice >= pos.AvgSharePrice {
		slog.Info("not re-buying at higher price", "symbol", symbol)
		return false
	}

	if p.cash >= p.minBuy && p.cash >= sharePrice+p.fee {
		amount := math.Floor(math.Min(p.maxBuy, p.cash-p.fee) / sharePrice)
		p.cash -= amount*sharePrice + p.fee
		if pos.Amount > 0 {
			newAmount := pos.Amount + amount
			pos.AvgSharePrice = (pos.Amount*pos.AvgSharePrice + amount*sharePrice) / newAmount
			pos.Amount = newAmount
		} else {
			pos.Amount = amount
			pos.AvgSharePrice = sharePrice
		}
		p.fees += p.fee

		slog.Info("bought",
			"amount", amount,
			"symbol", symbol,
			"date", date,
			"price", domain.FormatMoney(sharePrice),
			"holding", pos.Amount,
			"avg_share_price", domain.FormatMoney(pos.AvgSharePrice),
			"cash", domain.FormatMoney(p.cash),
		)
		return true
	}

	slog.Info("can't buy, not enough $ :(",
		"symbol", symbol,
		"date", date,
		"price", domain.FormatMoney(sharePrice),
	)
	return false
}

// Sell vende la posición completa. Sin acciones es un no-op que devuelve
// false. Con overridePrice > 0 vende a ese precio en vez del cierre
// ajustado. Ejecuta solo si force o el precio supera el coste medio.
//
// El impuesto es plano sobre el beneficio, también cuando es negativo: una
// venta con pérdidas genera un impuesto negativo que vuelve al cash.
func (p *Portfolio) Sell(date, symbol string, bar domain.Bar, force bool, overridePrice float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	if pos.Amount <= 0 {
		return false
	}

	sellPrice := overridePrice
	if sellPrice > 0 {
		slog.Info("selling at override price",
			"symbol", symbol,
			"price", domain.FormatMoney(sellPrice),
			"adjusted_close", domain.FormatMoney(bar.AdjustedClose),
		)
	} else {
		sellPrice = bar.AdjustedClose
	}

	if force || sellPrice > pos.AvgSharePrice {
		profit := pos.Amount*sellPrice - pos.Amount*pos.AvgSharePrice
		tax := profit * p.taxRate
		p.cash += pos.Amount*sellPrice - p.fee - tax
		p.fees += p.fee
		p.taxes += tax

		slog.Info("sold",
			"amount", pos.Amount,
			"symbol", symbol,
			"date", date,
			"price", domain.FormatMoney(sellPrice),
			"profit", domain.FormatMoney(profit),
			"cash", domain.FormatMoney(p.cash),
		)

		pos.Amount = 0
		pos.AvgSharePrice = 0.0
		pos.Profit += profit
		pos.StopLoss = nil
		pos.ProfitTarget = nil
		return true
	}

	slog.Info("not selling at lower price", "symbol", symbol)
	return false
}

// SplitAdjust aplica un split a la posición: multiplica la cantidad y divide
// el coste medio y los niveles de riesgo por el coeficiente.
func (p *Portfolio) SplitAdjust(symbol string, coefficient float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	slog.Info("before split adjust", "symbol", symbol, "amount", pos.Amount, "avg_share_price", pos.AvgSharePrice)
	pos.Amount *= coefficient
	pos.AvgSharePrice /= coefficient
	if pos.StopLoss != nil {
		*pos.StopLoss /= coefficient
	}
	if pos.ProfitTarget != nil {
		*pos.ProfitTarget /= coefficient
	}
	slog.Info("after split adjust", "symbol", symbol, "amount", pos.Amount, "avg_share_price", pos.AvgSharePrice)
}

// TickHoldingDay avanza los contadores diarios de una posición abierta:
// siempre suma un día desde la compra y, si la vela fue roja, también el
// contador de días rojos. Sin posición es un no-op.
func (p *Portfolio) TickHoldingDay(symbol string, red bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	if pos.Amount <= 0 {
		return
	}
	pos.DaysSinceBuy++
	if red {
		pos.RedDaysSinceBuy++
	}
}

// ResetBuyCounters pone a cero los contadores de días tras una compra ejecutada.
func (p *Portfolio) ResetBuyCounters(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	pos.DaysSinceBuy = 0
	pos.RedDaysSinceBuy = 0
}

// MaybeLowerStopLoss adopta el candidato (el swing low de la ventana) si no
// hay stop-loss armado o si el candidato es más bajo; al adoptarlo fija el
// profit target en 1.5 veces el stop-loss.
func (p *Portfolio) MaybeLowerStopLoss(symbol string, candidate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	current := "none"
	if pos.StopLoss != nil {
		current = domain.FormatMoney(*pos.StopLoss)
	}
	slog.Info("stop loss candidate",
		"symbol", symbol,
		"current", current,
		"candidate", domain.FormatMoney(candidate),
	)

	if pos.StopLoss == nil || candidate < *pos.StopLoss {
		stop := candidate
		target := 1.5 * stop
		pos.StopLoss = &stop
		pos.ProfitTarget = &target
		slog.Info("stop loss armed",
			"symbol", symbol,
			"stop_loss", domain.FormatMoney(stop),
			"profit_target", domain.FormatMoney(target),
		)
	}
}

// AddUnrealized suma a profit el beneficio no realizado de la posición
// abierta a un precio de mercado, sin tocar el cash (mark-to-market final).
func (p *Portfolio) AddUnrealized(symbol string, marketPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	if pos.Amount > 0 {
		pos.Profit += pos.Amount * (marketPrice - pos.AvgSharePrice)
	}
}

// Position devuelve una copia del estado de la posición del símbolo.
func (p *Portfolio) Position(symbol string) Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	copy := *pos
	if pos.StopLoss != nil {
		v := *pos.StopLoss
		copy.StopLoss = &v
	}
	if pos.ProfitTarget != nil {
		v := *pos.ProfitTarget
		copy.ProfitTarget = &v
	}
	return copy
}

// Cash devuelve el saldo de cash actual.
func (p *Portfolio) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Fees devuelve las comisiones acumuladas.
func (p *Portfolio) Fees() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fees
}

// Taxes devuelve los impuestos acumulados (pueden ser negativos).
func (p *Portfolio) Taxes() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.taxes
}
