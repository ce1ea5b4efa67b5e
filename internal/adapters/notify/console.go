// Package notify implementa ports.Notifier sobre la consola.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// Console imprime el informe final de una simulación en tablas.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Report imprime las posiciones cerradas y abiertas y los agregados del run.
func (c *Console) Report(_ context.Context, report domain.RunReport) error {
	fmt.Fprintf(c.out, "\n%s %s → %s (run %s)\n", report.Strategy, report.From, report.To, report.RunID)

	if len(report.Closed) > 0 {
		fmt.Fprintf(c.out, "\nclosed positions (%d):\n", len(report.Closed))
		c.printPositions(report.Closed, false)
	}
	if len(report.Open) > 0 {
		fmt.Fprintf(c.out, "\nopen positions (%d):\n", len(report.Open))
		c.printPositions(report.Open, true)
	}
	if len(report.Closed) == 0 && len(report.Open) == 0 {
		fmt.Fprintln(c.out, "no positions traded")
	}

	profit := 0.0
	for _, p := range report.Closed {
		profit += p.Profit
	}
	for _, p := range report.Open {
		profit += p.Profit
	}

	table := tablewriter.NewWriter(c.out)
	table.Append("Cash", domain.FormatMoney(report.Cash))
	table.Append("Depot value", domain.FormatMoney(report.DepotValue))
	table.Append("Cash + depot", domain.FormatMoney(report.TotalValue))
	table.Append("Profit", domain.FormatMoney(profit))
	table.Append("Fees", domain.FormatMoney(report.Fees))
	table.Append("Taxes", domain.FormatMoney(report.Taxes))
	table.Render()

	return nil
}

func (c *Console) printPositions(positions []domain.PositionSummary, open bool) {
	table := tablewriter.NewWriter(c.out)
	if open {
		table.Header("Symbol", "Amount", "Avg price", "Profit")
	} else {
		table.Header("Symbol", "Profit")
	}

	for _, p := range positions {
		if open {
			table.Append(
				p.Symbol,
				fmt.Sprintf("%g", p.Amount),
				domain.FormatMoney(p.AvgSharePrice),
				domain.FormatMoney(p.Profit),
			)
		} else {
			table.Append(p.Symbol, domain.FormatMoney(p.Profit))
		}
	}

	table.Render()
}
