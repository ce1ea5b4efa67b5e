package domain

import (
	"strconv"
	"strings"
)

// FormatMoney formatea un importe al estilo de-DE: punto como separador de
// miles, coma decimal, máximo 2 decimales sin ceros finales.
// Ejemplos: 1008156.3 → "1.008.156,3", 900.0 → "900", -25.25 → "-25,25".
func FormatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, _ := strings.Cut(s, ".")
	fracPart = strings.TrimRight(fracPart, "0")

	// Agrupar la parte entera de tres en tres desde la derecha.
	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(r)
	}

	out := sb.String()
	if fracPart != "" {
		out += "," + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}
