package ports

import (
	"context"

	"github.com/sgruendel/stonks-local/internal/domain"
)

// Notifier presenta el informe final de una simulación al usuario.
type Notifier interface {
	// Report muestra el resultado por símbolo y los agregados del run.
	// En la implementación de consola, imprime tablas formateadas.
	Report(ctx context.Context, report domain.RunReport) error
}
