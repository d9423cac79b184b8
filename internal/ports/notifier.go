package ports

import (
	"context"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

// Notifier presenta la vista activa y las notificaciones al usuario.
type Notifier interface {
	// Notify muestra las filas de la vista ya derivadas.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, view views.View) error

	// Alert muestra una notificación nueva.
	Alert(ctx context.Context, n domain.Notification) error
}
