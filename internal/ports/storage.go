package ports

import (
	"context"

	"github.com/alejandrodnm/hodlbook/internal/domain"
)

// NotificationStore persiste la lista de notificaciones del usuario.
type NotificationStore interface {
	// LoadNotifications devuelve la lista guardada, más reciente primero.
	// Si no hay nada guardado devuelve una lista vacía sin error.
	LoadNotifications(ctx context.Context) ([]domain.Notification, error)

	// SaveNotifications reemplaza la lista guardada completa.
	SaveNotifications(ctx context.Context, items []domain.Notification) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
