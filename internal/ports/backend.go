package ports

import (
	"context"

	"github.com/alejandrodnm/hodlbook/internal/domain"
)

// Backend es la API REST del order book.
type Backend interface {
	// FetchSettings devuelve los límites del formulario de órdenes (/ofm).
	FetchSettings(ctx context.Context) (domain.Settings, error)

	// FetchPrices devuelve el precio actual por subnet (/price).
	FetchPrices(ctx context.Context) (map[int]float64, error)

	// FetchEscrowRecord devuelve el registro completo de una orden por escrow
	// (/dbjson). Si falla devuelve un registro vacío.
	FetchEscrowRecord(ctx context.Context, escrow string) domain.Order

	// LookupOrder busca una orden compartida por uuid (/sql).
	LookupOrder(ctx context.Context, uuid string) ([]domain.Order, error)

	// PostRecord envía una orden (/rec) sin reintentos y devuelve el mensaje
	// del servidor.
	PostRecord(ctx context.Context, o domain.Order) (domain.RecResult, error)
}
