package ports

import "context"

// Stream es una conexión push que entrega frames crudos.
type Stream interface {
	// Run conecta y entrega cada frame a handle hasta que ctx se cancela o
	// se agotan los reintentos.
	Run(ctx context.Context, handle func(raw []byte)) error
}

// StreamFactory crea los streams del backend para una dirección.
// address vacío abre el stream público.
type StreamFactory interface {
	// Book abre el stream de órdenes (/new).
	Book(address string, onConnect func(reconnect bool)) Stream

	// Tap abre el stream de ticks de precio y balances (/tap).
	Tap(address string, onConnect func(reconnect bool)) Stream
}
