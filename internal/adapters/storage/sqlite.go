package storage

// sqlite.go: almacenamiento key/value mínimo.
//
// Estrategia:
//   - `kv`: una fila por key (UPSERT). El valor es JSON plano.
//   - Las notificaciones viven bajo una sola key namespaced; la lista entera
//     se reescribe en cada cambio (máximo 50 entradas, pesa poco).
//   - Si la key no existe o el JSON está corrupto se devuelve lista vacía.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// DefaultNotificationsKey es la key bajo la que se guardan las notificaciones.
const DefaultNotificationsKey = "hodl-notifications"

// SQLiteStorage implementa ports.NotificationStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db               *sql.DB
	notificationsKey string
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path, notificationsKey string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	if notificationsKey == "" {
		notificationsKey = DefaultNotificationsKey
	}
	return &SQLiteStorage{db: db, notificationsKey: notificationsKey}, nil
}

// Get devuelve el valor crudo de una key. ok es false si no existe.
func (s *SQLiteStorage) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage.Get: %q: %w", key, err)
	}
	return value, true, nil
}

// Put hace upsert de una key.
func (s *SQLiteStorage) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.Put: %q: %w", key, err)
	}
	return nil
}

// LoadNotifications lee la lista guardada. Un valor corrupto se descarta.
func (s *SQLiteStorage) LoadNotifications(ctx context.Context) ([]domain.Notification, error) {
	raw, ok, err := s.Get(ctx, s.notificationsKey)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadNotifications: %w", err)
	}
	if !ok {
		return []domain.Notification{}, nil
	}

	var items []domain.Notification
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Warn("discarding corrupt notifications", "key", s.notificationsKey, "err", err)
		return []domain.Notification{}, nil
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// SaveNotifications reemplaza la lista guardada como un array JSON.
func (s *SQLiteStorage) SaveNotifications(ctx context.Context, items []domain.Notification) error {
	if items == nil {
		items = []domain.Notification{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("storage.SaveNotifications: marshal: %w", err)
	}
	if err := s.Put(ctx, s.notificationsKey, string(b)); err != nil {
		return fmt.Errorf("storage.SaveNotifications: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
