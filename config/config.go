package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del cliente.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig contiene los base URLs del backend.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`    // REST
	WSBaseURL string `yaml:"ws_base_url"` // streams push (/new, /tap)
}

// WalletConfig decide qué streams personales se abren.
type WalletConfig struct {
	Address       string `yaml:"address"`        // vacío = sin streams personales
	FilterAddress string `yaml:"filter_address"` // vacío = sin stream filtrado
}

// EngineConfig controla ventanas y límites del motor.
type EngineConfig struct {
	TickWindowMS      int `yaml:"tick_window_ms"`
	HighlightTTLMS    int `yaml:"highlight_ttl_ms"`
	LoadedFallbackMS  int `yaml:"loaded_fallback_ms"`
	TombstoneCapacity int `yaml:"tombstone_capacity"` // uuids purgados que recuerda el store público
	MaxNotifications  int `yaml:"max_notifications"`
	RefreshSeconds    int `yaml:"refresh_seconds"` // refresco de la vista en consola
}

// StorageConfig controla dónde se persisten las notificaciones.
type StorageConfig struct {
	DSN              string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	NotificationsKey string `yaml:"notifications_key"`
}

// HTTPConfig controla la API de vistas.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"` // vacío = deshabilitada
	CORSOrigins []string `yaml:"cors_origins"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodifica YAML y aplica overrides de entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// TickWindow devuelve la ventana de coalescing de ticks.
func (c *Config) TickWindow() time.Duration {
	return time.Duration(c.Engine.TickWindowMS) * time.Millisecond
}

// HighlightTTL devuelve cuánto vive un marcador de orden nueva.
func (c *Config) HighlightTTL() time.Duration {
	return time.Duration(c.Engine.HighlightTTLMS) * time.Millisecond
}

// LoadedFallback devuelve la espera antes de dar un store por cargado.
func (c *Config) LoadedFallback() time.Duration {
	return time.Duration(c.Engine.LoadedFallbackMS) * time.Millisecond
}

// RefreshInterval devuelve el intervalo de refresco de la consola.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Engine.RefreshSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("HODL_WALLET"); v != "" {
		cfg.Wallet.Address = v
	}
	if v := os.Getenv("HODL_FILTER"); v != "" {
		cfg.Wallet.FilterAddress = v
	}
	if v := os.Getenv("HODL_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("HODL_WS_URL"); v != "" {
		cfg.API.WSBaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://127.0.0.1:8000"
	}
	if cfg.API.WSBaseURL == "" {
		cfg.API.WSBaseURL = wsFromHTTP(cfg.API.BaseURL) + "/ws"
	}
	cfg.Wallet.Address = strings.TrimSpace(cfg.Wallet.Address)
	cfg.Wallet.FilterAddress = strings.TrimSpace(cfg.Wallet.FilterAddress)

	if cfg.Engine.TickWindowMS <= 0 {
		cfg.Engine.TickWindowMS = 200
	}
	if cfg.Engine.HighlightTTLMS <= 0 {
		cfg.Engine.HighlightTTLMS = 3500
	}
	if cfg.Engine.LoadedFallbackMS <= 0 {
		cfg.Engine.LoadedFallbackMS = 3000
	}
	if cfg.Engine.TombstoneCapacity <= 0 {
		cfg.Engine.TombstoneCapacity = 4096
	}
	if cfg.Engine.MaxNotifications <= 0 {
		cfg.Engine.MaxNotifications = 50
	}
	if cfg.Engine.RefreshSeconds <= 0 {
		cfg.Engine.RefreshSeconds = 5
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "hodlbook.db"
	}
	if cfg.Storage.NotificationsKey == "" {
		cfg.Storage.NotificationsKey = "hodl-notifications"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// wsFromHTTP cambia el esquema http(s) por ws(s).
func wsFromHTTP(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
