package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del simulador.
type Config struct {
	Feed       FeedConfig       `yaml:"feed"`
	Account    AccountConfig    `yaml:"account"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// FeedConfig controla el fetch del feed de mercados.
type FeedConfig struct {
	GammaBase       string  `yaml:"gamma_base"`
	RefreshSeconds  int     `yaml:"refresh_seconds"`
	FetchLimit      int     `yaml:"fetch_limit"`
	MinMarketVolume float64 `yaml:"min_market_volume"` // mercados con menos volumen se descartan
}

// AccountConfig controla la cuenta de play-money.
type AccountConfig struct {
	Username       string  `yaml:"username"`
	InitialBalance float64 `yaml:"initial_balance"`
	RefillAmount   float64 `yaml:"refill_amount"` // recarga por defecto del flag -refill
}

// ResolutionConfig controla la resolución de posiciones.
type ResolutionConfig struct {
	// SettleThreshold es el precio que se trata como "resuelto" aunque el
	// flag closed no haya propagado. Convención observada del feed, no un
	// contrato — de ahí que sea configurable.
	SettleThreshold  float64 `yaml:"settle_threshold"`
	ReconcileMinutes int     `yaml:"reconcile_minutes"` // intervalo del worker de fondo
	PaceMillis       int     `yaml:"pace_millis"`       // espera entre llamadas del worker
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Si el archivo YAML no existe, se usan solo los defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// RefreshInterval devuelve el intervalo de refresh como time.Duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Feed.RefreshSeconds) * time.Second
}

// ReconcileInterval devuelve el intervalo del worker de fondo.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Resolution.ReconcileMinutes) * time.Minute
}

// ReconcilePace devuelve la espera entre llamadas del worker.
func (c *Config) ReconcilePace() time.Duration {
	return time.Duration(c.Resolution.PaceMillis) * time.Millisecond
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GAMMA_BASE"); v != "" {
		cfg.Feed.GammaBase = v
	}
	if v := os.Getenv("POLYSIM_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Feed.GammaBase == "" {
		cfg.Feed.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Feed.RefreshSeconds <= 0 {
		cfg.Feed.RefreshSeconds = 30
	}
	if cfg.Feed.FetchLimit <= 0 {
		cfg.Feed.FetchLimit = 50
	}
	if cfg.Feed.MinMarketVolume <= 0 {
		cfg.Feed.MinMarketVolume = 10
	}
	if cfg.Account.Username == "" {
		cfg.Account.Username = "Prophet"
	}
	if cfg.Account.InitialBalance <= 0 {
		cfg.Account.InitialBalance = 100_000
	}
	if cfg.Account.RefillAmount <= 0 {
		cfg.Account.RefillAmount = 1000
	}
	if cfg.Resolution.SettleThreshold <= 0 || cfg.Resolution.SettleThreshold >= 1 {
		cfg.Resolution.SettleThreshold = 0.95
	}
	if cfg.Resolution.ReconcileMinutes <= 0 {
		cfg.Resolution.ReconcileMinutes = 120
	}
	if cfg.Resolution.PaceMillis <= 0 {
		cfg.Resolution.PaceMillis = 200
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polysim.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
