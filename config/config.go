package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del emulador y del pipeline de datos.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	// Symbols es el universo de símbolos configurado, usado cuando la CLI
	// recibe '*' en vez de una lista explícita.
	Symbols []string `yaml:"symbols"`
}

// SimulationConfig controla los parámetros de la simulación de trades.
type SimulationConfig struct {
	StartingCash   float64 `yaml:"starting_cash"`
	MinBuy         float64 `yaml:"min_buy"`
	MaxBuy         float64 `yaml:"max_buy"`
	TransactionFee float64 `yaml:"transaction_fee"`
	TaxRate        float64 `yaml:"tax_rate"`
	// StopLoss activa la salida forzada por stop-loss / profit-target.
	StopLoss bool `yaml:"stop_loss"`
	// Workers limita el fan-out por día; <= 0 usa el valor por defecto.
	Workers int `yaml:"workers"`
}

// APIConfig contiene la configuración del proveedor de datos.
type APIConfig struct {
	AlphaVantageBase string `yaml:"alphavantage_base"`
	AlphaVantageKey  string `yaml:"alphavantage_key"`
	// IntervalCap es el máximo de requests por minuto (5 con key gratuita).
	IntervalCap int    `yaml:"interval_cap"`
	VIXHistory  string `yaml:"vix_history"`
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

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.API.AlphaVantageKey = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Simulation.StartingCash <= 0 {
		cfg.Simulation.StartingCash = 1000000
	}
	if cfg.Simulation.MinBuy <= 0 {
		cfg.Simulation.MinBuy = 1000
	}
	if cfg.Simulation.MaxBuy <= 0 {
		cfg.Simulation.MaxBuy = 5000
	}
	if cfg.Simulation.TransactionFee < 0 {
		cfg.Simulation.TransactionFee = 0
	}
	if cfg.Simulation.TaxRate <= 0 {
		cfg.Simulation.TaxRate = 0.25
	}
	if cfg.API.AlphaVantageBase == "" {
		cfg.API.AlphaVantageBase = "https://www.alphavantage.co"
	}
	if cfg.API.IntervalCap <= 0 {
		cfg.API.IntervalCap = 5
	}
	if cfg.API.VIXHistory == "" {
		cfg.API.VIXHistory = "https://cdn.cboe.com/api/global/us_indices/daily_prices/VIX_History.csv"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "stonks.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
