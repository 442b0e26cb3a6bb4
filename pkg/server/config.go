package server

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the serve command's environment configuration. CatalogPath
// and DBPath are optional; without them the built-in catalog is used
// and no audit log is written.
type Config struct {
	Addr         string `env:"ADDR" envDefault:":8080"`
	CatalogPath  string `env:"CATALOG_PATH"`
	DBPath       string `env:"DB_PATH"`
	ExplosionCap int    `env:"EXPLOSION_CAP" envDefault:"10"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ExplosionCap < 1 {
		return cfg, fmt.Errorf("EXPLOSION_CAP must be positive, got %d", cfg.ExplosionCap)
	}
	return cfg, nil
}
