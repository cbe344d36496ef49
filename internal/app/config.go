package app

import (
	"fmt"
	"strings"

	coreconfig "github.com/m3rciful/farmbot/core/config"
	coredatabase "github.com/m3rciful/farmbot/core/database"
	"github.com/m3rciful/farmbot/internal/fsm"
)

// ShopConfig points at the shop content and limits ordering.
type ShopConfig struct {
	// Path is a YAML file with items, FAQ and contacts. Empty uses the built-in content.
	Path        string  `yaml:"path" envconfig:"SHOP_PATH"`
	MaxQuantity float64 `yaml:"max_quantity" envconfig:"SHOP_MAX_QUANTITY"`
	RecentLimit int     `yaml:"recent_orders" envconfig:"SHOP_RECENT_ORDERS"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Shop     ShopConfig          `yaml:"shop"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads path, applies the environment overlay and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	c.Shop.Path = strings.TrimSpace(c.Shop.Path)
	if c.Shop.MaxQuantity < 0 {
		return fmt.Errorf("shop.max_quantity must be >= 0")
	}
	if c.Shop.MaxQuantity == 0 {
		c.Shop.MaxQuantity = fsm.DefaultMaxQuantity
	}
	if c.Shop.RecentLimit <= 0 {
		c.Shop.RecentLimit = 5
	}
	return nil
}
