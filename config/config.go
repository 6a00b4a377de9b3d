// Package config loads the daemon configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Store   Store   `yaml:"store"`
	Gateway Gateway `yaml:"gateway"`
	Sweep   Sweep   `yaml:"sweep"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	LoginURL string `yaml:"loginUrl"`

	// Metrics exposes prometheus metrics on GET /metrics when true.
	Metrics bool `yaml:"metrics"`
}

type Store struct {
	// Driver selects the backend: memory, sqlite, postgres or mongo.
	Driver      string `yaml:"driver"`
	PostgresDsn string `yaml:"postgresDsn"`
	SqlitePath  string `yaml:"sqlitePath"`
	MongoURI    string `yaml:"mongoUri"`
	MongoDB     string `yaml:"mongoDb"`

	// RedisAddr enables the entitlement cache when set.
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDB"`
}

type Gateway struct {
	Provider    string `yaml:"provider"`
	CheckoutURL string `yaml:"checkoutUrl"`
	Secret      string `yaml:"secret"`
}

type Sweep struct {
	AbandonAfter  time.Duration `yaml:"abandonAfter"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	config := defaults()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func defaults() Config {
	return Config{
		Server: Server{
			Addr: ":8325",
		},
		Store: Store{
			Driver: "memory",
		},
		Sweep: Sweep{
			AbandonAfter:  24 * time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SqlitePath == "" {
			return fmt.Errorf("config: sqlite driver requires sqlitePath")
		}
	case "postgres":
		if c.Store.PostgresDsn == "" {
			return fmt.Errorf("config: postgres driver requires postgresDsn")
		}
	case "mongo":
		if c.Store.MongoURI == "" || c.Store.MongoDB == "" {
			return fmt.Errorf("config: mongo driver requires mongoUri and mongoDb")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if c.Gateway.Provider != "" {
		if c.Gateway.CheckoutURL == "" || c.Gateway.Secret == "" {
			return fmt.Errorf("config: gateway requires checkoutUrl and secret")
		}
	}
	return nil
}
