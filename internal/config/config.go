package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Verbose  bool
	HTTP     HTTPConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Delivery DeliveryConfig
}

// HTTPConfig holds the API and health listener addresses.
type HTTPConfig struct {
	Addr       string
	HealthAddr string
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string
}

// QueueConfig holds the on-disk delivery queue location.
type QueueConfig struct {
	Path string
}

// DeliveryConfig holds the simulated dispensing settings.
type DeliveryConfig struct {
	Delay   time.Duration
	Workers int
}

// Load reads configuration from Viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{
		Verbose: viper.GetBool("verbose"),
		HTTP: HTTPConfig{
			Addr:       viper.GetString("http.addr"),
			HealthAddr: viper.GetString("http.health_addr"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Queue: QueueConfig{
			Path: viper.GetString("queue.path"),
		},
		Delivery: DeliveryConfig{
			Delay:   viper.GetDuration("delivery.delay"),
			Workers: viper.GetInt("delivery.workers"),
		},
	}

	// Apply defaults
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.HealthAddr == "" {
		cfg.HTTP.HealthAddr = ":8086"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "vendfleet.db"
	}
	if cfg.Queue.Path == "" {
		cfg.Queue.Path = "vendfleet-queue"
	}
	if cfg.Delivery.Delay == 0 {
		cfg.Delivery.Delay = 5 * time.Second
	}
	if cfg.Delivery.Workers == 0 {
		cfg.Delivery.Workers = 2
	}

	return cfg, nil
}
