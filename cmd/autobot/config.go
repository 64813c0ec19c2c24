package main

import (
	"time"

	"github.com/sherifabdlnaby/configuro"
)

// Config values can be set using either environment variables with `CONFIG_`
// prefix or config.yml file placed in working directory.
// See https://github.com/sherifabdlnaby/configuro.
type Config struct {
	Logging    Logging
	Database   Database
	Broker     Broker
	Session    Session
	Trading    Trading
	Monitoring Monitoring
	Signals    Signals
	Events     Events
	Encryption Encryption
	Retry      Retry
}

type Logging struct {
	Level  string
	Format string
}

type Database struct {
	Address      string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MigrationDir string
}

type Broker struct {
	URL     string
	Timeout time.Duration
}

type Session struct {
	TTL                time.Duration
	ExpiryMargin       time.Duration
	RefreshInterval    time.Duration
	HealthInterval     time.Duration
	LoginParallelism   int
	MaxRefreshFailures int
}

type Trading struct {
	DispatchParallelism  int
	DispatchTimeout      time.Duration
	ContractSize         float64
	FallbackMarginPerLot float64
	MinVolume            float64
	VolumeStep           float64
}

type Monitoring struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	MaxHoldingTime time.Duration
}

type Signals struct {
	Project      string
	Subscription string
}

type Events struct {
	Project string
	Topic   string
}

type Encryption struct {
	Key string
}

type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func readConfig() (*Config, error) {
	loader, err := configuro.NewConfig()
	if err != nil {
		return nil, err
	}

	// Default config values.
	config := &Config{
		Logging: Logging{
			Level: "info",
		},
		Database: Database{
			Address:      "localhost:5432",
			User:         "postgres",
			Password:     "postgres",
			Name:         "postgres",
			SSLMode:      "disable",
			MigrationDir: "database/migrations",
		},
		Broker: Broker{
			Timeout: 30 * time.Second,
		},
		Session: Session{
			TTL:                15 * time.Minute,
			ExpiryMargin:       5 * time.Minute,
			RefreshInterval:    10 * time.Minute,
			HealthInterval:     5 * time.Minute,
			LoginParallelism:   5,
			MaxRefreshFailures: 3,
		},
		Trading: Trading{
			DispatchParallelism:  10,
			DispatchTimeout:      30 * time.Second,
			ContractSize:         1.0,
			FallbackMarginPerLot: 1000.0,
			MinVolume:            0.01,
			VolumeStep:           0.01,
		},
		Monitoring: Monitoring{
			Interval:       5 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
	}

	err = loader.Load(config)
	if err != nil {
		return nil, err
	}

	err = loader.Validate(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
