package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Rating   RatingConfig
	Cache    CacheConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // "sqlite3" or "postgres"
	Path            string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
	NodeId          int64
}

// RatingConfig holds the rating policy and the contention retry budget
type RatingConfig struct {
	Cost         int64
	Reward       int64
	MaxActions   int
	Window       time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// CacheConfig holds the optional Redis balance cache settings
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DefaultRatingConfig is the policy used when nothing overrides it
func DefaultRatingConfig() RatingConfig {
	return RatingConfig{
		Cost:         2,
		Reward:       1,
		MaxActions:   3,
		Window:       72 * time.Hour,
		MaxAttempts:  5,
		RetryBackoff: 15 * time.Millisecond,
	}
}
