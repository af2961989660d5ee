/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tabcoin-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	defaults := models.DefaultRatingConfig()

	window, err := getEnvDuration("RATING_WINDOW", defaults.Window)
	if err != nil {
		return nil, err
	}

	retryBackoff, err := getEnvDuration("RATING_RETRY_BACKOFF", defaults.RetryBackoff)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:          getEnvString("DATABASE_DRIVER", "sqlite3"),
			Path:            getEnvString("DATABASE_PATH", "tabcoins.db"),
			URL:             getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
			NodeId:          int64(getEnvInt("LEDGER_NODE_ID", 1)),
		},
		Rating: models.RatingConfig{
			Cost:         int64(getEnvInt("RATING_COST", int(defaults.Cost))),
			Reward:       int64(getEnvInt("RATING_REWARD", int(defaults.Reward))),
			MaxActions:   getEnvInt("RATING_MAX_ACTIONS", defaults.MaxActions),
			Window:       window,
			MaxAttempts:  getEnvInt("RATING_MAX_ATTEMPTS", defaults.MaxAttempts),
			RetryBackoff: retryBackoff,
		},
		Cache: models.CacheConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      cacheTTL,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want sqlite3 or postgres)", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
	}
	if cfg.Rating.Cost <= 0 {
		return fmt.Errorf("RATING_COST must be positive, got %d", cfg.Rating.Cost)
	}
	if cfg.Rating.Reward < 0 {
		return fmt.Errorf("RATING_REWARD cannot be negative, got %d", cfg.Rating.Reward)
	}
	if cfg.Rating.MaxActions <= 0 {
		return fmt.Errorf("RATING_MAX_ACTIONS must be positive, got %d", cfg.Rating.MaxActions)
	}
	if cfg.Rating.Window <= 0 {
		return fmt.Errorf("RATING_WINDOW must be positive, got %v", cfg.Rating.Window)
	}
	if cfg.Rating.MaxAttempts <= 0 {
		return fmt.Errorf("RATING_MAX_ATTEMPTS must be positive, got %d", cfg.Rating.MaxAttempts)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
