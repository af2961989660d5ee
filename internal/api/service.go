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

package api

import (
	"context"
	"fmt"

	"tabcoin-ledger-go/internal/cache"
	"tabcoin-ledger-go/internal/rating"
	"tabcoin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// LedgerService is the surface the HTTP layer calls into
type LedgerService struct {
	db          store.LedgerStore
	cache       *cache.BalanceCache
	coordinator *rating.Coordinator
}

func NewLedgerService(db store.LedgerStore, balanceCache *cache.BalanceCache, coordinator *rating.Coordinator) *LedgerService {
	return &LedgerService{
		db:          db,
		cache:       balanceCache,
		coordinator: coordinator,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if err := s.cache.Ping(ctx); err != nil {
		// The ledger is still authoritative without the cache
		zap.L().Warn("Balance cache health check failed", zap.Error(err))
	}
	return nil
}

// AuditEvent checks that a committed event has the shape the rating policy
// produces.
func (s *LedgerService) AuditEvent(ctx context.Context, originEventId string) error {
	if originEventId == "" {
		return fmt.Errorf("origin_event_id is required")
	}

	event, err := s.db.GetEvent(ctx, originEventId)
	if err != nil {
		return err
	}

	if err := s.coordinator.Policy().VerifyEvent(*event); err != nil {
		zap.L().Error("Ledger event failed audit",
			zap.String("origin_event_id", originEventId),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}
