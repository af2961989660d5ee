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

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetUserWallet returns both balances of a user
func (s *LedgerService) GetUserWallet(ctx context.Context, userId string) (*models.UserWallet, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	tabcoins, err := s.balance(ctx, userId, models.TabCoin)
	if err != nil {
		return nil, err
	}
	tabcash, err := s.balance(ctx, userId, models.TabCash)
	if err != nil {
		return nil, err
	}

	return &models.UserWallet{
		UserId:   userId,
		TabCoins: tabcoins,
		TabCash:  tabcash,
	}, nil
}

// GetContentTabCoins returns the TabCoin balance of a content with the rating
// totals behind it. All three come from one ledger snapshot and bypass the
// cache so that the balance always equals the base credit plus the totals.
func (s *LedgerService) GetContentTabCoins(ctx context.Context, contentId string) (*models.ContentBalance, error) {
	if contentId == "" {
		return nil, fmt.Errorf("content_id is required")
	}

	result := &models.ContentBalance{ContentId: contentId}
	err := s.db.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if result.TabCoins, err = tx.GetBalance(ctx, contentId, models.TabCoin); err != nil {
			return err
		}
		result.TabCoinsCredit, result.TabCoinsDebit, err = tx.GetContentRatingTotals(ctx, contentId)
		return err
	})
	if err != nil {
		zap.L().Error("Failed to get content tabcoins", zap.String("content_id", contentId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve content tabcoins")
	}

	return result, nil
}

// GetEntryHistory returns paginated entry history for a recipient and currency
func (s *LedgerService) GetEntryHistory(ctx context.Context, recipientId string, currency models.Currency, limit, offset int) ([]models.EntryRecord, error) {
	if recipientId == "" || !currency.Valid() {
		return nil, fmt.Errorf("recipient_id and a valid currency are required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.db.GetEntryHistory(ctx, recipientId, currency, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get entry history",
			zap.String("recipient_id", recipientId),
			zap.String("currency", string(currency)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve entry history")
	}

	result := make([]models.EntryRecord, len(entries))
	for i, entry := range entries {
		result[i] = models.EntryRecord{
			Id:            entry.Id,
			OriginEventId: entry.OriginEventId,
			Currency:      entry.Currency,
			Amount:        entry.Amount,
			CreatedAt:     entry.CreatedAt,
		}
	}

	return result, nil
}

// ReconcileCache compares the cached balance with the ledger fold and drops
// the cached value when they disagree. It reports whether they agreed.
func (s *LedgerService) ReconcileCache(ctx context.Context, recipientId string, currency models.Currency) (bool, error) {
	lookup, err := s.cache.Get(ctx, recipientId, currency)
	if err != nil {
		return false, err
	}
	if !lookup.Hit {
		return true, nil
	}
	cached := lookup.Balance

	folded, err := s.db.GetBalance(ctx, recipientId, currency)
	if err != nil {
		return false, fmt.Errorf("failed to fold balance: %w", err)
	}
	if cached == folded {
		return true, nil
	}

	zap.L().Warn("Cached balance diverged from ledger",
		zap.String("recipient_id", recipientId),
		zap.String("currency", string(currency)),
		zap.Int64("cached", cached),
		zap.Int64("ledger", folded))

	if err := s.cache.Invalidate(ctx, recipientId); err != nil {
		return false, err
	}
	return false, nil
}

// balance reads through the cache. Cache failures fall back to the ledger.
// A miss is only filled when no invalidation happened since the lookup.
func (s *LedgerService) balance(ctx context.Context, recipientId string, currency models.Currency) (int64, error) {
	lookup, err := s.cache.Get(ctx, recipientId, currency)
	if err != nil {
		zap.L().Warn("Balance cache read failed", zap.String("recipient_id", recipientId), zap.Error(err))
	}
	if lookup.Hit {
		return lookup.Balance, nil
	}

	balance, err := s.db.GetBalance(ctx, recipientId, currency)
	if err != nil {
		zap.L().Error("Failed to get balance",
			zap.String("recipient_id", recipientId),
			zap.String("currency", string(currency)),
			zap.Error(err))
		return 0, fmt.Errorf("failed to retrieve balance")
	}

	if lookup.Generation == "" {
		return balance, nil
	}
	if _, err := s.cache.Set(ctx, recipientId, currency, balance, lookup.Generation); err != nil {
		zap.L().Warn("Balance cache write failed", zap.String("recipient_id", recipientId), zap.Error(err))
	}
	return balance, nil
}
