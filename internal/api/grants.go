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
	"errors"

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/rating"

	"go.uber.org/zap"
)

// GrantCurrency credits a user wallet outside of rating (signup bonus, seeding)
func (s *LedgerService) GrantCurrency(ctx context.Context, userId string, currency models.Currency, amount int64) (*models.GrantResult, error) {
	if userId == "" || !currency.Valid() || amount == 0 {
		return &models.GrantResult{
			Success: false,
			Error:   "invalid grant parameters",
		}, nil
	}

	zap.L().Info("Processing grant",
		zap.String("user_id", userId),
		zap.String("currency", string(currency)),
		zap.Int64("amount", amount))

	event, err := s.coordinator.Grant(ctx, userId, currency, amount)
	if err != nil {
		zap.L().Error("Grant processing failed",
			zap.String("user_id", userId),
			zap.String("currency", string(currency)),
			zap.Int64("amount", amount),
			zap.Error(err))
		return &models.GrantResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	newBalance, err := s.db.GetBalance(ctx, userId, currency)
	if err != nil {
		zap.L().Error("Balance lookup failed after grant",
			zap.String("user_id", userId),
			zap.String("currency", string(currency)),
			zap.Error(err))
		return &models.GrantResult{
			Success: false,
			Error:   "balance lookup failed after grant",
		}, nil
	}

	zap.L().Info("Grant processed successfully",
		zap.String("user_id", userId),
		zap.String("currency", string(currency)),
		zap.Int64("amount", amount),
		zap.Int64("new_balance", newBalance))

	return &models.GrantResult{
		Success:       true,
		OriginEventId: event.Id,
		RecipientId:   userId,
		Currency:      currency,
		Amount:        amount,
		NewBalance:    newBalance,
	}, nil
}

// PublishContent records the base TabCoin credit of a newly published content.
// Publishing the same content again reports a duplicate and credits nothing.
func (s *LedgerService) PublishContent(ctx context.Context, contentId string) (*models.GrantResult, error) {
	if contentId == "" {
		return &models.GrantResult{
			Success: false,
			Error:   "content_id is required",
		}, nil
	}

	event, err := s.coordinator.Publish(ctx, contentId)
	if errors.Is(err, rating.ErrAlreadyPublished) {
		return &models.GrantResult{
			Success:     false,
			RecipientId: contentId,
			Currency:    models.TabCoin,
			Duplicate:   true,
			Error:       "content already published",
		}, nil
	}
	if err != nil {
		zap.L().Error("Publish credit failed", zap.String("content_id", contentId), zap.Error(err))
		return &models.GrantResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	newBalance, err := s.db.GetBalance(ctx, contentId, models.TabCoin)
	if err != nil {
		zap.L().Error("Balance lookup failed after publish", zap.String("content_id", contentId), zap.Error(err))
		newBalance = 0
	}

	zap.L().Info("Content publish credit recorded",
		zap.String("content_id", contentId),
		zap.String("origin_event_id", event.Id),
		zap.Int64("new_balance", newBalance))

	return &models.GrantResult{
		Success:       true,
		OriginEventId: event.Id,
		RecipientId:   contentId,
		Currency:      models.TabCoin,
		Amount:        1,
		NewBalance:    newBalance,
	}, nil
}
