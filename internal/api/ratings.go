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

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/rating"

	"go.uber.org/zap"
)

// RateOutcome is either a committed result or the problem to render
type RateOutcome struct {
	Success bool                 `json:"success"`
	Result  *models.RatingResult `json:"result,omitempty"`
	Problem *rating.Problem      `json:"problem,omitempty"`
}

// RateContent applies one rating action. Rejections are reported in the
// outcome, never as an error.
func (s *LedgerService) RateContent(ctx context.Context, req rating.RateRequest) (*RateOutcome, error) {
	zap.L().Info("Processing rating",
		zap.String("voter_id", req.VoterId),
		zap.String("content_id", req.ContentId),
		zap.String("direction", string(req.Direction)))

	result, err := s.coordinator.Rate(ctx, req)
	if err != nil {
		problem := rating.Describe(err)
		if problem.Kind == rating.KindInternal {
			zap.L().Error("Rating processing failed",
				zap.String("voter_id", req.VoterId),
				zap.String("content_id", req.ContentId),
				zap.Error(err))
		}
		return &RateOutcome{
			Success: false,
			Problem: &problem,
		}, nil
	}

	return &RateOutcome{
		Success: true,
		Result:  result,
	}, nil
}
