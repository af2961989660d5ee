package database

import (
	"context"
	"fmt"
	"time"

	"tabcoin-ledger-go/internal/models"

	"go.uber.org/zap"
)

// GetBalance folds every entry of recipient/currency
func (s *Service) GetBalance(ctx context.Context, recipientId string, currency models.Currency) (int64, error) {
	return s.sumBalance(ctx, s.db, recipientId, currency)
}

// GetBalanceAsOf folds the entries created at or before at
func (s *Service) GetBalanceAsOf(ctx context.Context, recipientId string, currency models.Currency, at time.Time) (int64, error) {
	return s.sumBalanceAsOf(ctx, s.db, recipientId, currency, at)
}

// CountRatings counts rating events of voter on content created at or after since
func (s *Service) CountRatings(ctx context.Context, voterId, contentId string, since time.Time) (int, error) {
	return s.countRatings(ctx, s.db, voterId, contentId, since)
}

// GetContentRatingTotals returns the positive and negative TabCoin sums that
// rating events posted to a content. The publish credit is not included.
func (s *Service) GetContentRatingTotals(ctx context.Context, contentId string) (int64, int64, error) {
	return s.contentRatingTotals(ctx, s.db, contentId)
}

func (s *Service) sumBalance(ctx context.Context, q querier, recipientId string, currency models.Currency) (int64, error) {
	zap.L().Debug("Getting balance", zap.String("recipient_id", recipientId), zap.String("currency", string(currency)))

	var balance int64
	err := q.QueryRowContext(ctx, s.q(queryGetBalance), recipientId, string(currency)).Scan(&balance)
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("recipient_id", recipientId), zap.String("currency", string(currency)), zap.Error(err))
		return 0, classify("failed to get balance", err)
	}

	zap.L().Debug("Retrieved balance", zap.String("recipient_id", recipientId), zap.String("currency", string(currency)), zap.Int64("balance", balance))
	return balance, nil
}

func (s *Service) sumBalanceAsOf(ctx context.Context, q querier, recipientId string, currency models.Currency, at time.Time) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, s.q(queryGetBalanceAsOf), recipientId, string(currency), at.UTC().UnixNano()).Scan(&balance)
	if err != nil {
		return 0, classify("failed to get balance as of "+at.UTC().Format(time.RFC3339), err)
	}
	return balance, nil
}

func (s *Service) countRatings(ctx context.Context, q querier, voterId, contentId string, since time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, s.q(queryCountRatings),
		string(models.EventRateContent), voterId, contentId, since.UTC().UnixNano()).Scan(&count)
	if err != nil {
		return 0, classify("failed to count ratings", err)
	}

	zap.L().Debug("Counted recent ratings",
		zap.String("voter_id", voterId),
		zap.String("content_id", contentId),
		zap.Time("since", since),
		zap.Int("count", count))
	return count, nil
}

func (s *Service) contentRatingTotals(ctx context.Context, q querier, contentId string) (int64, int64, error) {
	var credit, debit int64
	err := q.QueryRowContext(ctx, s.q(queryGetContentRatingTotals),
		contentId, string(models.TabCoin), string(models.EventRateContent)).Scan(&credit, &debit)
	if err != nil {
		return 0, 0, classify(fmt.Sprintf("failed to get rating totals for %s", contentId), err)
	}
	return credit, debit, nil
}
