package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ledgerTx implements store.Tx on top of one database transaction. It
// remembers the version of every recipient it has read so that Append can
// refuse to commit if any of them moved in the meantime.
type ledgerTx struct {
	s        *Service
	tx       *sql.Tx
	versions map[string]int64
}

var _ store.Tx = (*ledgerTx)(nil)

// Update runs fn atomically
func (s *Service) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	ltx := &ledgerTx{s: s, tx: tx, versions: make(map[string]int64)}
	if err := fn(ctx, ltx); err != nil {
		if isConflict(err) && !errors.Is(err, store.ErrSerializationConflict) {
			return classify("transaction aborted", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("failed to commit transaction", err)
	}
	return nil
}

// Append commits a single event
func (s *Service) Append(ctx context.Context, event models.LedgerEvent) (*models.LedgerEvent, error) {
	var committed *models.LedgerEvent
	err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		committed, err = tx.Append(ctx, event)
		return err
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func (t *ledgerTx) GetBalance(ctx context.Context, recipientId string, currency models.Currency) (int64, error) {
	if _, err := t.observe(ctx, recipientId); err != nil {
		return 0, err
	}
	return t.s.sumBalance(ctx, t.tx, recipientId, currency)
}

func (t *ledgerTx) GetBalanceAsOf(ctx context.Context, recipientId string, currency models.Currency, at time.Time) (int64, error) {
	return t.s.sumBalanceAsOf(ctx, t.tx, recipientId, currency, at)
}

func (t *ledgerTx) CountRatings(ctx context.Context, voterId, contentId string, since time.Time) (int, error) {
	// A concurrent rating of the same pair always touches both recipients,
	// so observing them here makes the count part of the conflict check.
	if _, err := t.observe(ctx, voterId); err != nil {
		return 0, err
	}
	if _, err := t.observe(ctx, contentId); err != nil {
		return 0, err
	}
	return t.s.countRatings(ctx, t.tx, voterId, contentId, since)
}

func (t *ledgerTx) GetContentRatingTotals(ctx context.Context, contentId string) (int64, int64, error) {
	return t.s.contentRatingTotals(ctx, t.tx, contentId)
}

// observe returns the version of recipientId as seen by this transaction,
// reading it once. Zero means the recipient has no entries yet.
func (t *ledgerTx) observe(ctx context.Context, recipientId string) (int64, error) {
	if v, ok := t.versions[recipientId]; ok {
		return v, nil
	}

	var version int64
	err := t.tx.QueryRowContext(ctx, t.s.q(queryGetRecipientVersion), recipientId).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, classify("failed to read recipient version", err)
	}
	t.versions[recipientId] = version
	return version, nil
}

// Append writes the event and its entries inside the transaction
func (t *ledgerTx) Append(ctx context.Context, event models.LedgerEvent) (*models.LedgerEvent, error) {
	if err := store.ValidateEvent(event); err != nil {
		return nil, err
	}

	now := t.s.now().UTC()
	event.Id = uuid.New().String()
	event.CreatedAt = now

	// Bump versions in a fixed order so two writers touching the same
	// recipients never wait on each other in opposite orders.
	recipients := event.Recipients()
	sort.Strings(recipients)
	for _, recipientId := range recipients {
		if err := t.bump(ctx, recipientId); err != nil {
			return nil, err
		}
	}

	_, err := t.tx.ExecContext(ctx, t.s.q(queryInsertEvent),
		event.Id, string(event.Type), event.VoterId, event.ContentId, now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s event for %s: %w", event.Type, event.ContentId, store.ErrDuplicateEvent)
		}
		return nil, classify("failed to insert ledger event", err)
	}

	entries := make([]models.LedgerEntry, len(event.Entries))
	for i, entry := range event.Entries {
		entry.Id = t.s.node.Generate().Int64()
		entry.OriginEventId = event.Id
		entry.CreatedAt = now

		_, err := t.tx.ExecContext(ctx, t.s.q(queryInsertEntry),
			entry.Id, entry.OriginEventId, entry.RecipientId, string(entry.RecipientType),
			string(entry.Currency), entry.Amount, now.UnixNano())
		if err != nil {
			return nil, classify("failed to insert ledger entry", err)
		}
		entries[i] = entry
	}
	event.Entries = entries

	zap.L().Debug("Ledger event staged",
		zap.String("origin_event_id", event.Id),
		zap.String("type", string(event.Type)),
		zap.Int("entries", len(entries)))

	return &event, nil
}

// bump advances the recipient version with a compare-and-set against the
// version this transaction observed.
func (t *ledgerTx) bump(ctx context.Context, recipientId string) error {
	version, err := t.observe(ctx, recipientId)
	if err != nil {
		return err
	}

	if version == 0 {
		if _, err := t.tx.ExecContext(ctx, t.s.q(queryInsertRecipientVersion), recipientId); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("recipient %s created concurrently: %w", recipientId, store.ErrSerializationConflict)
			}
			return classify("failed to create recipient version", err)
		}
		t.versions[recipientId] = 1
		return nil
	}

	result, err := t.tx.ExecContext(ctx, t.s.q(queryBumpRecipientVersion), recipientId, version)
	if err != nil {
		return classify("failed to bump recipient version", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("recipient %s changed since version %d: %w", recipientId, version, store.ErrSerializationConflict)
	}

	t.versions[recipientId] = version + 1
	return nil
}

// GetEvent returns a committed event with its entries
func (s *Service) GetEvent(ctx context.Context, originEventId string) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	var eventType string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, s.q(queryGetEvent), originEventId).
		Scan(&event.Id, &eventType, &event.VoterId, &event.ContentId, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrEventNotFound, originEventId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger event: %w", err)
	}
	event.Type = models.EventType(eventType)
	event.CreatedAt = fromUnixNano(createdAt)

	entries, err := s.queryEntries(ctx, s.q(queryGetEventEntries), originEventId)
	if err != nil {
		return nil, err
	}
	event.Entries = entries
	return &event, nil
}

// GetEntryHistory returns a recipient's entries newest first
func (s *Service) GetEntryHistory(ctx context.Context, recipientId string, currency models.Currency, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting entry history",
		zap.String("recipient_id", recipientId),
		zap.String("currency", string(currency)),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	return s.queryEntries(ctx, s.q(queryGetEntryHistory), recipientId, string(currency), limit, offset)
}

func (s *Service) queryEntries(ctx context.Context, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var recipientType, currency string
		var createdAt int64
		if err := rows.Scan(&entry.Id, &entry.OriginEventId, &entry.RecipientId, &recipientType,
			&currency, &entry.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.RecipientType = models.RecipientType(recipientType)
		entry.Currency = models.Currency(currency)
		entry.CreatedAt = fromUnixNano(createdAt)
		entries = append(entries, entry)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger entry row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
