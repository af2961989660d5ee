package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tabcoin-ledger-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	// ErrSerializationConflict means a concurrent transaction wrote state this
	// one depended on. Nothing was committed; the caller may retry.
	ErrSerializationConflict = errors.New("serialization conflict")
	ErrEmptyEvent            = errors.New("ledger event has no entries")
	ErrInvalidEntry          = errors.New("invalid ledger entry")
	ErrEventNotFound         = errors.New("ledger event not found")
	// ErrDuplicateEvent means the event may only be recorded once and
	// already is, e.g. a second base credit for the same content.
	ErrDuplicateEvent = errors.New("ledger event already recorded")
)

// Reader is the read side of the ledger. Balances are always folds over
// entries; nothing here reads a stored balance.
type Reader interface {
	GetBalance(ctx context.Context, recipientId string, currency models.Currency) (int64, error)
	GetBalanceAsOf(ctx context.Context, recipientId string, currency models.Currency, at time.Time) (int64, error)
	CountRatings(ctx context.Context, voterId, contentId string, since time.Time) (int, error)
	GetContentRatingTotals(ctx context.Context, contentId string) (credit, debit int64, err error)
}

// Tx is a unit of work inside one database transaction. Reads made through
// a Tx are the snapshot that Append is validated against.
type Tx interface {
	Reader
	Append(ctx context.Context, event models.LedgerEvent) (*models.LedgerEvent, error)
}

// LedgerStore defines the contract that every backend (SQLite, Postgres) must satisfy.
type LedgerStore interface {
	Reader

	// Update runs fn in a single transaction and commits when fn returns nil.
	// Write-write conflicts surface as ErrSerializationConflict; errors
	// returned by fn roll back and are returned unchanged.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Append commits one event atomically.
	Append(ctx context.Context, event models.LedgerEvent) (*models.LedgerEvent, error)

	GetEvent(ctx context.Context, originEventId string) (*models.LedgerEvent, error)
	GetEntryHistory(ctx context.Context, recipientId string, currency models.Currency, limit, offset int) ([]models.LedgerEntry, error)
	Ping(ctx context.Context) error

	Close()
}

// ValidateEvent checks the shape of an event before it is written.
func ValidateEvent(event models.LedgerEvent) error {
	if len(event.Entries) == 0 {
		return ErrEmptyEvent
	}
	for i, entry := range event.Entries {
		if entry.RecipientId == "" {
			return fmt.Errorf("%w: entry %d has no recipient", ErrInvalidEntry, i)
		}
		if !entry.Currency.Valid() {
			return fmt.Errorf("%w: entry %d has unknown currency %q", ErrInvalidEntry, i, entry.Currency)
		}
		if entry.RecipientType != models.RecipientUser && entry.RecipientType != models.RecipientContent {
			return fmt.Errorf("%w: entry %d has unknown recipient type %q", ErrInvalidEntry, i, entry.RecipientType)
		}
		if entry.Amount == 0 {
			return fmt.Errorf("%w: entry %d has zero amount", ErrInvalidEntry, i)
		}
	}
	if event.Type == models.EventRateContent && (event.VoterId == "" || event.ContentId == "") {
		return fmt.Errorf("%w: rating event needs voter and content", ErrInvalidEntry)
	}
	if event.Type == models.EventPublishContent && event.ContentId == "" {
		return fmt.Errorf("%w: publish event needs content", ErrInvalidEntry)
	}
	return nil
}
