package models

import "time"

// Currency identifies one of the two ledger currencies
type Currency string

const (
	TabCoin Currency = "tabcoin"
	TabCash Currency = "tabcash"
)

func (c Currency) Valid() bool {
	return c == TabCoin || c == TabCash
}

// RecipientType tells whether a ledger entry is posted to a user or a content
type RecipientType string

const (
	RecipientUser    RecipientType = "user"
	RecipientContent RecipientType = "content"
)

// Direction of a rating action
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Sign returns +1 for credit and -1 for debit.
func (d Direction) Sign() int64 {
	if d == Debit {
		return -1
	}
	return 1
}

// EventType names the logical operation that produced a group of entries
type EventType string

const (
	EventRateContent    EventType = "rate_content"
	EventPublishContent EventType = "publish_content"
	EventGrant          EventType = "grant"
)

// LedgerEntry is one immutable signed amount posted to one recipient
type LedgerEntry struct {
	Id            int64         `db:"id"`
	OriginEventId string        `db:"origin_event_id"`
	RecipientId   string        `db:"recipient_id"`
	RecipientType RecipientType `db:"recipient_type"`
	Currency      Currency      `db:"currency"`
	Amount        int64         `db:"amount"`
	CreatedAt     time.Time     `db:"created_at"`
}

// LedgerEvent groups the entries written by one logical operation.
// VoterId and ContentId are only set for rating events; they feed the
// per (voter, content) usage window.
type LedgerEvent struct {
	Id        string        `db:"id"`
	Type      EventType     `db:"event_type"`
	VoterId   string        `db:"voter_id"`
	ContentId string        `db:"content_id"`
	Entries   []LedgerEntry `db:"-"`
	CreatedAt time.Time     `db:"created_at"`
}

// Recipients returns the distinct recipient ids of the event's entries.
func (e LedgerEvent) Recipients() []string {
	seen := make(map[string]struct{}, len(e.Entries))
	var out []string
	for _, entry := range e.Entries {
		if _, ok := seen[entry.RecipientId]; ok {
			continue
		}
		seen[entry.RecipientId] = struct{}{}
		out = append(out, entry.RecipientId)
	}
	return out
}
