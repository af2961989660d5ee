package rating

import (
	"fmt"

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/store"
)

// Policy holds the fixed amounts of a rating action.
type Policy struct {
	Cost   int64
	Reward int64
}

func NewPolicy(cfg models.RatingConfig) Policy {
	return Policy{Cost: cfg.Cost, Reward: cfg.Reward}
}

// Transfer returns the event a rating must append. The content and owner
// legs follow the direction; the voter pays Cost and earns Reward either way.
func (p Policy) Transfer(voterId, contentId, ownerId string, direction models.Direction) models.LedgerEvent {
	delta := direction.Sign()

	entries := []models.LedgerEntry{
		{RecipientId: contentId, RecipientType: models.RecipientContent, Currency: models.TabCoin, Amount: delta},
		{RecipientId: ownerId, RecipientType: models.RecipientUser, Currency: models.TabCoin, Amount: delta},
		{RecipientId: voterId, RecipientType: models.RecipientUser, Currency: models.TabCoin, Amount: -p.Cost},
	}
	if p.Reward != 0 {
		entries = append(entries, models.LedgerEntry{
			RecipientId: voterId, RecipientType: models.RecipientUser, Currency: models.TabCash, Amount: p.Reward,
		})
	}

	return models.LedgerEvent{
		Type:      models.EventRateContent,
		VoterId:   voterId,
		ContentId: contentId,
		Entries:   entries,
	}
}

// PublishEvent is the base credit a content receives when it is published.
func PublishEvent(contentId string) models.LedgerEvent {
	return models.LedgerEvent{
		Type:      models.EventPublishContent,
		ContentId: contentId,
		Entries: []models.LedgerEntry{
			{RecipientId: contentId, RecipientType: models.RecipientContent, Currency: models.TabCoin, Amount: 1},
		},
	}
}

// GrantEvent credits (or debits, with a negative amount) a user wallet.
func GrantEvent(userId string, currency models.Currency, amount int64) models.LedgerEvent {
	return models.LedgerEvent{
		Type: models.EventGrant,
		Entries: []models.LedgerEntry{
			{RecipientId: userId, RecipientType: models.RecipientUser, Currency: currency, Amount: amount},
		},
	}
}

// VerifyEvent checks that a committed event is one this policy could have
// produced. Only rating events have a fixed shape; other events are checked
// for well-formed entries.
func (p Policy) VerifyEvent(event models.LedgerEvent) error {
	if err := store.ValidateEvent(event); err != nil {
		return err
	}
	if event.Type != models.EventRateContent {
		return nil
	}

	var contentLeg *models.LedgerEntry
	for i := range event.Entries {
		entry := event.Entries[i]
		if entry.RecipientId == event.ContentId && entry.RecipientType == models.RecipientContent {
			contentLeg = &event.Entries[i]
			break
		}
	}
	if contentLeg == nil {
		return fmt.Errorf("rating event %s has no content leg", event.Id)
	}
	if contentLeg.Amount != 1 && contentLeg.Amount != -1 {
		return fmt.Errorf("rating event %s moves %d on content", event.Id, contentLeg.Amount)
	}
	direction := models.Credit
	if contentLeg.Amount < 0 {
		direction = models.Debit
	}

	// The owner leg is a user TabCoin entry with the content's sign. When the
	// cost equals the delta more than one entry qualifies, so try each.
	found := false
	for _, entry := range event.Entries {
		if entry.RecipientType != models.RecipientUser || entry.Currency != models.TabCoin || entry.Amount != contentLeg.Amount {
			continue
		}
		found = true
		expected := p.Transfer(event.VoterId, event.ContentId, entry.RecipientId, direction)
		if sameLegs(expected.Entries, event.Entries) {
			return nil
		}
	}
	if !found {
		return fmt.Errorf("rating event %s has no owner leg", event.Id)
	}
	return fmt.Errorf("rating event %s does not match the %s transfer", event.Id, direction)
}

type leg struct {
	recipientId   string
	recipientType models.RecipientType
	currency      models.Currency
	amount        int64
}

func sameLegs(want, got []models.LedgerEntry) bool {
	if len(want) != len(got) {
		return false
	}
	counts := make(map[leg]int, len(want))
	for _, e := range want {
		counts[leg{e.RecipientId, e.RecipientType, e.Currency, e.Amount}]++
	}
	for _, e := range got {
		k := leg{e.RecipientId, e.RecipientType, e.Currency, e.Amount}
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}
