package rating

import (
	"testing"

	"tabcoin-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumFor(event models.LedgerEvent, recipientId string, currency models.Currency) int64 {
	var total int64
	for _, e := range event.Entries {
		if e.RecipientId == recipientId && e.Currency == currency {
			total += e.Amount
		}
	}
	return total
}

func TestTransfer(t *testing.T) {
	policy := NewPolicy(models.DefaultRatingConfig())

	tests := []struct {
		direction models.Direction
		delta     int64
	}{
		{models.Credit, 1},
		{models.Debit, -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.direction), func(t *testing.T) {
			event := policy.Transfer("voter", "content", "owner", tt.direction)

			assert.Equal(t, models.EventRateContent, event.Type)
			assert.Equal(t, "voter", event.VoterId)
			assert.Equal(t, "content", event.ContentId)
			require.Len(t, event.Entries, 4)

			assert.Equal(t, tt.delta, sumFor(event, "content", models.TabCoin))
			assert.Equal(t, tt.delta, sumFor(event, "owner", models.TabCoin))
			assert.Equal(t, int64(-2), sumFor(event, "voter", models.TabCoin))
			assert.Equal(t, int64(1), sumFor(event, "voter", models.TabCash))
		})
	}
}

func TestTransfer_SelfRating(t *testing.T) {
	policy := NewPolicy(models.DefaultRatingConfig())
	event := policy.Transfer("user1", "content", "user1", models.Credit)

	// +1 as owner, -2 as voter
	assert.Equal(t, int64(-1), sumFor(event, "user1", models.TabCoin))
	assert.ElementsMatch(t, []string{"content", "user1"}, event.Recipients())
}

func TestPublishAndGrantEvents(t *testing.T) {
	publish := PublishEvent("content")
	assert.Equal(t, models.EventPublishContent, publish.Type)
	assert.Equal(t, "content", publish.ContentId)
	assert.Equal(t, int64(1), sumFor(publish, "content", models.TabCoin))
	assert.Equal(t, models.RecipientContent, publish.Entries[0].RecipientType)

	grant := GrantEvent("user1", models.TabCash, 5)
	assert.Equal(t, models.EventGrant, grant.Type)
	assert.Equal(t, int64(5), sumFor(grant, "user1", models.TabCash))
}

func TestVerifyEvent(t *testing.T) {
	policy := NewPolicy(models.DefaultRatingConfig())

	t.Run("Credit", func(t *testing.T) {
		assert.NoError(t, policy.VerifyEvent(policy.Transfer("voter", "content", "owner", models.Credit)))
	})

	t.Run("Debit", func(t *testing.T) {
		assert.NoError(t, policy.VerifyEvent(policy.Transfer("voter", "content", "owner", models.Debit)))
	})

	t.Run("SelfRating", func(t *testing.T) {
		assert.NoError(t, policy.VerifyEvent(policy.Transfer("user1", "content", "user1", models.Debit)))
	})

	t.Run("Publish", func(t *testing.T) {
		assert.NoError(t, policy.VerifyEvent(PublishEvent("content")))
	})

	t.Run("WrongCost", func(t *testing.T) {
		event := policy.Transfer("voter", "content", "owner", models.Credit)
		event.Entries[2].Amount = -1
		assert.Error(t, policy.VerifyEvent(event))
	})

	t.Run("MissingReward", func(t *testing.T) {
		event := policy.Transfer("voter", "content", "owner", models.Credit)
		event.Entries = event.Entries[:3]
		assert.Error(t, policy.VerifyEvent(event))
	})

	t.Run("ContentMovedByTwo", func(t *testing.T) {
		event := policy.Transfer("voter", "content", "owner", models.Credit)
		event.Entries[0].Amount = 2
		assert.Error(t, policy.VerifyEvent(event))
	})

	t.Run("CostEqualToDelta", func(t *testing.T) {
		cheap := Policy{Cost: 1, Reward: 1}
		assert.NoError(t, cheap.VerifyEvent(cheap.Transfer("voter", "content", "owner", models.Debit)))
	})
}
