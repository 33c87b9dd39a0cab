package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domadao/event-indexer/database"
	"github.com/domadao/event-indexer/feed"
)

const (
	testPool  = "0x1111111111111111111111111111111111111111"
	testVoter = "0x2222222222222222222222222222222222222222"
)

func rawEvent(t *testing.T, id uint64, eventType string, payload map[string]interface{}) feed.RawEvent {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return feed.RawEvent{
		EventID:   id,
		UniqueID:  fmt.Sprintf("evt-%s-%d", eventType, id),
		EventType: eventType,
		TxHash:    fmt.Sprintf("0x%d", 1000+id),
		EventData: data,
	}
}

func poolCreatedEvent(t *testing.T, id uint64) feed.RawEvent {
	return rawEvent(t, id, EventPoolCreated, map[string]interface{}{
		"poolAddress":  testPool,
		"creator":      testVoter,
		"domainName":   "example.com",
		"targetAmount": 1_000_000,
	})
}

func contributionEvent(t *testing.T, id uint64, amount uint64) feed.RawEvent {
	return rawEvent(t, id, EventContributionMade, map[string]interface{}{
		"poolAddress": testPool,
		"contributor": testVoter,
		"amount":      amount,
	})
}

func TestIndexEventIdempotence(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemStore()
	ix := New(store, nil)

	require.NoError(t, ix.IndexEvent(ctx, poolCreatedEvent(t, 1)))

	contribution := contributionEvent(t, 2, 500)
	require.NoError(t, ix.IndexEvent(ctx, contribution))
	require.NoError(t, ix.IndexEvent(ctx, contribution))

	contributions := store.Contributions()
	require.Len(t, contributions, 1)
	assert.Equal(t, uint64(500), contributions[0].Amount)

	pools := store.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, uint64(500), pools[0].TotalRaised, "total must be incremented exactly once")
	assert.Equal(t, uint64(1), pools[0].ContributionCount)
}

func TestIndexEventVoteAccumulation(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemStore()
	ix := New(store, nil)

	vote := func(id, weight uint64) feed.RawEvent {
		return rawEvent(t, id, EventVoteCast, map[string]interface{}{
			"poolAddress": testPool,
			"voter":       testVoter,
			"domainName":  "example.com",
			"weight":      weight,
		})
	}

	require.NoError(t, ix.IndexEvent(ctx, vote(1, 100)))
	require.NoError(t, ix.IndexEvent(ctx, vote(2, 50)))

	votes := store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, uint64(150), votes[0].Weight)
}

func TestIndexEventsPartialBatchIsolation(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemStore()
	ix := New(store, nil)

	good1 := poolCreatedEvent(t, 1)
	bad := feed.RawEvent{
		EventID:   2,
		UniqueID:  "evt-bad-2",
		EventType: EventContributionMade,
		TxHash:    "0x1002",
		EventData: json.RawMessage(`{malformed`),
	}
	good2 := contributionEvent(t, 3, 250)

	ix.IndexEvents(ctx, []feed.RawEvent{good1, bad, good2})

	first, err := store.GetByUniqueID(ctx, good1.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, database.StatusProcessed, first.ProcessingStatus)

	second, err := store.GetByUniqueID(ctx, bad.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, database.StatusFailed, second.ProcessingStatus)
	assert.Equal(t, uint(1), second.RetryCount)
	assert.NotEmpty(t, second.ErrorMessage)

	third, err := store.GetByUniqueID(ctx, good2.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, database.StatusProcessed, third.ProcessingStatus)
}

func TestIndexEventsReplaySafety(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemStore()
	ix := New(store, nil)

	batch := []feed.RawEvent{
		poolCreatedEvent(t, 1),
		contributionEvent(t, 2, 500),
		rawEvent(t, 3, EventVoteCast, map[string]interface{}{
			"poolAddress": testPool,
			"voter":       testVoter,
			"domainName":  "example.com",
			"weight":      100,
		}),
		rawEvent(t, 4, EventRevenueDistributed, map[string]interface{}{
			"poolAddress":    testPool,
			"distributionId": 7,
			"totalAmount":    900,
		}),
		rawEvent(t, 5, EventRevenueClaimed, map[string]interface{}{
			"poolAddress":    testPool,
			"distributionId": 7,
			"claimer":        testVoter,
			"amount":         300,
		}),
		rawEvent(t, 6, EventVotingFinalized, map[string]interface{}{
			"poolAddress":   testPool,
			"round":         1,
			"winningDomain": "example.com",
			"totalWeight":   100,
		}),
	}

	ix.IndexEvents(ctx, batch)

	pools := store.Pools()
	contributions := store.Contributions()
	votes := store.Votes()
	distributions := store.Distributions()
	claims := store.Claims()
	results := store.VotingResults()

	// Re-running the fully processed batch must leave derived state untouched.
	ix.IndexEvents(ctx, batch)

	assert.Equal(t, pools, store.Pools())
	assert.Equal(t, contributions, store.Contributions())
	assert.Equal(t, votes, store.Votes())
	assert.Equal(t, distributions, store.Distributions())
	assert.Equal(t, claims, store.Claims())
	assert.Equal(t, results, store.VotingResults())

	counts, err := store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(batch)), counts[database.StatusProcessed])
}

func TestIndexEventUnknownTypeSkipped(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemStore()
	ix := New(store, nil)

	unknown := rawEvent(t, 1, "NAME_TOKENIZED", map[string]interface{}{
		"name": "example.com",
	})
	require.NoError(t, ix.IndexEvent(ctx, unknown))

	// Stored raw, marked processed so it never stalls the cursor.
	event, err := store.GetByUniqueID(ctx, unknown.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, database.StatusProcessed, event.ProcessingStatus)
	assert.Empty(t, store.Pools())
	assert.Equal(t, uint64(1), ix.metrics.Snapshot().Skipped)
}

func TestIndexEventFailedEventIsRetriedOnRedelivery(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemStore()
	ix := New(store, nil)

	// Contribution to an unknown pool projects fine (aggregate no-ops),
	// so use a malformed payload, then redeliver a corrected one under
	// the same unique id - as a manual re-index would.
	bad := feed.RawEvent{
		EventID:   1,
		UniqueID:  "evt-retry-1",
		EventType: EventVoteCast,
		EventData: json.RawMessage(`{malformed`),
	}
	require.Error(t, ix.IndexEvent(ctx, bad))

	fixed := bad
	fixed.EventData = json.RawMessage(`{"poolAddress":"` + testPool + `","voter":"` + testVoter + `","domainName":"example.com","weight":10}`)
	require.NoError(t, ix.IndexEvent(ctx, fixed))

	event, err := store.GetByUniqueID(ctx, bad.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusProcessed, event.ProcessingStatus)
	require.Len(t, store.Votes(), 1)
}
