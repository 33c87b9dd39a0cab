package indexer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domadao/event-indexer/config"
	"github.com/domadao/event-indexer/database"
	"github.com/domadao/event-indexer/feed"
	indexertesting "github.com/domadao/event-indexer/testing"
)

func testConsumerConfig() config.ConsumerConfig {
	return config.ConsumerConfig{
		BatchSize:          10,
		PollIntervalMillis: 5,
		MaxRetries:         3,
		BackoffInitMillis:  1,
		BackoffMaxMillis:   20,
	}
}

func newTestClient(t *testing.T, mock *indexertesting.MockFeed) *feed.Client {
	t.Helper()

	client, err := feed.NewClient(&config.FeedConfig{
		BaseURL:       mock.URL(),
		APIKey:        "test-key",
		TimeoutMillis: 1000,
	})
	require.NoError(t, err)

	return client
}

func startConsumer(ctx context.Context, consumer *Consumer) chan error {
	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(ctx)
	}()

	return done
}

func stopConsumer(t *testing.T, cancel context.CancelFunc, done chan error) {
	t.Helper()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerProcessesAndAcknowledges(t *testing.T) {
	mock := indexertesting.NewMockFeed(
		poolCreatedEvent(t, 1),
		contributionEvent(t, 2, 500),
		contributionEvent(t, 3, 250),
	)
	defer mock.Close()

	store := database.NewMemStore()
	consumer := NewConsumer(newTestClient(t, mock), store, testConsumerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := startConsumer(ctx, consumer)

	require.Eventually(t, func() bool {
		id, err := store.LastAcknowledgedID(context.Background())
		return err == nil && id == 3
	}, 5*time.Second, 5*time.Millisecond)

	stopConsumer(t, cancel, done)

	pools := store.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, uint64(750), pools[0].TotalRaised)

	acks := mock.Acks()
	require.NotEmpty(t, acks)
	assert.Equal(t, uint64(3), acks[len(acks)-1])
}

func TestConsumerCursorStallsAtUnresolvedEvent(t *testing.T) {
	bad := feed.RawEvent{
		EventID:   11,
		UniqueID:  "evt-stall-11",
		EventType: EventVoteCast,
		EventData: json.RawMessage(`{malformed`),
	}
	mock := indexertesting.NewMockFeed(
		poolCreatedEvent(t, 10),
		bad,
		contributionEvent(t, 12, 100),
	)
	defer mock.Close()

	params := testConsumerConfig()
	params.MaxRetries = 1000 // keep event 11 unresolved for the whole test

	store := database.NewMemStore()
	consumer := NewConsumer(newTestClient(t, mock), store, params)

	ctx, cancel := context.WithCancel(context.Background())
	done := startConsumer(ctx, consumer)

	require.Eventually(t, func() bool {
		id, err := store.LastAcknowledgedID(context.Background())
		return err == nil && id == 10
	}, 5*time.Second, 5*time.Millisecond)

	// Events 10 and 12 both reach processed, but the cursor must not skip
	// past the unresolved event 11.
	require.Eventually(t, func() bool {
		event, err := store.GetByUniqueID(context.Background(), "evt-ContributionMade-12")
		return err == nil && event != nil && event.ProcessingStatus == database.StatusProcessed
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	id, err := store.LastAcknowledgedID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), id)

	stopConsumer(t, cancel, done)
}

func TestConsumerAdvancesPastPermanentlyFailedEvent(t *testing.T) {
	bad := feed.RawEvent{
		EventID:   11,
		UniqueID:  "evt-perm-11",
		EventType: EventVoteCast,
		EventData: json.RawMessage(`{malformed`),
	}
	mock := indexertesting.NewMockFeed(
		poolCreatedEvent(t, 10),
		bad,
		contributionEvent(t, 12, 100),
	)
	defer mock.Close()

	params := testConsumerConfig()
	params.MaxRetries = 2

	store := database.NewMemStore()
	consumer := NewConsumer(newTestClient(t, mock), store, params)

	ctx, cancel := context.WithCancel(context.Background())
	done := startConsumer(ctx, consumer)

	// Redeliveries exhaust the retry budget; once event 11 is terminal the
	// cursor moves to 12.
	require.Eventually(t, func() bool {
		id, err := store.LastAcknowledgedID(context.Background())
		return err == nil && id == 12
	}, 5*time.Second, 5*time.Millisecond)

	event, err := store.GetByUniqueID(context.Background(), bad.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, database.StatusFailed, event.ProcessingStatus)
	assert.GreaterOrEqual(t, event.RetryCount, uint(2))

	stopConsumer(t, cancel, done)
}

func TestConsumerAuthErrorIsFatal(t *testing.T) {
	mock := indexertesting.NewMockFeed()
	defer mock.Close()
	mock.SetUnauthorized(true)

	store := database.NewMemStore()
	consumer := NewConsumer(newTestClient(t, mock), store, testConsumerConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := consumer.Run(ctx)
	require.Error(t, err)

	var authErr *feed.AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestConsumerRecoversFromTransportErrors(t *testing.T) {
	mock := indexertesting.NewMockFeed(poolCreatedEvent(t, 1))
	defer mock.Close()
	mock.FailNextFetches(2)

	store := database.NewMemStore()
	consumer := NewConsumer(newTestClient(t, mock), store, testConsumerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := startConsumer(ctx, consumer)

	require.Eventually(t, func() bool {
		id, err := store.LastAcknowledgedID(context.Background())
		return err == nil && id == 1
	}, 5*time.Second, 5*time.Millisecond)

	stopConsumer(t, cancel, done)

	assert.Len(t, store.Pools(), 1)
}

func TestConsumerEmptyBatchDoesNotAdvance(t *testing.T) {
	mock := indexertesting.NewMockFeed()
	defer mock.Close()

	store := database.NewMemStore()
	require.NoError(t, store.SetLastAcknowledgedID(context.Background(), 42))

	consumer := NewConsumer(newTestClient(t, mock), store, testConsumerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := startConsumer(ctx, consumer)

	time.Sleep(50 * time.Millisecond)
	stopConsumer(t, cancel, done)

	id, err := store.LastAcknowledgedID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Empty(t, mock.Acks())
}
