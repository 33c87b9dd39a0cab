package indexer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/domadao/event-indexer/boff"
	"github.com/domadao/event-indexer/config"
	"github.com/domadao/event-indexer/database"
	"github.com/domadao/event-indexer/feed"
	"github.com/domadao/event-indexer/logger"
)

// FeedClient is the slice of the poll API the consumer needs.
type FeedClient interface {
	FetchBatch(ctx context.Context, afterID uint64, batchSize int) ([]feed.RawEvent, error)
	Acknowledge(ctx context.Context, eventID uint64) error
}

// Consumer orchestrates the poll -> index -> acknowledge cycle. It is the
// sole writer to the cursor; run at most one instance per cursor row.
type Consumer struct {
	client  FeedClient
	store   database.Store
	indexer *Indexer
	params  config.ConsumerConfig
	metrics *Metrics
}

func NewConsumer(client FeedClient, store database.Store, params config.ConsumerConfig) *Consumer {
	metrics := NewMetrics()

	return &Consumer{
		client:  client,
		store:   store,
		indexer: New(store, metrics),
		params:  params,
		metrics: metrics,
	}
}

func (c *Consumer) Metrics() *Metrics {
	return c.metrics
}

// Run loops until ctx is cancelled (graceful stop, returns nil) or the feed
// rejects our credentials (fatal, returns the error). Transport failures
// back off exponentially up to the configured cap; everything else retries
// on the next poll interval. Cancellation is honored at suspension points
// only, never mid-transaction.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("Consumer starting: batch size %d, poll interval %v",
		c.params.BatchSize, c.params.PollInterval())

	fetchBackoff := boff.New(c.params.BackoffInitial(), c.params.BackoffMax())

	for {
		if ctx.Err() != nil {
			logger.Info("Consumer stopped")
			return nil
		}

		lastAcked, err := c.store.LastAcknowledgedID(ctx)
		if err != nil {
			// No progress is possible without durable cursor state.
			logger.Error("Cursor read failed: %s", err)
			c.metrics.setLastError(err.Error())
			if !c.sleep(ctx, c.params.PollInterval()) {
				return nil
			}
			continue
		}

		batch, err := c.client.FetchBatch(ctx, lastAcked, c.params.BatchSize)
		if err != nil {
			var authErr *feed.AuthError
			if errors.As(err, &authErr) {
				logger.Error("Feed rejected credentials, stopping: %s", err)
				c.metrics.setLastError(err.Error())
				return errors.Wrap(err, "Run")
			}

			delay := fetchBackoff.NextBackOff()
			logger.Warn("Fetch failed: %s - retrying in %v", err, delay)
			c.metrics.setLastError(err.Error())
			if !c.sleep(ctx, delay) {
				return nil
			}
			continue
		}
		fetchBackoff.Reset()
		c.metrics.cycles.Add(1)

		if len(batch) == 0 {
			if !c.sleep(ctx, c.params.PollInterval()) {
				return nil
			}
			continue
		}
		c.metrics.fetched.Add(uint64(len(batch)))

		c.indexer.IndexEvents(ctx, batch)

		ackTo, stalled, err := c.resolvedUpTo(ctx, lastAcked, batch)
		if err != nil {
			logger.Error("Cursor advance check failed: %s", err)
			c.metrics.setLastError(err.Error())
			if !c.sleep(ctx, c.params.PollInterval()) {
				return nil
			}
			continue
		}
		if stalled {
			logger.Debug("Cursor stalled at %d awaiting unresolved events", ackTo)
		}

		if ackTo > lastAcked {
			if err := c.store.SetLastAcknowledgedID(ctx, ackTo); err != nil {
				logger.Error("Cursor update failed: %s", err)
				c.metrics.setLastError(err.Error())
				if !c.sleep(ctx, c.params.PollInterval()) {
					return nil
				}
				continue
			}
			c.metrics.lastAcked.Store(ackTo)

			// Best effort: the local cursor is authoritative for resumption.
			if err := c.client.Acknowledge(ctx, ackTo); err != nil {
				logger.Warn("Upstream acknowledge failed (ignored): %s", err)
			}
		}

		if !c.sleep(ctx, c.params.PollInterval()) {
			return nil
		}
	}
}

// resolvedUpTo scans the batch in delivery order (ascending event id) and
// returns the highest event id up to which every event reached a terminal
// status. The scan stops at the first unresolved event: the cursor never
// skips past pending work, preserving at-least-once on restart.
func (c *Consumer) resolvedUpTo(
	ctx context.Context, lastAcked uint64, batch []feed.RawEvent,
) (ackTo uint64, stalled bool, err error) {
	ackTo = lastAcked
	for i := range batch {
		event, err := c.store.GetByUniqueID(ctx, batch[i].UniqueID)
		if err != nil {
			return ackTo, true, err
		}
		if event == nil || !event.Terminal(c.params.MaxRetries) {
			return ackTo, true, nil
		}
		ackTo = batch[i].EventID
	}

	return ackTo, false, nil
}

// sleep waits d or until cancellation; false means stop.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
