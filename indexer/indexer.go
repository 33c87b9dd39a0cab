// Package indexer turns raw feed events into derived relational state and
// drives the poll-index-acknowledge cycle against the upstream feed.
package indexer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/domadao/event-indexer/database"
	"github.com/domadao/event-indexer/feed"
	"github.com/domadao/event-indexer/logger"
)

// Event types projected into derived state. Pool lifecycle events come from
// the DomaDAO contracts; NAME_* marketplace lifecycle events are stored raw
// for replay but carry no projection.
const (
	EventPoolCreated        = "PoolCreated"
	EventContributionMade   = "ContributionMade"
	EventVoteCast           = "VoteCast"
	EventVotingFinalized    = "VotingFinalized"
	EventRevenueDistributed = "RevenueDistributed"
	EventRevenueClaimed     = "RevenueClaimed"
)

type handlerFunc func(ctx context.Context, tx database.ProjectionStore, event *database.Event) error

// The dispatch table is built once, in a single place. Adding an event type
// means adding exactly one entry here; anything absent takes the logged
// skip path in IndexEvent.
var handlers = map[string]handlerFunc{
	EventPoolCreated:        handlePoolCreated,
	EventContributionMade:   handleContributionMade,
	EventVoteCast:           handleVoteCast,
	EventVotingFinalized:    handleVotingFinalized,
	EventRevenueDistributed: handleRevenueDistributed,
	EventRevenueClaimed:     handleRevenueClaimed,
}

// Indexer idempotently projects raw events into derived state.
type Indexer struct {
	store   database.Store
	metrics *Metrics
}

func New(store database.Store, metrics *Metrics) *Indexer {
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Indexer{store: store, metrics: metrics}
}

// IndexEvent projects one event. Safe under at-least-once redelivery:
// an event already processed is a no-op, an event previously failed is
// re-projected. The projection and its aggregate updates run in a single
// transaction; on failure the raw event stays stored but unindexed.
func (ix *Indexer) IndexEvent(ctx context.Context, raw feed.RawEvent) error {
	existing, err := ix.store.GetByUniqueID(ctx, raw.UniqueID)
	if err != nil {
		return errors.Wrap(err, "IndexEvent")
	}
	if existing != nil && existing.ProcessingStatus == database.StatusProcessed {
		return nil
	}

	event := raw.ToEvent()
	if existing == nil {
		if _, err := ix.store.InsertRaw(ctx, event); err != nil {
			return errors.Wrap(err, "IndexEvent")
		}
	}

	handler, ok := handlers[event.EventType]
	if !ok {
		logger.Debug("No projection for event type %s (id %d), skipping", event.EventType, event.EventID)
		ix.metrics.skipped.Add(1)
		return errors.Wrap(ix.store.MarkProcessed(ctx, event.UniqueID), "IndexEvent")
	}

	err = ix.store.Transact(ctx, func(tx database.ProjectionStore) error {
		return handler(ctx, tx, event)
	})
	if err != nil {
		if markErr := ix.store.MarkFailed(ctx, event.UniqueID, err.Error()); markErr != nil {
			logger.Error("Failed to mark event %s as failed: %s", event.UniqueID, markErr)
		}
		ix.metrics.failed.Add(1)
		return errors.Wrapf(err, "IndexEvent %s", event.UniqueID)
	}

	if err := ix.store.MarkProcessed(ctx, event.UniqueID); err != nil {
		return errors.Wrap(err, "IndexEvent")
	}
	ix.metrics.processed.Add(1)

	return nil
}

// IndexEvents runs the batch with per-event failure isolation: one bad
// event is logged and marked failed, the rest continue. Outcomes are
// observable through processing statuses, not a return value.
func (ix *Indexer) IndexEvents(ctx context.Context, batch []feed.RawEvent) {
	for i := range batch {
		if ctx.Err() != nil {
			return
		}

		if err := ix.IndexEvent(ctx, batch[i]); err != nil {
			logger.Error("Indexing event %d (%s) failed: %s",
				batch[i].EventID, batch[i].EventType, err)
		}
	}
}

func handlePoolCreated(ctx context.Context, tx database.ProjectionStore, event *database.Event) error {
	var payload poolCreatedPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}
	if payload.PoolAddress == "" {
		return errors.Errorf("PoolCreated event %s missing pool address", event.UniqueID)
	}

	return tx.CreatePool(ctx, &database.Pool{
		Address:      feed.NormalizeAddress(payload.PoolAddress),
		Creator:      feed.NormalizeAddress(payload.Creator),
		DomainName:   payload.DomainName,
		TargetAmount: payload.TargetAmount,
		CreatedAt:    time.Now(),
	})
}

func handleContributionMade(ctx context.Context, tx database.ProjectionStore, event *database.Event) error {
	var payload contributionMadePayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}
	if event.TxHash == "" {
		return errors.Errorf("ContributionMade event %s missing tx hash", event.UniqueID)
	}
	if payload.PoolAddress == "" {
		return errors.Errorf("ContributionMade event %s missing pool address", event.UniqueID)
	}

	return tx.AddContribution(ctx, &database.Contribution{
		TxHash:        event.TxHash,
		PoolAddress:   feed.NormalizeAddress(payload.PoolAddress),
		Contributor:   feed.NormalizeAddress(payload.Contributor),
		Amount:        payload.Amount,
		BlockNumber:   event.BlockNumber,
		ContributedAt: time.Now(),
	})
}

func handleVoteCast(ctx context.Context, tx database.ProjectionStore, event *database.Event) error {
	var payload voteCastPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}
	if payload.PoolAddress == "" || payload.Voter == "" {
		return errors.Errorf("VoteCast event %s missing vote key fields", event.UniqueID)
	}

	// Weight accumulates additively on conflict: a voter may split one
	// allocation over several partial votes for the same domain.
	return tx.AccumulateVote(ctx, &database.Vote{
		PoolAddress: feed.NormalizeAddress(payload.PoolAddress),
		Voter:       feed.NormalizeAddress(payload.Voter),
		DomainName:  payload.DomainName,
		Weight:      payload.Weight,
		UpdatedAt:   time.Now(),
	})
}

func handleVotingFinalized(ctx context.Context, tx database.ProjectionStore, event *database.Event) error {
	var payload votingFinalizedPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}
	if payload.PoolAddress == "" {
		return errors.Errorf("VotingFinalized event %s missing pool address", event.UniqueID)
	}

	return tx.RecordVotingResult(ctx, &database.VotingResult{
		PoolAddress:   feed.NormalizeAddress(payload.PoolAddress),
		Round:         payload.Round,
		WinningDomain: payload.WinningDomain,
		TotalWeight:   payload.TotalWeight,
		FinalizedAt:   time.Now(),
	})
}

func handleRevenueDistributed(ctx context.Context, tx database.ProjectionStore, event *database.Event) error {
	var payload revenueDistributedPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}
	if payload.PoolAddress == "" {
		return errors.Errorf("RevenueDistributed event %s missing pool address", event.UniqueID)
	}

	return tx.AddDistribution(ctx, &database.Distribution{
		PoolAddress:    feed.NormalizeAddress(payload.PoolAddress),
		DistributionID: payload.DistributionID,
		TotalAmount:    payload.TotalAmount,
		TxHash:         event.TxHash,
		DistributedAt:  time.Now(),
	})
}

func handleRevenueClaimed(ctx context.Context, tx database.ProjectionStore, event *database.Event) error {
	var payload revenueClaimedPayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}
	if event.TxHash == "" {
		return errors.Errorf("RevenueClaimed event %s missing tx hash", event.UniqueID)
	}

	return tx.AddClaim(ctx, &database.Claim{
		TxHash:         event.TxHash,
		PoolAddress:    feed.NormalizeAddress(payload.PoolAddress),
		DistributionID: payload.DistributionID,
		Claimer:        feed.NormalizeAddress(payload.Claimer),
		Amount:         payload.Amount,
		ClaimedAt:      time.Now(),
	})
}
