package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventStore persists raw feed events idempotently. Duplicate deliveries
// are expected under at-least-once semantics and must not raise.
type EventStore interface {
	// InsertRaw stores an event keyed by its unique id, ignoring duplicates.
	// The returned flag distinguishes first sight from redelivery.
	InsertRaw(ctx context.Context, event *Event) (inserted bool, err error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*Event, error)
	MarkProcessed(ctx context.Context, uniqueID string) error
	MarkFailed(ctx context.Context, uniqueID string, errMsg string) error
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

// CursorStore is the durable record of the last acknowledged feed position.
// SetLastAcknowledgedID must only be called once every event at or below id
// has reached a terminal processing status; the consumer enforces this.
type CursorStore interface {
	LastAcknowledgedID(ctx context.Context) (uint64, error)
	SetLastAcknowledgedID(ctx context.Context, id uint64) error
}

// ProjectionStore is the unit of work handed to event handlers. All writes
// made through one instance commit or roll back together.
type ProjectionStore interface {
	// CreatePool inserts a pool, ignoring duplicates by address.
	CreatePool(ctx context.Context, pool *Pool) error
	// AddContribution inserts a contribution keyed by tx hash and, only on
	// first insert, accumulates the pool's running totals.
	AddContribution(ctx context.Context, contribution *Contribution) error
	// AccumulateVote inserts a vote row or adds the weight to the existing
	// row for the same (pool, voter, domain) key.
	AccumulateVote(ctx context.Context, vote *Vote) error
	RecordVotingResult(ctx context.Context, result *VotingResult) error
	AddDistribution(ctx context.Context, distribution *Distribution) error
	AddClaim(ctx context.Context, claim *Claim) error
}

// Store is the full persistence surface used by the indexer and consumer.
type Store interface {
	EventStore
	CursorStore
	Transact(ctx context.Context, fn func(ProjectionStore) error) error
}

// DBStore implements Store on top of GORM/MySQL.
type DBStore struct {
	db *gorm.DB
}

var (
	_ Store           = (*DBStore)(nil)
	_ ProjectionStore = (*DBStore)(nil)
)

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) InsertRaw(ctx context.Context, event *Event) (bool, error) {
	if event.ProcessingStatus == "" {
		event.ProcessingStatus = StatusPending
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "InsertRaw")
	}

	return res.RowsAffected > 0, nil
}

func (s *DBStore) GetByUniqueID(ctx context.Context, uniqueID string) (*Event, error) {
	var event Event
	err := s.db.WithContext(ctx).Where(&Event{UniqueID: uniqueID}).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "GetByUniqueID")
	}

	return &event, nil
}

func (s *DBStore) MarkProcessed(ctx context.Context, uniqueID string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&Event{}).
		Where("unique_id = ?", uniqueID).
		Updates(map[string]interface{}{
			"processing_status": StatusProcessed,
			"error_message":     "",
			"processed_at":      &now,
		}).Error

	return errors.Wrap(err, "MarkProcessed")
}

func (s *DBStore) MarkFailed(ctx context.Context, uniqueID string, errMsg string) error {
	err := s.db.WithContext(ctx).
		Model(&Event{}).
		Where("unique_id = ?", uniqueID).
		Updates(map[string]interface{}{
			"processing_status": StatusFailed,
			"retry_count":       gorm.Expr("retry_count + 1"),
			"error_message":     errMsg,
		}).Error

	return errors.Wrap(err, "MarkFailed")
}

func (s *DBStore) StatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		ProcessingStatus string
		Count            int64
	}
	err := s.db.WithContext(ctx).
		Model(&Event{}).
		Select("processing_status, count(*) as count").
		Group("processing_status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "StatusCounts")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ProcessingStatus] = row.Count
	}

	return counts, nil
}

func (s *DBStore) LastAcknowledgedID(ctx context.Context) (uint64, error) {
	var cursor Cursor
	err := s.db.WithContext(ctx).First(&cursor, CursorID).Error
	if err != nil {
		return 0, errors.Wrap(err, "LastAcknowledgedID")
	}

	return cursor.LastAcknowledgedID, nil
}

func (s *DBStore) SetLastAcknowledgedID(ctx context.Context, id uint64) error {
	err := s.db.WithContext(ctx).
		Model(&Cursor{}).
		Where("id = ?", CursorID).
		Updates(map[string]interface{}{
			"last_acknowledged_id": id,
			"updated":              time.Now(),
		}).Error

	return errors.Wrap(err, "SetLastAcknowledgedID")
}

func (s *DBStore) Transact(ctx context.Context, fn func(ProjectionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DBStore{db: tx})
	})
}

func (s *DBStore) CreatePool(ctx context.Context, pool *Pool) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(pool).Error

	return errors.Wrap(err, "CreatePool")
}

func (s *DBStore) AddContribution(ctx context.Context, contribution *Contribution) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}},
			DoNothing: true,
		}).
		Create(contribution)
	if res.Error != nil {
		return errors.Wrap(res.Error, "AddContribution")
	}

	// The aggregate moves only on first insert, never on redelivery.
	if res.RowsAffected == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&Pool{}).
		Where("address = ?", contribution.PoolAddress).
		Updates(map[string]interface{}{
			"total_raised":       gorm.Expr("total_raised + ?", contribution.Amount),
			"contribution_count": gorm.Expr("contribution_count + 1"),
		}).Error

	return errors.Wrap(err, "AddContribution: pool totals")
}

func (s *DBStore) AccumulateVote(ctx context.Context, vote *Vote) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "pool_address"}, {Name: "voter"}, {Name: "domain_name"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"weight":     gorm.Expr("weight + VALUES(weight)"),
				"updated_at": time.Now(),
			}),
		}).
		Create(vote).Error

	return errors.Wrap(err, "AccumulateVote")
}

func (s *DBStore) RecordVotingResult(ctx context.Context, result *VotingResult) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pool_address"}, {Name: "round"}},
			DoNothing: true,
		}).
		Create(result).Error

	return errors.Wrap(err, "RecordVotingResult")
}

func (s *DBStore) AddDistribution(ctx context.Context, distribution *Distribution) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pool_address"}, {Name: "distribution_id"}},
			DoNothing: true,
		}).
		Create(distribution).Error

	return errors.Wrap(err, "AddDistribution")
}

func (s *DBStore) AddClaim(ctx context.Context, claim *Claim) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}},
			DoNothing: true,
		}).
		Create(claim).Error

	return errors.Wrap(err, "AddClaim")
}
