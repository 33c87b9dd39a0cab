package database

import (
	"time"
)

// Processing status of a raw event. Transitions: pending -> processed or
// pending -> failed. Failed events keep their raw payload and stay eligible
// for re-indexing.
const (
	StatusPending   string = "pending"
	StatusProcessed string = "processed"
	StatusFailed    string = "failed"
)

// CursorID pins the cursor table to a single row.
const CursorID uint64 = 1

// BaseEntity is an abstract entity, all other entities should be derived from it
type BaseEntity struct {
	ID uint64 `gorm:"primaryKey"`
}

// Event is the append-only record of a raw feed event. UniqueID is the
// idempotency key; EventID is the feed-assigned cursor position.
type Event struct {
	BaseEntity
	EventID          uint64 `gorm:"index"`
	UniqueID         string `gorm:"type:varchar(128);uniqueIndex"`
	CorrelationID    string `gorm:"type:varchar(128)"`
	RelayID          string `gorm:"type:varchar(128)"`
	EventType        string `gorm:"type:varchar(64);index"`
	Name             string `gorm:"type:varchar(255);index"`
	TokenID          string `gorm:"type:varchar(128)"`
	NetworkID        string `gorm:"type:varchar(64)"`
	ChainID          uint64
	TxHash           string `gorm:"type:varchar(66)"`
	BlockNumber      uint64
	LogIndex         uint64
	Finalized        bool
	EventData        string `gorm:"type:mediumtext"`
	ProcessingStatus string `gorm:"type:varchar(16);index;default:pending"`
	RetryCount       uint
	ErrorMessage     string `gorm:"type:varchar(1000)"`
	CreatedAt        time.Time
	ProcessedAt      *time.Time
}

// Cursor records the highest feed event id that is fully processed and safe
// to resume from. Exactly one row exists, with ID = CursorID.
type Cursor struct {
	ID                 uint64 `gorm:"primaryKey"`
	LastAcknowledgedID uint64
	Updated            time.Time
}

type Pool struct {
	BaseEntity
	Address           string `gorm:"type:varchar(42);uniqueIndex"`
	Creator           string `gorm:"type:varchar(42)"`
	DomainName        string `gorm:"type:varchar(255)"`
	TargetAmount      uint64
	TotalRaised       uint64
	ContributionCount uint64
	CreatedAt         time.Time
}

type Contribution struct {
	BaseEntity
	TxHash        string `gorm:"type:varchar(66);uniqueIndex"`
	PoolAddress   string `gorm:"type:varchar(42);index"`
	Contributor   string `gorm:"type:varchar(42)"`
	Amount        uint64
	BlockNumber   uint64
	ContributedAt time.Time
}

type Vote struct {
	BaseEntity
	PoolAddress string `gorm:"type:varchar(42);uniqueIndex:idx_vote_key"`
	Voter       string `gorm:"type:varchar(42);uniqueIndex:idx_vote_key"`
	DomainName  string `gorm:"type:varchar(255);uniqueIndex:idx_vote_key"`
	Weight      uint64
	UpdatedAt   time.Time
}

type VotingResult struct {
	BaseEntity
	PoolAddress   string `gorm:"type:varchar(42);uniqueIndex:idx_voting_result_key"`
	Round         uint64 `gorm:"uniqueIndex:idx_voting_result_key"`
	WinningDomain string `gorm:"type:varchar(255)"`
	TotalWeight   uint64
	FinalizedAt   time.Time
}

type Distribution struct {
	BaseEntity
	PoolAddress    string `gorm:"type:varchar(42);uniqueIndex:idx_distribution_key"`
	DistributionID uint64 `gorm:"uniqueIndex:idx_distribution_key"`
	TotalAmount    uint64
	TxHash         string `gorm:"type:varchar(66)"`
	DistributedAt  time.Time
}

type Claim struct {
	BaseEntity
	TxHash         string `gorm:"type:varchar(66);uniqueIndex"`
	PoolAddress    string `gorm:"type:varchar(42);index"`
	DistributionID uint64
	Claimer        string `gorm:"type:varchar(42)"`
	Amount         uint64
	ClaimedAt      time.Time
}

// Terminal reports whether the event no longer blocks cursor advancement:
// either processed, or failed with no retries left.
func (e *Event) Terminal(maxRetries uint) bool {
	switch e.ProcessingStatus {
	case StatusProcessed:
		return true
	case StatusFailed:
		return e.RetryCount >= maxRetries
	default:
		return false
	}
}
