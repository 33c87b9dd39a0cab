package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by unit tests and local development.
// It mirrors the transactional semantics of DBStore: projection writes made
// inside Transact become visible only if the function returns nil.
type MemStore struct {
	mu sync.Mutex

	events        map[string]*Event
	nextEventID   uint64
	lastAckedID   uint64
	pools         map[string]*Pool
	contributions map[string]*Contribution
	votes         map[string]*Vote
	results       map[string]*VotingResult
	distributions map[string]*Distribution
	claims        map[string]*Claim
}

var (
	_ Store           = (*MemStore)(nil)
	_ ProjectionStore = (*memProjection)(nil)
)

func NewMemStore() *MemStore {
	return &MemStore{
		events:        make(map[string]*Event),
		nextEventID:   1,
		pools:         make(map[string]*Pool),
		contributions: make(map[string]*Contribution),
		votes:         make(map[string]*Vote),
		results:       make(map[string]*VotingResult),
		distributions: make(map[string]*Distribution),
		claims:        make(map[string]*Claim),
	}
}

func voteKey(poolAddress, voter, domainName string) string {
	return fmt.Sprintf("%s|%s|%s", poolAddress, voter, domainName)
}

func (s *MemStore) InsertRaw(_ context.Context, event *Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.UniqueID]; ok {
		return false, nil
	}

	stored := *event
	if stored.ProcessingStatus == "" {
		stored.ProcessingStatus = StatusPending
	}
	stored.ID = s.nextEventID
	stored.CreatedAt = time.Now()
	s.nextEventID++
	s.events[event.UniqueID] = &stored

	return true, nil
}

func (s *MemStore) GetByUniqueID(_ context.Context, uniqueID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[uniqueID]
	if !ok {
		return nil, nil
	}

	copied := *event
	return &copied, nil
}

func (s *MemStore) MarkProcessed(_ context.Context, uniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[uniqueID]
	if !ok {
		return fmt.Errorf("MarkProcessed: unknown event %s", uniqueID)
	}

	now := time.Now()
	event.ProcessingStatus = StatusProcessed
	event.ErrorMessage = ""
	event.ProcessedAt = &now

	return nil
}

func (s *MemStore) MarkFailed(_ context.Context, uniqueID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[uniqueID]
	if !ok {
		return fmt.Errorf("MarkFailed: unknown event %s", uniqueID)
	}

	event.ProcessingStatus = StatusFailed
	event.RetryCount++
	event.ErrorMessage = errMsg

	return nil
}

func (s *MemStore) StatusCounts(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for _, event := range s.events {
		counts[event.ProcessingStatus]++
	}

	return counts, nil
}

func (s *MemStore) LastAcknowledgedID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastAckedID, nil
}

func (s *MemStore) SetLastAcknowledgedID(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAckedID = id
	return nil
}

// Transact runs fn against a staged copy of the projection tables and adopts
// the copy only on success, so a failing handler leaves no partial writes.
func (s *MemStore) Transact(ctx context.Context, fn func(ProjectionStore) error) error {
	s.mu.Lock()
	staged := &memProjection{
		pools:         clone(s.pools),
		contributions: clone(s.contributions),
		votes:         clone(s.votes),
		results:       clone(s.results),
		distributions: clone(s.distributions),
		claims:        clone(s.claims),
	}
	s.mu.Unlock()

	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	s.pools = staged.pools
	s.contributions = staged.contributions
	s.votes = staged.votes
	s.results = staged.results
	s.distributions = staged.distributions
	s.claims = staged.claims
	s.mu.Unlock()

	return nil
}

// Pools returns all pools sorted by address, for test assertions.
func (s *MemStore) Pools() []Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make([]Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		pools = append(pools, *pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Address < pools[j].Address })

	return pools
}

func (s *MemStore) Contributions() []Contribution {
	s.mu.Lock()
	defer s.mu.Unlock()

	contributions := make([]Contribution, 0, len(s.contributions))
	for _, c := range s.contributions {
		contributions = append(contributions, *c)
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].TxHash < contributions[j].TxHash
	})

	return contributions
}

func (s *MemStore) Votes() []Vote {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes := make([]Vote, 0, len(s.votes))
	for _, v := range s.votes {
		votes = append(votes, *v)
	}
	sort.Slice(votes, func(i, j int) bool {
		return voteKey(votes[i].PoolAddress, votes[i].Voter, votes[i].DomainName) <
			voteKey(votes[j].PoolAddress, votes[j].Voter, votes[j].DomainName)
	})

	return votes
}

func (s *MemStore) Distributions() []Distribution {
	s.mu.Lock()
	defer s.mu.Unlock()

	distributions := make([]Distribution, 0, len(s.distributions))
	for _, d := range s.distributions {
		distributions = append(distributions, *d)
	}
	sort.Slice(distributions, func(i, j int) bool {
		if distributions[i].PoolAddress != distributions[j].PoolAddress {
			return distributions[i].PoolAddress < distributions[j].PoolAddress
		}
		return distributions[i].DistributionID < distributions[j].DistributionID
	})

	return distributions
}

func (s *MemStore) VotingResults() []VotingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]VotingResult, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].PoolAddress != results[j].PoolAddress {
			return results[i].PoolAddress < results[j].PoolAddress
		}
		return results[i].Round < results[j].Round
	})

	return results
}

func (s *MemStore) Claims() []Claim {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims := make([]Claim, 0, len(s.claims))
	for _, c := range s.claims {
		claims = append(claims, *c)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].TxHash < claims[j].TxHash })

	return claims
}

func clone[V any](src map[string]*V) map[string]*V {
	dst := make(map[string]*V, len(src))
	for k, v := range src {
		copied := *v
		dst[k] = &copied
	}
	return dst
}

// memProjection is the staged unit of work produced by MemStore.Transact.
type memProjection struct {
	pools         map[string]*Pool
	contributions map[string]*Contribution
	votes         map[string]*Vote
	results       map[string]*VotingResult
	distributions map[string]*Distribution
	claims        map[string]*Claim
}

func (p *memProjection) CreatePool(_ context.Context, pool *Pool) error {
	if _, ok := p.pools[pool.Address]; ok {
		return nil
	}

	copied := *pool
	p.pools[pool.Address] = &copied
	return nil
}

func (p *memProjection) AddContribution(_ context.Context, contribution *Contribution) error {
	if _, ok := p.contributions[contribution.TxHash]; ok {
		return nil
	}

	copied := *contribution
	p.contributions[contribution.TxHash] = &copied

	if pool, ok := p.pools[contribution.PoolAddress]; ok {
		pool.TotalRaised += contribution.Amount
		pool.ContributionCount++
	}

	return nil
}

func (p *memProjection) AccumulateVote(_ context.Context, vote *Vote) error {
	key := voteKey(vote.PoolAddress, vote.Voter, vote.DomainName)
	if existing, ok := p.votes[key]; ok {
		existing.Weight += vote.Weight
		existing.UpdatedAt = time.Now()
		return nil
	}

	copied := *vote
	p.votes[key] = &copied
	return nil
}

func (p *memProjection) RecordVotingResult(_ context.Context, result *VotingResult) error {
	key := fmt.Sprintf("%s|%d", result.PoolAddress, result.Round)
	if _, ok := p.results[key]; ok {
		return nil
	}

	copied := *result
	p.results[key] = &copied
	return nil
}

func (p *memProjection) AddDistribution(_ context.Context, distribution *Distribution) error {
	key := fmt.Sprintf("%s|%d", distribution.PoolAddress, distribution.DistributionID)
	if _, ok := p.distributions[key]; ok {
		return nil
	}

	copied := *distribution
	p.distributions[key] = &copied
	return nil
}

func (p *memProjection) AddClaim(_ context.Context, claim *Claim) error {
	if _, ok := p.claims[claim.TxHash]; ok {
		return nil
	}

	copied := *claim
	p.claims[claim.TxHash] = &copied
	return nil
}
