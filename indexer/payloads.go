package indexer

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/domadao/event-indexer/database"
)

// Typed views of the opaque eventData payload, one per handled event type.
// The raw JSON is always preserved verbatim on the stored event; these only
// exist for projection.

type poolCreatedPayload struct {
	PoolAddress  string `json:"poolAddress"`
	Creator      string `json:"creator"`
	DomainName   string `json:"domainName"`
	TargetAmount uint64 `json:"targetAmount"`
}

type contributionMadePayload struct {
	PoolAddress string `json:"poolAddress"`
	Contributor string `json:"contributor"`
	Amount      uint64 `json:"amount"`
}

type voteCastPayload struct {
	PoolAddress string `json:"poolAddress"`
	Voter       string `json:"voter"`
	DomainName  string `json:"domainName"`
	Weight      uint64 `json:"weight"`
}

type votingFinalizedPayload struct {
	PoolAddress   string `json:"poolAddress"`
	Round         uint64 `json:"round"`
	WinningDomain string `json:"winningDomain"`
	TotalWeight   uint64 `json:"totalWeight"`
}

type revenueDistributedPayload struct {
	PoolAddress    string `json:"poolAddress"`
	DistributionID uint64 `json:"distributionId"`
	TotalAmount    uint64 `json:"totalAmount"`
}

type revenueClaimedPayload struct {
	PoolAddress    string `json:"poolAddress"`
	DistributionID uint64 `json:"distributionId"`
	Claimer        string `json:"claimer"`
	Amount         uint64 `json:"amount"`
}

func decodePayload(event *database.Event, dst interface{}) error {
	if len(event.EventData) == 0 {
		return errors.Errorf("event %s has no payload", event.UniqueID)
	}

	if err := json.Unmarshal([]byte(event.EventData), dst); err != nil {
		return errors.Wrapf(err, "malformed payload for event %s", event.UniqueID)
	}

	return nil
}
