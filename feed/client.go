// Package feed implements the client side of the upstream event poll API:
// batched fetches ordered by event id, and best-effort acknowledgements
// releasing consumed events upstream.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/domadao/event-indexer/config"
	"github.com/domadao/event-indexer/database"
)

const apiKeyHeader = "X-Api-Key"

// RawEvent mirrors one event object of the feed response.
type RawEvent struct {
	EventID       uint64          `json:"eventId"`
	UniqueID      string          `json:"uniqueId"`
	CorrelationID string          `json:"correlationId"`
	RelayID       string          `json:"relayId"`
	EventType     string          `json:"eventType"`
	Name          string          `json:"name"`
	TokenID       string          `json:"tokenId"`
	NetworkID     string          `json:"networkId"`
	ChainID       uint64          `json:"chainId"`
	TxHash        string          `json:"txHash"`
	BlockNumber   uint64          `json:"blockNumber"`
	LogIndex      uint64          `json:"logIndex"`
	Finalized     bool            `json:"finalized"`
	EventData     json.RawMessage `json:"eventData"`
}

type batchResponse struct {
	Events []RawEvent `json:"events"`
}

// ToEvent converts the wire form to the stored entity, preserving the
// original payload verbatim and normalizing blockchain identifiers.
func (r *RawEvent) ToEvent() *database.Event {
	return &database.Event{
		EventID:          r.EventID,
		UniqueID:         r.UniqueID,
		CorrelationID:    r.CorrelationID,
		RelayID:          r.RelayID,
		EventType:        r.EventType,
		Name:             r.Name,
		TokenID:          r.TokenID,
		NetworkID:        r.NetworkID,
		ChainID:          r.ChainID,
		TxHash:           NormalizeHash(r.TxHash),
		BlockNumber:      r.BlockNumber,
		LogIndex:         r.LogIndex,
		Finalized:        r.Finalized,
		EventData:        string(r.EventData),
		ProcessingStatus: database.StatusPending,
	}
}

type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg *config.FeedConfig) (*Client, error) {
	baseURL, err := cfg.FullURL()
	if err != nil {
		return nil, errors.Wrap(err, "NewClient: invalid feed base URL")
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, errors.Errorf("NewClient: incomplete feed base URL %q", cfg.BaseURL)
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}, nil
}

// FetchBatch returns up to batchSize events with eventId > afterID, in the
// order the feed delivered them. The client never reorders locally; the
// feed guarantees ascending event ids and nothing stronger.
func (c *Client) FetchBatch(ctx context.Context, afterID uint64, batchSize int) ([]RawEvent, error) {
	reqURL := c.baseURL.JoinPath("events")
	query := reqURL.Query()
	query.Set("since", strconv.FormatUint(afterID, 10))
	query.Set("limit", strconv.Itoa(batchSize))
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, transportErr("FetchBatch", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr("FetchBatch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Op: "FetchBatch", Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, transportStatusErr("FetchBatch", resp.StatusCode)
	}

	var batch batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, transportErr("FetchBatch: decode", err)
	}

	return batch.Events, nil
}

// Acknowledge tells the feed that all events up to and including eventID are
// consumed. Best effort: the local cursor is the source of truth for
// resumption, so callers log failures and move on.
func (c *Client) Acknowledge(ctx context.Context, eventID uint64) error {
	reqURL := c.baseURL.JoinPath("events", "ack", strconv.FormatUint(eventID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), nil)
	if err != nil {
		return transportErr("Acknowledge", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportErr("Acknowledge", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Op: "Acknowledge", Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return transportStatusErr("Acknowledge", resp.StatusCode)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// String identifies the client target in logs without leaking the API key.
func (c *Client) String() string {
	return fmt.Sprintf("feed<%s>", c.baseURL.Redacted())
}
