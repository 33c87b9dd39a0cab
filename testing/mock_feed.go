// Package testing provides a mock upstream event feed for tests.
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/domadao/event-indexer/feed"
)

// MockFeed is an httptest-backed implementation of the poll API. Events are
// served in the order they were added; fetches and acknowledgements can be
// made to fail for error-path tests.
type MockFeed struct {
	mu sync.Mutex

	events       []feed.RawEvent
	acks         []uint64
	failFetches  int
	unauthorized bool

	server *httptest.Server
}

func NewMockFeed(events ...feed.RawEvent) *MockFeed {
	f := &MockFeed{events: events}

	router := mux.NewRouter()
	router.HandleFunc("/events", f.handleFetch).Methods(http.MethodGet)
	router.HandleFunc("/events/ack/{id}", f.handleAck).Methods(http.MethodPost)

	f.server = httptest.NewServer(router)

	return f
}

func (f *MockFeed) URL() string {
	return f.server.URL
}

func (f *MockFeed) Close() {
	f.server.Close()
}

func (f *MockFeed) AddEvents(events ...feed.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, events...)
}

// FailNextFetches makes the next n fetches respond with HTTP 500.
func (f *MockFeed) FailNextFetches(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failFetches = n
}

// SetUnauthorized makes all requests respond with HTTP 401.
func (f *MockFeed) SetUnauthorized(unauthorized bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unauthorized = unauthorized
}

// Acks returns the acknowledged event ids in call order.
func (f *MockFeed) Acks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	acks := make([]uint64, len(f.acks))
	copy(acks, f.acks)

	return acks
}

func (f *MockFeed) handleFetch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.failFetches > 0 {
		f.failFetches--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	batch := make([]feed.RawEvent, 0, limit)
	for _, event := range f.events {
		if event.EventID > since {
			// A non-JSON payload cannot be embedded verbatim in the JSON
			// response; quote it so malformed fixtures still reach the
			// client (and still fail payload parsing there).
			if len(event.EventData) > 0 && !json.Valid(event.EventData) {
				quoted, _ := json.Marshal(string(event.EventData))
				event.EventData = quoted
			}
			batch = append(batch, event)
		}
		if len(batch) == limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"events": batch})
}

func (f *MockFeed) handleAck(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	idStr := strings.TrimSpace(mux.Vars(r)["id"])
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.acks = append(f.acks, id)
	w.WriteHeader(http.StatusNoContent)
}
