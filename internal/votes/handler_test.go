package votes

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/identity"
	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/internal/polls"
	"github.com/pollpulse/backend/internal/testutil"
)

// memoryLedger enforces the (poll, voter key) uniqueness invariant in
// memory, standing in for the database constraint in handler tests.
type memoryLedger struct {
	mu    sync.Mutex
	cast  map[string]struct{} // pollID|voterKey
	err   error
	votes int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{cast: make(map[string]struct{})}
}

func (m *memoryLedger) CastVote(_ context.Context, pollID, optionID uuid.UUID, voterKey string) (*models.Vote, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pollID.String() + "|" + voterKey
	if _, dup := m.cast[key]; dup {
		return nil, ErrDuplicateVote
	}
	m.cast[key] = struct{}{}
	m.votes++
	return &models.Vote{
		ID:        uuid.New(),
		PollID:    pollID,
		OptionID:  optionID,
		VoterKey:  voterKey,
		CreatedAt: time.Now(),
	}, nil
}

func newVoteRouter(ledger Caster) http.Handler {
	router := testutil.NewRouter()
	h := NewHandler(ledger, identity.NewResolver("test-salt"), zap.NewNop())
	router.POST("/polls/:id/vote", h.Cast)
	return router
}

func TestCastVote(t *testing.T) {
	ledger := newMemoryLedger()
	router := newVoteRouter(ledger)
	pollID, optionID := uuid.New(), uuid.New()

	w := testutil.PerformRequest(t, router, "POST", "/polls/"+pollID.String()+"/vote",
		map[string]string{"option_id": optionID.String()}, nil)
	testutil.AssertStatus(t, w, http.StatusCreated)

	var resp CastResponse
	testutil.DecodeData(t, w, &resp)
	if resp.PollID != pollID || resp.OptionID != optionID {
		t.Errorf("Response ids %+v don't match request", resp)
	}
	if resp.VoteID == uuid.Nil {
		t.Errorf("Missing vote id in response")
	}
}

func TestCastVoteDuplicateSameIP(t *testing.T) {
	ledger := newMemoryLedger()
	router := newVoteRouter(ledger)
	pollID := uuid.New()
	body := map[string]string{"option_id": uuid.NewString()}

	first := testutil.PerformRequest(t, router, "POST", "/polls/"+pollID.String()+"/vote", body, nil)
	testutil.AssertStatus(t, first, http.StatusCreated)

	// Same anonymous client voting a different option is still a duplicate.
	second := testutil.PerformRequest(t, router, "POST", "/polls/"+pollID.String()+"/vote",
		map[string]string{"option_id": uuid.NewString()}, nil)
	testutil.AssertStatus(t, second, http.StatusConflict)

	if ledger.votes != 1 {
		t.Errorf("Ledger recorded %d votes, want 1", ledger.votes)
	}
}

func TestCastVoteConcurrentSameVoter(t *testing.T) {
	ledger := newMemoryLedger()
	router := newVoteRouter(ledger)
	pollID := uuid.New()
	body := map[string]string{"option_id": uuid.NewString()}

	const attempts = 10
	var created, conflicted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := testutil.PerformRequest(t, router, "POST", "/polls/"+pollID.String()+"/vote", body, nil)
			switch w.Code {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusConflict:
				conflicted.Add(1)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", created.Load())
	}
	if conflicted.Load() != attempts-1 {
		t.Errorf("Expected %d conflicts, got %d", attempts-1, conflicted.Load())
	}
	if ledger.votes != 1 {
		t.Errorf("Ledger recorded %d votes, want 1", ledger.votes)
	}
}

func TestCastVoteErrorMapping(t *testing.T) {
	pollID := uuid.New()
	body := map[string]string{"option_id": uuid.NewString()}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"poll not found", polls.ErrNotFound, http.StatusNotFound},
		{"option not found", ErrOptionNotFound, http.StatusNotFound},
		{"option poll mismatch", ErrOptionPollMismatch, http.StatusBadRequest},
		{"poll closed", polls.ErrPollClosed, http.StatusForbidden},
		{"poll expired", polls.ErrPollExpired, http.StatusForbidden},
		{"duplicate vote", ErrDuplicateVote, http.StatusConflict},
		{"storage unavailable", ErrUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			ledger.err = tt.err
			router := newVoteRouter(ledger)

			w := testutil.PerformRequest(t, router, "POST", "/polls/"+pollID.String()+"/vote", body, nil)
			testutil.AssertStatus(t, w, tt.status)
		})
	}
}

func TestCastVoteInvalidRequests(t *testing.T) {
	router := newVoteRouter(newMemoryLedger())

	w := testutil.PerformRequest(t, router, "POST", "/polls/not-a-uuid/vote",
		map[string]string{"option_id": uuid.NewString()}, nil)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = testutil.PerformRequest(t, router, "POST", "/polls/"+uuid.NewString()+"/vote",
		map[string]string{}, nil)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}
