package results

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pollpulse/backend/internal/models"
	"github.com/pollpulse/backend/internal/polls"
)

func TestBuildSnapshotCountsAndPercentages(t *testing.T) {
	p := &models.Poll{ID: uuid.New(), Title: "Best editor?", IsActive: true}
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	res := buildSnapshot(p, false, []optionCount{
		{id: a, text: "A", count: 2},
		{id: b, text: "B", count: 1},
		{id: c, text: "C", count: 0},
	})

	if res.TotalVotes != 3 {
		t.Fatalf("TotalVotes = %d, want 3", res.TotalVotes)
	}
	want := []struct {
		id    uuid.UUID
		count int64
		pct   float64
	}{
		{a, 2, 66.7},
		{b, 1, 33.3},
		{c, 0, 0.0},
	}
	for i, w := range want {
		got := res.Options[i]
		if got.OptionID != w.id {
			t.Errorf("Options[%d].OptionID = %s, want %s", i, got.OptionID, w.id)
		}
		if got.Count != w.count {
			t.Errorf("Options[%d].Count = %d, want %d", i, got.Count, w.count)
		}
		if got.Percentage != w.pct {
			t.Errorf("Options[%d].Percentage = %v, want %v", i, got.Percentage, w.pct)
		}
	}
}

func TestBuildSnapshotZeroVotes(t *testing.T) {
	p := &models.Poll{ID: uuid.New(), Title: "Empty", IsActive: true}

	res := buildSnapshot(p, false, []optionCount{
		{id: uuid.New(), text: "A", count: 0},
		{id: uuid.New(), text: "B", count: 0},
	})

	if res.TotalVotes != 0 {
		t.Fatalf("TotalVotes = %d, want 0", res.TotalVotes)
	}
	for i, o := range res.Options {
		if o.Percentage != 0.0 {
			t.Errorf("Options[%d].Percentage = %v, want 0.0", i, o.Percentage)
		}
	}
}

func TestBuildSnapshotAdditivity(t *testing.T) {
	p := &models.Poll{ID: uuid.New(), Title: "Sum check", IsActive: false}

	res := buildSnapshot(p, true, []optionCount{
		{id: uuid.New(), text: "A", count: 17},
		{id: uuid.New(), text: "B", count: 4},
		{id: uuid.New(), text: "C", count: 9},
	})

	var sum int64
	for _, o := range res.Options {
		sum += o.Count
	}
	if sum != res.TotalVotes {
		t.Errorf("sum(counts) = %d, TotalVotes = %d", sum, res.TotalVotes)
	}
	if !res.IsExpired {
		t.Errorf("IsExpired not carried into snapshot")
	}
	if res.IsActive {
		t.Errorf("IsActive not carried into snapshot")
	}
}

func TestBuildSnapshotPreservesDisplayOrder(t *testing.T) {
	p := &models.Poll{ID: uuid.New(), Title: "Order", IsActive: true}

	// counts arrive in display order; the winner sits last and must stay there.
	counts := []optionCount{
		{id: uuid.New(), text: "first", count: 1},
		{id: uuid.New(), text: "second", count: 0},
		{id: uuid.New(), text: "third", count: 40},
	}
	res := buildSnapshot(p, false, counts)

	for i, oc := range counts {
		if res.Options[i].Text != oc.text {
			t.Errorf("Options[%d].Text = %q, want %q", i, res.Options[i].Text, oc.text)
		}
	}
}

func TestBuildSnapshotRounding(t *testing.T) {
	p := &models.Poll{ID: uuid.New(), Title: "Rounding", IsActive: true}

	// 1/3 and 2/3 must round to one decimal place.
	res := buildSnapshot(p, false, []optionCount{
		{id: uuid.New(), text: "A", count: 1},
		{id: uuid.New(), text: "B", count: 2},
	})
	if res.Options[0].Percentage != 33.3 {
		t.Errorf("1/3 = %v, want 33.3", res.Options[0].Percentage)
	}
	if res.Options[1].Percentage != 66.7 {
		t.Errorf("2/3 = %v, want 66.7", res.Options[1].Percentage)
	}

	// 1/8 = 12.5 exactly.
	res = buildSnapshot(p, false, []optionCount{
		{id: uuid.New(), text: "A", count: 1},
		{id: uuid.New(), text: "B", count: 7},
	})
	if res.Options[0].Percentage != 12.5 {
		t.Errorf("1/8 = %v, want 12.5", res.Options[0].Percentage)
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// countRows plays back option/count rows through the pgx.Rows interface.
type countRows struct {
	rows [][3]any // option id, text, count
	i    int
}

func (r *countRows) Close()                                       {}
func (r *countRows) Err() error                                   { return nil }
func (r *countRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *countRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *countRows) Values() ([]any, error)                       { return nil, nil }
func (r *countRows) RawValues() [][]byte                          { return nil }
func (r *countRows) Conn() *pgx.Conn                              { return nil }

func (r *countRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *countRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	*(dest[0].(*uuid.UUID)) = row[0].(uuid.UUID)
	*(dest[1].(*string)) = row[1].(string)
	*(dest[2].(*int64)) = row[2].(int64)
	return nil
}

// fakeStorage serves the aggregator's poll lookup and count query and
// counts how often each runs.
type fakeStorage struct {
	poll       models.Poll
	counts     [][3]any
	pollReads  int
	countReads int
}

func (db *fakeStorage) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if !strings.Contains(sql, "FROM polls") {
		return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
	}
	db.pollReads++
	return fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*uuid.UUID)) = db.poll.ID
		*(dest[1].(*string)) = db.poll.Title
		*(dest[2].(*bool)) = db.poll.IsActive
		*(dest[3].(**time.Time)) = db.poll.ExpiresAt
		return nil
	}}
}

func (db *fakeStorage) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	db.countReads++
	return &countRows{rows: append([][3]any(nil), db.counts...)}, nil
}

// memStore is an in-memory SnapshotStore with ledger-style invalidation.
type memStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*models.PollResults
	sets      int
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[uuid.UUID]*models.PollResults)}
}

func (s *memStore) Get(_ context.Context, pollID uuid.UUID) (*models.PollResults, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.snapshots[pollID]
	return res, ok
}

func (s *memStore) Set(_ context.Context, pollID uuid.UUID, res *models.PollResults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[pollID] = res
	s.sets++
}

func (s *memStore) Invalidate(_ context.Context, pollID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, pollID)
}

func newCachedAggregator(db *fakeStorage, store SnapshotStore) *Aggregator {
	gate := polls.NewGate(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	return NewAggregator(db, gate, store)
}

func TestComputeStoresAndServesSnapshot(t *testing.T) {
	optionID := uuid.New()
	db := &fakeStorage{
		poll:   models.Poll{ID: uuid.New(), Title: "Lunch?", IsActive: true},
		counts: [][3]any{{optionID, "Pizza", int64(3)}},
	}
	store := newMemStore()
	agg := newCachedAggregator(db, store)

	first, err := agg.Compute(context.Background(), db.poll.ID)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if store.sets != 1 {
		t.Fatalf("Expected one snapshot store, got %d", store.sets)
	}

	second, err := agg.Compute(context.Background(), db.poll.ID)
	if err != nil {
		t.Fatalf("Compute (cached): %v", err)
	}
	if db.pollReads != 1 || db.countReads != 1 {
		t.Errorf("Cached read hit storage: %d poll reads, %d count reads", db.pollReads, db.countReads)
	}
	if second.TotalVotes != first.TotalVotes || len(second.Options) != len(first.Options) {
		t.Errorf("Cached snapshot differs from computed one")
	}
}

func TestComputeCacheHitSkipsStorage(t *testing.T) {
	pollID := uuid.New()
	store := newMemStore()
	store.Set(context.Background(), pollID, &models.PollResults{PollID: pollID, Title: "Cached", TotalVotes: 7})
	db := &fakeStorage{}
	agg := newCachedAggregator(db, store)

	res, err := agg.Compute(context.Background(), pollID)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.TotalVotes != 7 {
		t.Errorf("Expected cached snapshot, got %+v", res)
	}
	if db.pollReads != 0 || db.countReads != 0 {
		t.Errorf("Cache hit reached storage: %d poll reads, %d count reads", db.pollReads, db.countReads)
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	optionID := uuid.New()
	db := &fakeStorage{
		poll:   models.Poll{ID: uuid.New(), Title: "Lunch?", IsActive: true},
		counts: [][3]any{{optionID, "Pizza", int64(3)}},
	}
	store := newMemStore()
	agg := newCachedAggregator(db, store)

	if _, err := agg.Compute(context.Background(), db.poll.ID); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// A cast happened: the ledger drops the snapshot and a vote lands.
	store.Invalidate(context.Background(), db.poll.ID)
	db.counts = [][3]any{{optionID, "Pizza", int64(4)}}

	res, err := agg.Compute(context.Background(), db.poll.ID)
	if err != nil {
		t.Fatalf("Compute after invalidation: %v", err)
	}
	if res.TotalVotes != 4 {
		t.Errorf("Expected fresh counts after invalidation, got %d votes", res.TotalVotes)
	}
	if db.countReads != 2 {
		t.Errorf("Expected a second count read, got %d", db.countReads)
	}
}
