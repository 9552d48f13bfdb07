package polls

import (
	"errors"
	"testing"
	"time"

	"github.com/pollpulse/backend/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

func TestGateVotable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	gate := NewGate(fakeClock{now: now})

	tests := []struct {
		name    string
		poll    models.Poll
		votable bool
		wantErr error
	}{
		{"active no expiry", models.Poll{IsActive: true}, true, nil},
		{"active future expiry", models.Poll{IsActive: true, ExpiresAt: &future}, true, nil},
		{"inactive", models.Poll{IsActive: false}, false, ErrPollClosed},
		{"active past expiry", models.Poll{IsActive: true, ExpiresAt: &past}, false, ErrPollExpired},
		{"expiry exactly now", models.Poll{IsActive: true, ExpiresAt: &now}, false, ErrPollExpired},
		{"inactive and expired", models.Poll{IsActive: false, ExpiresAt: &past}, false, ErrPollClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Votable(&tt.poll); got != tt.votable {
				t.Errorf("Votable = %v, want %v", got, tt.votable)
			}
			err := gate.AssertVotable(&tt.poll)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AssertVotable = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateClosedAndExpiredAreDistinct(t *testing.T) {
	if errors.Is(ErrPollClosed, ErrPollExpired) {
		t.Fatal("ErrPollClosed and ErrPollExpired must be distinguishable")
	}
}
