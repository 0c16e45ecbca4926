package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWindowZeroDaysHasNoWindow(t *testing.T) {
	for _, days := range []int{0, -5} {
		_, ok := ComputeWindow(t0, days, t0)
		assert.False(t, ok)
	}
}

func TestComputeWindowRemainingDays(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		elapsed   time.Duration
		active    bool
		remaining int
	}{
		{"day one", 90, 0, true, 90},
		{"one day left", 90, 89 * 24 * time.Hour, true, 1},
		{"part day left rounds up", 90, 89*24*time.Hour + time.Hour, true, 1},
		{"at expiry", 90, 90 * 24 * time.Hour, false, 0},
		{"long gone", 7, 400 * 24 * time.Hour, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := ComputeWindow(t0, tt.days, t0.Add(tt.elapsed))
			require.True(t, ok)
			assert.Equal(t, tt.active, w.IsActive)
			assert.Equal(t, tt.remaining, w.RemainingDays)
			assert.Equal(t, tt.days, w.Days)
			assert.Equal(t, t0.AddDate(0, 0, tt.days), w.ExpiryDate)
		})
	}
}

func TestWindowFromZeroExpiry(t *testing.T) {
	_, ok := WindowFromExpiry(time.Time{}, 30, t0)
	assert.False(t, ok)
}

func TestRemainingDaysAcrossDaylightSavingChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	completedAt := time.Date(2026, 10, 2, 10, 0, 0, 0, loc)

	// Oct 31 10:00 to Nov 1 10:00 is 25 hours when the clocks fall back.
	w, ok := ComputeWindow(completedAt, 30, completedAt.AddDate(0, 0, 29))
	require.True(t, ok)
	assert.True(t, w.IsActive)
	assert.Equal(t, 1, w.RemainingDays)

	w, ok = ComputeWindow(completedAt, 30, completedAt.AddDate(0, 0, 29).Add(-time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2, w.RemainingDays)
}
