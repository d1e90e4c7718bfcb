package route

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusClosing, true},
		{StatusOpen, StatusEnded, true},
		{StatusClosing, StatusDispatching, true},
		// never re-opens
		{StatusClosing, StatusOpen, false},
		{StatusDispatching, StatusOpen, false},
		{StatusEnded, StatusOpen, false},
		// terminal states
		{StatusDispatching, StatusClosing, false},
		{StatusEnded, StatusClosing, false},
		{StatusClosing, StatusEnded, false},
		{StatusOpen, StatusDispatching, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{DurationBudget: time.Hour}.withDefaults()
	assert.Equal(t, time.Hour, s.DurationBudget)
	assert.Equal(t, DefaultDestination, s.Destination)
	assert.Equal(t, 300*time.Second, s.ProximityThreshold)
	assert.Equal(t, 50.0, s.ArrivalRadiusM)
	assert.Equal(t, DefaultJoinAttempts, s.JoinAttempts)
}

func TestRegistryOpenReplacesAndEndsPrevious(t *testing.T) {
	reg := NewRegistry()
	first := reg.Open("d1", "o1")
	first.pickupLocations = []string{"x"}
	first.passengerIDs = []types.ID{"p1"}

	second := reg.Open("d1", "o2")
	require.NotSame(t, first, second)
	assert.Equal(t, StatusEnded, first.Status())

	got, err := reg.Get("d1")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Empty(t, got.Snapshot().PassengerIDs)
}

func TestRegistryGetMissing(t *testing.T) {
	_, err := NewRegistry().Get("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryFirstOpenIsOldest(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.FirstOpen()
	assert.ErrorIs(t, err, ErrNoOpenRoute)

	a := reg.Open("a", "o")
	b := reg.Open("b", "o")
	c := reg.Open("c", "o")

	open := reg.OpenRoutes()
	require.Len(t, open, 3)
	assert.Same(t, a, open[0])
	assert.Same(t, b, open[1])
	assert.Same(t, c, open[2])

	a.mu.Lock()
	a.end(time.Now())
	a.mu.Unlock()

	first, err := reg.FirstOpen()
	require.NoError(t, err)
	assert.Same(t, b, first)
	assert.Len(t, reg.All(), 3)
}

func TestSnapshotCopies(t *testing.T) {
	reg := NewRegistry()
	r := reg.Open("d1", "o")
	r.passengerIDs = []types.ID{"p1"}
	r.pickupLocations = []string{"x"}

	snap := r.Snapshot()
	snap.PassengerIDs[0] = "changed"
	assert.Equal(t, types.ID("p1"), r.passengerIDs[0])
	assert.True(t, snap.IsOpen)
	assert.Equal(t, 1, snap.PassengerCount)
	assert.Nil(t, snap.ClosedAt)
}
