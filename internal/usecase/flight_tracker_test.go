package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"
	"flightstatus-service/internal/infrastructure/cache"
	"flightstatus-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingVendor is a scriptable FlightVendor recording how often it
// was called and whether it observed cancellation.
type countingVendor struct {
	name      string
	flight    *entity.Flight
	err       error
	delay     time.Duration
	calls     atomic.Int64
	cancelled atomic.Bool
}

func (v *countingVendor) Name() string { return v.name }

func (v *countingVendor) Fetch(ctx context.Context, _ string) (*entity.Flight, error) {
	v.calls.Add(1)
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			v.cancelled.Store(true)
			return nil, ctx.Err()
		}
	}
	if v.err != nil {
		return nil, v.err
	}
	copied := *v.flight
	return &copied, nil
}

func testFlight(number string, status entity.FlightStatus) *entity.Flight {
	return &entity.Flight{
		FlightNumber:       number,
		Airline:            "Test Air",
		Origin:             entity.Airport{Code: "JFK"},
		Destination:        entity.Airport{Code: "LAX"},
		ScheduledDeparture: time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
		ScheduledArrival:   time.Date(2025, 6, 1, 11, 45, 0, 0, time.UTC),
		Status:             status,
	}
}

func newTestTracker(t *testing.T, repo *fakeFlightRepo, vendors []repository.FlightVendor) (*FlightTracker, *cache.MemoryCache) {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(c.Close)
	tracker := NewFlightTracker(repo, vendors, c, newTestMetrics(), logger.NewNop(), 0, false)
	return tracker, c
}

func TestGetFlightVendorRaceThenCacheHit(t *testing.T) {
	repo := newFakeFlightRepo()
	vendor := &countingVendor{name: "primary", flight: testFlight("AA123", entity.StatusScheduled)}
	tracker, _ := newTestTracker(t, repo, []repository.FlightVendor{vendor})

	ctx := context.Background()

	flight, err := tracker.GetFlight(ctx, "AA123")
	require.NoError(t, err)
	assert.Equal(t, "AA123", flight.FlightNumber)
	assert.Equal(t, int64(1), vendor.calls.Load())
	assert.Equal(t, 1, repo.upsertCount())

	// Within the TTL the next lookup is a pure cache hit: no vendor
	// call, no store write.
	flight, err = tracker.GetFlight(ctx, "AA123")
	require.NoError(t, err)
	assert.Equal(t, "AA123", flight.FlightNumber)
	assert.Equal(t, int64(1), vendor.calls.Load())
	assert.Equal(t, 1, repo.upsertCount())
}

func TestGetFlightStoreHitPopulatesCache(t *testing.T) {
	repo := newFakeFlightRepo()
	require.NoError(t, repo.Upsert(context.Background(), testFlight("BA789", entity.StatusInAir)))
	vendor := &countingVendor{name: "primary", flight: testFlight("BA789", entity.StatusInAir)}
	tracker, c := newTestTracker(t, repo, []repository.FlightVendor{vendor})

	flight, err := tracker.GetFlight(context.Background(), "BA789")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInAir, flight.Status)
	assert.Equal(t, int64(0), vendor.calls.Load(), "store hit must not race vendors")

	_, ok, err := c.Get(context.Background(), cache.FlightKey("BA789"))
	require.NoError(t, err)
	assert.True(t, ok, "store hit should repopulate the cache")
}

func TestGetFlightRaceWinnerCancelsLosers(t *testing.T) {
	repo := newFakeFlightRepo()
	fast := &countingVendor{name: "fast", flight: testFlight("UA456", entity.StatusDeparted)}
	slow := &countingVendor{name: "slow", flight: testFlight("UA456", entity.StatusScheduled), delay: 5 * time.Second}
	tracker, _ := newTestTracker(t, repo, []repository.FlightVendor{slow, fast})

	flight, err := tracker.GetFlight(context.Background(), "UA456")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDeparted, flight.Status, "fast vendor's result must win")

	assert.Eventually(t, slow.cancelled.Load, time.Second, 10*time.Millisecond,
		"losing vendor should be cancelled")
}

func TestGetFlightAllVendorsFail(t *testing.T) {
	repo := newFakeFlightRepo()
	v1 := &countingVendor{name: "a", err: errors.New("timeout")}
	v2 := &countingVendor{name: "b", err: errors.New("status 502")}
	tracker, _ := newTestTracker(t, repo, []repository.FlightVendor{v1, v2})

	_, err := tracker.GetFlight(context.Background(), "ZZ999")
	assert.ErrorIs(t, err, repository.ErrFlightNotFound)
	assert.Equal(t, 0, repo.upsertCount(), "store must stay untouched when no vendor succeeds")
}

func TestGetFlightStoreFailureIsHard(t *testing.T) {
	repo := newFakeFlightRepo()
	repo.findErr = errors.New("connection refused")
	tracker, _ := newTestTracker(t, repo, nil)

	_, err := tracker.GetFlight(context.Background(), "AA123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrFlightNotFound)
}

func TestUpdateFlightStatusMergesAndInvalidates(t *testing.T) {
	repo := newFakeFlightRepo()
	flight := testFlight("AA123", entity.StatusScheduled)
	flight.Metadata = map[string]interface{}{"gate": "B22", "crew": "A"}
	require.NoError(t, repo.Upsert(context.Background(), flight))

	tracker, c := newTestTracker(t, repo, nil)
	ctx := context.Background()

	// Warm the cache, then update.
	_, err := tracker.GetFlight(ctx, "AA123")
	require.NoError(t, err)

	updated, err := tracker.UpdateFlightStatus(ctx, "AA123", entity.StatusBoarding, map[string]interface{}{"gate": "C1", "remark": "on time"})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusBoarding, updated.Status)
	assert.Equal(t, "C1", updated.Metadata["gate"], "new metadata keys win")
	assert.Equal(t, "A", updated.Metadata["crew"], "untouched keys survive")
	assert.Equal(t, "on time", updated.Metadata["remark"])

	_, ok, _ := c.Get(ctx, cache.FlightKey("AA123"))
	assert.False(t, ok, "status update must invalidate the cache entry")
}

func TestUpdateFlightStatusNotFound(t *testing.T) {
	tracker, _ := newTestTracker(t, newFakeFlightRepo(), nil)
	_, err := tracker.UpdateFlightStatus(context.Background(), "NOPE", entity.StatusBoarding, nil)
	assert.ErrorIs(t, err, repository.ErrFlightNotFound)
}

func TestUpdateFlightStatusTransitionModes(t *testing.T) {
	ctx := context.Background()

	// Lenient mode persists the anomalous transition.
	repo := newFakeFlightRepo()
	require.NoError(t, repo.Upsert(ctx, testFlight("AA123", entity.StatusArrived)))
	lenient, _ := newTestTracker(t, repo, nil)

	updated, err := lenient.UpdateFlightStatus(ctx, "AA123", entity.StatusScheduled, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusScheduled, updated.Status)

	// Strict mode rejects it.
	repo = newFakeFlightRepo()
	require.NoError(t, repo.Upsert(ctx, testFlight("AA124", entity.StatusArrived)))
	c := cache.NewMemoryCache()
	t.Cleanup(c.Close)
	strict := NewFlightTracker(repo, nil, c, newTestMetrics(), logger.NewNop(), 0, true)

	_, err = strict.UpdateFlightStatus(ctx, "AA124", entity.StatusScheduled, nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	// Cancellation stays legal from anywhere, strict or not.
	_, err = strict.UpdateFlightStatus(ctx, "AA124", entity.StatusCancelled, nil)
	assert.NoError(t, err)
}

func TestSnapshotsAccumulatePerDeparture(t *testing.T) {
	repo := newFakeFlightRepo()
	ctx := context.Background()

	day1 := testFlight("AA123", entity.StatusArrived)
	arrived := day1.ScheduledArrival.Add(15 * time.Minute)
	day1.ActualArrival = &arrived
	require.NoError(t, repo.Upsert(ctx, day1))

	day2 := testFlight("AA123", entity.StatusScheduled)
	day2.ScheduledDeparture = day1.ScheduledDeparture.AddDate(0, 0, 1)
	day2.ScheduledArrival = day1.ScheduledArrival.AddDate(0, 0, 1)
	require.NoError(t, repo.Upsert(ctx, day2))

	tracker, _ := newTestTracker(t, repo, nil)

	// The current snapshot is the latest departure; yesterday's
	// arrival stays in the store as history.
	flight, err := tracker.GetFlight(ctx, "AA123")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusScheduled, flight.Status)

	window := func() ([]*entity.Flight, error) {
		return tracker.GetHistoricalData(ctx, "AA123",
			day1.ScheduledDeparture.Add(-time.Hour), day2.ScheduledDeparture.Add(time.Hour))
	}

	history, err := window()
	require.NoError(t, err)
	require.Len(t, history, 2, "each departure keeps its own snapshot")
	assert.Equal(t, entity.StatusArrived, history[0].Status)

	// Re-upserting the same departure replaces its snapshot, never
	// duplicates it.
	day2.Status = entity.StatusBoarding
	require.NoError(t, repo.Upsert(ctx, day2))
	history, err = window()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.StatusBoarding, history[1].Status)
}

func TestCalculateDelayEstimate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeFlightRepo()

	now := time.Now().UTC()
	mkSample := func(daysAgo int, delay time.Duration) *entity.Flight {
		scheduledArrival := now.AddDate(0, 0, -daysAgo)
		actual := scheduledArrival.Add(delay)
		return &entity.Flight{
			FlightNumber:       "AA123",
			ScheduledDeparture: scheduledArrival.Add(-3 * time.Hour),
			ScheduledArrival:   scheduledArrival,
			ActualArrival:      &actual,
			Status:             entity.StatusArrived,
		}
	}
	samples := []*entity.Flight{
		mkSample(2, 10*time.Minute),
		mkSample(5, 30*time.Minute),
		{FlightNumber: "AA123", ScheduledDeparture: now.AddDate(0, 0, -1), ScheduledArrival: now.AddDate(0, 0, -1)}, // no actual arrival
	}
	for _, s := range samples {
		require.NoError(t, repo.Upsert(ctx, s))
	}

	tracker, _ := newTestTracker(t, repo, nil)

	estimate, err := tracker.CalculateDelayEstimate(ctx, testFlight("AA123", entity.StatusDelayed))
	require.NoError(t, err)
	require.NotNil(t, estimate)
	assert.Equal(t, 20*time.Minute, *estimate)

	// Irrelevant status yields no estimate.
	estimate, err = tracker.CalculateDelayEstimate(ctx, testFlight("AA123", entity.StatusInAir))
	require.NoError(t, err)
	assert.Nil(t, estimate)

	// No samples yields no estimate.
	estimate, err = tracker.CalculateDelayEstimate(ctx, testFlight("XX111", entity.StatusDelayed))
	require.NoError(t, err)
	assert.Nil(t, estimate)
}

func TestGetHistoricalDataOrdering(t *testing.T) {
	repo := newFakeFlightRepo()
	now := time.Now().UTC()
	for _, daysAgo := range []int{1, 7, 3} {
		snapshot := &entity.Flight{FlightNumber: "AA123", ScheduledDeparture: now.AddDate(0, 0, -daysAgo)}
		require.NoError(t, repo.Upsert(context.Background(), snapshot))
	}
	tracker, _ := newTestTracker(t, repo, nil)

	history, err := tracker.GetHistoricalData(context.Background(), "AA123", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].ScheduledDeparture.Before(history[1].ScheduledDeparture))
	assert.True(t, history[1].ScheduledDeparture.Before(history[2].ScheduledDeparture))
}
