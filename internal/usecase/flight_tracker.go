package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"
	"flightstatus-service/internal/infrastructure/cache"
	"flightstatus-service/pkg/logger"
	"flightstatus-service/pkg/metrics"
	"flightstatus-service/pkg/race"
)

// ErrIllegalTransition is returned in strict mode when a status
// update does not follow an allowed edge of the status machine.
var ErrIllegalTransition = errors.New("illegal flight status transition")

// defaultCacheTTL is how long a flight snapshot stays cached after a
// store or vendor hit.
const defaultCacheTTL = 300 * time.Second

// delayHistoryWindow is the trailing window used for delay estimates.
const delayHistoryWindow = 30 * 24 * time.Hour

// FlightTracker resolves current flight state through the cache-aside
// path: cache, persistent store, then a concurrent vendor race.
type FlightTracker struct {
	flightRepo        repository.FlightRepository
	vendors           []repository.FlightVendor
	cache             cache.Cache
	metrics           *metrics.Metrics
	logger            logger.Logger
	cacheTTL          time.Duration
	strictTransitions bool
}

// NewFlightTracker creates a new flight tracker. With
// strictTransitions enabled, illegal status transitions are rejected;
// otherwise they are logged as anomalies and persisted.
func NewFlightTracker(
	flightRepo repository.FlightRepository,
	vendors []repository.FlightVendor,
	c cache.Cache,
	m *metrics.Metrics,
	log logger.Logger,
	cacheTTL time.Duration,
	strictTransitions bool,
) *FlightTracker {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &FlightTracker{
		flightRepo:        flightRepo,
		vendors:           vendors,
		cache:             c,
		metrics:           m,
		logger:            log,
		cacheTTL:          cacheTTL,
		strictTransitions: strictTransitions,
	}
}

// GetFlight resolves the current snapshot for a flight number. Cache
// hit returns immediately; store hit repopulates the cache; otherwise
// every configured vendor races and the first success is persisted
// and cached. When all vendors fail the flight is simply not found —
// vendor failure is never surfaced as an error. Store failures are.
func (t *FlightTracker) GetFlight(ctx context.Context, flightNumber string) (*entity.Flight, error) {
	if cached := t.cacheLookup(ctx, flightNumber); cached != nil {
		t.metrics.CacheHits.Inc()
		return cached, nil
	}
	t.metrics.CacheMisses.Inc()

	flight, err := t.flightRepo.FindByNumber(ctx, flightNumber)
	if err == nil {
		t.cacheStore(ctx, flight)
		return flight, nil
	}
	if !errors.Is(err, repository.ErrFlightNotFound) {
		t.metrics.ErrorsCount.WithLabelValues("flight_store").Inc()
		return nil, fmt.Errorf("flight store lookup: %w", err)
	}

	flight, err = t.raceVendors(ctx, flightNumber)
	if err != nil {
		t.logger.Info("No vendor could resolve flight", "flightNumber", flightNumber, "error", err)
		return nil, repository.ErrFlightNotFound
	}

	if err := t.flightRepo.Upsert(ctx, flight); err != nil {
		t.metrics.ErrorsCount.WithLabelValues("flight_store").Inc()
		return nil, fmt.Errorf("persist vendor result: %w", err)
	}
	t.cacheStore(ctx, flight)
	return flight, nil
}

// raceVendors runs every configured vendor concurrently and keeps the
// first success, cancelling the rest. Race latency is recorded
// whether or not a vendor wins.
func (t *FlightTracker) raceVendors(ctx context.Context, flightNumber string) (*entity.Flight, error) {
	start := time.Now()
	defer func() {
		t.metrics.VendorRaceLatency.Observe(time.Since(start).Seconds())
	}()

	if len(t.vendors) == 0 {
		return nil, race.ErrAllFailed
	}

	attempts := make([]race.Attempt[*entity.Flight], len(t.vendors))
	for i, v := range t.vendors {
		vendor := v
		attempts[i] = func(ctx context.Context) (*entity.Flight, error) {
			flight, err := vendor.Fetch(ctx, flightNumber)
			if err != nil {
				t.metrics.VendorFailures.WithLabelValues(vendor.Name()).Inc()
				t.logger.Debug("Vendor call failed", "vendor", vendor.Name(), "flightNumber", flightNumber, "error", err)
				return nil, err
			}
			return flight, nil
		}
	}

	result, err := race.First(ctx, attempts)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Vendor race won",
		"vendor", t.vendors[result.Index].Name(),
		"flightNumber", flightNumber,
		"latency", time.Since(start))
	return result.Value, nil
}

// GetHistoricalData returns stored snapshots for a flight within the
// window, sorted by scheduled departure ascending. The cache is
// bypassed; history reads always hit the store.
func (t *FlightTracker) GetHistoricalData(ctx context.Context, flightNumber string, start, end time.Time) ([]*entity.Flight, error) {
	return t.flightRepo.FindHistory(ctx, flightNumber, start, end)
}

// SearchFlights returns stored flights matching the filter.
func (t *FlightTracker) SearchFlights(ctx context.Context, filter repository.FlightSearchFilter) ([]*entity.Flight, error) {
	return t.flightRepo.Search(ctx, filter)
}

// CalculateDelayEstimate computes the arithmetic mean of
// (actual arrival - scheduled arrival) over the flight's trailing
// 30 days of history. It returns nil when the status makes an
// estimate meaningless or no completed samples exist.
func (t *FlightTracker) CalculateDelayEstimate(ctx context.Context, flight *entity.Flight) (*time.Duration, error) {
	if flight.Status != entity.StatusDelayed && flight.Status != entity.StatusScheduled {
		return nil, nil
	}

	now := time.Now().UTC()
	history, err := t.flightRepo.FindHistory(ctx, flight.FlightNumber, now.Add(-delayHistoryWindow), now)
	if err != nil {
		return nil, fmt.Errorf("delay history lookup: %w", err)
	}

	var total time.Duration
	var samples int
	for _, h := range history {
		if h.ActualArrival == nil {
			continue
		}
		total += h.ActualArrival.Sub(h.ScheduledArrival)
		samples++
	}
	if samples == 0 {
		return nil, nil
	}

	estimate := (total / time.Duration(samples)).Round(time.Minute)
	return &estimate, nil
}

// UpdateFlightStatus applies a caller-provided status to a stored
// flight, merging any metadata (new keys win), and invalidates the
// cache entry so the next GetFlight repopulates it. This is the
// trigger point for webhook notification.
func (t *FlightTracker) UpdateFlightStatus(ctx context.Context, flightNumber string, newStatus entity.FlightStatus, metadata map[string]interface{}) (*entity.Flight, error) {
	flight, err := t.flightRepo.FindByNumber(ctx, flightNumber)
	if err != nil {
		return nil, err
	}

	if !flight.Status.CanTransitionTo(newStatus) {
		if t.strictTransitions {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, flight.Status, newStatus)
		}
		t.logger.Warn("Anomalous flight status transition",
			"flightNumber", flightNumber,
			"from", flight.Status,
			"to", newStatus)
	}

	flight.Status = newStatus
	flight.MergeMetadata(metadata)

	if err := t.flightRepo.Upsert(ctx, flight); err != nil {
		return nil, fmt.Errorf("persist status update: %w", err)
	}

	if err := t.cache.Delete(ctx, cache.FlightKey(flightNumber)); err != nil {
		t.logger.Warn("Cache invalidation failed", "flightNumber", flightNumber, "error", err)
	}

	return flight, nil
}

// cacheLookup returns the cached snapshot or nil. Cache errors are
// treated as misses; the cache is an optimization, not a source of
// truth.
func (t *FlightTracker) cacheLookup(ctx context.Context, flightNumber string) *entity.Flight {
	raw, ok, err := t.cache.Get(ctx, cache.FlightKey(flightNumber))
	if err != nil {
		t.logger.Warn("Cache lookup failed", "flightNumber", flightNumber, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var flight entity.Flight
	if err := json.Unmarshal([]byte(raw), &flight); err != nil {
		t.logger.Warn("Corrupt cache entry dropped", "flightNumber", flightNumber, "error", err)
		t.cache.Delete(ctx, cache.FlightKey(flightNumber))
		return nil
	}
	return &flight
}

func (t *FlightTracker) cacheStore(ctx context.Context, flight *entity.Flight) {
	raw, err := json.Marshal(flight)
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, cache.FlightKey(flight.FlightNumber), string(raw), t.cacheTTL); err != nil {
		t.logger.Warn("Cache store failed", "flightNumber", flight.FlightNumber, "error", err)
	}
}
