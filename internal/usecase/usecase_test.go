package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"
	"flightstatus-service/pkg/metrics"
)

// testMetrics is shared across the package's tests: promauto
// registers with the default registry, so NewMetrics must run exactly
// once per test binary.
var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func newTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics("test")
	})
	return testMetrics
}

// fakeFlightRepo is an in-memory FlightRepository mirroring the mongo
// implementation's keying: one snapshot per (flightNumber,
// scheduledDeparture), with FindByNumber selecting the latest
// departure and FindHistory reading the same storage Upsert writes.
type fakeFlightRepo struct {
	mu        sync.Mutex
	snapshots map[string][]*entity.Flight
	upserts   int
	findErr   error
}

func newFakeFlightRepo() *fakeFlightRepo {
	return &fakeFlightRepo{
		snapshots: make(map[string][]*entity.Flight),
	}
}

func (r *fakeFlightRepo) FindByNumber(_ context.Context, flightNumber string) (*entity.Flight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var latest *entity.Flight
	for _, f := range r.snapshots[flightNumber] {
		if latest == nil || f.ScheduledDeparture.After(latest.ScheduledDeparture) {
			latest = f
		}
	}
	if latest == nil {
		return nil, repository.ErrFlightNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeFlightRepo) Upsert(_ context.Context, flight *entity.Flight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	flight.UpdatedAt = time.Now().UTC()
	if flight.CreatedAt.IsZero() {
		flight.CreatedAt = flight.UpdatedAt
	}
	copied := *flight
	r.upserts++

	for i, f := range r.snapshots[flight.FlightNumber] {
		if f.ScheduledDeparture.Equal(flight.ScheduledDeparture) {
			r.snapshots[flight.FlightNumber][i] = &copied
			return nil
		}
	}
	r.snapshots[flight.FlightNumber] = append(r.snapshots[flight.FlightNumber], &copied)
	return nil
}

func (r *fakeFlightRepo) FindHistory(_ context.Context, flightNumber string, start, end time.Time) ([]*entity.Flight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Flight
	for _, f := range r.snapshots[flightNumber] {
		if f.ScheduledDeparture.Before(start) || f.ScheduledDeparture.After(end) {
			continue
		}
		copied := *f
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledDeparture.Before(out[j].ScheduledDeparture)
	})
	return out, nil
}

func (r *fakeFlightRepo) Search(_ context.Context, _ repository.FlightSearchFilter) ([]*entity.Flight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Flight
	for _, snaps := range r.snapshots {
		for _, f := range snaps {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeFlightRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

// fakeSubRepo is an in-memory SubscriptionRepository mirroring the
// mongo implementation's stats bookkeeping. recordDelay stalls
// RecordAttempt to widen delivery windows in concurrency tests.
type fakeSubRepo struct {
	mu          sync.Mutex
	subs        map[string]*entity.WebhookSubscription
	recordDelay time.Duration
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: make(map[string]*entity.WebhookSubscription)}
}

func (r *fakeSubRepo) Save(_ context.Context, sub *entity.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.UpdatedAt = time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = sub.UpdatedAt
	}
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubRepo) FindByID(_ context.Context, id string) (*entity.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, repository.ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false, nil
	}
	delete(r.subs, id)
	return true, nil
}

func (r *fakeSubRepo) RecordAttempt(_ context.Context, id string, attempt entity.DeliveryAttempt) (int, error) {
	if r.recordDelay > 0 {
		time.Sleep(r.recordDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return 0, repository.ErrSubscriptionNotFound
	}
	sub.DeliveryStats.TotalAttempts++
	if attempt.Success {
		sub.DeliveryStats.SuccessfulAttempts++
		sub.DeliveryStats.ConsecutiveFailures = 0
	} else {
		sub.DeliveryStats.FailedAttempts++
		sub.DeliveryStats.ConsecutiveFailures++
	}
	sub.AttemptHistory = append(sub.AttemptHistory, attempt)
	sub.LastDeliveryAttempt = &attempt
	sub.UpdatedAt = time.Now().UTC()
	return sub.DeliveryStats.ConsecutiveFailures, nil
}

func (r *fakeSubRepo) UpdateStatus(_ context.Context, id string, status entity.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return repository.ErrSubscriptionNotFound
	}
	sub.Status = status
	return nil
}

func (r *fakeSubRepo) get(id string) *entity.WebhookSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil
	}
	copied := *sub
	return &copied
}
