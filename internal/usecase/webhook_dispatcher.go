package usecase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"flightstatus-service/internal/domain/entity"
	"flightstatus-service/internal/domain/repository"
	"flightstatus-service/internal/infrastructure/cache"
	"flightstatus-service/pkg/logger"
	"flightstatus-service/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrCallbackUnreachable rejects subscription creation when the
// callback URL does not answer the reachability probe.
var ErrCallbackUnreachable = errors.New("callback url unreachable")

// ErrSubscriptionInvalid rejects subscription creation on failed
// field validation.
var ErrSubscriptionInvalid = errors.New("invalid subscription")

const (
	defaultDeliveryConcurrency = 50
	defaultDeliveryTimeout     = 5 * time.Second
	defaultProbeTimeout        = 3 * time.Second

	userAgent = "flightstatus-webhook-dispatcher/1.0"

	headerEventType  = "X-Event-Type"
	headerSignatures = "X-Webhook-Signatures"
)

// WebhookDispatcher owns subscription lifecycle, per-flight fan-out
// indices, batched signed delivery, and the dead-letter retry loop.
// Delivery is at-least-once; consumers de-duplicate on the payload's
// delivery_id.
type WebhookDispatcher struct {
	subRepo repository.SubscriptionRepository
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  logger.Logger

	httpClient      *http.Client
	validate        *validator.Validate
	sem             *semaphore.Weighted
	deliveryTimeout time.Duration
	probeTimeout    time.Duration
}

// DispatcherOptions tunes a dispatcher instance. Zero values fall
// back to defaults.
type DispatcherOptions struct {
	DeliveryConcurrency int64
	DeliveryTimeout     time.Duration
	ProbeTimeout        time.Duration
	HTTPClient          *http.Client
}

// NewWebhookDispatcher creates a new webhook dispatcher. The delivery
// semaphore is owned by the instance, so multiple dispatchers can
// coexist in one process.
func NewWebhookDispatcher(
	subRepo repository.SubscriptionRepository,
	c cache.Cache,
	m *metrics.Metrics,
	log logger.Logger,
	opts DispatcherOptions,
) *WebhookDispatcher {
	if opts.DeliveryConcurrency <= 0 {
		opts.DeliveryConcurrency = defaultDeliveryConcurrency
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = defaultDeliveryTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &WebhookDispatcher{
		subRepo:         subRepo,
		cache:           c,
		metrics:         m,
		logger:          log,
		httpClient:      httpClient,
		validate:        validator.New(),
		sem:             semaphore.NewWeighted(opts.DeliveryConcurrency),
		deliveryTimeout: opts.DeliveryTimeout,
		probeTimeout:    opts.ProbeTimeout,
	}
}

// CreateSubscription validates the subscription, probes the callback
// URL, persists the document and indexes it under every flight number
// it monitors.
func (d *WebhookDispatcher) CreateSubscription(ctx context.Context, sub *entity.WebhookSubscription) (*entity.WebhookSubscription, error) {
	if err := d.validate.Struct(sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionInvalid, err)
	}

	if err := d.probeCallback(ctx, sub.CallbackURL); err != nil {
		return nil, err
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.Status = entity.SubscriptionActive
	if sub.RetryConfig.MaxAttempts <= 0 {
		sub.RetryConfig = entity.DefaultRetryConfig()
	}

	if err := d.subRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	for _, number := range sub.FlightNumbers {
		if err := d.cache.SAdd(ctx, cache.FlightSubsKey(number), sub.ID); err != nil {
			return nil, fmt.Errorf("index subscription under %s: %w", number, err)
		}
	}

	d.logger.Info("Webhook subscription created",
		"subscriptionId", sub.ID,
		"callbackUrl", sub.CallbackURL,
		"flightNumbers", sub.FlightNumbers)
	return sub, nil
}

// probeCallback sends a lightweight HEAD request; anything below 400
// within the probe timeout counts as reachable.
func (d *WebhookDispatcher) probeCallback(ctx context.Context, callbackURL string) error {
	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, callbackURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallbackUnreachable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallbackUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: probe returned status %d", ErrCallbackUnreachable, resp.StatusCode)
	}
	return nil
}

// GetSubscription loads a subscription by id. The signing secret is
// write-only through the API: it never leaves the store on reads.
func (d *WebhookDispatcher) GetSubscription(ctx context.Context, id string) (*entity.WebhookSubscription, error) {
	sub, err := d.subRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	redacted := *sub
	redacted.Secret = ""
	return &redacted, nil
}

// DeleteSubscription removes the subscription and every flight-number
// index entry pointing at it. It reports whether anything was
// deleted.
func (d *WebhookDispatcher) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	sub, err := d.subRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	deleted, err := d.subRepo.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	for _, number := range sub.FlightNumbers {
		if err := d.cache.SRem(ctx, cache.FlightSubsKey(number), id); err != nil {
			d.logger.Warn("Failed to remove subscription index", "subscriptionId", id, "flightNumber", number, "error", err)
		}
	}
	return deleted, nil
}

// GetSubscriptionsForFlight resolves the index set for a flight
// number and returns the subscriptions that are still active. Stale
// index entries pointing at deleted subscriptions are pruned on the
// way.
func (d *WebhookDispatcher) GetSubscriptionsForFlight(ctx context.Context, flightNumber string) ([]*entity.WebhookSubscription, error) {
	ids, err := d.cache.SMembers(ctx, cache.FlightSubsKey(flightNumber))
	if err != nil {
		return nil, fmt.Errorf("subscription index lookup: %w", err)
	}

	now := time.Now().UTC()
	subs := make([]*entity.WebhookSubscription, 0, len(ids))
	for _, id := range ids {
		sub, err := d.subRepo.FindByID(ctx, id)
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			d.cache.SRem(ctx, cache.FlightSubsKey(flightNumber), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sub.IsActive(now) {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// NotifyFlightUpdate fans a flight event out to every matching
// subscription. Surviving subscriptions are grouped by callback URL
// so each destination receives exactly one POST; groups are delivered
// concurrently under the instance semaphore.
func (d *WebhookDispatcher) NotifyFlightUpdate(ctx context.Context, flight *entity.Flight, event entity.FlightEvent) error {
	subs, err := d.GetSubscriptionsForFlight(ctx, flight.FlightNumber)
	if err != nil {
		return err
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.WantsEvent(event) && sub.MatchesFilters(flight, event) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	groups := make(map[string][]*entity.WebhookSubscription)
	for _, sub := range matched {
		groups[sub.CallbackURL] = append(groups[sub.CallbackURL], sub)
	}

	var wg sync.WaitGroup
	for url, batch := range groups {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			// Already-launched groups must finish before the caller
			// resumes.
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(url string, batch []*entity.WebhookSubscription) {
			defer wg.Done()
			defer d.sem.Release(1)
			d.deliverBatch(ctx, url, batch, flight, event)
		}(url, batch)
	}
	wg.Wait()

	return nil
}

// deliverBatch sends one signed POST serving every subscription in
// the batch, then records the outcome against each of them. Failures
// enqueue a dead-letter entry and may push individual subscriptions
// over their failure budget into FAILED.
func (d *WebhookDispatcher) deliverBatch(ctx context.Context, url string, batch []*entity.WebhookSubscription, flight *entity.Flight, event entity.FlightEvent) {
	ids := make([]string, len(batch))
	for i, sub := range batch {
		ids[i] = sub.ID
	}
	sort.Strings(ids)

	payload := &entity.WebhookPayload{
		Event:           event,
		Timestamp:       time.Now().UTC(),
		Flight:          flight,
		SubscriptionIDs: ids,
		DeliveryID:      entity.ComputeDeliveryID(flight, event, ids),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("Failed to marshal webhook payload", "callbackUrl", url, "error", err)
		return
	}

	attempt := d.post(ctx, url, event, body, batch)
	d.recordOutcome(ctx, url, batch, payload, attempt)
}

// post performs the actual signed delivery and returns the attempt
// record. StatusCode 0 means the failure happened at the transport
// level.
func (d *WebhookDispatcher) post(ctx context.Context, url string, event entity.FlightEvent, body []byte, batch []*entity.WebhookSubscription) entity.DeliveryAttempt {
	signatures := make(map[string]string, len(batch))
	for _, sub := range batch {
		signatures[sub.ID] = signPayload(body, sub.Secret)
	}
	sigHeader, err := json.Marshal(signatures)
	if err != nil {
		return entity.DeliveryAttempt{Timestamp: time.Now().UTC(), Response: "marshal signatures: " + err.Error()}
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	start := time.Now()
	attempt := entity.DeliveryAttempt{Timestamp: start.UTC()}

	req, err := http.NewRequestWithContext(deliveryCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		attempt.Response = err.Error()
		return attempt
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerEventType, string(event))
	req.Header.Set(headerSignatures, string(sigHeader))

	resp, err := d.httpClient.Do(req)
	attempt.Latency = time.Since(start)
	if err != nil {
		attempt.Response = err.Error()
		return attempt
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	attempt.StatusCode = resp.StatusCode
	attempt.Response = string(respBody)
	attempt.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	return attempt
}

// signPayload computes the hex HMAC-SHA256 of the raw body under the
// subscription secret.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// recordOutcome books the attempt against every batch member. On
// failure it enqueues a dead-letter entry and transitions any
// subscription that exhausted its failure budget to FAILED.
func (d *WebhookDispatcher) recordOutcome(ctx context.Context, url string, batch []*entity.WebhookSubscription, payload *entity.WebhookPayload, attempt entity.DeliveryAttempt) {
	if attempt.Success {
		d.metrics.DeliveriesSent.Inc()
		for _, sub := range batch {
			if _, err := d.subRepo.RecordAttempt(ctx, sub.ID, attempt); err != nil {
				d.logger.Error("Failed to record delivery attempt", "subscriptionId", sub.ID, "error", err)
			}
		}
		d.logger.Info("Webhook delivered",
			"callbackUrl", url,
			"event", payload.Event,
			"subscriptions", len(batch),
			"latency", attempt.Latency)
		return
	}

	d.metrics.DeliveriesFailed.Inc()
	d.logger.Warn("Webhook delivery failed",
		"callbackUrl", url,
		"event", payload.Event,
		"statusCode", attempt.StatusCode,
		"subscriptions", len(batch))

	for _, sub := range batch {
		failures, err := d.subRepo.RecordAttempt(ctx, sub.ID, attempt)
		if err != nil {
			d.logger.Error("Failed to record delivery attempt", "subscriptionId", sub.ID, "error", err)
			continue
		}
		if failures >= sub.RetryConfig.MaxAttempts {
			if err := d.subRepo.UpdateStatus(ctx, sub.ID, entity.SubscriptionFailed); err != nil {
				d.logger.Error("Failed to mark subscription FAILED", "subscriptionId", sub.ID, "error", err)
				continue
			}
			d.logger.Warn("Subscription exceeded failure budget",
				"subscriptionId", sub.ID,
				"consecutiveFailures", failures)
		}
	}

	d.enqueueDeadLetter(ctx, url, payload, attempt)
}

func (d *WebhookDispatcher) enqueueDeadLetter(ctx context.Context, url string, payload *entity.WebhookPayload, attempt entity.DeliveryAttempt) {
	entry := &entity.DeadLetterEntry{
		Payload:         payload,
		CallbackURL:     url,
		SubscriptionIDs: payload.SubscriptionIDs,
		Attempt:         attempt,
		EnqueuedAt:      time.Now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		d.logger.Error("Failed to marshal dead-letter entry", "callbackUrl", url, "error", err)
		return
	}
	if err := d.cache.RPush(ctx, cache.DeadLetterKey, string(raw)); err != nil {
		d.logger.Error("Failed to enqueue dead-letter entry", "callbackUrl", url, "error", err)
		return
	}
	d.updateDeadLetterDepth(ctx)
}

func (d *WebhookDispatcher) updateDeadLetterDepth(ctx context.Context) {
	if depth, err := d.cache.LLen(ctx, cache.DeadLetterKey); err == nil {
		d.metrics.DeadLetterDepth.Set(float64(depth))
	}
}

// RetryFailedDeliveries drains the dead-letter queue one entry at a
// time: pop, reload the subscriptions that are still active, and
// re-run the batched delivery path against the original callback URL
// and flight payload. Entries with no remaining active subscriptions
// are dropped. Processing is strictly sequential so at most one entry
// is in flight; the drain is bounded by the queue depth at entry so a
// failing redelivery that re-enqueues itself is not reprocessed until
// the next cycle. Returns the number of entries processed.
func (d *WebhookDispatcher) RetryFailedDeliveries(ctx context.Context) (int, error) {
	depth, err := d.cache.LLen(ctx, cache.DeadLetterKey)
	if err != nil {
		return 0, fmt.Errorf("dead-letter length: %w", err)
	}

	processed := 0
	for int64(processed) < depth {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		raw, ok, err := d.cache.LPop(ctx, cache.DeadLetterKey)
		if err != nil {
			return processed, fmt.Errorf("dead-letter pop: %w", err)
		}
		if !ok {
			break
		}
		processed++

		var entry entity.DeadLetterEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			d.logger.Error("Dropping corrupt dead-letter entry", "error", err)
			continue
		}

		now := time.Now().UTC()
		var active []*entity.WebhookSubscription
		for _, id := range entry.SubscriptionIDs {
			sub, err := d.subRepo.FindByID(ctx, id)
			if err != nil {
				continue
			}
			if sub.IsActive(now) {
				active = append(active, sub)
			}
		}
		if len(active) == 0 {
			d.logger.Info("Dropping dead-letter entry with no active subscriptions",
				"callbackUrl", entry.CallbackURL,
				"event", entry.Payload.Event)
			continue
		}

		d.logger.Info("Retrying failed delivery",
			"callbackUrl", entry.CallbackURL,
			"event", entry.Payload.Event,
			"subscriptions", len(active))
		d.deliverBatch(ctx, entry.CallbackURL, active, entry.Payload.Flight, entry.Payload.Event)
	}

	d.updateDeadLetterDepth(ctx)
	return processed, nil
}
