package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Swarm/internal/circuitbreaker"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/retry"
)

type memStore struct {
	mu         sync.Mutex
	webhooks   map[uuid.UUID]domain.Webhook
	deliveries map[uuid.UUID]domain.WebhookDelivery
	creates    int
}

func newMemStore(hooks ...domain.Webhook) *memStore {
	s := &memStore{
		webhooks:   make(map[uuid.UUID]domain.Webhook),
		deliveries: make(map[uuid.UUID]domain.WebhookDelivery),
	}
	for _, h := range hooks {
		s.webhooks[h.ID] = h
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.webhooks[id]
	if !ok {
		return nil, ErrWebhookNotFound
	}
	return &h, nil
}

func (s *memStore) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Webhook
	for _, h := range s.webhooks {
		if h.UserID == userID && h.Active {
			out = append(out, h)
		}
	}
	return out, nil
}

type deliveryStore struct{ *memStore }

func (s deliveryStore) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	s.deliveries[d.ID] = *d
	return nil
}

func (s deliveryStore) Get(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, retry.AsPermanent(io.EOF)
	}
	return &d, nil
}

func (s deliveryStore) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = *d
	return nil
}

func newHook(url string) domain.Webhook {
	return domain.Webhook{
		ID:     uuid.New(),
		UserID: uuid.New(),
		URL:    url,
		Secret: "s3cret",
		Events: []string{domain.EventTradeSucceeded},
		Active: true,
	}
}

func newTestDeliverer(store *memStore, broker queue.Broker) *Deliverer {
	return NewDeliverer(DelivererConfig{
		Webhooks:   store,
		Deliveries: deliveryStore{store},
		Enqueuer:   broker,
		Sender:     NewSender(time.Second),
	})
}

// nextDelivery забирает отложенный job повтора из брокера.
func nextDelivery(t *testing.T, b *queue.MemoryBroker) (DeliverPayload, domain.Job) {
	t.Helper()
	jobs, err := b.ListJobs(context.Background(), domain.QueueWebhooks, domain.JobStateDelayed, domain.JobStateWaiting)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	var p DeliverPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &p))
	require.NoError(t, b.Remove(context.Background(), jobs[0].ID))
	return p, jobs[0]
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"event":"x"}`)
	sig := Sign("key", body)

	assert.Len(t, sig, 64)
	assert.True(t, Verify("key", body, sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify("key", []byte(`{}`), sig))
	assert.False(t, Verify("key", body, "zz"))
}

func TestSender_WireFormat(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	resp, err := NewSender(time.Second).Send(context.Background(), Request{
		URL:       srv.URL,
		Secret:    "s3cret",
		Event:     domain.EventTradeSucceeded,
		Payload:   json.RawMessage(`{"amount":1}`),
		Timestamp: ts,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var body Body
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, domain.EventTradeSucceeded, body.Event)
	assert.JSONEq(t, `{"amount":1}`, string(body.Payload))
	assert.Equal(t, "2026-01-02T03:04:05Z", body.Timestamp)

	assert.Equal(t, domain.EventTradeSucceeded, gotHeaders.Get(HeaderEvent))
	assert.Equal(t, "2026-01-02T03:04:05Z", gotHeaders.Get(HeaderTimestamp))
	assert.Equal(t, Sign("s3cret", gotBody), gotHeaders.Get(HeaderSignature))
	assert.Equal(t, resp.Signature, gotHeaders.Get(HeaderSignature))
}

func TestDeliver_ThreeServerErrorsThenSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := newHook(srv.URL)
	store := newMemStore(hook)
	broker := queue.NewMemoryBroker()
	d := newTestDeliverer(store, broker)
	ctx := context.Background()

	delivery, err := d.Deliver(ctx, DeliverPayload{
		WebhookID: hook.ID,
		Event:     domain.EventTradeSucceeded,
		Payload:   json.RawMessage(`{"signature":"abc"}`),
	})
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatusRetrying, delivery.Status)
	require.NotNil(t, delivery.NextRetryAt)

	wantDelays := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute}
	for i := 0; i < 3; i++ {
		p, job := nextDelivery(t, broker)
		assert.Equal(t, delivery.ID, p.DeliveryID, "retries carry the delivery id")
		assert.Equal(t, wantDelays[i], job.Delay)

		delivery, err = d.Deliver(ctx, p)
		require.NoError(t, err)
	}

	assert.Equal(t, domain.DeliveryStatusSuccess, delivery.Status)
	assert.Equal(t, 4, delivery.AttemptNumber)
	assert.Equal(t, http.StatusOK, delivery.ResponseCode)
	assert.Nil(t, delivery.NextRetryAt)
	assert.Equal(t, 1, store.creates, "delivery record is created once")
	assert.Equal(t, 0, broker.Len())
	assert.EqualValues(t, 4, hits.Load())
}

func TestDeliver_ExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := newHook(srv.URL)
	store := newMemStore(hook)
	broker := queue.NewMemoryBroker()
	d := NewDeliverer(DelivererConfig{
		Webhooks:    store,
		Deliveries:  deliveryStore{store},
		Enqueuer:    broker,
		MaxAttempts: 2,
	})

	delivery, err := d.Deliver(context.Background(), DeliverPayload{WebhookID: hook.ID, Event: "e"})
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatusRetrying, delivery.Status)

	p, _ := nextDelivery(t, broker)
	delivery, err = d.Deliver(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 2, delivery.AttemptNumber)
	assert.Contains(t, delivery.LastError, "502")
	assert.Equal(t, 0, broker.Len(), "no retry after the last attempt")
}

func TestDeliver_ClientErrorFailsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	hook := newHook(srv.URL)
	store := newMemStore(hook)
	broker := queue.NewMemoryBroker()

	delivery, err := newTestDeliverer(store, broker).Deliver(context.Background(), DeliverPayload{WebhookID: hook.ID, Event: "e"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 1, delivery.AttemptNumber)
	assert.Equal(t, 0, broker.Len())
}

func TestDeliver_NetworkErrorRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	hook := newHook(url)
	store := newMemStore(hook)
	broker := queue.NewMemoryBroker()

	delivery, err := newTestDeliverer(store, broker).Deliver(context.Background(), DeliverPayload{WebhookID: hook.ID, Event: "e"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusRetrying, delivery.Status)
	assert.NotEmpty(t, delivery.LastError)
	assert.Equal(t, 1, broker.Len())
}

func TestDeliver_TerminalDeliveryIsNoop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	hook := newHook(srv.URL)
	store := newMemStore(hook)
	d := newTestDeliverer(store, queue.NewMemoryBroker())

	delivery, err := d.Deliver(context.Background(), DeliverPayload{WebhookID: hook.ID, Event: "e"})
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatusSuccess, delivery.Status)

	again, err := d.Deliver(context.Background(), DeliverPayload{DeliveryID: delivery.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, again.AttemptNumber)
	assert.EqualValues(t, 1, hits.Load())
}

func TestDeliver_OpenCircuitCountsAsNetworkError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hook := newHook(srv.URL)
	store := newMemStore(hook)
	broker := queue.NewMemoryBroker()
	d := NewDeliverer(DelivererConfig{
		Webhooks:   store,
		Deliveries: deliveryStore{store},
		Enqueuer:   broker,
		Breaker:    circuitbreaker.New(1, time.Hour),
	})

	first, err := d.Deliver(context.Background(), DeliverPayload{WebhookID: hook.ID, Event: "e"})
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatusRetrying, first.Status)

	p, _ := nextDelivery(t, broker)
	second, err := d.Deliver(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusRetrying, second.Status)
	assert.Contains(t, second.LastError, circuitbreaker.ErrCircuitOpen.Error())
	assert.EqualValues(t, 1, hits.Load(), "open circuit short-circuits the request")
}

func TestDeliver_UnknownWebhookIsPermanent(t *testing.T) {
	d := newTestDeliverer(newMemStore(), queue.NewMemoryBroker())

	_, err := d.Deliver(context.Background(), DeliverPayload{WebhookID: uuid.New(), Event: "e"})
	require.ErrorIs(t, err, ErrWebhookNotFound)
	assert.False(t, retry.IsRetryable(err))
}

func TestNotifier_FansOutToSubscribedWebhooks(t *testing.T) {
	user := uuid.New()
	subscribed := newHook("http://a")
	subscribed.UserID = user
	other := newHook("http://b")
	other.UserID = user
	other.Events = []string{domain.EventDistributionCompleted}
	inactive := newHook("http://c")
	inactive.UserID = user
	inactive.Active = false

	store := newMemStore(subscribed, other, inactive)
	broker := queue.NewMemoryBroker()
	n := NewNotifier(store, broker, nil)

	count, err := n.Notify(context.Background(), user, "evt-1", domain.EventTradeSucceeded, map[string]any{"amount": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// повтор того же события не создаёт дублей
	_, err = n.Notify(context.Background(), user, "evt-1", domain.EventTradeSucceeded, map[string]any{"amount": 1})
	require.NoError(t, err)

	p, job := nextDelivery(t, broker)
	assert.Equal(t, subscribed.ID, p.WebhookID)
	assert.Equal(t, domain.EventTradeSucceeded, p.Event)
	assert.JSONEq(t, `{"amount":1}`, string(p.Payload))
	assert.Equal(t, domain.JobTypeWebhookDelivery, job.Type)
}
