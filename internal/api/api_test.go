package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Swarm/internal/coordinator"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/mq"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/retry"
)

type fakeController struct {
	calls []string
	err   error
	run   *domain.CampaignRun
}

func (f *fakeController) Start(_ context.Context, id uuid.UUID) (*domain.CampaignRun, error) {
	f.calls = append(f.calls, "start")
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func (f *fakeController) Pause(context.Context, uuid.UUID) error {
	f.calls = append(f.calls, "pause")
	return f.err
}

func (f *fakeController) Resume(context.Context, uuid.UUID) error {
	f.calls = append(f.calls, "resume")
	return f.err
}

func (f *fakeController) Stop(context.Context, uuid.UUID) error {
	f.calls = append(f.calls, "stop")
	return f.err
}

type fakeRuns struct {
	runs map[uuid.UUID]domain.CampaignRun
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.CampaignRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &run, nil
}

func (f *fakeRuns) ListByCampaign(_ context.Context, campaignID uuid.UUID, limit int) ([]domain.CampaignRun, error) {
	var out []domain.CampaignRun
	for _, r := range f.runs {
		if r.CampaignID == campaignID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeJobs struct{}

func (fakeJobs) GetByID(_ context.Context, id string) (*domain.JobRecord, error) {
	if id != "buy:c1:0" {
		return nil, repo.ErrNotFound
	}
	return &domain.JobRecord{ID: id, Queue: domain.QueueTrades, Status: domain.JobStatusSucceeded, Progress: 100}, nil
}

type fakeDLQ struct {
	letters []mq.DeadLetter
	removed bool
}

func (f *fakeDLQ) Fetch(_ context.Context, q string, limit int, remove bool) ([]mq.DeadLetter, error) {
	var out []mq.DeadLetter
	for _, d := range f.letters {
		if d.Payload.Job.Queue == q && len(out) < limit {
			out = append(out, d)
		}
	}
	if remove {
		f.removed = true
	}
	return out, nil
}

type fakeEvents struct {
	events []domain.Event
}

func (f *fakeEvents) Since(campaignID uuid.UUID, since time.Time, limit int) []domain.Event {
	var out []domain.Event
	for _, e := range f.events {
		if e.CampaignID == campaignID && e.Timestamp.After(since) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out
}

type testServer struct {
	ctrl   *fakeController
	runs   *fakeRuns
	dlq    *fakeDLQ
	events *fakeEvents
	broker *queue.MemoryBroker
	mux    *http.ServeMux
}

func newTestServer() *testServer {
	s := &testServer{
		ctrl:   &fakeController{},
		runs:   &fakeRuns{runs: map[uuid.UUID]domain.CampaignRun{}},
		dlq:    &fakeDLQ{},
		events: &fakeEvents{},
		broker: queue.NewMemoryBroker(),
		mux:    http.NewServeMux(),
	}
	h := NewHandler(Config{
		Campaigns:   s.ctrl,
		Runs:        s.runs,
		Jobs:        fakeJobs{},
		DeadLetters: s.dlq,
		Events:      s.events,
		Broker:      s.broker,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.RegisterRoutes(s.mux)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestStartCampaign(t *testing.T) {
	s := newTestServer()
	campaignID := uuid.New()
	s.ctrl.run = &domain.CampaignRun{ID: uuid.New(), CampaignID: campaignID, Status: domain.RunStatusRunning, StartedAt: time.Now()}

	rec, body := s.do(t, http.MethodPost, "/api/v1/campaigns/"+campaignID.String()+"/start", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ACTIVE", data["status"])
	assert.Equal(t, "RUNNING", data["run"].(map[string]any)["status"])
}

func TestCommands_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid transition", retry.Businessf("%w: campaign is ACTIVE", coordinator.ErrInvalidTransition), http.StatusConflict},
		{"not found", fmt.Errorf("get campaign: %w", repo.ErrNotFound), http.StatusNotFound},
		{"no wallets", retry.Businessf("%w", coordinator.ErrNoActiveWallets), http.StatusUnprocessableEntity},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.ctrl.err = tt.err

			rec, _ := s.do(t, http.MethodPost, "/api/v1/campaigns/"+uuid.NewString()+"/resume", nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, []string{"resume"}, s.ctrl.calls)
		})
	}
}

func TestPauseAndStop(t *testing.T) {
	s := newTestServer()
	id := uuid.NewString()

	rec, body := s.do(t, http.MethodPost, "/api/v1/campaigns/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PAUSED", body["data"].(map[string]any)["status"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/campaigns/"+id+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "STOPPED", body["data"].(map[string]any)["status"])

	assert.Equal(t, []string{"pause", "stop"}, s.ctrl.calls)
}

func TestInvalidCampaignID(t *testing.T) {
	s := newTestServer()

	rec, _ := s.do(t, http.MethodPost, "/api/v1/campaigns/not-a-uuid/pause", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.ctrl.calls)
}

func TestGetRunAndJob(t *testing.T) {
	s := newTestServer()
	run := domain.CampaignRun{ID: uuid.New(), CampaignID: uuid.New(), Status: domain.RunStatusPaused, StartedAt: time.Now()}
	s.runs.runs[run.ID] = run

	rec, body := s.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PAUSED", body["data"].(map[string]any)["status"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/v1/jobs/buy:c1:0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), body["data"].(map[string]any)["progress"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/campaigns/"+run.CampaignID.String()+"/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)
}

func TestDistribute(t *testing.T) {
	s := newTestServer()
	walletID := uuid.New()

	rec, body := s.do(t, http.MethodPost, "/api/v1/wallets/"+walletID.String()+"/distribute", DistributeRequest{Count: 5})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, domain.QueueDistributions, body["data"].(map[string]any)["queue"])

	jobs, err := s.broker.ListJobs(context.Background(), domain.QueueDistributions)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	var p domain.DistributePayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &p))
	assert.Equal(t, walletID, p.SourceWalletID)
	assert.Equal(t, 5, p.Count)
}

func TestDistribute_RejectsCount(t *testing.T) {
	s := newTestServer()

	for _, count := range []int{0, 21} {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/wallets/"+uuid.NewString()+"/distribute", DistributeRequest{Count: count})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "count %d", count)
	}
	assert.Zero(t, s.broker.Len())
}

func TestDeadLetters_ListAndReplay(t *testing.T) {
	s := newTestServer()
	job := domain.Job{
		ID:           "sell:c1:3",
		Queue:        domain.QueueTrades,
		Type:         domain.JobTypeSell,
		Payload:      json.RawMessage(`{"wallet_id":"w"}`),
		AttemptsMade: 3,
		MaxAttempts:  3,
	}
	s.dlq.letters = []mq.DeadLetter{{
		MessageID: "m1",
		Payload:   mq.DeadLetterPayload{Job: job, Reason: "exhausted", Error: "rpc timeout"},
	}}

	rec, body := s.do(t, http.MethodGet, "/api/v1/dlq/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "exhausted", items[0].(map[string]any)["reason"])
	assert.False(t, s.dlq.removed)

	rec, body = s.do(t, http.MethodPost, "/api/v1/dlq/trades/replay", ReplayRequest{Limit: 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.dlq.removed)
	assert.Equal(t, []any{"sell:c1:3"}, body["data"].(map[string]any)["replayed"])

	jobs, err := s.broker.ListJobs(context.Background(), domain.QueueTrades)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Zero(t, jobs[0].AttemptsMade)
	assert.Equal(t, 3, jobs[0].MaxAttempts)
}

func TestDeadLetters_UnknownQueue(t *testing.T) {
	s := newTestServer()

	rec, _ := s.do(t, http.MethodGet, "/api/v1/dlq/payments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignEvents(t *testing.T) {
	s := newTestServer()
	campaignID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		e := domain.NewEvent(domain.EventTypeJobStatus, campaignID, map[string]any{"n": i})
		e.Timestamp = base.Add(time.Duration(i) * time.Second)
		s.events.events = append(s.events.events, e)
	}

	rec, body := s.do(t, http.MethodGet, "/api/v1/campaigns/"+campaignID.String()+"/events?since="+base.Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/campaigns/"+campaignID.String()+"/events?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer()
	path := "/api/v1/campaigns/" + uuid.NewString() + "/pause"

	rec, _ := s.do(t, http.MethodPost, path, nil)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "generated request id should be a uuid")

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}
