package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/retry"
)

type campaignStore struct {
	mu          sync.Mutex
	campaigns   map[uuid.UUID]*domain.Campaign
	transitions int

	// interfere меняет кампанию между чтением и check-and-set
	interfere func(c *domain.Campaign)
}

func (s *campaignStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *campaignStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return repo.ErrNotFound
	}
	if s.interfere != nil {
		s.interfere(c)
		s.interfere = nil
	}
	if c.Status != from {
		return repo.ErrInvalidState
	}
	c.Status = to
	s.transitions++
	return nil
}

func (s *campaignStore) status(id uuid.UUID) domain.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].Status
}

type runStore struct {
	mu      sync.Mutex
	runs    []*domain.CampaignRun
	updates int
}

func (s *runStore) Create(_ context.Context, run *domain.CampaignRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.CampaignID == run.CampaignID && !r.Status.IsTerminal() {
			return repo.ErrAlreadyExists
		}
	}
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *runStore) UpdateActiveStatus(_ context.Context, campaignID uuid.UUID, status domain.RunStatus) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.CampaignID != campaignID || r.Status.IsTerminal() {
			continue
		}
		r.Status = status
		if status.IsTerminal() {
			now := time.Now()
			r.EndedAt = &now
		}
		s.updates++
		return r.ID, nil
	}
	return uuid.Nil, repo.ErrNotFound
}

func (s *runStore) get(id uuid.UUID) domain.CampaignRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			return *r
		}
	}
	return domain.CampaignRun{}
}

type walletStore struct {
	wallets map[uuid.UUID][]domain.Wallet
}

func (s *walletStore) ListActiveByCampaign(_ context.Context, campaignID uuid.UUID) ([]domain.Wallet, error) {
	var out []domain.Wallet
	for _, w := range s.wallets[campaignID] {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Broadcast(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type notifyRecorder struct {
	events []string
}

func (n *notifyRecorder) Notify(_ context.Context, _ uuid.UUID, _, event string, _ any) (int, error) {
	n.events = append(n.events, event)
	return 1, nil
}

type fixture struct {
	coord     *Coordinator
	campaigns *campaignStore
	runs      *runStore
	wallets   *walletStore
	broker    *queue.MemoryBroker
	events    *eventRecorder
	notifier  *notifyRecorder
}

func newFixture() *fixture {
	f := &fixture{
		campaigns: &campaignStore{campaigns: map[uuid.UUID]*domain.Campaign{}},
		runs:      &runStore{},
		wallets:   &walletStore{wallets: map[uuid.UUID][]domain.Wallet{}},
		broker:    queue.NewMemoryBroker(),
		events:    &eventRecorder{},
		notifier:  &notifyRecorder{},
	}
	f.coord = New(Config{
		Campaigns: f.campaigns,
		Runs:      f.runs,
		Wallets:   f.wallets,
		Broker:    f.broker,
		Events:    f.events,
		Notifier:  f.notifier,
	})
	return f
}

func (f *fixture) addCampaign(status domain.CampaignStatus, wallets int) uuid.UUID {
	id := uuid.New()
	f.campaigns.campaigns[id] = &domain.Campaign{
		ID:        id,
		UserID:    uuid.New(),
		Name:      "test",
		TokenMint: "So11111111111111111111111111111111111111112",
		Status:    status,
		Params:    domain.CampaignParams{JobPriority: 5},
	}
	cid := id
	for range wallets {
		f.wallets.wallets[id] = append(f.wallets.wallets[id], domain.Wallet{
			ID:         uuid.New(),
			CampaignID: &cid,
			Active:     true,
		})
	}
	// неактивный кошелёк не должен получать jobs
	f.wallets.wallets[id] = append(f.wallets.wallets[id], domain.Wallet{ID: uuid.New(), CampaignID: &cid})
	return id
}

func (f *fixture) addRun(campaignID uuid.UUID, status domain.RunStatus) uuid.UUID {
	run := &domain.CampaignRun{ID: uuid.New(), CampaignID: campaignID, Status: status, StartedAt: time.Now()}
	if status.IsTerminal() {
		ended := time.Now()
		run.EndedAt = &ended
	}
	f.runs.runs = append(f.runs.runs, run)
	return run.ID
}

func (f *fixture) enqueue(t *testing.T, q string, campaignID uuid.UUID, delay time.Duration) {
	t.Helper()
	_, err := f.broker.Enqueue(context.Background(), q, domain.JobTypeBuy, nil, queue.EnqueueOptions{
		CampaignID: campaignID,
		Delay:      delay,
	})
	require.NoError(t, err)
}

func (f *fixture) campaignJobs(t *testing.T, campaignID uuid.UUID, q string) []domain.Job {
	t.Helper()
	jobs, err := f.broker.ListJobs(context.Background(), q, domain.JobStateWaiting, domain.JobStateDelayed)
	require.NoError(t, err)
	return queue.FilterByCampaign(jobs, campaignID)
}

func TestStart_EnqueuesOneBuyPerActiveWallet(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusDraft, 3)

	run, err := f.coord.Start(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignStatusActive, f.campaigns.status(id))
	assert.Equal(t, domain.RunStatusRunning, f.runs.get(run.ID).Status)

	jobs := f.campaignJobs(t, id, domain.QueueTrades)
	require.Len(t, jobs, 3)
	for _, j := range jobs {
		assert.Equal(t, domain.JobTypeBuy, j.Type)
		assert.Equal(t, run.ID, j.RunID)
		assert.Equal(t, 5, j.Priority)
	}

	require.Equal(t, 1, f.events.count())
	assert.Equal(t, domain.EventTypeRunStatus, f.events.events[0].Type)
	assert.Equal(t, []string{domain.EventCampaignStatusChanged}, f.notifier.events)
}

func TestStart_RejectsActiveCampaign(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusActive, 1)

	_, err := f.coord.Start(context.Background(), id)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, retry.Business, retry.KindOf(err))
	assert.Zero(t, f.broker.Len())
}

func TestStart_NoWallets(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.campaigns.campaigns[id] = &domain.Campaign{ID: id, Status: domain.CampaignStatusDraft}

	_, err := f.coord.Start(context.Background(), id)
	require.ErrorIs(t, err, ErrNoActiveWallets)
	assert.Equal(t, domain.CampaignStatusDraft, f.campaigns.status(id))
	assert.Empty(t, f.runs.runs)
}

func TestPause_RemovesCampaignJobsAndUpdatesOnlyActiveRun(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusActive, 2)
	other := f.addCampaign(domain.CampaignStatusActive, 1)

	historical := f.addRun(id, domain.RunStatusStopped)
	completed := f.addRun(id, domain.RunStatusCompleted)
	active := f.addRun(id, domain.RunStatusRunning)

	f.enqueue(t, domain.QueueTrades, id, 0)
	f.enqueue(t, domain.QueueTrades, id, time.Hour)
	f.enqueue(t, domain.QueueDistributions, id, 0)
	f.enqueue(t, domain.QueueTrades, other, 0)

	require.NoError(t, f.coord.Pause(context.Background(), id))

	assert.Empty(t, f.campaignJobs(t, id, domain.QueueTrades))
	assert.Empty(t, f.campaignJobs(t, id, domain.QueueDistributions))
	assert.Len(t, f.campaignJobs(t, other, domain.QueueTrades), 1)

	assert.Equal(t, domain.RunStatusPaused, f.runs.get(active).Status)
	assert.Equal(t, domain.RunStatusStopped, f.runs.get(historical).Status)
	assert.Equal(t, domain.RunStatusCompleted, f.runs.get(completed).Status)
	assert.Equal(t, 1, f.runs.updates)

	assert.Equal(t, domain.CampaignStatusPaused, f.campaigns.status(id))

	require.Equal(t, 1, f.events.count())
	assert.Equal(t, 3, f.events.events[0].Data["removedJobs"])
}

func TestPause_RequiresActive(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusPaused, 1)
	f.enqueue(t, domain.QueueTrades, id, 0)

	err := f.coord.Pause(context.Background(), id)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, f.broker.Len())
}

func TestResume_NotPausedFailsWithoutMutation(t *testing.T) {
	for _, status := range []domain.CampaignStatus{
		domain.CampaignStatusDraft,
		domain.CampaignStatusActive,
		domain.CampaignStatusStopped,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture()
			id := f.addCampaign(status, 2)
			run := f.addRun(id, domain.RunStatusRunning)

			err := f.coord.Resume(context.Background(), id)
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.False(t, retry.IsRetryable(err))

			assert.Equal(t, status, f.campaigns.status(id))
			assert.Equal(t, domain.RunStatusRunning, f.runs.get(run).Status)
			assert.Zero(t, f.campaigns.transitions)
			assert.Zero(t, f.runs.updates)
			assert.Zero(t, f.broker.Len())
			assert.Zero(t, f.events.count())
		})
	}
}

func TestResume_ReenqueuesBuys(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusPaused, 2)
	run := f.addRun(id, domain.RunStatusPaused)

	require.NoError(t, f.coord.Resume(context.Background(), id))

	assert.Equal(t, domain.CampaignStatusActive, f.campaigns.status(id))
	assert.Equal(t, domain.RunStatusRunning, f.runs.get(run).Status)

	jobs := f.campaignJobs(t, id, domain.QueueTrades)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, run, j.RunID)
	}
}

func TestResume_ConcurrentStopLeavesRunPaused(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusPaused, 2)
	run := f.addRun(id, domain.RunStatusPaused)
	f.campaigns.interfere = func(c *domain.Campaign) { c.Status = domain.CampaignStatusStopped }

	err := f.coord.Resume(context.Background(), id)
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, domain.CampaignStatusStopped, f.campaigns.status(id))
	assert.Equal(t, domain.RunStatusPaused, f.runs.get(run).Status)
	assert.Zero(t, f.runs.updates)
	assert.Zero(t, f.broker.Len())
	assert.Zero(t, f.events.count())
}

func TestResume_NoActiveRunRollsBackCampaign(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusPaused, 2)
	f.addRun(id, domain.RunStatusStopped)

	err := f.coord.Resume(context.Background(), id)
	require.ErrorIs(t, err, repo.ErrNotFound)

	assert.Equal(t, domain.CampaignStatusPaused, f.campaigns.status(id))
	assert.Zero(t, f.broker.Len())
}

func TestStop_FromPaused(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusPaused, 1)
	run := f.addRun(id, domain.RunStatusPaused)
	f.enqueue(t, domain.QueueTrades, id, time.Minute)

	require.NoError(t, f.coord.Stop(context.Background(), id))

	got := f.runs.get(run)
	assert.Equal(t, domain.RunStatusStopped, got.Status)
	assert.NotNil(t, got.EndedAt)
	assert.Equal(t, domain.CampaignStatusStopped, f.campaigns.status(id))
	assert.Zero(t, f.broker.Len())
}

func TestStop_AlreadyStopped(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusStopped, 1)

	err := f.coord.Stop(context.Background(), id)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPauseResumeCycle_NewChainIDs(t *testing.T) {
	f := newFixture()
	id := f.addCampaign(domain.CampaignStatusDraft, 1)
	ctx := context.Background()

	_, err := f.coord.Start(ctx, id)
	require.NoError(t, err)
	first := f.campaignJobs(t, id, domain.QueueTrades)
	require.Len(t, first, 1)

	require.NoError(t, f.coord.Pause(ctx, id))
	require.NoError(t, f.coord.Resume(ctx, id))

	second := f.campaignJobs(t, id, domain.QueueTrades)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
}
