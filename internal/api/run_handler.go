package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/realtime"
)

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// GetJob возвращает запись job по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job))
}

// ListCampaignEvents возвращает события кампании из буфера.
// GET /api/v1/campaigns/{id}/events?since=<RFC3339>&limit=...
func (h *Handler) ListCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			BadRequest(w, "invalid since, expected RFC3339")
			return
		}
		since = t
	}

	events := h.events.Since(id, since, queryInt(r, "limit", realtime.DefaultReplayLimit))
	List(w, events, len(events))
}

// ListDeliveries возвращает доставки webhook.
// GET /api/v1/webhooks/{id}/deliveries?limit=...
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid webhook id")
		return
	}

	deliveries, err := h.deliveries.ListByWebhook(r.Context(), id, queryInt(r, "limit", 50))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, deliveries, len(deliveries))
}

// queryInt читает положительный int из query с дефолтным значением.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
