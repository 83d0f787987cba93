package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
)

// StartCampaign запускает кампанию.
// POST /api/v1/campaigns/{id}/start
func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	run, err := h.campaigns.Start(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	resp := RunFromDomain(*run)
	Success(w, CommandResponse{CampaignID: id, Status: domain.CampaignStatusActive, Run: &resp})
}

// PauseCampaign приостанавливает кампанию.
// POST /api/v1/campaigns/{id}/pause
func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.campaigns.Pause, domain.CampaignStatusPaused)
}

// ResumeCampaign возобновляет кампанию.
// POST /api/v1/campaigns/{id}/resume
func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.campaigns.Resume, domain.CampaignStatusActive)
}

// StopCampaign останавливает кампанию.
// POST /api/v1/campaigns/{id}/stop
func (h *Handler) StopCampaign(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.campaigns.Stop, domain.CampaignStatusStopped)
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) error, status domain.CampaignStatus) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := fn(r.Context(), id); HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	Success(w, CommandResponse{CampaignID: id, Status: status})
}

// ListCampaignRuns возвращает runs кампании, новые первыми.
// GET /api/v1/campaigns/{id}/runs?limit=...
func (h *Handler) ListCampaignRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	runs, err := h.runs.ListByCampaign(r.Context(), id, queryInt(r, "limit", 20))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

func campaignID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}
