package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/distribution"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
)

// Distribute ставит job распределения SOL с кошелька на новые кошельки.
// POST /api/v1/wallets/{id}/distribute
//
// Количество проверяется до постановки, чтобы не тратить попытку job.
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid wallet id")
		return
	}

	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := distribution.ValidateCount(req.Count); err != nil {
		BadRequest(w, err.Error())
		return
	}

	job, err := h.broker.Enqueue(r.Context(), domain.QueueDistributions, domain.JobTypeDistribute,
		domain.DistributePayload{
			UserID:         req.UserID,
			CampaignID:     req.CampaignID,
			SourceWalletID: walletID,
			Count:          req.Count,
		},
		queue.EnqueueOptions{CampaignID: req.CampaignID},
	)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("distribution enqueued", "job_id", job.ID, "wallet_id", walletID, "count", req.Count)
	Accepted(w, JobAcceptedResponse{JobID: job.ID, Queue: job.Queue})
}
