package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/worker"
)

// dlqQueues — очереди, у которых есть DLQ.
var dlqQueues = []string{domain.QueueTrades, domain.QueueDistributions, domain.QueueWebhooks}

const (
	defaultDLQLimit = 50
	maxDLQLimit     = 500
)

// ListDeadLetters показывает dead letters очереди, не удаляя их.
// GET /api/v1/dlq/{queue}?limit=...
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	q, ok := dlqQueue(w, r)
	if !ok {
		return
	}

	letters, err := h.deadLetters.Fetch(r.Context(), q, min(queryInt(r, "limit", defaultDLQLimit), maxDLQLimit), false)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	result := make([]DeadLetterResponse, len(letters))
	for i, d := range letters {
		result[i] = DeadLetterFromMQ(d)
	}

	List(w, result, len(result))
}

// ReplayDeadLetters забирает dead letters и ставит их jobs обратно в очередь.
// POST /api/v1/dlq/{queue}/replay
//
// Job, который не удалось поставить, логируется целиком: из DLQ он уже удалён.
func (h *Handler) ReplayDeadLetters(w http.ResponseWriter, r *http.Request) {
	q, ok := dlqQueue(w, r)
	if !ok {
		return
	}

	var req ReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}

	letters, err := h.deadLetters.Fetch(r.Context(), q, min(limit, maxDLQLimit), true)
	if err != nil && len(letters) == 0 {
		InternalError(w, h.logger, err)
		return
	}

	resp := ReplayResponse{Replayed: []string{}}
	for _, d := range letters {
		job, err := worker.Replay(r.Context(), h.broker, d.Payload.Job)
		if err != nil {
			h.logger.Error("dead letter replay failed, job dropped from DLQ",
				"job_id", d.Payload.Job.ID,
				"job", d.Payload.Job,
				"error", err,
			)
			resp.Failed = append(resp.Failed, d.Payload.Job.ID)
			continue
		}
		resp.Replayed = append(resp.Replayed, job.ID)
	}

	h.logger.Info("dead letters replayed", "queue", q, "replayed", len(resp.Replayed), "failed", len(resp.Failed))
	Success(w, resp)
}

func dlqQueue(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := r.PathValue("queue")
	if !slices.Contains(dlqQueues, q) {
		BadRequest(w, "unknown queue "+q)
		return "", false
	}
	return q, true
}
