package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)

	// Campaign lifecycle
	mux.Handle("POST /api/v1/campaigns/{id}/start", chain(http.HandlerFunc(h.StartCampaign)))
	mux.Handle("POST /api/v1/campaigns/{id}/pause", chain(http.HandlerFunc(h.PauseCampaign)))
	mux.Handle("POST /api/v1/campaigns/{id}/resume", chain(http.HandlerFunc(h.ResumeCampaign)))
	mux.Handle("POST /api/v1/campaigns/{id}/stop", chain(http.HandlerFunc(h.StopCampaign)))
	mux.Handle("GET /api/v1/campaigns/{id}/runs", chain(http.HandlerFunc(h.ListCampaignRuns)))

	// Runs & jobs
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))

	// Distribution
	mux.Handle("POST /api/v1/wallets/{id}/distribute", chain(http.HandlerFunc(h.Distribute)))

	if h.events != nil {
		mux.Handle("GET /api/v1/campaigns/{id}/events", chain(http.HandlerFunc(h.ListCampaignEvents)))
	}
	if h.deliveries != nil {
		mux.Handle("GET /api/v1/webhooks/{id}/deliveries", chain(http.HandlerFunc(h.ListDeliveries)))
	}

	// Dead letters
	if h.deadLetters != nil {
		mux.Handle("GET /api/v1/dlq/{queue}", chain(http.HandlerFunc(h.ListDeadLetters)))
		mux.Handle("POST /api/v1/dlq/{queue}/replay", chain(http.HandlerFunc(h.ReplayDeadLetters)))
	}

	// WebSocket: Logging оборачивает ResponseWriter и ломает Hijack
	if h.stream != nil {
		mux.Handle("GET /ws", Chain(RequestID(h.logger), Recovery())(h.stream))
	}
}
