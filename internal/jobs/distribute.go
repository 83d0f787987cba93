package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/distribution"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/worker"
)

// persistAttempts — попытки сохранить сгенерированные кошельки.
const persistAttempts = 3

// DistributeHandler распределяет SOL на новые кошельки и сохраняет их.
type DistributeHandler struct {
	deps Deps
}

// IdempotencyKey — повтор распределения создал бы второй набор кошельков.
func (h *DistributeHandler) IdempotencyKey(job *domain.Job) (string, error) {
	return h.key(job), nil
}

func (h *DistributeHandler) key(job *domain.Job) string {
	return "distribute:" + job.ID
}

// Execute выполняет распределение.
//
// Кошельки сохраняются даже при частичном сбое и отмене: на них уже
// могли уйти средства. Неподтверждённые кошельки сохраняются неактивными.
func (h *DistributeHandler) Execute(ctx context.Context, job *domain.Job, jc *worker.JobContext) (json.RawMessage, error) {
	p, err := worker.DecodePayload[domain.DistributePayload](job)
	if err != nil {
		return nil, err
	}
	if err := distribution.ValidateCount(p.Count); err != nil {
		return nil, err
	}
	logger := jc.Logger().With("source_wallet_id", p.SourceWalletID, "count", p.Count)
	ann := announcer{events: h.deps.Events, notifier: h.deps.Notifier, logger: logger}

	source, err := h.deps.Wallets.GetByID(ctx, p.SourceWalletID)
	if err != nil {
		return nil, lookupError("source wallet", err)
	}
	key, err := h.deps.Vault.OpenKey(source.SealedKey)
	if err != nil {
		return nil, retry.AsPermanent(fmt.Errorf("open source wallet key: %w", err))
	}

	result, distErr := h.deps.Distributor.DistributeSol(ctx, key, p.Count, func(done, total int) {
		jc.UpdateProgress(ctx, done*100/total, fmt.Sprintf("%d/%d wallets funded", done, total))
	})
	if result == nil {
		return nil, distErr
	}

	if err := h.persist(ctx, p, result); err != nil {
		logger.Error("failed to persist distributed wallets", "wallets", addresses(result), "error", err)
		return nil, retry.AsPermanent(err)
	}
	if distErr != nil {
		// частичный результат фиксируется, чтобы повтор job не распределял заново
		raw, err := marshal(result)
		if err == nil {
			err = jc.MarkProcessed(context.WithoutCancel(ctx), h.key(job), raw)
		}
		if err != nil {
			logger.Error("failed to store partial distribution", "error", err)
		}
		return nil, distErr
	}

	userID := p.UserID
	if userID == uuid.Nil {
		userID = source.UserID
	}
	funded := p.Count - result.Failed
	ann.jobStatus(ctx, job, domain.JobStatusSucceeded, map[string]any{
		"funded": funded,
		"failed": result.Failed,
	})
	ann.notify(ctx, userID, job.ID, domain.EventDistributionCompleted, map[string]any{
		"job_id":            job.ID,
		"success":           result.Success,
		"wallets":           addresses(result),
		"total_distributed": result.TotalDistributed,
		"failed":            result.Failed,
	})

	logger.Info("distribution finished",
		"funded", funded,
		"failed", result.Failed,
		"total_lamports", result.TotalDistributed,
	)
	return marshal(result)
}

// persist запечатывает ключи и сохраняет кошельки одним batch.
func (h *DistributeHandler) persist(ctx context.Context, p domain.DistributePayload, result *distribution.Result) error {
	if len(result.Wallets) == 0 {
		return nil
	}

	var campaignID *uuid.UUID
	if p.CampaignID != uuid.Nil {
		id := p.CampaignID
		campaignID = &id
	}

	now := h.deps.Now().UTC()
	wallets := make([]domain.Wallet, 0, len(result.Wallets))
	for _, w := range result.Wallets {
		sealed, err := h.deps.Vault.SealKey(w.PrivateKey)
		if err != nil {
			return fmt.Errorf("seal key %s: %w", w.Address, err)
		}
		wallets = append(wallets, domain.Wallet{
			ID:         uuid.New(),
			UserID:     p.UserID,
			CampaignID: campaignID,
			Address:    w.Address,
			SealedKey:  sealed,
			Active:     w.Verified,
			Label:      "distributed",
			CreatedAt:  now,
		})
	}

	return retry.Do(context.WithoutCancel(ctx), retry.Options{Attempts: persistAttempts}, func(ctx context.Context, _ int) error {
		return h.deps.Wallets.CreateBatch(ctx, wallets)
	})
}

func addresses(r *distribution.Result) []string {
	out := make([]string, len(r.Wallets))
	for i, w := range r.Wallets {
		out[i] = w.Address
	}
	return out
}
