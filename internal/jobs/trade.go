package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/trading"
	"github.com/shaiso/Swarm/internal/txexec"
	"github.com/shaiso/Swarm/internal/worker"
)

// TradeHandler выполняет buy и sell jobs.
type TradeHandler struct {
	side trading.Side
	deps Deps
}

// TradeOutput — результат trade job.
type TradeOutput struct {
	Skipped string               `json:"skipped,omitempty"`
	Trade   *trading.TradeResult `json:"trade,omitempty"`
	Next    string               `json:"next_job_id,omitempty"`
}

// IdempotencyKey — ID job: он детерминирован в рамках цепочки кошелька.
func (h *TradeHandler) IdempotencyKey(job *domain.Job) (string, error) {
	return job.ID, nil
}

// Execute выполняет сделку и ставит следующий шаг цепочки.
//
// Результат сделки сохраняется под ключом settled:<job id> сразу после
// расчёта. Если job упал позже (например, при постановке follow-up),
// повтор не отправляет транзакцию снова.
func (h *TradeHandler) Execute(ctx context.Context, job *domain.Job, jc *worker.JobContext) (json.RawMessage, error) {
	p, err := worker.DecodePayload[domain.TradePayload](job)
	if err != nil {
		return nil, err
	}
	logger := jc.Logger().With("wallet_id", p.WalletID, "cycle", p.Cycle)
	ann := announcer{events: h.deps.Events, notifier: h.deps.Notifier, logger: logger}

	if skip, err := h.runHalted(ctx, job.RunID); err != nil || skip != "" {
		if skip != "" {
			logger.Info("run is not running, trade skipped", "reason", skip)
			return marshal(TradeOutput{Skipped: skip})
		}
		return nil, err
	}

	campaign, err := h.deps.Campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		return nil, lookupError("campaign", err)
	}

	settledKey := "settled:" + job.ID
	var trade *trading.TradeResult

	if raw, done, err := jc.Processed(ctx, settledKey); err != nil {
		return nil, fmt.Errorf("lookup settled trade: %w", err)
	} else if done {
		logger.Info("trade already settled, scheduling follow-up only")
		trade = new(trading.TradeResult)
		if err := json.Unmarshal(raw, trade); err != nil {
			return nil, retry.AsPermanent(fmt.Errorf("decode settled trade: %w", err))
		}
	} else {
		trade, err = h.trade(ctx, job, jc, campaign, p)
		if err != nil {
			final := !retry.IsRetryable(err) || job.AttemptsMade+1 >= job.MaxAttempts
			ann.jobStatus(ctx, job, domain.JobStatusFailed, map[string]any{
				"walletId": p.WalletID,
				"error":    err.Error(),
				"final":    final,
			})
			if final {
				ann.notify(ctx, campaign.UserID, job.ID, domain.EventTradeFailed, map[string]any{
					"campaign_id": campaign.ID,
					"job_id":      job.ID,
					"side":        h.side,
					"error":       err.Error(),
				})
			}
			return nil, err
		}

		raw, err := json.Marshal(trade)
		if err != nil {
			return nil, retry.AsPermanent(fmt.Errorf("marshal trade: %w", err))
		}
		if err := jc.MarkProcessed(ctx, settledKey, raw); err != nil {
			logger.Error("failed to mark trade settled", "error", err)
		}
		h.record(ctx, job, trade, raw, logger)

		ann.jobStatus(ctx, job, domain.JobStatusSucceeded, map[string]any{
			"walletId":  p.WalletID,
			"signature": trade.Signature,
			"amount":    trade.Amount,
		})
		ann.notify(ctx, campaign.UserID, job.ID, domain.EventTradeSucceeded, map[string]any{
			"campaign_id": campaign.ID,
			"job_id":      job.ID,
			"side":        trade.Side,
			"wallet":      trade.Wallet,
			"amount":      trade.Amount,
			"signature":   trade.Signature,
		})
	}

	out := TradeOutput{Trade: trade}
	next, err := h.followUp(ctx, job, jc, campaign, p)
	if err != nil {
		return nil, err
	}
	out.Next = next
	return marshal(out)
}

// trade загружает кошелёк и вызывает торговый сервис.
func (h *TradeHandler) trade(ctx context.Context, job *domain.Job, jc *worker.JobContext, campaign *domain.Campaign, p domain.TradePayload) (*trading.TradeResult, error) {
	wallet, err := h.deps.Wallets.GetByID(ctx, p.WalletID)
	if err != nil {
		return nil, lookupError("wallet", err)
	}
	key, err := h.deps.Vault.OpenKey(wallet.SealedKey)
	if err != nil {
		return nil, retry.AsPermanent(fmt.Errorf("open wallet %s key: %w", wallet.Address, err))
	}
	mint, err := chain.ParsePublicKey(campaign.TokenMint)
	if err != nil {
		return nil, retry.AsPermanent(err)
	}

	var settings *domain.UserSettings
	if h.deps.Settings != nil {
		if settings, err = h.deps.Settings.Get(ctx, campaign.UserID); err != nil {
			return nil, fmt.Errorf("get user settings: %w", err)
		}
	}
	execCfg := txexec.ResolveConfig(settings, campaign.Params, h.deps.ExecutorDefaults)

	jc.UpdateProgress(ctx, 10, fmt.Sprintf("submitting %s", h.side))

	if h.side == trading.SideBuy {
		return h.deps.Trader.ExecuteBuy(ctx, trading.BuyRequest{
			Wallet:         key,
			Mint:           mint,
			AmountLamports: campaign.Params.BuyAmountLamports,
			Pool:           campaign.Params.Pool,
			SlippageBps:    campaign.Params.SlippageBps,
			Executor:       execCfg,
		})
	}
	return h.deps.Trader.ExecuteSell(ctx, trading.SellRequest{
		Wallet:      key,
		Mint:        mint,
		Pool:        campaign.Params.Pool,
		Percent:     campaign.Params.SellPercent,
		SlippageBps: campaign.Params.SlippageBps,
		Executor:    execCfg,
	})
}

// record пишет Execution. Дубликат по ключу идемпотентности только логируется.
func (h *TradeHandler) record(ctx context.Context, job *domain.Job, trade *trading.TradeResult, raw json.RawMessage, logger *slog.Logger) {
	if h.deps.Executions == nil {
		return
	}
	sig := trade.Signature
	exec := &domain.Execution{
		ID:             uuid.New(),
		JobID:          job.ID,
		RunID:          job.RunID,
		IdempotencyKey: job.ID,
		TxSignature:    &sig,
		LatencyMs:      trade.LatencyMs,
		Result:         raw,
		CreatedAt:      h.deps.Now().UTC(),
	}
	inserted, err := h.deps.Executions.Insert(ctx, exec)
	if err != nil {
		logger.Error("failed to record execution", "error", err)
		return
	}
	if !inserted {
		logger.Warn("execution already recorded for key", "key", job.ID)
	}
}

// followUp ставит следующий шаг цепочки, если run всё ещё RUNNING.
func (h *TradeHandler) followUp(ctx context.Context, job *domain.Job, jc *worker.JobContext, campaign *domain.Campaign, p domain.TradePayload) (string, error) {
	if skip, err := h.runHalted(ctx, job.RunID); err != nil {
		return "", err
	} else if skip != "" {
		jc.Logger().Info("run halted, follow-up not scheduled", "reason", skip)
		return "", nil
	}

	nextType, cycle, delayMs := domain.JobTypeSell, p.Cycle, campaign.Params.SellDelayMs
	if h.side == trading.SideSell {
		nextType, cycle, delayMs = domain.JobTypeBuy, p.Cycle+1, campaign.Params.BuyDelayMs
	}

	next, err := jc.Enqueue(ctx, domain.QueueTrades, nextType,
		domain.TradePayload{WalletID: p.WalletID, Chain: p.Chain, Cycle: cycle},
		queue.EnqueueOptions{
			JobID:    domain.TradeJobID(nextType, p.Chain, cycle),
			Priority: campaign.Params.JobPriority,
			Delay:    time.Duration(delayMs) * time.Millisecond,
		})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", nextType, err)
	}
	return next.ID, nil
}

// runHalted возвращает непустую причину, если run не в статусе RUNNING.
func (h *TradeHandler) runHalted(ctx context.Context, runID uuid.UUID) (string, error) {
	if runID == uuid.Nil {
		return "", nil
	}
	run, err := h.deps.Runs.GetByID(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		return "run not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("get run: %w", err)
	}
	if run.Status != domain.RunStatusRunning {
		return "run " + string(run.Status), nil
	}
	return "", nil
}

// lookupError: отсутствующая запись не появится при повторе.
func lookupError(what string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return retry.AsPermanent(fmt.Errorf("%s: %w", what, err))
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func marshal(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, retry.AsPermanent(fmt.Errorf("marshal result: %w", err))
	}
	return raw, nil
}
