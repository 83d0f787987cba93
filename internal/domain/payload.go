package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TradePayload — payload jobs buy и sell.
//
// Chain связывает цепочку buy → sell → buy одного кошелька. Новая цепочка
// создаётся при старте и при resume, поэтому ID jobs разных цепочек
// не пересекаются.
type TradePayload struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Chain    string    `json:"chain"`
	Cycle    int       `json:"cycle"`
}

// TradeJobID возвращает детерминированный ID trade job.
func TradeJobID(jobType, chain string, cycle int) string {
	return fmt.Sprintf("%s:%s:%d", jobType, chain, cycle)
}

// DistributePayload — payload job distribute.
type DistributePayload struct {
	UserID         uuid.UUID `json:"user_id"`
	CampaignID     uuid.UUID `json:"campaign_id,omitempty"`
	SourceWalletID uuid.UUID `json:"source_wallet_id"`
	Count          int       `json:"count"`
}
