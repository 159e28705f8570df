package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
)

type createRequestPayload struct {
	DisplayName string `json:"display_name"`
}

type resolveRequestPayload struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

type grantProPayload struct {
	UserID string `json:"user_id"`
}

type balancePayload struct {
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

type planPayload struct {
	Tier         string     `json:"plan_tier"`
	Status       string     `json:"plan_status"`
	ProExpiresAt *time.Time `json:"pro_expires_at"`
}

type transactionPayload struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AmountCents int64           `json:"amount_cents"`
	Amount      string          `json:"amount"`
	Reference   string          `json:"reference"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

type requestPayload struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	AmountCents    int64      `json:"amount_cents"`
	Amount         string     `json:"amount"`
	Status         string     `json:"status"`
	StatusMessage  string     `json:"status_message"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	UserEmail      *string    `json:"user_email"`
	RestaurantName *string    `json:"restaurant_name"`
	Mode           string     `json:"mode,omitempty"`
}

type userPayload struct {
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Plan      planPayload `json:"plan"`
	CreatedAt time.Time   `json:"created_at"`
}

type walletResponse struct {
	Balance       balancePayload       `json:"balance"`
	Plan          planPayload          `json:"plan"`
	ProPriceCents int64                `json:"pro_price_cents"`
	ProPrice      string               `json:"pro_price"`
	LatestRequest *requestPayload      `json:"latest_request"`
	Transactions  []transactionPayload `json:"transactions"`
}

func toBalancePayload(balance wallet.Balance) balancePayload {
	return balancePayload{
		BalanceCents: balance.BalanceCents.Int64(),
		Balance:      balance.BalanceCents.Units(),
	}
}

func toPlanPayload(meta wallet.PlanMeta) planPayload {
	return planPayload{
		Tier:         meta.Tier.String(),
		Status:       meta.Status.String(),
		ProExpiresAt: meta.ProExpiresAt,
	}
}

func toTransactionPayloads(transactions []wallet.Transaction) []transactionPayload {
	payloads := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, transactionPayload{
			ID:          transaction.ID,
			Type:        transaction.Type.String(),
			AmountCents: transaction.AmountCents.Int64(),
			Amount:      transaction.AmountCents.Units(),
			Reference:   transaction.Reference,
			Metadata:    json.RawMessage(transaction.Metadata.String()),
			CreatedAt:   transaction.CreatedAt,
		})
	}
	return payloads
}

func toRequestPayload(request wallet.UpgradeRequest) requestPayload {
	return requestPayload{
		ID:            request.ID.String(),
		UserID:        request.UserID.String(),
		DisplayName:   request.DisplayName,
		AmountCents:   request.AmountCents.Int64(),
		Amount:        request.AmountCents.Units(),
		Status:        request.Status.String(),
		StatusMessage: request.StatusMessage,
		CreatedAt:     request.CreatedAt,
		ResolvedAt:    request.ResolvedAt,
	}
}

func toEnrichedPayloads(requests []wallet.EnrichedRequest) []requestPayload {
	payloads := make([]requestPayload, 0, len(requests))
	for _, request := range requests {
		payload := toRequestPayload(request.UpgradeRequest)
		payload.UserEmail = request.UserEmail
		payload.RestaurantName = request.RestaurantName
		payload.Mode = string(request.Mode)
		payloads = append(payloads, payload)
	}
	return payloads
}

func toUserPayloads(users []wallet.UserProfile) []userPayload {
	payloads := make([]userPayload, 0, len(users))
	for _, user := range users {
		payloads = append(payloads, userPayload{
			UserID:    user.UserID.String(),
			Email:     user.Email,
			Name:      user.Name,
			Plan:      toPlanPayload(user.Plan),
			CreatedAt: user.CreatedAt,
		})
	}
	return payloads
}
