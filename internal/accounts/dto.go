package accounts

import (
	"time"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// AccountStatus is the public view of a connected account. Tokens never leave the service.
type AccountStatus struct {
	Connected          bool                   `json:"connected"`
	Provider           *enums.PaymentProvider `json:"provider,omitempty"`
	ConnectedAccountID string                 `json:"connected_account_id,omitempty"`
	TokenExpiresAt     *time.Time             `json:"token_expires_at,omitempty"`
	UpdatedAt          *time.Time             `json:"updated_at,omitempty"`
}

func statusFromModel(account *models.OwnerBankAccount) *AccountStatus {
	provider := account.Provider
	status := &AccountStatus{
		Connected:          true,
		Provider:           &provider,
		ConnectedAccountID: account.ConnectedAccountID,
		TokenExpiresAt:     account.TokenExpiresAt,
	}
	if !account.UpdatedAt.IsZero() {
		updated := account.UpdatedAt
		status.UpdatedAt = &updated
	}
	return status
}
