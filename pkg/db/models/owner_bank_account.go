package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// OwnerBankAccount links a dojang to its connected Stripe or Square account.
// Token columns hold sealed ciphertext, never the raw provider token.
type OwnerBankAccount struct {
	ID                 uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DojangCode         string                `gorm:"column:dojang_code;not null;uniqueIndex"`
	Provider           enums.PaymentProvider `gorm:"column:provider;not null"`
	AccessToken        string                `gorm:"column:access_token;not null"`
	RefreshToken       *string               `gorm:"column:refresh_token"`
	ConnectedAccountID string                `gorm:"column:connected_account_id;not null"`
	LocationID         *string               `gorm:"column:location_id"`
	TokenExpiresAt     *time.Time            `gorm:"column:token_expires_at"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *OwnerBankAccount) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
