package accounts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// Repository persists connected payment accounts. Token columns are sealed by
// the service before they reach this layer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByDojang(ctx context.Context, dojangCode string) (*models.OwnerBankAccount, error)
	FindByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (*models.OwnerBankAccount, error)
	Upsert(ctx context.Context, account *models.OwnerBankAccount) error
	UpdateTokens(ctx context.Context, dojangCode string, tokens TokenUpdate) error
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]models.OwnerBankAccount, error)
	Delete(ctx context.Context, dojangCode string) (bool, error)
}

// TokenUpdate replaces both tokens in one statement so a reader never sees a
// new access token paired with a stale refresh token.
type TokenUpdate struct {
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByDojang(ctx context.Context, dojangCode string) (*models.OwnerBankAccount, error) {
	var account models.OwnerBankAccount
	if err := r.db.WithContext(ctx).
		Where("dojang_code = ?", dojangCode).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (*models.OwnerBankAccount, error) {
	var account models.OwnerBankAccount
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND connected_account_id = ?", provider, accountID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Upsert replaces the dojang's account wholesale on re-authorization.
func (r *repository) Upsert(ctx context.Context, account *models.OwnerBankAccount) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dojang_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider",
			"access_token",
			"refresh_token",
			"connected_account_id",
			"location_id",
			"token_expires_at",
			"updated_at",
		}),
	}).Create(account).Error
}

func (r *repository) UpdateTokens(ctx context.Context, dojangCode string, tokens TokenUpdate) error {
	result := r.db.WithContext(ctx).
		Model(&models.OwnerBankAccount{}).
		Where("dojang_code = ?", dojangCode).
		Updates(map[string]any{
			"access_token":     tokens.AccessToken,
			"refresh_token":    tokens.RefreshToken,
			"token_expires_at": tokens.TokenExpiresAt,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListExpiring(ctx context.Context, before time.Time, limit int) ([]models.OwnerBankAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	var accounts []models.OwnerBankAccount
	if err := r.db.WithContext(ctx).
		Where("refresh_token IS NOT NULL AND token_expires_at IS NOT NULL AND token_expires_at <= ?", before).
		Order("token_expires_at ASC").
		Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) Delete(ctx context.Context, dojangCode string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("dojang_code = ?", dojangCode).
		Delete(&models.OwnerBankAccount{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
