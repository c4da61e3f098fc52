package repository

import (
	"context"
	"errors"
	"time"

	"buzz/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTokenNotFound      = errors.New("核销令牌不存在")
	ErrTokenStatusInvalid = errors.New("令牌状态不合法")
)

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, tx *gorm.DB, token *model.RedemptionToken) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(token).Error
}

func (r *TokenRepository) GetByID(ctx context.Context, tx *gorm.DB, tokenID string) (*model.RedemptionToken, error) {
	if tx == nil {
		tx = r.db
	}
	var token model.RedemptionToken
	err := tx.WithContext(ctx).Where("id = ?", tokenID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// MarkUsed 条件核销令牌
//
// 【关键点】WHERE status = 'ISSUED' 是一次性语义的根基：
// 同一令牌的 N 个并发核销里只有一个 UPDATE 能命中行，
// 其余 RowsAffected == 0，整个事务回滚并报"已使用"
func (r *TokenRepository) MarkUsed(ctx context.Context, tx *gorm.DB, tokenID string, businessID int64, usedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.RedemptionToken{}).
		Where("id = ? AND status = ?", tokenID, model.TokenStatusIssued).
		Updates(map[string]interface{}{
			"status":              model.TokenStatusUsed,
			"used_at":             usedAt,
			"used_by_business_id": businessID,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrTokenStatusInvalid
	}

	return nil
}

// RevokeLive 作废某用户同一标的下仍存活的令牌（重新签发前调用）
// referenceID 为空串时作废该用户的里程令牌，否则作废指定优惠券的令牌
func (r *TokenRepository) RevokeLive(ctx context.Context, tx *gorm.DB, ownerUserID int64, tokenType, referenceID string) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.RedemptionToken{}).
		Where("owner_user_id = ? AND token_type = ? AND reference_id = ? AND status = ?",
			ownerUserID, tokenType, referenceID, model.TokenStatusIssued).
		Update("status", model.TokenStatusRevoked)

	return result.RowsAffected, result.Error
}

// SweepExpired 把已过有效期但状态还停留在 ISSUED 的令牌批量置为 EXPIRED
//
// 【关键点】WHERE status = 'ISSUED' AND expires_at < now 让清理天然幂等，
// 也保证绝不会碰到 USED/REVOKED 的令牌，可以与核销并发执行
func (r *TokenRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RedemptionToken{}).
		Where("status = ? AND expires_at < ?", model.TokenStatusIssued, now).
		Update("status", model.TokenStatusExpired)

	return result.RowsAffected, result.Error
}

func (r *TokenRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.RedemptionToken, error) {
	var tokens []*model.RedemptionToken
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", userID).
		Order("issued_at DESC").
		Limit(limit).
		Find(&tokens).Error
	return tokens, err
}
