package repository

import (
	"context"
	"errors"

	"buzz/internal/model"

	"gorm.io/gorm"
)

var ErrPolicyNotFound = errors.New("奖励政策未初始化")

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// GetCurrent 取当前生效的政策（最新一行）
func (r *PolicyRepository) GetCurrent(ctx context.Context, tx *gorm.DB) (*model.RewardPolicy, error) {
	if tx == nil {
		tx = r.db
	}
	var policy model.RewardPolicy
	err := tx.WithContext(ctx).Order("id DESC").First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *PolicyRepository) Create(ctx context.Context, policy *model.RewardPolicy) error {
	return r.db.WithContext(ctx).Create(policy).Error
}
