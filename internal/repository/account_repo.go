package repository

import (
	"context"
	"errors"

	"buzz/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("里程账户不存在")
	ErrBalanceNotEnough = errors.New("里程余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.MileageAccount, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.MileageAccount
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Deduct 条件扣减余额
//
// 【关键点】WHERE balance >= amount AND version = ? 保证：
// 1. 余额永远不会被扣成负数
// 2. 两个并发核销不可能基于同一份过期余额各扣一次
// RowsAffected == 0 时再查一次账户，区分"余额不足"和"并发冲突"
func (r *AccountRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64, version int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.MileageAccount{}).
		Where("user_id = ? AND balance >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

// Increase 增加余额（获得里程、正向管理员调整）
func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.MileageAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.MileageAccount, error) {
	account, err := r.GetByUserID(ctx, nil, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.MileageAccount{
		UserID:  userID,
		Balance: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, nil, userID)
}
