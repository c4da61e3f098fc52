package repository

import (
	"context"

	"buzz/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.MileageTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.MileageTransaction, error) {
	var trans model.MileageTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.MileageTransaction, int64, error) {
	var transactions []*model.MileageTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.MileageTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumByAccountID 按流水重新计算账户的带符号合计，用于对账校验
func (r *TransactionRepository) SumByAccountID(ctx context.Context, tx *gorm.DB, accountID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var transactions []*model.MileageTransaction
	err := tx.WithContext(ctx).Where("account_id = ?", accountID).Find(&transactions).Error
	if err != nil {
		return 0, err
	}

	var sum int64
	for _, trans := range transactions {
		sum += model.SignedAmount(trans.Type, trans.Amount)
	}
	return sum, nil
}
