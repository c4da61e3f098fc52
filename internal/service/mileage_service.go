package service

import (
	"context"
	"fmt"
	"log"

	"buzz/internal/model"
	"buzz/internal/repository"
	"buzz/pkg/idgen"

	"gorm.io/gorm"
)

// MileageService 里程账本服务
// 账本只追加：任何余额变动都必须伴随一条流水，修正只能用 ADMIN_ADJUST 追加
type MileageService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewMileageService(db *gorm.DB) *MileageService {
	return &MileageService{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

func (s *MileageService) GetAccount(ctx context.Context, userID int64) (*model.MileageAccount, error) {
	return s.accountRepo.GetOrCreate(ctx, userID)
}

func (s *MileageService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Earn 获得里程（注册奖励、推荐奖励等，由外部业务触发）
func (s *MileageService) Earn(ctx context.Context, userID, amount int64, referenceType, referenceID, description string) (*model.MileageTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	trans := &model.MileageTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     account.ID,
		UserID:        userID,
		Type:          model.MileageTypeEarn,
		Amount:        amount,
		Description:   description,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + amount,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Increase(ctx, tx, userID, amount); err != nil {
			return fmt.Errorf("增加余额失败: %w", err)
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return trans, nil
}

// AdminAdjust 管理员调整（绕过令牌流程直接改账本）
// amount 带符号：正数加、负数减；减的部分同样受 balance >= 0 约束
func (s *MileageService) AdminAdjust(ctx context.Context, userID, amount int64, description, reason string) (*model.MileageTransaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	trans := &model.MileageTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     account.ID,
		UserID:        userID,
		Type:          model.MileageTypeAdminAdjust,
		Amount:        amount,
		Description:   fmt.Sprintf("%s（原因: %s）", description, reason),
		ReferenceType: model.ReferenceTypeAdmin,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + amount,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if amount > 0 {
			if err := s.accountRepo.Increase(ctx, tx, userID, amount); err != nil {
				return fmt.Errorf("增加余额失败: %w", err)
			}
		} else {
			if err := s.accountRepo.Deduct(ctx, tx, userID, -amount, account.Version); err != nil {
				if err == repository.ErrBalanceNotEnough {
					return ErrInsufficientBalance
				}
				if err == repository.ErrOptimisticLock {
					return ErrConcurrencyConflict
				}
				return fmt.Errorf("扣减余额失败: %w", err)
			}
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[MileageService] 管理员调整: userID=%d, amount=%d, reason=%s", userID, amount, reason)
	return trans, nil
}

func (s *MileageService) History(ctx context.Context, userID int64, page, pageSize int) ([]*model.MileageTransaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// AuditBalance 对账：校验余额物化视图与流水合计一致
//
// 【关键点】不一致是致命缺陷，正确运行下永远不该发生 ——
// 只记最高级别日志，绝不悄悄改数
func (s *MileageService) AuditBalance(ctx context.Context, userID int64) (bool, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return false, err
	}

	sum, err := s.transactionRepo.SumByAccountID(ctx, nil, account.ID)
	if err != nil {
		return false, err
	}

	if sum != account.Balance {
		log.Printf("[FATAL-INVARIANT] 账本不一致: userID=%d, balance=%d, 流水合计=%d",
			userID, account.Balance, sum)
		return false, nil
	}
	return true, nil
}
