package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"buzz/internal/config"
	"buzz/internal/model"
	"buzz/internal/repository"

	"gorm.io/gorm"
)

// 管理员审批动作
const (
	SettlementActionApprove = "approve"
	SettlementActionReject  = "reject"
	SettlementActionPay     = "pay"
)

var ErrUnknownSettlementAction = errors.New("未知的结算审批动作")

// SettlementService 结算单的管理端工作流
// 核销执行器只创建 REQUESTED 记录，之后的状态转移全在这里
type SettlementService struct {
	db             *gorm.DB
	cfg            *config.Config
	settlementRepo *repository.SettlementRepository
	businessRepo   *repository.BusinessRepository
	outboxRepo     *repository.OutboxRepository
}

func NewSettlementService(db *gorm.DB, cfg *config.Config) *SettlementService {
	return &SettlementService{
		db:             db,
		cfg:            cfg,
		settlementRepo: repository.NewSettlementRepository(db),
		businessRepo:   repository.NewBusinessRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

// Process 执行一次审批动作
// 状态机只认 REQUESTED->APPROVED->PAID 和 REQUESTED->REJECTED；
// 其余一律 SettlementStateConflict（比如审批一张已打款的单）
func (s *SettlementService) Process(ctx context.Context, settlementID int64, action, reason string) (*model.BusinessSettlement, error) {
	settlement, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	var toStatus string
	switch action {
	case SettlementActionApprove:
		toStatus = model.SettlementStatusApproved
	case SettlementActionReject:
		toStatus = model.SettlementStatusRejected
	case SettlementActionPay:
		toStatus = model.SettlementStatusPaid
	default:
		return nil, ErrUnknownSettlementAction
	}

	if err := s.settlementRepo.UpdateStatus(ctx, settlementID, settlement.Status, toStatus, reason); err != nil {
		return nil, err
	}

	log.Printf("[SettlementService] 结算单状态变更: id=%d, %s -> %s", settlementID, settlement.Status, toStatus)

	if err := s.publishStatusEvent(ctx, settlement, toStatus, reason); err != nil {
		// 事件发不出去不回滚状态变更，留给发件箱任务重试
		log.Printf("[SettlementService] 写入结算事件失败: id=%d, err=%v", settlementID, err)
	}

	return s.settlementRepo.GetByID(ctx, settlementID)
}

func (s *SettlementService) publishStatusEvent(ctx context.Context, settlement *model.BusinessSettlement, toStatus, reason string) error {
	payload := map[string]interface{}{
		"settlement_no":      settlement.SettlementNo,
		"business_id":        settlement.BusinessID,
		"settlement_type":    settlement.SettlementType,
		"amount":             settlement.Amount,
		"government_support": settlement.GovernmentSupport,
		"status":             toStatus,
		"reason":             reason,
		"processed_at":       time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	return s.outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: settlement.SettlementNo,
		Topic:      s.cfg.Kafka.Topic.SettlementResult,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	})
}

// SettlementView 管理端列表项（带商家名）
type SettlementView struct {
	*model.BusinessSettlement
	BusinessName string `json:"business_name"`
}

func (s *SettlementService) List(ctx context.Context, filter repository.SettlementFilter, page, pageSize int) ([]*SettlementView, int64, error) {
	settlements, total, err := s.settlementRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	// 商家名按ID去重后补齐，列表页不值得做 join
	names := make(map[int64]string)
	views := make([]*SettlementView, 0, len(settlements))
	for _, settlement := range settlements {
		name, ok := names[settlement.BusinessID]
		if !ok {
			business, err := s.businessRepo.GetByID(ctx, settlement.BusinessID)
			if err == nil {
				name = business.Name
			} else {
				name = fmt.Sprintf("business-%d", settlement.BusinessID)
			}
			names[settlement.BusinessID] = name
		}
		views = append(views, &SettlementView{BusinessSettlement: settlement, BusinessName: name})
	}

	return views, total, nil
}
