package repository

import (
	"context"
	"errors"

	"buzz/internal/model"

	"gorm.io/gorm"
)

var (
	ErrBusinessNotFound = errors.New("商家不存在")
	ErrUserNotFound     = errors.New("用户不存在")
)

type BusinessRepository struct {
	db *gorm.DB
}

func NewBusinessRepository(db *gorm.DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

func (r *BusinessRepository) GetByID(ctx context.Context, businessID int64) (*model.Business, error) {
	var business model.Business
	err := r.db.WithContext(ctx).Where("id = ?", businessID).First(&business).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return &business, nil
}

func (r *BusinessRepository) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
