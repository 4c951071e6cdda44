package models

import (
	"context"
	"errors"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"github.com/shopspring/decimal"
)

type RootCause struct {
	ID                    int               `gorm:"primary_key" json:"id"`
	NonConformityId       int               `gorm:"index;not null" json:"non_conformity_id" binding:"required"`
	Category              RootCauseCategory `gorm:"size:20;not null" json:"category"`
	Description           string            `gorm:"type:text" json:"description"`
	RecurrenceProbability decimal.Decimal   `gorm:"type:decimal(5,2);default:0" json:"recurrence_probability"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRootCause struct {
	NonConformityId       int               `json:"non_conformity_id" binding:"required" validate:"required"`
	Category              RootCauseCategory `json:"category" binding:"required" validate:"required"`
	Description           string            `json:"description"`
	RecurrenceProbability decimal.Decimal   `json:"recurrence_probability"`
}

func (input *NewRootCause) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[NonConformity](ctx, input.NonConformityId); err != nil {
		return errors.New("non-conformity not found")
	}
	if input.RecurrenceProbability.LessThan(decimal.Zero) ||
		input.RecurrenceProbability.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("recurrence probability must be between 0 and 100")
	}
	return nil
}

func CreateRootCause(ctx context.Context, input *NewRootCause) (*RootCause, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	rootCause := RootCause{
		NonConformityId:       input.NonConformityId,
		Category:              input.Category,
		Description:           input.Description,
		RecurrenceProbability: input.RecurrenceProbability,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&rootCause).Error; err != nil {
		return nil, err
	}
	return &rootCause, nil
}

func UpdateRootCause(ctx context.Context, id int, input *NewRootCause) (*RootCause, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	rootCause, err := utils.FetchModel[RootCause](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(rootCause).
		Updates(map[string]interface{}{
			"Category":              input.Category,
			"Description":           input.Description,
			"RecurrenceProbability": input.RecurrenceProbability,
		}).Error; err != nil {
		return nil, err
	}
	return rootCause, nil
}

func DeleteRootCause(ctx context.Context, id int) (*RootCause, error) {
	rootCause, err := utils.FetchModel[RootCause](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(rootCause).Error; err != nil {
		return nil, err
	}
	return rootCause, nil
}
