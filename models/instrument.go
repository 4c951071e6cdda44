package models

import (
	"context"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
)

type Instrument struct {
	ID                 int        `gorm:"primary_key" json:"id"`
	Code               string     `gorm:"size:50;uniqueIndex;not null" json:"code" binding:"required"`
	Name               string     `gorm:"size:100;not null" json:"name" binding:"required"`
	SerialNumber       string     `gorm:"size:100" json:"serial_number"`
	CalibrationDueDate *time.Time `json:"calibration_due_date"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInstrument struct {
	Code               string     `json:"code" binding:"required" validate:"required"`
	Name               string     `json:"name" binding:"required" validate:"required"`
	SerialNumber       string     `json:"serial_number"`
	CalibrationDueDate *time.Time `json:"calibration_due_date"`
}

func (input *NewInstrument) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	return utils.ValidateUnique[Instrument](ctx, "code", input.Code, id)
}

// IsCalibrationOverdue reports whether the instrument is past its
// calibration due date at the given instant.
func (instrument *Instrument) IsCalibrationOverdue(now time.Time) bool {
	return instrument.CalibrationDueDate != nil && instrument.CalibrationDueDate.Before(now)
}

func CreateInstrument(ctx context.Context, input *NewInstrument) (*Instrument, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	instrument := Instrument{
		Code:               input.Code,
		Name:               input.Name,
		SerialNumber:       input.SerialNumber,
		CalibrationDueDate: input.CalibrationDueDate,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&instrument).Error; err != nil {
		return nil, err
	}
	return &instrument, nil
}

func UpdateInstrument(ctx context.Context, id int, input *NewInstrument) (*Instrument, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	instrument, err := utils.FetchModel[Instrument](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(instrument).
		Updates(map[string]interface{}{
			"Code":               input.Code,
			"Name":               input.Name,
			"SerialNumber":       input.SerialNumber,
			"CalibrationDueDate": input.CalibrationDueDate,
		}).Error; err != nil {
		return nil, err
	}
	return instrument, nil
}

func DeleteInstrument(ctx context.Context, id int) (*Instrument, error) {
	instrument, err := utils.FetchModel[Instrument](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Measurement](ctx, "instrument_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("instrument used by %d measurement(s): %w", count, utils.ErrorRecordReferenced)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(instrument).Error; err != nil {
		return nil, err
	}
	return instrument, nil
}

func GetInstrument(ctx context.Context, id int) (*Instrument, error) {
	return utils.FetchModel[Instrument](ctx, id)
}

func ListInstruments(ctx context.Context) ([]*Instrument, error) {
	return utils.FetchAllModels[Instrument](ctx)
}
