package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"github.com/shopspring/decimal"
)

type Measurement struct {
	ID                int             `gorm:"primary_key" json:"id"`
	TestId            int             `gorm:"index;not null" json:"test_id" binding:"required"`
	ParameterName     string          `gorm:"size:100;not null" json:"parameter_name" binding:"required"`
	MeasuredValue     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"measured_value"`
	ReferenceValue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reference_value"`
	ToleranceMin      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tolerance_min"`
	ToleranceMax      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tolerance_max"`
	InstrumentId      int             `gorm:"index" json:"instrument_id"`
	AbsoluteDeviation decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"absolute_deviation"`
	PercentDeviation  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"percent_deviation"`
	IsConforming      *bool           `gorm:"not null;default:false" json:"is_conforming"`
	MeasuredAt        time.Time       `gorm:"not null" json:"measured_at"`
	OperatorId        int             `gorm:"index" json:"operator_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewMeasurement struct {
	TestId         int             `json:"test_id" binding:"required" validate:"required"`
	ParameterName  string          `json:"parameter_name" binding:"required" validate:"required"`
	MeasuredValue  decimal.Decimal `json:"measured_value"`
	ReferenceValue decimal.Decimal `json:"reference_value"`
	ToleranceMin   decimal.Decimal `json:"tolerance_min"`
	ToleranceMax   decimal.Decimal `json:"tolerance_max"`
	InstrumentId   int             `json:"instrument_id"`
	MeasuredAt     *time.Time      `json:"measured_at"`
}

func (input *NewMeasurement) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.ToleranceMax.LessThan(input.ToleranceMin) {
		return errors.New("tolerance max is below tolerance min")
	}
	if input.InstrumentId > 0 {
		instrument, err := utils.FetchModel[Instrument](ctx, input.InstrumentId)
		if err != nil {
			return errors.New("instrument not found")
		}
		if instrument.IsCalibrationOverdue(time.Now()) {
			return fmt.Errorf("instrument %s calibration is overdue", instrument.Code)
		}
	}
	return nil
}

// CreateMeasurement records a reading during test execution. The
// deviations and the conformity flag are computed here, at creation time;
// the evaluator later only aggregates the stored flags. Measurements can
// only be added while their test is InProgress, which also gives the
// completed-test immutability rule for free.
func CreateMeasurement(ctx context.Context, input *NewMeasurement) (*Measurement, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	test, err := utils.FetchModel[Test](ctx, input.TestId)
	if err != nil {
		return nil, err
	}
	if test.CurrentStatus != TestStatusInProgress {
		return nil, fmt.Errorf("measurements can only be recorded while the test is in progress (test %s is %s): %w",
			test.TestNumber, test.CurrentStatus, utils.ErrorInvalidState)
	}

	measurement := buildMeasurement(ctx, input)

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(measurement).Error; err != nil {
		return nil, err
	}
	return measurement, nil
}

func buildMeasurement(ctx context.Context, input *NewMeasurement) *Measurement {
	abs, pct := computeDeviations(input.MeasuredValue, input.ReferenceValue)
	conforming := isWithinTolerance(input.MeasuredValue, input.ToleranceMin, input.ToleranceMax)

	measuredAt := time.Now()
	if input.MeasuredAt != nil {
		measuredAt = *input.MeasuredAt
	}
	operatorId, _ := utils.GetUserIdFromContext(ctx)

	return &Measurement{
		TestId:            input.TestId,
		ParameterName:     input.ParameterName,
		MeasuredValue:     input.MeasuredValue,
		ReferenceValue:    input.ReferenceValue,
		ToleranceMin:      input.ToleranceMin,
		ToleranceMax:      input.ToleranceMax,
		InstrumentId:      input.InstrumentId,
		AbsoluteDeviation: abs,
		PercentDeviation:  pct,
		IsConforming:      &conforming,
		MeasuredAt:        measuredAt,
		OperatorId:        operatorId,
	}
}

func DeleteMeasurement(ctx context.Context, id int) (*Measurement, error) {
	measurement, err := utils.FetchModel[Measurement](ctx, id)
	if err != nil {
		return nil, err
	}

	test, err := utils.FetchModel[Test](ctx, measurement.TestId)
	if err != nil {
		return nil, err
	}
	if test.CurrentStatus != TestStatusInProgress {
		return nil, fmt.Errorf("measurements of a %s test cannot be removed: %w", test.CurrentStatus, utils.ErrorInvalidState)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(measurement).Error; err != nil {
		return nil, err
	}
	return measurement, nil
}

func ListTestMeasurements(ctx context.Context, testId int) ([]*Measurement, error) {
	db := config.GetDB()
	var measurements []*Measurement
	if err := db.WithContext(ctx).Where("test_id = ?", testId).
		Order("measured_at, id").Find(&measurements).Error; err != nil {
		return nil, err
	}
	return measurements, nil
}
