package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"github.com/xuri/excelize/v2"
)

// ImportMeasurementsFromXlsx bulk-loads readings from an instrument's
// .xlsx export. Expected columns on Sheet1, one header row:
// Parameter | Measured | Reference | ToleranceMin | ToleranceMax | Instrument
// The instrument column holds an instrument code and may be blank.
// All rows import in one transaction; a bad row rejects the whole file so
// a partial instrument export never becomes a half-recorded test.
func ImportMeasurementsFromXlsx(ctx context.Context, testId int, file io.Reader) (string, error) {
	if file == nil {
		return "", errors.New("nil file provided")
	}

	test, err := utils.FetchModel[Test](ctx, testId)
	if err != nil {
		return "", err
	}
	if test.CurrentStatus != TestStatusInProgress {
		return "", fmt.Errorf("measurements can only be imported while the test is in progress (test %s is %s): %w",
			test.TestNumber, test.CurrentStatus, utils.ErrorInvalidState)
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		return "", fmt.Errorf("unable to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return "", err
	}
	if len(rows) <= 1 {
		return "", errors.New("no measurement rows found")
	}

	// instrument codes resolved once per file
	instrumentIds := make(map[string]int)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	imported := 0
	for idx, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		input, err := parseMeasurementRow(ctx, testId, row, instrumentIds)
		if err != nil {
			tx.Rollback()
			return "", fmt.Errorf("row %d: %v", idx+2, err)
		}
		measurement := buildMeasurement(ctx, input)
		if err := tx.Create(measurement).Error; err != nil {
			tx.Rollback()
			return "", fmt.Errorf("row %d: %v", idx+2, err)
		}
		imported++
	}

	if imported == 0 {
		tx.Rollback()
		return "", errors.New("no measurement rows found")
	}

	if err := tx.Commit().Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("imported %d measurement(s) for test %s", imported, test.TestNumber), nil
}

func parseMeasurementRow(ctx context.Context, testId int, row []string, instrumentIds map[string]int) (*NewMeasurement, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	input := &NewMeasurement{
		TestId:        testId,
		ParameterName: cell(0),
	}

	var err error
	if input.MeasuredValue, err = utils.ConvertStringToDecimal(cell(1)); err != nil {
		return nil, fmt.Errorf("measured value: %v", err)
	}
	if v := cell(2); v != "" {
		if input.ReferenceValue, err = utils.ConvertStringToDecimal(v); err != nil {
			return nil, fmt.Errorf("reference value: %v", err)
		}
	}
	if v := cell(3); v != "" {
		if input.ToleranceMin, err = utils.ConvertStringToDecimal(v); err != nil {
			return nil, fmt.Errorf("tolerance min: %v", err)
		}
	}
	if v := cell(4); v != "" {
		if input.ToleranceMax, err = utils.ConvertStringToDecimal(v); err != nil {
			return nil, fmt.Errorf("tolerance max: %v", err)
		}
	}
	if input.ToleranceMax.LessThan(input.ToleranceMin) {
		return nil, errors.New("tolerance max is below tolerance min")
	}

	if code := cell(5); code != "" {
		id, ok := instrumentIds[code]
		if !ok {
			var instrument Instrument
			if err := config.GetDB().WithContext(ctx).Where("code = ?", code).First(&instrument).Error; err != nil {
				return nil, fmt.Errorf("unknown instrument code %q", code)
			}
			if instrument.IsCalibrationOverdue(time.Now()) {
				return nil, fmt.Errorf("instrument %s calibration is overdue", instrument.Code)
			}
			id = instrument.ID
			instrumentIds[code] = id
		}
		input.InstrumentId = id
	}

	return input, nil
}
