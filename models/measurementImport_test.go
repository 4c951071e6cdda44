package models_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
	"github.com/xuri/excelize/v2"
)

func buildImportFile(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	header := []interface{}{"Parameter", "Measured", "Reference", "ToleranceMin", "ToleranceMax", "Instrument"}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("write row %d: %v", i+2, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("serialize workbook: %v", err)
	}
	return buf
}

func TestImportMeasurementsFromXlsx(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	test := planTest(t, ctx, equipment.ID, time.Now(), nil, nil)
	if _, err := models.StartTest(ctx, test.ID); err != nil {
		t.Fatalf("StartTest: %v", err)
	}

	instrument, err := models.CreateInstrument(ctx, &models.NewInstrument{
		Code:               "CAL-200",
		Name:               "Import gauge",
		CalibrationDueDate: timePtr(time.Now().AddDate(1, 0, 0)),
	})
	if err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}

	file := buildImportFile(t, [][]interface{}{
		{"pressure", "9", "10", "8", "12", "CAL-200"},
		{"temperature", "45", "40", "35", "42", ""},
	})

	summary, err := models.ImportMeasurementsFromXlsx(ctx, test.ID, file)
	if err != nil {
		t.Fatalf("ImportMeasurementsFromXlsx: %v", err)
	}
	if summary == "" {
		t.Fatal("empty import summary")
	}

	imported, err := models.ListTestMeasurements(ctx, test.ID)
	if err != nil {
		t.Fatalf("ListTestMeasurements: %v", err)
	}
	if len(imported) != 2 {
		t.Fatalf("got %d measurements, want 2", len(imported))
	}
	byName := map[string]*models.Measurement{}
	for _, m := range imported {
		byName[m.ParameterName] = m
	}
	pressure := byName["pressure"]
	if pressure == nil || pressure.IsConforming == nil || !*pressure.IsConforming {
		t.Fatalf("pressure reading should conform: %+v", pressure)
	}
	if pressure.InstrumentId != instrument.ID {
		t.Fatalf("instrument not resolved from code: %d", pressure.InstrumentId)
	}
	temperature := byName["temperature"]
	if temperature == nil || temperature.IsConforming == nil || *temperature.IsConforming {
		t.Fatalf("out-of-band temperature should not conform: %+v", temperature)
	}
}

func TestImportMeasurementsRejectsBadRowsAtomically(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	test := planTest(t, ctx, equipment.ID, time.Now(), nil, nil)
	if _, err := models.StartTest(ctx, test.ID); err != nil {
		t.Fatalf("StartTest: %v", err)
	}

	file := buildImportFile(t, [][]interface{}{
		{"pressure", "9", "10", "8", "12", ""},
		{"broken", "5", "5", "10", "0", ""}, // inverted tolerance band
	})
	if _, err := models.ImportMeasurementsFromXlsx(ctx, test.ID, file); err == nil {
		t.Fatal("import with a bad row should fail")
	}

	imported, err := models.ListTestMeasurements(ctx, test.ID)
	if err != nil {
		t.Fatalf("ListTestMeasurements: %v", err)
	}
	if len(imported) != 0 {
		t.Fatalf("%d measurement(s) persisted from a rejected import", len(imported))
	}
}

func TestImportMeasurementsRequiresInProgressTest(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)
	test := planTest(t, ctx, equipment.ID, time.Now(), nil, nil)

	file := buildImportFile(t, [][]interface{}{
		{"pressure", "9", "10", "8", "12", ""},
	})
	_, err := models.ImportMeasurementsFromXlsx(ctx, test.ID, file)
	if !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("import into planned test: err = %v, want invalid state", err)
	}
}
