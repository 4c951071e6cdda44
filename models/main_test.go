package models_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var codeCounter int64

// setupTestDB wires an in-memory sqlite store into the global config so
// the services under test run against it, and returns a context with the
// user identity the history hooks require.
func setupTestDB(t *testing.T) context.Context {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// a single connection keeps every session on the same in-memory DB
	sqlDB.SetMaxOpenConns(1)

	config.SetDB(db)
	models.MigrateTable()
	t.Cleanup(func() {
		_ = sqlDB.Close()
		config.SetDB(nil)
	})

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Runner")
	return ctx
}

func uniqueCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&codeCounter, 1))
}

func seedEquipment(t *testing.T, ctx context.Context) *models.Equipment {
	t.Helper()
	equipment, err := models.CreateEquipment(ctx, &models.NewEquipment{
		Code: uniqueCode("EQ"),
		Name: "Test bench",
	})
	if err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}
	return equipment
}

func seedPersonnel(t *testing.T, ctx context.Context, name string) *models.Personnel {
	t.Helper()
	person, err := models.CreatePersonnel(ctx, &models.NewPersonnel{
		FullName: name,
		Role:     "Technician",
	})
	if err != nil {
		t.Fatalf("CreatePersonnel: %v", err)
	}
	return person
}

func timePtr(t time.Time) *time.Time { return &t }

func boolPtr(b bool) *bool { return &b }

// planTest schedules a test for the equipment; start/end may be nil for
// tests without a planned window.
func planTest(t *testing.T, ctx context.Context, equipmentId int, date time.Time, start, end *time.Time) *models.Test {
	t.Helper()
	test, err := models.CreateTest(ctx, &models.NewTest{
		Designation:      "pressure check",
		EquipmentId:      equipmentId,
		PlannedDate:      date,
		PlannedStartTime: start,
		PlannedEndTime:   end,
	})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}
	return test
}

// recordMeasurement adds one reading; conforming picks a measured value
// inside or outside the [0, 10] tolerance band.
func recordMeasurement(t *testing.T, ctx context.Context, testId int, conforming bool) *models.Measurement {
	t.Helper()
	measured := decimal.NewFromInt(5)
	if !conforming {
		measured = decimal.NewFromInt(50)
	}
	m, err := models.CreateMeasurement(ctx, &models.NewMeasurement{
		TestId:         testId,
		ParameterName:  "pressure",
		MeasuredValue:  measured,
		ReferenceValue: decimal.NewFromInt(5),
		ToleranceMin:   decimal.Zero,
		ToleranceMax:   decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateMeasurement: %v", err)
	}
	return m
}
