package models_test

import (
	"testing"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/models"
)

func countReports(t *testing.T, checkType string) int64 {
	t.Helper()
	var count int64
	db := config.GetDB()
	if err := db.Model(&models.ConsistencyReport{}).Where("check_type = ?", checkType).
		Count(&count).Error; err != nil {
		t.Fatalf("count reports: %v", err)
	}
	return count
}

func TestConsistencyChecksCleanDataYieldsNoReports(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	test := planTest(t, ctx, equipment.ID, time.Now(), nil, nil)
	if _, err := models.StartTest(ctx, test.ID); err != nil {
		t.Fatalf("StartTest: %v", err)
	}
	for i := 0; i < 10; i++ {
		recordMeasurement(t, ctx, test.ID, true)
	}
	if _, err := models.FinishTest(ctx, test.ID); err != nil {
		t.Fatalf("FinishTest: %v", err)
	}

	if _, err := models.RunConsistencyChecks(ctx); err != nil {
		t.Fatalf("RunConsistencyChecks: %v", err)
	}
	var count int64
	db := config.GetDB()
	if err := db.Model(&models.ConsistencyReport{}).Count(&count).Error; err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if count != 0 {
		t.Fatalf("clean data produced %d report(s)", count)
	}
}

func TestConsistencyChecksDetectDrift(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)
	db := config.GetDB()

	// a completed conforming test, then its rows corrupted out-of-band
	test := planTest(t, ctx, equipment.ID, time.Now(), nil, nil)
	if _, err := models.StartTest(ctx, test.ID); err != nil {
		t.Fatalf("StartTest: %v", err)
	}
	recordMeasurement(t, ctx, test.ID, true)
	if _, err := models.FinishTest(ctx, test.ID); err != nil {
		t.Fatalf("FinishTest: %v", err)
	}
	if err := db.Exec("UPDATE tests SET result = 'NonConforme', conformity_rate = 12.34 WHERE id = ?", test.ID).Error; err != nil {
		t.Fatalf("corrupt test row: %v", err)
	}

	// a Done action with no verification behind it
	_, action := seedActionChain(t, ctx)
	if err := db.Exec("UPDATE corrective_actions SET current_status = 'Done' WHERE id = ?", action.ID).Error; err != nil {
		t.Fatalf("corrupt action row: %v", err)
	}

	if _, err := models.RunConsistencyChecks(ctx); err != nil {
		t.Fatalf("RunConsistencyChecks: %v", err)
	}

	if n := countReports(t, "TEST_ESCALATION"); n != 1 {
		t.Fatalf("TEST_ESCALATION reports = %d, want 1", n)
	}
	if n := countReports(t, "CONFORMITY_RATE"); n != 1 {
		t.Fatalf("CONFORMITY_RATE reports = %d, want 1", n)
	}
	if n := countReports(t, "ACTION_VERIFICATION"); n != 1 {
		t.Fatalf("ACTION_VERIFICATION reports = %d, want 1", n)
	}
}

// A sweep that detects drift but cannot persist the report must fail, not
// return success with the finding dropped.
func TestConsistencyChecksSurfaceReportWriteFailures(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)
	db := config.GetDB()

	test := planTest(t, ctx, equipment.ID, time.Now(), nil, nil)
	if _, err := models.StartTest(ctx, test.ID); err != nil {
		t.Fatalf("StartTest: %v", err)
	}
	recordMeasurement(t, ctx, test.ID, true)
	if _, err := models.FinishTest(ctx, test.ID); err != nil {
		t.Fatalf("FinishTest: %v", err)
	}
	if err := db.Exec("UPDATE tests SET conformity_rate = 12.34 WHERE id = ?", test.ID).Error; err != nil {
		t.Fatalf("corrupt test row: %v", err)
	}

	if err := db.Exec("DROP TABLE consistency_reports").Error; err != nil {
		t.Fatalf("drop reports table: %v", err)
	}

	if _, err := models.RunConsistencyChecks(ctx); err == nil {
		t.Fatal("sweep reported success while its report rows could not be written")
	}
}
