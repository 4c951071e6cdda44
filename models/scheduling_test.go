package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
)

func TestSchedulingConflictOverlappingWindows(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	at := func(hour, min int) *time.Time {
		return timePtr(time.Date(2026, 9, 10, hour, min, 0, 0, time.UTC))
	}

	planTest(t, ctx, equipment.ID, day, at(10, 0), at(12, 0))

	_, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: at(11, 0),
		PlannedEndTime:   at(13, 0),
	})
	if !errors.Is(err, utils.ErrorSchedulingConflict) {
		t.Fatalf("overlapping window: err = %v, want scheduling conflict", err)
	}

	// touching boundaries conflict too: the interval is inclusive
	_, err = models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: at(12, 0),
		PlannedEndTime:   at(13, 0),
	})
	if !errors.Is(err, utils.ErrorSchedulingConflict) {
		t.Fatalf("shared boundary: err = %v, want scheduling conflict", err)
	}

	// fully disjoint window on the same equipment and day is fine
	if _, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: at(13, 0),
		PlannedEndTime:   at(14, 0),
	}); err != nil {
		t.Fatalf("disjoint window: %v", err)
	}
}

func TestSchedulingConflictPointBooking(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	tenAM := timePtr(time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC))

	// booking without an end time occupies its start instant
	planTest(t, ctx, equipment.ID, day, tenAM, nil)

	_, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: timePtr(time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)),
		PlannedEndTime:   timePtr(time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC)),
	})
	if !errors.Is(err, utils.ErrorSchedulingConflict) {
		t.Fatalf("window over point booking: err = %v, want scheduling conflict", err)
	}

	if _, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: timePtr(time.Date(2026, 9, 10, 10, 1, 0, 0, time.UTC)),
		PlannedEndTime:   timePtr(time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC)),
	}); err != nil {
		t.Fatalf("window after point booking: %v", err)
	}
}

func TestSchedulingConflictScopes(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)
	other := seedEquipment(t, ctx)

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	start := timePtr(time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC))
	end := timePtr(time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC))

	planTest(t, ctx, equipment.ID, day, start, end)

	// other equipment, same slot
	if _, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      other.ID,
		PlannedDate:      day,
		PlannedStartTime: start,
		PlannedEndTime:   end,
	}); err != nil {
		t.Fatalf("other equipment: %v", err)
	}

	// same equipment, next day
	if _, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day.AddDate(0, 0, 1),
		PlannedStartTime: timePtr(time.Date(2026, 9, 11, 10, 0, 0, 0, time.UTC)),
		PlannedEndTime:   timePtr(time.Date(2026, 9, 11, 11, 0, 0, 0, time.UTC)),
	}); err != nil {
		t.Fatalf("next day: %v", err)
	}

	// tests with no planned window never conflict
	planTest(t, ctx, equipment.ID, day, nil, nil)
	planTest(t, ctx, equipment.ID, day, nil, nil)
}

func TestSchedulingConflictIgnoresCancelled(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	start := timePtr(time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC))
	end := timePtr(time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC))

	blocked := planTest(t, ctx, equipment.ID, day, start, end)
	if _, err := models.CancelTest(ctx, blocked.ID); err != nil {
		t.Fatalf("CancelTest: %v", err)
	}

	if _, err := models.CreateTest(ctx, &models.NewTest{
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: start,
		PlannedEndTime:   end,
	}); err != nil {
		t.Fatalf("slot of a cancelled test should be free: %v", err)
	}
}

func TestUpdateTestExcludesItselfFromConflictCheck(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	test := planTest(t, ctx, equipment.ID, day, timePtr(start), timePtr(start.Add(time.Hour)))

	// shifting its own window by 30 minutes still overlaps the original
	// slot, which must not count as a conflict with itself
	updated, err := models.UpdateTest(ctx, test.ID, &models.NewTest{
		Designation:      test.Designation,
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		PlannedStartTime: timePtr(start.Add(30 * time.Minute)),
		PlannedEndTime:   timePtr(start.Add(90 * time.Minute)),
	})
	if err != nil {
		t.Fatalf("UpdateTest: %v", err)
	}
	if !updated.PlannedStartTime.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("planned start not updated: %s", updated.PlannedStartTime)
	}
}

// An update payload that omits the criticality level keeps the stored
// ordinal instead of zeroing it below the 1-5 range.
func TestUpdateTestKeepsOmittedCriticality(t *testing.T) {
	ctx := setupTestDB(t)
	equipment := seedEquipment(t, ctx)
	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	test, err := models.CreateTest(ctx, &models.NewTest{
		Designation:      "pressure check",
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		CriticalityLevel: 5,
	})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}

	if _, err := models.UpdateTest(ctx, test.ID, &models.NewTest{
		Designation: "pressure check, revised",
		EquipmentId: equipment.ID,
		PlannedDate: day,
	}); err != nil {
		t.Fatalf("UpdateTest: %v", err)
	}
	reloaded, err := models.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if reloaded.CriticalityLevel != 5 {
		t.Fatalf("criticality after update = %d, want 5", reloaded.CriticalityLevel)
	}

	// explicit values still win
	if _, err := models.UpdateTest(ctx, test.ID, &models.NewTest{
		Designation:      reloaded.Designation,
		EquipmentId:      equipment.ID,
		PlannedDate:      day,
		CriticalityLevel: 2,
	}); err != nil {
		t.Fatalf("UpdateTest: %v", err)
	}
	reloaded, err = models.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if reloaded.CriticalityLevel != 2 {
		t.Fatalf("criticality after explicit update = %d, want 2", reloaded.CriticalityLevel)
	}
}
