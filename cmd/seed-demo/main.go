// seed-demo loads a small set of demo reference data (equipment,
// personnel, instruments) so a fresh environment has something to plan
// tests against. Safe to rerun: rows already present (matched by code or
// full name) are left alone.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	// History hooks require user info in context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetIsAdminInContext(ctx, true)

	equipment := []models.NewEquipment{
		{Code: "CNC-001", Name: "CNC milling machine", Location: "Hall A", CriticalityLevel: 4},
		{Code: "PRESS-001", Name: "Hydraulic press 40T", Location: "Hall A", CriticalityLevel: 5},
		{Code: "COMP-002", Name: "Air compressor", Location: "Hall B", CriticalityLevel: 2},
	}
	for _, input := range equipment {
		var existing models.Equipment
		if err := db.WithContext(ctx).Where("code = ?", input.Code).First(&existing).Error; err == nil {
			continue
		}
		if _, err := models.CreateEquipment(ctx, &input); err != nil {
			fmt.Fprintf(os.Stderr, "seed equipment %s: %v\n", input.Code, err)
			os.Exit(1)
		}
	}

	personnel := []models.NewPersonnel{
		{FullName: "Claire Morel", Role: "QHSE Manager", Email: "claire.morel@example.com", Phone: "+33612345678"},
		{FullName: "Karim Benali", Role: "Test Technician", Email: "karim.benali@example.com"},
		{FullName: "Sophie Laurent", Role: "Maintenance Lead", Email: "sophie.laurent@example.com"},
	}
	for _, input := range personnel {
		var existing models.Personnel
		if err := db.WithContext(ctx).Where("full_name = ?", input.FullName).First(&existing).Error; err == nil {
			continue
		}
		if _, err := models.CreatePersonnel(ctx, &input); err != nil {
			fmt.Fprintf(os.Stderr, "seed personnel %s: %v\n", input.FullName, err)
			os.Exit(1)
		}
	}

	nextYear := time.Now().AddDate(1, 0, 0)
	instruments := []models.NewInstrument{
		{Code: "CAL-101", Name: "Digital caliper", SerialNumber: "SN-88341", CalibrationDueDate: &nextYear},
		{Code: "MANO-07", Name: "Pressure gauge", SerialNumber: "SN-22015", CalibrationDueDate: &nextYear},
	}
	for _, input := range instruments {
		var existing models.Instrument
		if err := db.WithContext(ctx).Where("code = ?", input.Code).First(&existing).Error; err == nil {
			continue
		}
		if _, err := models.CreateInstrument(ctx, &input); err != nil {
			fmt.Fprintf(os.Stderr, "seed instrument %s: %v\n", input.Code, err)
			os.Exit(1)
		}
	}

	fmt.Println("demo data seeded")
}
