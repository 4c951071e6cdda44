package models

import (
	"log"

	"github.com/metraware/qhse_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Equipment{}, &Personnel{}, &Instrument{},
		&Test{}, &Measurement{},
		&NonConformity{}, &RootCause{},
		&ActionPlan{}, &CorrectiveAction{}, &EffectivenessVerification{},
		&History{},
		&NumberSequence{},
		&ConsistencyReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
