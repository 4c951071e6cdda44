package models

import "time"

// Drift detection output (nightly/admin-triggered).
type ConsistencyReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. TEST_ESCALATION, CONFORMITY_RATE
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. Test, CorrectiveAction
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
