package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSequence backs the human-readable document numbers. One row per
// numbering scope ("test:2026", "nc:20260829"), incremented atomically in
// the creating transaction. Concurrent creators serialize on the row lock
// until commit, so numbers within a scope never collide; gaps are possible
// when a creating transaction rolls back, which callers tolerate.
type NumberSequence struct {
	Scope     string    `gorm:"primaryKey;size:50" json:"scope"`
	Value     int64     `gorm:"not null;default:0" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// nextSequenceNumber increments and returns the counter for the scope.
// Must run inside the caller's transaction.
func nextSequenceNumber(tx *gorm.DB, scope string) (int64, error) {
	seq := NumberSequence{Scope: scope, Value: 1}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": gorm.Expr("value + 1")}),
	}).Create(&seq).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("scope = ?", scope).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}

// nextTestNumber formats TEST-<year>-<3-digit-sequence>, scoped by the
// creation year.
func nextTestNumber(tx *gorm.DB, now time.Time) (string, error) {
	seq, err := nextSequenceNumber(tx, fmt.Sprintf("test:%d", now.Year()))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TEST-%d-%03d", now.Year(), seq), nil
}

// nextNonConformityNumber formats NC-<YYYYMMDD>-<3-digit-sequence>, scoped
// by the detection day.
func nextNonConformityNumber(tx *gorm.DB, day time.Time) (string, error) {
	prefix := day.Format("20060102")
	seq, err := nextSequenceNumber(tx, "nc:"+prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("NC-%s-%03d", prefix, seq), nil
}
