package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentNumberSeries hands out sequential document numbers per business and
// document type (GRN, BATCH, PACK, DISPATCH, ADJ).
type DocumentNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:idx_series_biz_prefix,priority:1;not null" json:"business_id"`
	Prefix     string    `gorm:"uniqueIndex:idx_series_biz_prefix,priority:2;size:10;not null" json:"prefix"`
	NextNumber int64     `gorm:"not null;default:1" json:"next_number"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextDocumentNumber allocates the next number in a series, e.g. "GRN-000042".
// Must run inside the caller's transaction; the row lock serializes concurrent
// allocations for the same series.
func NextDocumentNumber(tx *gorm.DB, businessId string, prefix string) (string, error) {
	var series DocumentNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND prefix = ?", businessId, prefix).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		series = DocumentNumberSeries{BusinessId: businessId, Prefix: prefix, NextNumber: 1}
		if err := tx.Create(&series).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	number := fmt.Sprintf("%s-%06d", prefix, series.NextNumber)
	err = tx.Model(&DocumentNumberSeries{}).
		Where("id = ?", series.ID).
		Update("next_number", series.NextNumber+1).Error
	if err != nil {
		return "", err
	}
	return number, nil
}
