package db

import "time"

type IncidentModel struct {
	ID           int64  `gorm:"primaryKey"`
	Provider     string `gorm:"uniqueIndex:idx_provider_unique;index;not null"`
	UniqueString string `gorm:"uniqueIndex:idx_provider_unique;index;not null"`
	Call         string `gorm:"index;not null"`
	Pushed       string `gorm:"index;not null"`
	IncidentJSON []byte `gorm:"not null"`
	CreatedAt    time.Time
}

func (IncidentModel) TableName() string {
	return "incidents"
}
