package models

import "time"

// SortingConfig is an immutable saved sorting setup. A changed setup is a new row.
type SortingConfig struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"not null;uniqueIndex"`
	Criterion string    `json:"criterion" gorm:"not null;index:idx_sorting_config_shape"`
	Letters   int       `json:"letters" gorm:"not null;default:0;index:idx_sorting_config_shape"`
	BinCount  int       `json:"bin_count" gorm:"not null;index:idx_sorting_config_shape"`
	BinLabels []string  `json:"bin_labels" gorm:"serializer:json"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateSortingConfigRequest struct {
	Name      string `json:"name" binding:"required"`
	Criterion string `json:"criterion" binding:"required"`
	Letters   int    `json:"letters"`
	BinCount  int    `json:"bin_count" binding:"required"`
}
