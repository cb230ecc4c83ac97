package models

import (
	"strings"
	"time"
)

type Condition string

const (
	ConditionNearMint         Condition = "NM"
	ConditionLightlyPlayed    Condition = "LP"
	ConditionModeratelyPlayed Condition = "MP"
	ConditionHeavilyPlayed    Condition = "HP"
	ConditionDamaged          Condition = "DMG"
)

// NormalizeCondition maps common spellings to a Condition, defaulting to NM
func NormalizeCondition(s string) Condition {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LP", "LIGHTLY PLAYED", "EX", "EXCELLENT":
		return ConditionLightlyPlayed
	case "MP", "MODERATELY PLAYED", "GD", "GOOD":
		return ConditionModeratelyPlayed
	case "HP", "HEAVILY PLAYED", "PL", "PLAYED":
		return ConditionHeavilyPlayed
	case "DMG", "DAMAGED", "PR", "POOR":
		return ConditionDamaged
	default:
		return ConditionNearMint
	}
}

// Collection is a user folder that scanned cards can be filed under
type Collection struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"not null;uniqueIndex"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScannedCard is one physical copy of a catalog card. Many instances may share
// a CardID. BinIndex is only written by a sorting apply.
type ScannedCard struct {
	ID              uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID          string     `json:"card_id" gorm:"not null;index"`
	Card            Card       `json:"card" gorm:"foreignKey:CardID"`
	CollectionID    *uint      `json:"collection_id" gorm:"index"`
	Confidence      float64    `json:"confidence"`
	Foil            bool       `json:"foil"`
	Language        string     `json:"language" gorm:"default:'en'"`
	Condition       Condition  `json:"condition" gorm:"default:'NM'"`
	NeedsReview     bool       `json:"needs_review"`
	BinIndex        *int       `json:"bin_index"`
	SortingConfigID *uint      `json:"sorting_config_id" gorm:"index"`
	SortedAt        *time.Time `json:"sorted_at"`
	ImagePath       string     `json:"image_path" gorm:"default:null"`
	Notes           string     `json:"notes"`
	ScannedAt       time.Time  `json:"scanned_at" gorm:"index"`
}

// ScanRequest is the body of a scan intake. The recognizer upstream has already
// turned the image into name text; ImageData is only stored.
type ScanRequest struct {
	Name         string  `json:"name" binding:"required"`
	SetCode      string  `json:"set_code"`
	Number       string  `json:"collector_number"`
	Confidence   float64 `json:"confidence"`
	Foil         bool    `json:"foil"`
	Language     string  `json:"language"`
	Condition    string  `json:"condition"`
	CollectionID *uint   `json:"collection_id"`
	Notes        string  `json:"notes"`
	ImageData    string  `json:"image_data,omitempty"` // base64 encoded
}

type CreateCollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type CollectionStats struct {
	TotalCards      int             `json:"total_cards"`
	UniqueCards     int             `json:"unique_cards"`
	SortedCards     int             `json:"sorted_cards"`
	RarityBreakdown map[string]int  `json:"rarity_breakdown"`
	Value           CollectionValue `json:"value"`
}

// TierValue is the count and value of cards falling in one price tier
type TierValue struct {
	Tier  string  `json:"tier"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

type CollectionValue struct {
	TotalValue    float64     `json:"total_value"`
	Currency      Currency    `json:"currency"`
	CardCount     int         `json:"card_count"`
	UnpricedCards int         `json:"unpriced_cards"`
	Tiers         []TierValue `json:"tiers"`
}
