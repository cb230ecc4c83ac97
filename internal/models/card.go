package models

import (
	"strings"
	"time"
)

// Rarity values as reported by Scryfall
const (
	RarityCommon   = "common"
	RarityUncommon = "uncommon"
	RarityRare     = "rare"
	RarityMythic   = "mythic"
	RaritySpecial  = "special"
	RarityBonus    = "bonus"
)

// Card is a reference catalog entry. Only the price columns change after import.
type Card struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"not null;index"`
	SetCode         string     `json:"set_code" gorm:"index"`
	SetName         string     `json:"set_name"`
	CollectorNumber string     `json:"collector_number"`
	Colors          []string   `json:"colors" gorm:"serializer:json"` // subset of W, U, B, R, G
	TypeLine        string     `json:"type_line"`
	Rarity          string     `json:"rarity" gorm:"index"`
	ManaCost        string     `json:"mana_cost"`
	ImageURL        string     `json:"image_url"`
	PriceUSD        *float64   `json:"price_usd"`
	PriceEUR        *float64   `json:"price_eur"`
	PriceUpdatedAt  *time.Time `json:"price_updated_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CardSearchResult struct {
	Cards      []Card `json:"cards"`
	TotalCount int    `json:"total_count"`
	HasMore    bool   `json:"has_more"`
}

// Identity returns the human readable "name (SET #num)" form used in logs
func (c *Card) Identity() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.SetCode != "" {
		b.WriteString(" (")
		b.WriteString(strings.ToUpper(c.SetCode))
		if c.CollectorNumber != "" {
			b.WriteString(" #")
			b.WriteString(c.CollectorNumber)
		}
		b.WriteString(")")
	}
	return b.String()
}

// IsMulticolor reports whether the card has two or more colors
func (c *Card) IsMulticolor() bool {
	return len(c.Colors) > 1
}

// IsColorless reports whether the card has no colors
func (c *Card) IsColorless() bool {
	return len(c.Colors) == 0
}

// PriceIn returns the current price in the given currency, nil when unknown
func (c *Card) PriceIn(currency Currency) *float64 {
	switch currency {
	case CurrencyEUR:
		return c.PriceEUR
	default:
		return c.PriceUSD
	}
}
