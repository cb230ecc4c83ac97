package models

import (
	"strings"
	"time"
)

// Currency is an ISO 4217 code for the currencies Scryfall reports
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// AllCurrencies returns all tracked currencies
func AllCurrencies() []Currency {
	return []Currency{CurrencyUSD, CurrencyEUR}
}

// NormalizeCurrency maps free-form input to a Currency, defaulting to USD
func NormalizeCurrency(s string) Currency {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EUR", "€":
		return CurrencyEUR
	default:
		return CurrencyUSD
	}
}

// PriceHistory is an append-only price observation. Rows are never updated or deleted.
type PriceHistory struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID     string    `json:"card_id" gorm:"not null;index:idx_price_history_card_time"`
	Price      float64   `json:"price" gorm:"not null"`
	Currency   Currency  `json:"currency" gorm:"not null;default:'USD'"`
	Source     string    `json:"source"` // "scryfall" or "import"
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index:idx_price_history_card_time"`
}

// TableName keeps the original table name
func (PriceHistory) TableName() string {
	return "price_history"
}

// PriceHistoryResponse is the API response for a card's price history
type PriceHistoryResponse struct {
	CardID  string         `json:"card_id"`
	Days    int            `json:"days"`
	History []PriceHistory `json:"history"`
}
