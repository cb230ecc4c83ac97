package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// maxImportPages caps how many Scryfall search pages one import walks
const maxImportPages = 10

// CatalogService is the local card catalog, filled from Scryfall on demand.
// Catalog rows are never rewritten after import except for their prices.
type CatalogService struct {
	db       *gorm.DB
	scryfall *ScryfallService
	tracker  *PriceTracker
}

func NewCatalogService(db *gorm.DB, scryfall *ScryfallService, tracker *PriceTracker) *CatalogService {
	return &CatalogService{db: db, scryfall: scryfall, tracker: tracker}
}

// Upsert inserts card unless its id is already cataloged and returns the stored
// row. A newly inserted card with prices gets its first history entries.
func (c *CatalogService) Upsert(ctx context.Context, card models.Card) (*models.Card, bool, error) {
	if card.ID == "" {
		return nil, false, fmt.Errorf("card has no id")
	}
	db := c.db.WithContext(ctx)

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&card)
	if result.Error != nil {
		return nil, false, result.Error
	}
	created := result.RowsAffected > 0

	if created && (card.PriceUSD != nil || card.PriceEUR != nil) {
		if err := c.tracker.ApplyPrices(ctx, card, PriceSourceImport); err != nil {
			log.Printf("Catalog: failed to record initial prices for %s: %v", card.Identity(), err)
		}
	}

	stored, err := c.Get(ctx, card.ID)
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.CardDatabaseSize.Inc()
	}
	return stored, created, nil
}

// Get returns a cataloged card
func (c *CatalogService) Get(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	if err := c.db.WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

// Search lists cataloged cards whose name contains query, by name
func (c *CatalogService) Search(ctx context.Context, query string, limit, offset int) ([]models.Card, int64, error) {
	db := c.db.WithContext(ctx).Model(&models.Card{})
	if q := strings.TrimSpace(query); q != "" {
		db = db.Where("name LIKE ?", "%"+q+"%")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	cards := []models.Card{}
	if err := db.Order("name ASC, set_code ASC, collector_number ASC").
		Limit(limit).Offset(offset).Find(&cards).Error; err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// Count returns the catalog size
func (c *CatalogService) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&models.Card{}).Count(&n).Error
	return n, err
}

// ImportByID catalogs a card by Scryfall id
func (c *CatalogService) ImportByID(ctx context.Context, id string) (*models.Card, error) {
	if card, err := c.Get(ctx, id); err == nil {
		return card, nil
	} else if !errors.Is(err, ErrCardNotFound) {
		return nil, err
	}

	card, err := c.scryfall.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	stored, _, err := c.Upsert(ctx, *card)
	return stored, err
}

// ImportBySetAndNumber catalogs a specific printing, preferring the local copy
func (c *CatalogService) ImportBySetAndNumber(ctx context.Context, setCode, number string) (*models.Card, error) {
	set := strings.ToLower(strings.TrimSpace(setCode))
	number = strings.TrimSpace(number)

	var local models.Card
	err := c.db.WithContext(ctx).
		Where("LOWER(set_code) = ? AND collector_number = ?", set, number).
		First(&local).Error
	if err == nil {
		return &local, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	card, err := c.scryfall.GetCardBySetAndNumber(ctx, set, number)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s #%s", ErrCardNotFound, strings.ToUpper(set), number)
	}
	stored, _, err := c.Upsert(ctx, *card)
	return stored, err
}

// ImportByName resolves a name through Scryfall's fuzzy lookup and catalogs it
func (c *CatalogService) ImportByName(ctx context.Context, name, setCode string) (*models.Card, error) {
	card, err := c.scryfall.GetCardByName(ctx, name, setCode, true)
	if err != nil {
		return nil, err
	}
	if card == nil && setCode != "" {
		// The recognized set is often wrong; retry without it
		card, err = c.scryfall.GetCardByName(ctx, name, "", true)
		if err != nil {
			return nil, err
		}
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %q", ErrCardNotFound, name)
	}
	stored, _, err := c.Upsert(ctx, *card)
	return stored, err
}

// ImportSearch catalogs every card a Scryfall query returns, walking at most
// maxPages pages. It returns how many cards were new.
func (c *CatalogService) ImportSearch(ctx context.Context, query string, maxPages int) (int, error) {
	if maxPages <= 0 || maxPages > maxImportPages {
		maxPages = maxImportPages
	}

	imported := 0
	for page := 1; page <= maxPages; page++ {
		result, err := c.scryfall.SearchCards(ctx, query, page)
		if err != nil {
			return imported, err
		}
		for _, card := range result.Cards {
			_, created, err := c.Upsert(ctx, card)
			if err != nil {
				return imported, err
			}
			if created {
				imported++
			}
		}
		if !result.HasMore {
			break
		}
	}

	log.Printf("Catalog: imported %d new cards for query %q", imported, query)
	return imported, nil
}

// MatchLocal resolves a recognized name against the local catalog only
func (c *CatalogService) MatchLocal(ctx context.Context, name, setCode string) (*NameMatch, error) {
	var candidates []models.Card
	if err := c.db.WithContext(ctx).Find(&candidates).Error; err != nil {
		return nil, err
	}
	return MatchName(name, setCode, candidates), nil
}
