package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// CollectionService manages collections and their statistics
type CollectionService struct {
	db      *gorm.DB
	tracker *PriceTracker
}

func NewCollectionService(db *gorm.DB, tracker *PriceTracker) *CollectionService {
	return &CollectionService{db: db, tracker: tracker}
}

func (s *CollectionService) List(ctx context.Context) ([]models.Collection, error) {
	collections := []models.Collection{}
	err := s.db.WithContext(ctx).Order("name ASC").Find(&collections).Error
	return collections, err
}

func (s *CollectionService) Get(ctx context.Context, id uint) (*models.Collection, error) {
	var collection models.Collection
	if err := s.db.WithContext(ctx).First(&collection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, err
	}
	return &collection, nil
}

// Create adds a collection. Names are unique.
func (s *CollectionService) Create(ctx context.Context, req models.CreateCollectionRequest) (*models.Collection, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("collection name is required")
	}

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Collection{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrCollectionExists
	}

	collection := models.Collection{Name: name, Description: req.Description}
	if err := db.Create(&collection).Error; err != nil {
		return nil, err
	}
	return &collection, nil
}

// Delete removes a collection. Its scanned cards are kept and become unfiled.
func (s *CollectionService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Collection{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCollectionNotFound
		}
		return tx.Model(&models.ScannedCard{}).
			Where("collection_id = ?", id).
			Update("collection_id", nil).Error
	})
}

// Stats summarizes the scanned cards in scope. A nil collectionID covers every
// scanned card.
func (s *CollectionService) Stats(ctx context.Context, collectionID *uint, currency models.Currency) (*models.CollectionStats, error) {
	if collectionID != nil {
		if _, err := s.Get(ctx, *collectionID); err != nil {
			return nil, err
		}
	}

	scope := func() *gorm.DB {
		db := s.db.WithContext(ctx).Model(&models.ScannedCard{})
		if collectionID != nil {
			db = db.Where("scanned_cards.collection_id = ?", *collectionID)
		}
		return db
	}

	var total, unique, sorted int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, err
	}
	if err := scope().Distinct("card_id").Count(&unique).Error; err != nil {
		return nil, err
	}
	if err := scope().Where("scanned_cards.bin_index IS NOT NULL").Count(&sorted).Error; err != nil {
		return nil, err
	}

	var rarities []struct {
		Rarity string
		Count  int
	}
	if err := scope().
		Select("cards.rarity AS rarity, COUNT(*) AS count").
		Joins("JOIN cards ON cards.id = scanned_cards.card_id").
		Group("cards.rarity").
		Scan(&rarities).Error; err != nil {
		return nil, err
	}

	breakdown := make(map[string]int)
	for _, r := range rarities {
		key := sorting.NormalizeRarity(r.Rarity)
		if key == "" {
			key = "unknown"
		}
		breakdown[key] += r.Count
	}

	value, err := s.tracker.CollectionValue(ctx, collectionID, currency)
	if err != nil {
		return nil, err
	}

	return &models.CollectionStats{
		TotalCards:      int(total),
		UniqueCards:     int(unique),
		SortedCards:     int(sorted),
		RarityBreakdown: breakdown,
		Value:           value,
	}, nil
}
