package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// assignmentChunk keeps IN lists under SQLite's bound parameter limit
const assignmentChunk = 500

// SortingStore persists sorting configs and bin assignments
type SortingStore struct {
	db *gorm.DB
}

func NewSortingStore(db *gorm.DB) *SortingStore {
	return &SortingStore{db: db}
}

var _ sorting.Store = (*SortingStore)(nil)

func (s *SortingStore) Candidates(ctx context.Context, collectionID *uint) ([]models.ScannedCard, error) {
	db := s.db.WithContext(ctx).Preload("Card")
	if collectionID != nil {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Collection{}).Where("id = ?", *collectionID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrCollectionNotFound
		}
		db = db.Where("collection_id = ?", *collectionID)
	}

	var cards []models.ScannedCard
	if err := db.Order("id ASC").Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *SortingStore) FindOrCreateConfig(ctx context.Context, cfg *models.SortingConfig) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SortingConfig
		if name := strings.TrimSpace(cfg.Name); name != "" {
			err := tx.Where("name = ?", name).First(&existing).Error
			switch {
			case err == nil:
				if !sameShape(&existing, cfg) {
					return fmt.Errorf("%w: config %q sorts by %s into %d bins",
						sorting.ErrInvalidConfiguration, name, existing.Criterion, existing.BinCount)
				}
				*cfg = existing
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
			cfg.Name = name
		} else {
			err := tx.Where("criterion = ? AND letters = ? AND bin_count = ?", cfg.Criterion, cfg.Letters, cfg.BinCount).
				Order("id ASC").First(&existing).Error
			if err == nil {
				*cfg = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			name, err := freeName(tx, sorting.DefaultConfigName(sorting.Criterion(cfg.Criterion), cfg.Letters, cfg.BinCount))
			if err != nil {
				return err
			}
			cfg.Name = name
		}

		if err := tx.Create(cfg).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// freeName returns base, or base with the first numeric suffix not yet taken
func freeName(tx *gorm.DB, base string) (string, error) {
	name := base
	for i := 2; ; i++ {
		var n int64
		if err := tx.Model(&models.SortingConfig{}).Where("name = ?", name).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return name, nil
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

func sameShape(a, b *models.SortingConfig) bool {
	return a.Criterion == b.Criterion && a.Letters == b.Letters && a.BinCount == b.BinCount
}

func (s *SortingStore) SaveAssignments(ctx context.Context, configID uint, assignments map[uint]int, unknown []uint, sortedAt time.Time) error {
	byBin := make(map[int][]uint)
	for id, bin := range assignments {
		byBin[bin] = append(byBin[bin], id)
	}
	bins := make([]int, 0, len(byBin))
	for bin := range byBin {
		bins = append(bins, bin)
	}
	slices.Sort(bins)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, bin := range bins {
			ids := byBin[bin]
			slices.Sort(ids)
			if err := updateChunked(tx, ids, map[string]any{
				"bin_index":         bin,
				"sorting_config_id": configID,
				"sorted_at":         sortedAt,
			}); err != nil {
				return err
			}
		}
		return updateChunked(tx, unknown, map[string]any{
			"bin_index":         nil,
			"sorting_config_id": configID,
			"sorted_at":         sortedAt,
		})
	})
}

func updateChunked(tx *gorm.DB, ids []uint, values map[string]any) error {
	for start := 0; start < len(ids); start += assignmentChunk {
		chunk := ids[start:min(start+assignmentChunk, len(ids))]
		result := tx.Model(&models.ScannedCard{}).Where("id IN ?", chunk).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(chunk)) {
			return fmt.Errorf("%w: %d of %d cards no longer exist",
				sorting.ErrStaleCandidateSet, int64(len(chunk))-result.RowsAffected, len(chunk))
		}
	}
	return nil
}

// ListConfigs returns every saved config, oldest first
func (s *SortingStore) ListConfigs(ctx context.Context) ([]models.SortingConfig, error) {
	configs := []models.SortingConfig{}
	err := s.db.WithContext(ctx).Order("id ASC").Find(&configs).Error
	return configs, err
}

func (s *SortingStore) GetConfig(ctx context.Context, id uint) (*models.SortingConfig, error) {
	var cfg models.SortingConfig
	if err := s.db.WithContext(ctx).First(&cfg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// GetConfigByName looks a config up by its unique name
func (s *SortingStore) GetConfigByName(ctx context.Context, name string) (*models.SortingConfig, error) {
	var cfg models.SortingConfig
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// CreateConfig saves a named config with default bin labels
func (s *SortingStore) CreateConfig(ctx context.Context, req models.CreateSortingConfigRequest) (*models.SortingConfig, error) {
	criterion, err := sorting.ParseCriterion(req.Criterion)
	if err != nil {
		return nil, err
	}
	normalized, err := sorting.Request{Criterion: criterion, Letters: req.Letters, BinCount: req.BinCount}.Normalize()
	if err != nil {
		return nil, err
	}
	labels, err := sorting.DefaultBinLabels(normalized.Criterion, normalized.BinCount)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.SortingConfig{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrConfigExists
	}

	cfg := models.SortingConfig{
		Name:      name,
		Criterion: string(normalized.Criterion),
		Letters:   normalized.Letters,
		BinCount:  normalized.BinCount,
		BinLabels: labels,
	}
	if err := db.Create(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteConfig removes a config and clears the assignments made under it
func (s *SortingStore) DeleteConfig(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.SortingConfig{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConfigNotFound
		}
		return tx.Model(&models.ScannedCard{}).
			Where("sorting_config_id = ?", id).
			Updates(map[string]any{"sorting_config_id": nil, "bin_index": nil, "sorted_at": nil}).Error
	})
}

// BinContents lists the cards assigned to one bin under a config
func (s *SortingStore) BinContents(ctx context.Context, configID uint, bin int) ([]models.ScannedCard, error) {
	cards := []models.ScannedCard{}
	err := s.db.WithContext(ctx).Preload("Card").
		Where("sorting_config_id = ? AND bin_index = ?", configID, bin).
		Order("id ASC").Find(&cards).Error
	return cards, err
}
