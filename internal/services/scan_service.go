package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// ScanService records physical card scans. Recognition happens upstream; a scan
// arrives as recognized text which is resolved against the catalog here.
type ScanService struct {
	db        *gorm.DB
	catalog   *CatalogService
	images    *ImageStorageService
	threshold float64
	now       func() time.Time
}

func NewScanService(db *gorm.DB, catalog *CatalogService, images *ImageStorageService, threshold float64) *ScanService {
	return &ScanService{
		db:        db,
		catalog:   catalog,
		images:    images,
		threshold: threshold,
		now:       time.Now,
	}
}

// Record resolves req to a catalog card and stores one scanned copy. Scans below
// the confidence threshold are stored flagged for review.
func (s *ScanService) Record(ctx context.Context, req models.ScanRequest) (*models.ScannedCard, error) {
	if req.CollectionID != nil {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Collection{}).Where("id = ?", *req.CollectionID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrCollectionNotFound
		}
	}

	card, confidence, err := s.resolve(ctx, req)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			metrics.ScansTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.ScansTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = "en"
	}
	scanned := models.ScannedCard{
		CardID:       card.ID,
		CollectionID: req.CollectionID,
		Confidence:   confidence,
		Foil:         req.Foil,
		Language:     language,
		Condition:    models.NormalizeCondition(req.Condition),
		NeedsReview:  confidence < s.threshold,
		Notes:        req.Notes,
		ScannedAt:    s.now(),
	}

	if req.ImageData != "" && s.images != nil {
		filename, err := s.images.SaveBase64Image(req.ImageData)
		if err != nil {
			// The scan itself is still worth keeping
			log.Printf("Scan: failed to store image for %s: %v", card.Identity(), err)
		} else {
			scanned.ImagePath = filename
		}
	}

	if err := s.db.WithContext(ctx).Omit("Card").Create(&scanned).Error; err != nil {
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	scanned.Card = *card

	result := "matched"
	if scanned.NeedsReview {
		result = "needs_review"
	}
	metrics.ScansTotal.WithLabelValues(result).Inc()
	metrics.ScanConfidenceHistogram.Observe(confidence)
	log.Printf("Scan: recorded %s (confidence %.2f, review %t)", card.Identity(), confidence, scanned.NeedsReview)

	return &scanned, nil
}

// resolve finds the catalog card for a scan. A set and collector number pin the
// printing exactly. Otherwise a confident local name match is used before asking
// Scryfall. A confidence reported by the recognizer caps the result.
func (s *ScanService) resolve(ctx context.Context, req models.ScanRequest) (*models.Card, float64, error) {
	reported := req.Confidence
	if reported <= 0 || reported > 1 {
		reported = 1
	}

	if req.SetCode != "" && req.Number != "" {
		card, err := s.catalog.ImportBySetAndNumber(ctx, req.SetCode, req.Number)
		if err == nil {
			return card, min(reported, max(NameConfidence(req.Name, card.Name), 0.5)), nil
		}
		if !errors.Is(err, ErrCardNotFound) {
			return nil, 0, err
		}
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, 0, fmt.Errorf("%w: scan has no name", ErrCardNotFound)
	}

	local, err := s.catalog.MatchLocal(ctx, req.Name, req.SetCode)
	if err != nil {
		return nil, 0, err
	}
	if local != nil && local.Confidence >= s.threshold {
		return &local.Card, min(reported, local.Confidence), nil
	}

	card, err := s.catalog.ImportByName(ctx, req.Name, req.SetCode)
	if err != nil {
		return nil, 0, err
	}
	// Scryfall's fuzzy lookup can correct more than an in-order match allows
	confidence := NameConfidence(req.Name, card.Name)
	if confidence == 0 {
		confidence = s.threshold / 2
	}
	return card, min(reported, confidence), nil
}

// List returns scanned cards with their catalog record, newest first. A nil
// collectionID lists everything.
func (s *ScanService) List(ctx context.Context, collectionID *uint, limit, offset int) ([]models.ScannedCard, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.ScannedCard{})
	if collectionID != nil {
		db = db.Where("collection_id = ?", *collectionID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	scans := []models.ScannedCard{}
	if err := db.Preload("Card").Order("scanned_at DESC, id DESC").
		Limit(limit).Offset(offset).Find(&scans).Error; err != nil {
		return nil, 0, err
	}
	return scans, total, nil
}

// Get returns one scanned card
func (s *ScanService) Get(ctx context.Context, id uint) (*models.ScannedCard, error) {
	var scanned models.ScannedCard
	if err := s.db.WithContext(ctx).Preload("Card").First(&scanned, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return &scanned, nil
}

// Delete removes a scanned copy. The catalog card stays.
func (s *ScanService) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.ScannedCard{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScanNotFound
	}
	return nil
}
