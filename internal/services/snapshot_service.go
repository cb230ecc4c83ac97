package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// SnapshotService handles collection value snapshots
type SnapshotService struct {
	db            *gorm.DB
	tracker       *PriceTracker
	mu            sync.RWMutex
	lastSnapshot  time.Time
	snapshotHour  int // Hour of day to take snapshot (0-23)
	checkInterval time.Duration
	now           func() time.Time
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(db *gorm.DB, tracker *PriceTracker) *SnapshotService {
	return &SnapshotService{
		db:            db,
		tracker:       tracker,
		snapshotHour:  23, // Default: 11 PM
		checkInterval: 15 * time.Minute,
		now:           time.Now,
	}
}

// Start begins the background snapshot worker
func (s *SnapshotService) Start(ctx context.Context) {
	log.Println("Snapshot service started: will record daily collection value")

	// Check if we need to take a snapshot for today on startup
	s.checkAndSnapshot(ctx)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Snapshot service stopping...")
			return
		case <-ticker.C:
			s.checkAndSnapshot(ctx)
		}
	}
}

// checkAndSnapshot checks if a snapshot is needed and takes one
func (s *SnapshotService) checkAndSnapshot(ctx context.Context) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if s.hasSnapshotForDate(ctx, today) {
		return
	}

	// Only take automatic snapshots at or after the configured hour
	if now.Hour() >= s.snapshotHour {
		if _, err := s.TakeSnapshot(ctx); err != nil {
			log.Printf("Snapshot service: failed to take snapshot: %v", err)
		}
	}
}

// hasSnapshotForDate checks if a snapshot exists for the given date
func (s *SnapshotService) hasSnapshotForDate(ctx context.Context, date time.Time) bool {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var count int64
	s.db.WithContext(ctx).Model(&models.CollectionValueSnapshot{}).
		Where("snapshot_date >= ? AND snapshot_date < ?", startOfDay, endOfDay).
		Count(&count)

	return count > 0
}

// TakeSnapshot records the current collection value, replacing today's snapshot
// if one exists
func (s *SnapshotService) TakeSnapshot(ctx context.Context) (*models.CollectionValueSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db.WithContext(ctx)
	now := s.now()
	snapshotDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	value, err := s.tracker.CollectionValue(ctx, nil, models.CurrencyUSD)
	if err != nil {
		return nil, err
	}
	var unique int64
	if err := db.Model(&models.ScannedCard{}).Distinct("card_id").Count(&unique).Error; err != nil {
		return nil, err
	}

	fields := models.CollectionValueSnapshot{
		TotalCards:  value.CardCount,
		UniqueCards: int(unique),
		TotalValue:  value.TotalValue,
	}
	for _, tv := range value.Tiers {
		switch tv.Tier {
		case "Bulk":
			fields.BulkCards = tv.Count
		case "Low":
			fields.LowCards = tv.Count
		case "Medium":
			fields.MediumCards = tv.Count
		case "High":
			fields.HighCards = tv.Count
		case "Premium":
			fields.PremiumCards = tv.Count
		}
	}

	endOfDay := snapshotDate.Add(24 * time.Hour)
	snapshot := models.CollectionValueSnapshot{SnapshotDate: snapshotDate, CreatedAt: now}
	result := db.Where("snapshot_date >= ? AND snapshot_date < ?", snapshotDate, endOfDay).
		Assign(map[string]any{
			"total_cards":   fields.TotalCards,
			"unique_cards":  fields.UniqueCards,
			"total_value":   fields.TotalValue,
			"bulk_cards":    fields.BulkCards,
			"low_cards":     fields.LowCards,
			"medium_cards":  fields.MediumCards,
			"high_cards":    fields.HighCards,
			"premium_cards": fields.PremiumCards,
		}).
		FirstOrCreate(&snapshot)
	if result.Error != nil {
		return nil, result.Error
	}
	if err := db.First(&snapshot, snapshot.ID).Error; err != nil {
		return nil, err
	}

	s.lastSnapshot = now
	log.Printf("Snapshot service: recorded value snapshot for %s (total: $%.2f, cards: %d)",
		snapshotDate.Format("2006-01-02"), value.TotalValue, value.CardCount)

	return &snapshot, nil
}

// GetHistory retrieves value snapshots for a given period
func (s *SnapshotService) GetHistory(ctx context.Context, period string) ([]models.CollectionValueSnapshot, error) {
	snapshots := []models.CollectionValueSnapshot{}

	now := s.now()
	var startDate time.Time

	switch period {
	case "week":
		startDate = now.AddDate(0, 0, -7)
	case "month":
		startDate = now.AddDate(0, -1, 0)
	case "3month":
		startDate = now.AddDate(0, -3, 0)
	case "year":
		startDate = now.AddDate(-1, 0, 0)
	case "all":
		startDate = time.Time{} // No filter
	default:
		startDate = now.AddDate(0, -1, 0) // Default to 1 month
	}

	query := s.db.WithContext(ctx).Order("snapshot_date ASC")
	if !startDate.IsZero() {
		query = query.Where("snapshot_date >= ?", startDate)
	}

	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}

	return snapshots, nil
}

// GetLastSnapshot returns the most recent snapshot
func (s *SnapshotService) GetLastSnapshot(ctx context.Context) *models.CollectionValueSnapshot {
	var snapshot models.CollectionValueSnapshot

	if err := s.db.WithContext(ctx).Order("snapshot_date DESC").First(&snapshot).Error; err != nil {
		return nil
	}

	return &snapshot
}
