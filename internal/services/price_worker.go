package services

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// defaultBatchSize is the number of cards to update per batch, one Scryfall
// collection request
const defaultBatchSize = scryfallCollectionLimit

type PriceWorker struct {
	db             *gorm.DB
	tracker        *PriceTracker
	updateInterval time.Duration
	mu             sync.RWMutex

	// Batch config
	batchSize int

	// Priority queue for user-requested refreshes
	urgentQueue []string
	urgentMu    sync.Mutex

	// Stats (reset at midnight)
	cardsUpdatedToday int
	lastUpdateTime    time.Time
	lastStatsDay      time.Time // Track which day the stats are for
	lastError         string
}

type PriceStatus struct {
	LastUpdateTime    time.Time `json:"last_update_time"`
	NextUpdateTime    time.Time `json:"next_update_time"`
	CardsUpdatedToday int       `json:"cards_updated_today"`
	BatchSize         int       `json:"batch_size"`
	QueueSize         int       `json:"queue_size"`
	LastError         string    `json:"last_error,omitempty"`
}

func NewPriceWorker(db *gorm.DB, tracker *PriceTracker, updateInterval time.Duration, batchSize int) *PriceWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if updateInterval <= 0 {
		updateInterval = 15 * time.Minute
	}
	return &PriceWorker{
		db:             db,
		tracker:        tracker,
		batchSize:      batchSize,
		updateInterval: updateInterval,
	}
}

// QueueRefresh adds a card to the high-priority refresh queue and returns its
// 1-indexed position
func (w *PriceWorker) QueueRefresh(cardID string) int {
	w.urgentMu.Lock()
	defer w.urgentMu.Unlock()

	if i := slices.Index(w.urgentQueue, cardID); i >= 0 {
		return i + 1
	}
	w.urgentQueue = append(w.urgentQueue, cardID)
	metrics.PriceQueueSize.Set(float64(len(w.urgentQueue)))
	log.Printf("Price worker: queued refresh for card %s (queue size: %d)", cardID, len(w.urgentQueue))
	return len(w.urgentQueue)
}

// GetQueueSize returns current urgent queue size
func (w *PriceWorker) GetQueueSize() int {
	w.urgentMu.Lock()
	defer w.urgentMu.Unlock()
	return len(w.urgentQueue)
}

// resetDailyStatsIfNeeded resets cardsUpdatedToday at midnight
func (w *PriceWorker) resetDailyStatsIfNeeded() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if w.lastStatsDay.Before(today) {
		if !w.lastStatsDay.IsZero() {
			log.Printf("Price worker: daily stats reset (previous day: %d cards updated)", w.cardsUpdatedToday)
		}
		w.cardsUpdatedToday = 0
		w.lastStatsDay = today
	}
}

// Start begins the background price update worker
func (w *PriceWorker) Start(ctx context.Context) {
	log.Printf("Price worker started: will update %d cards every %v", w.batchSize, w.updateInterval)

	// Run immediately on startup
	if updated, err := w.UpdateBatch(ctx); err != nil {
		log.Printf("Price worker: initial batch update failed: %v", err)
	} else {
		log.Printf("Price worker: initial batch updated %d cards", updated)
	}

	ticker := time.NewTicker(w.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price worker stopping...")
			return
		case <-ticker.C:
			if updated, err := w.UpdateBatch(ctx); err != nil {
				log.Printf("Price worker: batch update failed: %v", err)
			} else if updated > 0 {
				log.Printf("Price worker: batch updated %d cards", updated)
			}
		}
	}
}

// UpdateBatch updates a batch of cards with priority ordering:
// 1. User-requested refreshes
// 2. Scanned cards without prices
// 3. Scanned cards with the oldest stale prices
func (w *PriceWorker) UpdateBatch(ctx context.Context) (updated int, err error) {
	start := time.Now()
	w.resetDailyStatsIfNeeded()

	ids, err := w.nextBatch(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		log.Println("Price worker: no cards to update")
		return 0, nil
	}

	log.Printf("Price worker: updating prices for %d cards", len(ids))
	res, err := w.tracker.RefreshCards(ctx, ids)

	w.mu.Lock()
	w.cardsUpdatedToday += res.Updated
	w.lastUpdateTime = time.Now()
	w.lastError = ""
	if err != nil {
		w.lastError = err.Error()
	}
	updatedToday := w.cardsUpdatedToday
	w.mu.Unlock()

	metrics.PriceUpdatesToday.Set(float64(updatedToday))
	metrics.PriceQueueSize.Set(float64(w.GetQueueSize()))
	metrics.PriceBatchDuration.Observe(time.Since(start).Seconds())
	w.tracker.UpdateCollectionMetrics(ctx)

	return res.Updated, err
}

func (w *PriceWorker) nextBatch(ctx context.Context) ([]string, error) {
	db := w.db.WithContext(ctx)

	// Priority 1: User-requested refreshes
	w.urgentMu.Lock()
	cardIDs := slices.Clone(w.urgentQueue[:min(w.batchSize, len(w.urgentQueue))])
	w.urgentQueue = w.urgentQueue[len(cardIDs):]
	w.urgentMu.Unlock()
	if len(cardIDs) > 0 {
		log.Printf("Price worker: processing %d urgent refresh requests", len(cardIDs))
	}

	owned := db.Model(&models.ScannedCard{}).Distinct("card_id")
	exclude := func(q *gorm.DB) *gorm.DB {
		if len(cardIDs) > 0 {
			return q.Where("id NOT IN ?", cardIDs)
		}
		return q
	}

	// Priority 2: Scanned cards without prices
	if remaining := w.batchSize - len(cardIDs); remaining > 0 {
		var noPrice []string
		err := exclude(db.Model(&models.Card{}).
			Where("id IN (?) AND price_updated_at IS NULL", owned)).
			Order("id").Limit(remaining).
			Pluck("id", &noPrice).Error
		if err != nil {
			return nil, err
		}
		cardIDs = append(cardIDs, noPrice...)
	}

	// Priority 3: Scanned cards with the oldest stale prices
	if remaining := w.batchSize - len(cardIDs); remaining > 0 {
		var oldest []string
		cutoff := w.tracker.now().Add(-w.tracker.staleAfter)
		err := exclude(db.Model(&models.Card{}).
			Where("id IN (?) AND price_updated_at < ?", owned, cutoff)).
			Order("price_updated_at ASC").Limit(remaining).
			Pluck("id", &oldest).Error
		if err != nil {
			return nil, err
		}
		cardIDs = append(cardIDs, oldest...)
	}

	return cardIDs, nil
}

// GetStatus returns the current status
func (w *PriceWorker) GetStatus() PriceStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return PriceStatus{
		LastUpdateTime:    w.lastUpdateTime,
		NextUpdateTime:    w.lastUpdateTime.Add(w.updateInterval),
		CardsUpdatedToday: w.cardsUpdatedToday,
		BatchSize:         w.batchSize,
		QueueSize:         w.GetQueueSize(),
		LastError:         w.lastError,
	}
}
