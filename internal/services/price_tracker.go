package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// PriceStalenessThreshold is how long a catalog price is trusted before a refresh
// goes back to Scryfall
const PriceStalenessThreshold = 24 * time.Hour

// Price history sources
const (
	PriceSourceScryfall = "scryfall"
	PriceSourceImport   = "import"
)

// PriceUpdateResult summarizes a refresh run
type PriceUpdateResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PriceTracker owns the price columns of the catalog. Every price it writes is
// also appended to price_history in the same transaction.
type PriceTracker struct {
	db          *gorm.DB
	scryfall    *ScryfallService
	staleAfter  time.Duration
	concurrency int
	now         func() time.Time
}

func NewPriceTracker(db *gorm.DB, scryfall *ScryfallService, staleAfter time.Duration, concurrency int) *PriceTracker {
	if staleAfter <= 0 {
		staleAfter = PriceStalenessThreshold
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PriceTracker{
		db:          db,
		scryfall:    scryfall,
		staleAfter:  staleAfter,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// isFresh checks if the card's price was fetched within the staleness window
func (t *PriceTracker) isFresh(card *models.Card) bool {
	if card.PriceUpdatedAt == nil {
		return false
	}
	return t.now().Sub(*card.PriceUpdatedAt) < t.staleAfter
}

// RefreshCard returns the card with a current price, going to Scryfall when the
// stored price is stale or force is set
func (t *PriceTracker) RefreshCard(ctx context.Context, cardID string, force bool) (*models.Card, error) {
	var card models.Card
	if err := t.db.WithContext(ctx).First(&card, "id = ?", cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	if !force && t.isFresh(&card) {
		return &card, nil
	}

	fresh, err := t.scryfall.GetCardsByIDs(ctx, []string{cardID})
	if err != nil {
		return nil, err
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("%w: scryfall has no card %s", ErrCardNotFound, cardID)
	}
	if err := t.ApplyPrices(ctx, fresh[0], PriceSourceScryfall); err != nil {
		return nil, err
	}

	if err := t.db.WithContext(ctx).First(&card, "id = ?", cardID).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// RefreshCards fetches current prices for ids from Scryfall. Batches run
// concurrently up to the tracker's limit; a failed batch counts its ids as
// failed and the others still complete. The first batch error is returned
// alongside the totals.
func (t *PriceTracker) RefreshCards(ctx context.Context, ids []string) (PriceUpdateResult, error) {
	var (
		mu  sync.Mutex
		res = PriceUpdateResult{Checked: len(ids)}
	)

	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for start := 0; start < len(ids); start += scryfallCollectionLimit {
		chunk := ids[start:min(start+scryfallCollectionLimit, len(ids))]
		g.Go(func() error {
			cards, err := t.scryfall.GetCardsByIDs(ctx, chunk)
			if err != nil {
				mu.Lock()
				res.Failed += len(chunk)
				mu.Unlock()
				return fmt.Errorf("refreshing %d cards: %w", len(chunk), err)
			}

			updated, failed := 0, len(chunk)-len(cards)
			for _, card := range cards {
				if err := t.ApplyPrices(ctx, card, PriceSourceScryfall); err != nil {
					log.Printf("Price tracker: failed to save prices for %s: %v", card.ID, err)
					failed++
					continue
				}
				updated++
			}

			mu.Lock()
			res.Updated += updated
			res.Failed += failed
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	metrics.PriceUpdatesTotal.Add(float64(res.Updated))
	return res, err
}

// RefreshAll refreshes every card that has at least one scanned copy. Without
// force, cards with a fresh price are skipped.
func (t *PriceTracker) RefreshAll(ctx context.Context, force bool) (PriceUpdateResult, error) {
	db := t.db.WithContext(ctx)
	owned := db.Model(&models.ScannedCard{}).Distinct("card_id")

	var all []models.Card
	if err := db.Select("id", "price_updated_at").Where("id IN (?)", owned).Find(&all).Error; err != nil {
		return PriceUpdateResult{}, err
	}

	ids := make([]string, 0, len(all))
	for i := range all {
		if force || !t.isFresh(&all[i]) {
			ids = append(ids, all[i].ID)
		}
	}

	res, err := t.RefreshCards(ctx, ids)
	res.Checked = len(all)
	res.Skipped = len(all) - len(ids)
	log.Printf("Price tracker: refresh checked %d cards (%d updated, %d skipped, %d failed)",
		res.Checked, res.Updated, res.Skipped, res.Failed)
	return res, err
}

// ApplyPrices stores the prices carried by fresh on the catalog card and appends
// one history row per known currency. Unknown prices clear the column but are
// not recorded as history.
func (t *PriceTracker) ApplyPrices(ctx context.Context, fresh models.Card, source string) error {
	now := t.now()
	var appended []models.Currency

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Card{}).Where("id = ?", fresh.ID).Updates(map[string]any{
			"price_usd":        fresh.PriceUSD,
			"price_eur":        fresh.PriceEUR,
			"price_updated_at": now,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCardNotFound
		}

		appended = appended[:0]
		for _, currency := range models.AllCurrencies() {
			price := fresh.PriceIn(currency)
			if price == nil {
				continue
			}
			entry := models.PriceHistory{
				CardID:     fresh.ID,
				Price:      *price,
				Currency:   currency,
				Source:     source,
				RecordedAt: now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			appended = append(appended, currency)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, currency := range appended {
		metrics.PriceHistoryEntriesTotal.WithLabelValues(string(currency)).Inc()
	}
	return nil
}

// History returns the recorded prices of a card in one currency, oldest first.
// days <= 0 returns the full history.
func (t *PriceTracker) History(ctx context.Context, cardID string, days int, currency models.Currency) ([]models.PriceHistory, error) {
	query := t.db.WithContext(ctx).
		Where("card_id = ? AND currency = ?", cardID, currency).
		Order("recorded_at ASC, id ASC")
	if days > 0 {
		query = query.Where("recorded_at >= ?", t.now().AddDate(0, 0, -days))
	}

	history := []models.PriceHistory{}
	if err := query.Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

type ownedPrice struct {
	PriceUSD *float64
	PriceEUR *float64
}

// CollectionValue sums the current price of every scanned copy in scope. A nil
// collectionID values everything. Tiers follow the USD price so they match the
// price-tier sorting buckets.
func (t *PriceTracker) CollectionValue(ctx context.Context, collectionID *uint, currency models.Currency) (models.CollectionValue, error) {
	query := t.db.WithContext(ctx).Table("scanned_cards").
		Select("cards.price_usd AS price_usd, cards.price_eur AS price_eur").
		Joins("JOIN cards ON cards.id = scanned_cards.card_id")
	if collectionID != nil {
		query = query.Where("scanned_cards.collection_id = ?", *collectionID)
	}

	var rows []ownedPrice
	if err := query.Scan(&rows).Error; err != nil {
		return models.CollectionValue{}, err
	}
	return summarizeValue(rows, currency), nil
}

func summarizeValue(rows []ownedPrice, currency models.Currency) models.CollectionValue {
	tiers := sorting.AllTiers()
	byTier := make([]models.TierValue, len(tiers))
	for i, tier := range tiers {
		byTier[i].Tier = tier.String()
	}

	value := models.CollectionValue{Currency: currency, CardCount: len(rows)}
	for _, row := range rows {
		card := models.Card{PriceUSD: row.PriceUSD, PriceEUR: row.PriceEUR}
		price := card.PriceIn(currency)
		if price == nil {
			value.UnpricedCards++
		} else {
			value.TotalValue += *price
		}

		tier := sorting.ClassifyPrice(row.PriceUSD)
		if tier == sorting.TierUnknown {
			continue
		}
		byTier[tier].Count++
		if price != nil {
			byTier[tier].Value += *price
		}
	}
	value.Tiers = byTier
	return value
}

// UpdateCollectionMetrics refreshes the collection gauges from the database
func (t *PriceTracker) UpdateCollectionMetrics(ctx context.Context) {
	value, err := t.CollectionValue(ctx, nil, models.CurrencyUSD)
	if err != nil {
		log.Printf("Price tracker: failed to compute collection metrics: %v", err)
		return
	}

	metrics.CollectionCardsTotal.Set(float64(value.CardCount))
	metrics.CollectionValueUSD.Set(value.TotalValue)
	for _, tv := range value.Tiers {
		metrics.CollectionCardsByTier.WithLabelValues(tv.Tier).Set(float64(tv.Count))
		metrics.CollectionValueByTier.WithLabelValues(tv.Tier).Set(tv.Value)
	}

	var cards int64
	if err := t.db.WithContext(ctx).Model(&models.Card{}).Count(&cards).Error; err == nil {
		metrics.CardDatabaseSize.Set(float64(cards))
	}
}
