package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

func ago(d time.Duration) *time.Time {
	t := time.Now().Add(-d)
	return &t
}

func historyCount(t *testing.T, tracker *PriceTracker, cardID string) int64 {
	t.Helper()
	var n int64
	if err := tracker.db.Model(&models.PriceHistory{}).Where("card_id = ?", cardID).Count(&n).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	return n
}

func TestPriceTracker_RefreshCard(t *testing.T) {
	db := testDB(t)
	fake, svc := newFakeScryfall(t, sfCard("a", "Opt", "xln", "65", "common", ""))
	fake.setPrice("a", "2.50", "2.00")
	tracker := NewPriceTracker(db, svc, time.Hour, 2)
	ctx := context.Background()

	seedCards(t, db, models.Card{ID: "a", Name: "Opt", PriceUSD: usd(1), PriceUpdatedAt: ago(2 * time.Hour)})

	card, err := tracker.RefreshCard(ctx, "a", false)
	if err != nil {
		t.Fatalf("RefreshCard returned error: %v", err)
	}
	if card.PriceUSD == nil || *card.PriceUSD != 2.50 {
		t.Errorf("expected USD 2.50, got %v", card.PriceUSD)
	}
	if card.PriceEUR == nil || *card.PriceEUR != 2.00 {
		t.Errorf("expected EUR 2.00, got %v", card.PriceEUR)
	}
	if n := historyCount(t, tracker, "a"); n != 2 {
		t.Errorf("expected 2 history entries (USD and EUR), got %d", n)
	}

	// Fresh now, so no second request
	if _, err := tracker.RefreshCard(ctx, "a", false); err != nil {
		t.Fatalf("RefreshCard returned error: %v", err)
	}
	if n := fake.count("collection"); n != 1 {
		t.Errorf("expected fresh price to skip scryfall, got %d requests", n)
	}

	if _, err := tracker.RefreshCard(ctx, "a", true); err != nil {
		t.Fatalf("forced RefreshCard returned error: %v", err)
	}
	if n := fake.count("collection"); n != 2 {
		t.Errorf("expected forced refresh to hit scryfall, got %d requests", n)
	}
	if n := historyCount(t, tracker, "a"); n != 4 {
		t.Errorf("expected history to be appended, got %d entries", n)
	}
}

func TestPriceTracker_RefreshCardNotFound(t *testing.T) {
	db := testDB(t)
	_, svc := newFakeScryfall(t)
	tracker := NewPriceTracker(db, svc, time.Hour, 1)
	ctx := context.Background()

	if _, err := tracker.RefreshCard(ctx, "nope", false); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound for uncataloged card, got %v", err)
	}

	seedCards(t, db, models.Card{ID: "gone", Name: "Gone"})
	if _, err := tracker.RefreshCard(ctx, "gone", false); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound when scryfall has no card, got %v", err)
	}
}

func TestPriceTracker_RefreshAll(t *testing.T) {
	db := testDB(t)
	_, svc := newFakeScryfall(t,
		sfCard("stale", "Opt", "xln", "65", "common", "0.25"),
		sfCard("fresh", "Shock", "m19", "156", "common", "0.30"),
		sfCard("unowned", "Negate", "m19", "69", "common", "0.15"),
	)
	tracker := NewPriceTracker(db, svc, time.Hour, 2)
	ctx := context.Background()

	seedCards(t, db,
		models.Card{ID: "stale", Name: "Opt", PriceUpdatedAt: ago(3 * time.Hour)},
		models.Card{ID: "fresh", Name: "Shock", PriceUSD: usd(0.3), PriceUpdatedAt: ago(time.Minute)},
		models.Card{ID: "unowned", Name: "Negate"},
	)
	seedScans(t, db, nil, "stale", "stale", "fresh")

	res, err := tracker.RefreshAll(ctx, false)
	if err != nil {
		t.Fatalf("RefreshAll returned error: %v", err)
	}
	want := PriceUpdateResult{Checked: 2, Updated: 1, Skipped: 1}
	if res != want {
		t.Errorf("RefreshAll = %+v, want %+v", res, want)
	}

	res, err = tracker.RefreshAll(ctx, true)
	if err != nil {
		t.Fatalf("forced RefreshAll returned error: %v", err)
	}
	want = PriceUpdateResult{Checked: 2, Updated: 2}
	if res != want {
		t.Errorf("forced RefreshAll = %+v, want %+v", res, want)
	}

	var unowned models.Card
	db.First(&unowned, "id = ?", "unowned")
	if unowned.PriceUpdatedAt != nil {
		t.Error("expected card without scans to be left alone")
	}
}

func TestPriceTracker_RefreshCardsCountsFailures(t *testing.T) {
	db := testDB(t)
	fake, svc := newFakeScryfall(t, sfCard("a", "Opt", "xln", "65", "common", "0.25"))
	tracker := NewPriceTracker(db, svc, time.Hour, 2)
	ctx := context.Background()

	seedCards(t, db, models.Card{ID: "a", Name: "Opt"})

	res, err := tracker.RefreshCards(ctx, []string{"a", "missing"})
	if err != nil {
		t.Fatalf("RefreshCards returned error: %v", err)
	}
	if res.Updated != 1 || res.Failed != 1 {
		t.Errorf("expected 1 updated and 1 failed, got %+v", res)
	}

	fake.setFailPost(true)
	res, err = tracker.RefreshCards(ctx, []string{"a"})
	if err == nil {
		t.Error("expected error when scryfall fails")
	}
	if res.Failed != 1 || res.Updated != 0 {
		t.Errorf("expected the whole batch to fail, got %+v", res)
	}
}

func TestPriceTracker_ApplyPrices(t *testing.T) {
	db := testDB(t)
	tracker := NewPriceTracker(db, nil, time.Hour, 1)
	ctx := context.Background()

	seedCards(t, db, models.Card{ID: "a", Name: "Opt", PriceUSD: usd(5)})

	if err := tracker.ApplyPrices(ctx, models.Card{ID: "a", PriceEUR: usd(1)}, PriceSourceScryfall); err != nil {
		t.Fatalf("ApplyPrices returned error: %v", err)
	}

	var card models.Card
	db.First(&card, "id = ?", "a")
	if card.PriceUSD != nil {
		t.Errorf("expected USD price to be cleared, got %v", *card.PriceUSD)
	}
	if card.PriceEUR == nil || *card.PriceEUR != 1 {
		t.Errorf("expected EUR 1, got %v", card.PriceEUR)
	}
	if card.PriceUpdatedAt == nil {
		t.Error("expected price timestamp to be set")
	}

	var history []models.PriceHistory
	db.Where("card_id = ?", "a").Find(&history)
	if len(history) != 1 || history[0].Currency != models.CurrencyEUR || history[0].Source != PriceSourceScryfall {
		t.Errorf("expected one EUR scryfall entry, got %+v", history)
	}

	err := tracker.ApplyPrices(ctx, models.Card{ID: "missing", PriceUSD: usd(1)}, PriceSourceScryfall)
	if !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound, got %v", err)
	}
	if n := historyCount(t, tracker, "missing"); n != 0 {
		t.Errorf("expected no history for a missing card, got %d", n)
	}
}

func TestPriceTracker_History(t *testing.T) {
	db := testDB(t)
	tracker := NewPriceTracker(db, nil, time.Hour, 1)
	ctx := context.Background()

	seedCards(t, db, models.Card{ID: "a", Name: "Opt"})
	now := time.Now()
	entries := []models.PriceHistory{
		{CardID: "a", Price: 1, Currency: models.CurrencyUSD, Source: PriceSourceImport, RecordedAt: now.AddDate(0, 0, -10)},
		{CardID: "a", Price: 2, Currency: models.CurrencyUSD, Source: PriceSourceScryfall, RecordedAt: now.AddDate(0, 0, -2)},
		{CardID: "a", Price: 3, Currency: models.CurrencyEUR, Source: PriceSourceScryfall, RecordedAt: now.AddDate(0, 0, -1)},
	}
	if err := db.Create(&entries).Error; err != nil {
		t.Fatalf("seed history: %v", err)
	}

	recent, err := tracker.History(ctx, "a", 7, models.CurrencyUSD)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(recent) != 1 || recent[0].Price != 2 {
		t.Errorf("expected only the recent USD entry, got %+v", recent)
	}

	all, err := tracker.History(ctx, "a", 0, models.CurrencyUSD)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(all) != 2 || all[0].Price != 1 || all[1].Price != 2 {
		t.Errorf("expected both USD entries oldest first, got %+v", all)
	}

	eur, _ := tracker.History(ctx, "a", 0, models.CurrencyEUR)
	if len(eur) != 1 {
		t.Errorf("expected 1 EUR entry, got %d", len(eur))
	}

	none, err := tracker.History(ctx, "unknown", 30, models.CurrencyUSD)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil history, got %v, %v", none, err)
	}
}

func TestPriceTracker_CollectionValue(t *testing.T) {
	db := testDB(t)
	tracker := NewPriceTracker(db, nil, time.Hour, 1)
	ctx := context.Background()

	seedCards(t, db,
		models.Card{ID: "bulk", Name: "Opt", PriceUSD: usd(0.10)},
		models.Card{ID: "medium", Name: "Counterspell", PriceUSD: usd(5)},
		models.Card{ID: "premium", Name: "Force of Will", PriceUSD: usd(60), PriceEUR: usd(55)},
		models.Card{ID: "unpriced", Name: "Mystery"},
	)
	binder := models.Collection{Name: "Binder"}
	db.Create(&binder)
	seedScans(t, db, &binder.ID, "bulk", "bulk", "medium", "premium")
	seedScans(t, db, nil, "unpriced")

	value, err := tracker.CollectionValue(ctx, nil, models.CurrencyUSD)
	if err != nil {
		t.Fatalf("CollectionValue returned error: %v", err)
	}
	if value.CardCount != 5 || value.UnpricedCards != 1 {
		t.Errorf("expected 5 cards with 1 unpriced, got %d and %d", value.CardCount, value.UnpricedCards)
	}
	if math.Abs(value.TotalValue-65.2) > 1e-9 {
		t.Errorf("expected total 65.20, got %.4f", value.TotalValue)
	}

	wantCounts := map[string]int{"Bulk": 2, "Low": 0, "Medium": 1, "High": 0, "Premium": 1}
	if len(value.Tiers) != len(wantCounts) {
		t.Fatalf("expected %d tiers, got %d", len(wantCounts), len(value.Tiers))
	}
	for _, tv := range value.Tiers {
		if tv.Count != wantCounts[tv.Tier] {
			t.Errorf("tier %s: expected %d cards, got %d", tv.Tier, wantCounts[tv.Tier], tv.Count)
		}
	}

	eur, err := tracker.CollectionValue(ctx, &binder.ID, models.CurrencyEUR)
	if err != nil {
		t.Fatalf("CollectionValue returned error: %v", err)
	}
	if eur.CardCount != 4 || eur.UnpricedCards != 3 || eur.TotalValue != 55 {
		t.Errorf("expected binder EUR value 55 over 4 cards with 3 unpriced, got %+v", eur)
	}
	if eur.Tiers[4].Tier != "Premium" || eur.Tiers[4].Value != 55 {
		t.Errorf("expected premium tier to carry the EUR value, got %+v", eur.Tiers[4])
	}
}
