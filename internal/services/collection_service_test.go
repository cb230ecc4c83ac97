package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

func TestCollectionService(t *testing.T) {
	db := testDB(t)
	collections := NewCollectionService(db, NewPriceTracker(db, nil, time.Hour, 1))
	ctx := context.Background()

	binder, err := collections.Create(ctx, models.CreateCollectionRequest{Name: " Binder "})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if binder.Name != "Binder" {
		t.Errorf("expected trimmed name, got %q", binder.Name)
	}
	if _, err := collections.Create(ctx, models.CreateCollectionRequest{Name: "Binder"}); !errors.Is(err, ErrCollectionExists) {
		t.Errorf("expected ErrCollectionExists, got %v", err)
	}

	seedCards(t, db,
		models.Card{ID: "a", Name: "Opt", Rarity: "common", PriceUSD: usd(0.1)},
		models.Card{ID: "b", Name: "Jace", Rarity: "Mythic Rare", PriceUSD: usd(80)},
	)
	scans := seedScans(t, db, &binder.ID, "a", "a", "b")
	seedScans(t, db, nil, "a")
	bin := 0
	db.Model(&models.ScannedCard{}).Where("id = ?", scans[2].ID).Update("bin_index", bin)

	stats, err := collections.Stats(ctx, &binder.ID, models.CurrencyUSD)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.TotalCards != 3 || stats.UniqueCards != 2 || stats.SortedCards != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.RarityBreakdown["common"] != 2 || stats.RarityBreakdown["mythic"] != 1 {
		t.Errorf("unexpected rarity breakdown: %v", stats.RarityBreakdown)
	}
	if stats.Value.CardCount != 3 {
		t.Errorf("expected value over 3 cards, got %d", stats.Value.CardCount)
	}

	all, err := collections.Stats(ctx, nil, models.CurrencyUSD)
	if err != nil || all.TotalCards != 4 {
		t.Errorf("expected 4 cards overall, got %+v, %v", all, err)
	}

	if err := collections.Delete(ctx, binder.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	var unfiled int64
	db.Model(&models.ScannedCard{}).Where("collection_id IS NULL").Count(&unfiled)
	if unfiled != 4 {
		t.Errorf("expected deleted collection's cards to be unfiled, got %d unfiled", unfiled)
	}
	if _, err := collections.Stats(ctx, &binder.ID, models.CurrencyUSD); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
	if err := collections.Delete(ctx, binder.ID); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound on second delete, got %v", err)
	}
}
