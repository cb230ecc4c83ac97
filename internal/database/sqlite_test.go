package database

import (
	"path/filepath"
	"testing"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

func TestOpen_CreatesSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), "silent")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	for _, table := range []string{"cards", "collections", "scanned_cards", "sorting_configs", "price_history", "collection_value_snapshots"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestRunMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), "silent")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	card := models.Card{ID: "abc", Name: "Jace, the Mind Sculptor", Rarity: "Mythic Rare"}
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("create card: %v", err)
	}
	cfg := models.SortingConfig{Name: "old", Criterion: "alphabetic", Letters: 1, BinCount: 4}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("create config: %v", err)
	}

	inRange, outOfRange := 3, 9
	cards := []models.ScannedCard{
		{CardID: "abc", BinIndex: &inRange, SortingConfigID: &cfg.ID},
		{CardID: "abc", BinIndex: &outOfRange, SortingConfigID: &cfg.ID},
	}
	if err := db.Omit("Card").Create(&cards).Error; err != nil {
		t.Fatalf("create scanned cards: %v", err)
	}
	if err := db.Model(&models.ScannedCard{}).Where("id = ?", cards[0].ID).Update("language", "English").Error; err != nil {
		t.Fatalf("set language: %v", err)
	}

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}
	// safe to run twice
	if err := RunMigrations(db); err != nil {
		t.Fatalf("second RunMigrations returned error: %v", err)
	}

	var gotCard models.Card
	db.First(&gotCard, "id = ?", "abc")
	if gotCard.Rarity != "mythic" {
		t.Errorf("expected rarity mythic, got %q", gotCard.Rarity)
	}

	var gotCfg models.SortingConfig
	db.First(&gotCfg, cfg.ID)
	if gotCfg.Criterion != "alphabetical" {
		t.Errorf("expected criterion alphabetical, got %q", gotCfg.Criterion)
	}

	var got []models.ScannedCard
	db.Order("id").Find(&got)
	if got[0].BinIndex == nil || *got[0].BinIndex != 3 {
		t.Errorf("expected in-range bin to be kept, got %v", got[0].BinIndex)
	}
	if got[0].Language != "en" {
		t.Errorf("expected language en, got %q", got[0].Language)
	}
	if got[1].BinIndex != nil || got[1].SortingConfigID != nil {
		t.Errorf("expected out-of-range bin to be cleared, got %v / %v", got[1].BinIndex, got[1].SortingConfigID)
	}
}
