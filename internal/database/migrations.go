package database

import (
	"log"

	"gorm.io/gorm"
)

// RunMigrations runs the custom data migrations after schema changes. Each step is
// safe to run multiple times.
func RunMigrations(db *gorm.DB) error {
	if err := migrateRarityField(db); err != nil {
		return err
	}
	if err := migrateLanguageField(db); err != nil {
		return err
	}
	if err := migrateCriterionField(db); err != nil {
		return err
	}
	return clearOutOfRangeBins(db)
}

// migrateRarityField lowercases rarities and folds the "mythic rare" spelling used
// by older imports into "mythic"
func migrateRarityField(db *gorm.DB) error {
	result := db.Exec(`UPDATE cards SET rarity = LOWER(TRIM(rarity)) WHERE rarity != LOWER(TRIM(rarity))`)
	if result.Error != nil {
		return result.Error
	}
	result = db.Exec(`UPDATE cards SET rarity = 'mythic' WHERE rarity = 'mythic rare'`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Migrated %d cards from 'mythic rare' to 'mythic'", result.RowsAffected)
	}
	return nil
}

// migrateLanguageField ensures every scanned card has a language code
func migrateLanguageField(db *gorm.DB) error {
	result := db.Exec(`UPDATE scanned_cards SET language = 'en' WHERE language IS NULL OR language = '' OR language = 'English'`)
	if result.Error != nil {
		log.Printf("Warning: failed to normalize language values: %v", result.Error)
	}
	return nil
}

// migrateCriterionField renames the "alphabetic" criterion of older configs
func migrateCriterionField(db *gorm.DB) error {
	return db.Exec(`UPDATE sorting_configs SET criterion = 'alphabetical' WHERE criterion = 'alphabetic'`).Error
}

// clearOutOfRangeBins un-sorts scanned cards whose bin index does not fit the config
// that assigned it, or whose config was deleted
func clearOutOfRangeBins(db *gorm.DB) error {
	result := db.Exec(`
		UPDATE scanned_cards
		SET bin_index = NULL, sorting_config_id = NULL, sorted_at = NULL
		WHERE bin_index IS NOT NULL AND (
			bin_index < 0
			OR sorting_config_id IS NULL
			OR sorting_config_id NOT IN (SELECT id FROM sorting_configs)
			OR bin_index >= (SELECT bin_count FROM sorting_configs WHERE sorting_configs.id = scanned_cards.sorting_config_id)
		)
	`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Cleared %d out-of-range bin assignments", result.RowsAffected)
	}
	return nil
}
