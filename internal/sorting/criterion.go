package sorting

import (
	"fmt"
	"strings"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// Criterion is the card attribute a sorting run buckets on
type Criterion string

const (
	CriterionAlphabetical Criterion = "alphabetical"
	CriterionSet          Criterion = "set"
	CriterionColor        Criterion = "color"
	CriterionType         Criterion = "type"
	CriterionRarity       Criterion = "rarity"
	CriterionPrice        Criterion = "price"
)

const (
	MinBins         = 2
	MaxBins         = 20
	DefaultBinCount = 6

	MinLetters = 1
	MaxLetters = 3
)

// criterionDef is the single extraction rule for one criterion. Key ordering is
// always SortKey.Compare, so each extractor is responsible for assigning ranks that
// express its natural order.
type criterionDef struct {
	displayName string
	usesLetters bool
	extract     func(card *models.Card, letters int) SortKey
}

// criteria is the closed set of supported criteria
var criteria = map[Criterion]criterionDef{
	CriterionAlphabetical: {displayName: "Alphabetical", usesLetters: true, extract: alphabeticalKey},
	CriterionSet:          {displayName: "Set/Expansion", extract: setKey},
	CriterionColor:        {displayName: "Color", extract: colorKey},
	CriterionType:         {displayName: "Card Type", extract: typeKey},
	CriterionRarity:       {displayName: "Rarity", extract: rarityKey},
	CriterionPrice:        {displayName: "Price Tier", extract: priceKey},
}

// AllCriteria returns every criterion in display order
func AllCriteria() []Criterion {
	return []Criterion{
		CriterionAlphabetical,
		CriterionSet,
		CriterionColor,
		CriterionType,
		CriterionRarity,
		CriterionPrice,
	}
}

// ParseCriterion accepts the canonical names plus the "alphabetic" spelling used by
// older saved configs
func ParseCriterion(s string) (Criterion, error) {
	c := Criterion(strings.ToLower(strings.TrimSpace(s)))
	if c == "alphabetic" {
		c = CriterionAlphabetical
	}
	if _, ok := criteria[c]; !ok {
		return "", fmt.Errorf("%w: unknown criterion %q", ErrInvalidConfiguration, s)
	}
	return c, nil
}

// DisplayName returns the human readable criterion name
func (c Criterion) DisplayName() string {
	if def, ok := criteria[c]; ok {
		return def.displayName
	}
	return string(c)
}

// Request describes one sorting run
type Request struct {
	Criterion    Criterion `json:"criterion"`
	Letters      int       `json:"letters,omitempty"` // alphabetical prefix length
	BinCount     int       `json:"bin_count"`
	CollectionID *uint     `json:"collection_id,omitempty"`
}

// Normalize validates the request and fills defaults. Letters defaults to 1 for
// alphabetical and is forced to 0 for every other criterion.
func (r Request) Normalize() (Request, error) {
	def, ok := criteria[r.Criterion]
	if !ok {
		return r, fmt.Errorf("%w: unknown criterion %q", ErrInvalidConfiguration, r.Criterion)
	}
	if err := ValidateBinCount(r.BinCount); err != nil {
		return r, err
	}
	if !def.usesLetters {
		r.Letters = 0
		return r, nil
	}
	if r.Letters == 0 {
		r.Letters = MinLetters
	}
	if r.Letters < MinLetters || r.Letters > MaxLetters {
		return r, fmt.Errorf("%w: letters must be between %d and %d, got %d",
			ErrInvalidConfiguration, MinLetters, MaxLetters, r.Letters)
	}
	return r, nil
}

// ValidateBinCount fails fast outside [MinBins, MaxBins]
func ValidateBinCount(binCount int) error {
	if binCount < MinBins || binCount > MaxBins {
		return fmt.Errorf("%w: bin count must be between %d and %d, got %d",
			ErrInvalidConfiguration, MinBins, MaxBins, binCount)
	}
	return nil
}

// sameScope reports whether two normalized requests sort the same candidates the
// same way
func (r Request) sameScope(o Request) bool {
	if r.Criterion != o.Criterion || r.Letters != o.Letters || r.BinCount != o.BinCount {
		return false
	}
	if (r.CollectionID == nil) != (o.CollectionID == nil) {
		return false
	}
	return r.CollectionID == nil || *r.CollectionID == *o.CollectionID
}
