package sorting

import (
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// Bin is one output slot of a sorting run
type Bin struct {
	Index   int      `json:"index"`
	Label   string   `json:"label"`
	Count   int      `json:"count"`
	Keys    []string `json:"keys"`
	CardIDs []uint   `json:"card_ids"`
}

// Result is a computed bin assignment. Every candidate id appears either in exactly
// one bin or in Unknown.
type Result struct {
	Criterion   Criterion    `json:"criterion"`
	Letters     int          `json:"letters,omitempty"`
	BinCount    int          `json:"bin_count"`
	Fingerprint string       `json:"fingerprint"`
	TotalCards  int          `json:"total_cards"`
	SortedCards int          `json:"sorted_cards"`
	Bins        []Bin        `json:"bins"`
	Assignments map[uint]int `json:"assignments"`
	Unknown     []uint       `json:"unknown"`
	EmptyBins   []int        `json:"empty_bins"`
	Split       bool         `json:"split"`
}

// Labels returns the label of every bin in index order
func (r *Result) Labels() []string {
	labels := make([]string, len(r.Bins))
	for i, b := range r.Bins {
		labels[i] = b.Label
	}
	return labels
}

// Items extracts the allocator input for a candidate set. A scanned card whose
// catalog record is not loaded has an Unknown key.
func Items(req Request, cards []models.ScannedCard) []Item {
	items := make([]Item, len(cards))
	for i := range cards {
		key := unknownKey
		if cards[i].Card.ID != "" {
			key = Extract(req.Criterion, req.Letters, &cards[i].Card)
		}
		items[i] = Item{ID: cards[i].ID, Key: key}
	}
	return items
}

// Plan runs key extraction and allocation over the candidates. It has no side
// effects and the same request and candidate set always give the same Result.
func Plan(req Request, cards []models.ScannedCard) (*Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrEmptyInput
	}

	items := Items(req, cards)
	alloc, err := Allocate(items, req.BinCount)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Criterion:   req.Criterion,
		Letters:     req.Letters,
		BinCount:    req.BinCount,
		Fingerprint: Fingerprint(items),
		TotalCards:  len(items),
		SortedCards: len(items) - len(alloc.Unknown),
		Bins:        make([]Bin, req.BinCount),
		Assignments: alloc.Assignments,
		Unknown:     alloc.Unknown,
		EmptyBins:   alloc.EmptyBins(),
		Split:       alloc.Split,
	}
	if res.Unknown == nil {
		res.Unknown = []uint{}
	}
	if res.EmptyBins == nil {
		res.EmptyBins = []int{}
	}

	for i := range res.Bins {
		keys := make([]string, len(alloc.BinKeys[i]))
		for j, k := range alloc.BinKeys[i] {
			keys[j] = k.Label
		}
		label := binLabel(alloc.BinKeys[i])
		if label == "" {
			label = emptyBinLabel
		}
		ids := alloc.Bins[i]
		if ids == nil {
			ids = []uint{}
		}
		res.Bins[i] = Bin{
			Index:   i,
			Label:   label,
			Count:   len(ids),
			Keys:    keys,
			CardIDs: ids,
		}
	}
	return res, nil
}
