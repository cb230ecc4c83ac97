package sorting

import (
	"fmt"
	"strings"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

const emptyBinLabel = "Empty"

// binLabel names a bin after the keys it holds: "W", "W-U", "A-D". Empty bins get
// no label.
func binLabel(keys []SortKey) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return keys[0].Label
	default:
		return keys[0].Label + "-" + keys[len(keys)-1].Label
	}
}

// LabelFor names a bin after the cards it currently holds, from its lowest to its
// highest key under the criterion. Cards with unknown keys are ignored; "" means
// no card has a known key.
func LabelFor(c Criterion, letters int, cards []models.Card) string {
	var lo, hi SortKey
	found := false
	for i := range cards {
		k := Extract(c, letters, &cards[i])
		if k.Unknown {
			continue
		}
		if !found || k.Compare(lo) < 0 {
			lo = k
		}
		if !found || k.Compare(hi) > 0 {
			hi = k
		}
		found = true
	}
	switch {
	case !found:
		return ""
	case lo.Compare(hi) == 0:
		return binLabel([]SortKey{lo})
	default:
		return binLabel([]SortKey{lo, hi})
	}
}

// DefaultBinLabels returns the labels a criterion suggests for binCount bins before
// any cards are known, e.g. to print bin dividers. Bins past the criterion's
// natural buckets are named "Bin N".
func DefaultBinLabels(c Criterion, binCount int) ([]string, error) {
	if _, ok := criteria[c]; !ok {
		return nil, fmt.Errorf("%w: unknown criterion %q", ErrInvalidConfiguration, c)
	}
	if err := ValidateBinCount(binCount); err != nil {
		return nil, err
	}

	var natural []string
	switch c {
	case CriterionAlphabetical:
		return alphabetRanges(binCount), nil
	case CriterionSet:
		labels := make([]string, binCount)
		for i := range labels {
			labels[i] = fmt.Sprintf("Set Group %d", i+1)
		}
		return labels, nil
	case CriterionColor:
		natural = colorOrder
	case CriterionType:
		natural = typeOrder
	case CriterionRarity:
		for _, r := range rarityOrder {
			natural = append(natural, strings.ToUpper(r[:1])+r[1:])
		}
	case CriterionPrice:
		for _, t := range AllTiers() {
			natural = append(natural, t.String())
		}
	}

	labels := make([]string, binCount)
	for i := range labels {
		if i < len(natural) {
			labels[i] = natural[i]
		} else {
			labels[i] = fmt.Sprintf("Bin %d", i+1)
		}
	}
	return labels, nil
}

// alphabetRanges splits A-Z into binCount ranges of equal width, the last range
// absorbing the remainder
func alphabetRanges(binCount int) []string {
	per := 26 / binCount
	labels := make([]string, binCount)
	for i := range labels {
		start := 'A' + rune(i*per)
		end := 'A' + rune((i+1)*per-1)
		if i == binCount-1 {
			end = 'Z'
		}
		if start == end {
			labels[i] = string(start)
			continue
		}
		labels[i] = string(start) + "-" + string(end)
	}
	return labels
}
