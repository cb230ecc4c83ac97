package sorting

import "math"

// Tier is an ordered price bucket. TierUnknown sorts after every real tier and is
// never placed in a bin.
type Tier int

const (
	TierBulk Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierPremium
	TierUnknown
)

type tierRange struct {
	tier Tier
	name string
	min  float64
	max  float64 // exclusive; +Inf for the top tier
}

// Lower bound inclusive, upper bound exclusive.
var tierRanges = []tierRange{
	{TierBulk, "Bulk", 0, 0.50},
	{TierLow, "Low", 0.50, 2.00},
	{TierMedium, "Medium", 2.00, 10.00},
	{TierHigh, "High", 10.00, 50.00},
	{TierPremium, "Premium", 50.00, math.Inf(1)},
}

// AllTiers returns the five priced tiers in ascending order
func AllTiers() []Tier {
	return []Tier{TierBulk, TierLow, TierMedium, TierHigh, TierPremium}
}

// Classify maps a non-negative price to its tier. Negative and NaN prices are
// TierUnknown.
func Classify(price float64) Tier {
	if math.IsNaN(price) || price < 0 {
		return TierUnknown
	}
	for _, r := range tierRanges {
		if price >= r.min && (price < r.max || math.IsInf(r.max, 1)) {
			return r.tier
		}
	}
	return TierUnknown
}

// ClassifyPrice is Classify for a nullable price; nil is TierUnknown
func ClassifyPrice(price *float64) Tier {
	if price == nil {
		return TierUnknown
	}
	return Classify(*price)
}

func (t Tier) String() string {
	if t >= 0 && int(t) < len(tierRanges) {
		return tierRanges[t].name
	}
	return "Unknown"
}

// Bounds returns the [min, max) range of the tier. Unknown returns NaN bounds.
func (t Tier) Bounds() (float64, float64) {
	if t >= 0 && int(t) < len(tierRanges) {
		return tierRanges[t].min, tierRanges[t].max
	}
	return math.NaN(), math.NaN()
}
