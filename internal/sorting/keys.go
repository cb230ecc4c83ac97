package sorting

import (
	"cmp"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// SortKey is the bucketable, totally ordered value derived from a card. Keys order
// by Rank then Label. Unknown keys cannot be resolved for the criterion and are
// reported separately instead of being binned.
type SortKey struct {
	Rank    int    `json:"rank"`
	Label   string `json:"label"`
	Unknown bool   `json:"unknown,omitempty"`
}

const unknownLabel = "Unknown"

var unknownKey = SortKey{Rank: math.MaxInt, Label: unknownLabel, Unknown: true}

// Compare orders keys by rank, then label
func (k SortKey) Compare(o SortKey) int {
	if c := cmp.Compare(k.Rank, o.Rank); c != 0 {
		return c
	}
	return strings.Compare(k.Label, o.Label)
}

func (k SortKey) String() string {
	return k.Label
}

// Extract derives the sort key of card for the criterion. letters is only used by
// the alphabetical criterion. An unknown criterion yields an Unknown key.
func Extract(c Criterion, letters int, card *models.Card) SortKey {
	def, ok := criteria[c]
	if !ok || card == nil {
		return unknownKey
	}
	return def.extract(card, letters)
}

// Colors in WUBRG order, then the two derived buckets
var colorOrder = []string{"W", "U", "B", "R", "G", "Multicolor", "Colorless"}

const (
	colorRankMulticolor = 5
	colorRankColorless  = 6
)

var colorAliases = map[string]int{
	"w": 0, "white": 0,
	"u": 1, "blue": 1,
	"b": 2, "black": 2,
	"r": 3, "red": 3,
	"g": 4, "green": 4,
}

// Recognized primary card types in bin order. Anything else is "Other".
var typeOrder = []string{
	"Creature",
	"Instant",
	"Sorcery",
	"Enchantment",
	"Artifact",
	"Planeswalker",
	"Land",
	"Battle",
	"Other",
}

var rarityOrder = []string{
	models.RarityCommon,
	models.RarityUncommon,
	models.RarityRare,
	models.RarityMythic,
	models.RaritySpecial,
	models.RarityBonus,
}

// ligatures NFD does not decompose
var ligatureReplacer = strings.NewReplacer("æ", "ae", "Æ", "AE", "œ", "oe", "Œ", "OE", "ß", "ss")

// NormalizeName case-folds a card name, strips accents and drops everything that is
// not a letter. "Æther Vial" becomes "AETHERVIAL", "Lim-Dûl's Vault" "LIMDULSVAULT".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, ligatureReplacer.Replace(name))
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func alphabeticalKey(card *models.Card, letters int) SortKey {
	if letters < MinLetters {
		letters = MinLetters
	}
	normalized := []rune(NormalizeName(card.Name))
	if len(normalized) == 0 {
		return unknownKey
	}
	if len(normalized) > letters {
		normalized = normalized[:letters]
	}
	return SortKey{Label: string(normalized)}
}

func setKey(card *models.Card, _ int) SortKey {
	code := strings.ToUpper(strings.TrimSpace(card.SetCode))
	if code == "" {
		return unknownKey
	}
	return SortKey{Label: code}
}

func colorKey(card *models.Card, _ int) SortKey {
	seen := make(map[int]struct{}, len(card.Colors))
	for _, c := range card.Colors {
		if rank, ok := colorAliases[strings.ToLower(strings.TrimSpace(c))]; ok {
			seen[rank] = struct{}{}
		}
	}

	rank := colorRankColorless
	switch len(seen) {
	case 0:
	case 1:
		for r := range seen {
			rank = r
		}
	default:
		rank = colorRankMulticolor
	}
	return SortKey{Rank: rank, Label: colorOrder[rank]}
}

// PrimaryType returns the first recognized card type on the front face of a type
// line, or "Other". Supertypes such as Legendary or Basic are skipped.
func PrimaryType(typeLine string) string {
	front := typeLine
	if i := strings.Index(front, "//"); i >= 0 {
		front = front[:i]
	}
	for _, sep := range []string{"—", " - ", "–"} {
		if i := strings.Index(front, sep); i >= 0 {
			front = front[:i]
		}
	}
	for _, word := range strings.Fields(front) {
		for _, t := range typeOrder[:len(typeOrder)-1] {
			if strings.EqualFold(word, t) {
				return t
			}
		}
	}
	return typeOrder[len(typeOrder)-1]
}

func typeKey(card *models.Card, _ int) SortKey {
	primary := PrimaryType(card.TypeLine)
	for i, t := range typeOrder {
		if t == primary {
			return SortKey{Rank: i, Label: t}
		}
	}
	return SortKey{Rank: len(typeOrder) - 1, Label: typeOrder[len(typeOrder)-1]}
}

// NormalizeRarity lowercases a rarity and folds "mythic rare" into "mythic".
// Unrecognized values return "".
func NormalizeRarity(rarity string) string {
	r := strings.ToLower(strings.TrimSpace(rarity))
	if r == "mythic rare" {
		r = models.RarityMythic
	}
	for _, known := range rarityOrder {
		if r == known {
			return r
		}
	}
	return ""
}

func rarityKey(card *models.Card, _ int) SortKey {
	r := NormalizeRarity(card.Rarity)
	for i, known := range rarityOrder {
		if r == known {
			return SortKey{Rank: i, Label: known}
		}
	}
	return unknownKey
}

func priceKey(card *models.Card, _ int) SortKey {
	tier := ClassifyPrice(card.PriceUSD)
	if tier == TierUnknown {
		return unknownKey
	}
	return SortKey{Rank: int(tier), Label: tier.String()}
}
