package services

import (
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// NameMatch is the catalog card a recognized name resolved to
type NameMatch struct {
	Card       models.Card
	Confidence float64 // 1 for an exact normalized match
}

// nameCandidates implements fuzzy.Source over normalized card names
type nameCandidates struct {
	cards      []models.Card
	normalized []string
}

func newNameCandidates(cards []models.Card) nameCandidates {
	normalized := make([]string, len(cards))
	for i := range cards {
		normalized[i] = sorting.NormalizeName(cards[i].Name)
	}
	return nameCandidates{cards: cards, normalized: normalized}
}

func (n nameCandidates) String(i int) string { return n.normalized[i] }
func (n nameCandidates) Len() int            { return len(n.cards) }

// NameConfidence scores how well a recognized name matches a card name. Equal
// normalized names score 1. Otherwise the recognized letters must appear in
// order in the card name and the score is the share of the name they cover.
func NameConfidence(recognized, cardName string) float64 {
	pattern := sorting.NormalizeName(recognized)
	target := sorting.NormalizeName(cardName)
	if pattern == "" || target == "" {
		return 0
	}
	if pattern == target {
		return 1
	}
	if len(fuzzy.Find(pattern, []string{target})) == 0 {
		return 0
	}
	return coverage(pattern, target)
}

// MatchName picks the candidate that best matches a recognized name. Higher
// confidence wins, then a printing from setCode, then the fuzzy score, then
// candidate order. Returns nil when no candidate matches at all.
func MatchName(recognized, setCode string, candidates []models.Card) *NameMatch {
	pattern := sorting.NormalizeName(recognized)
	if pattern == "" || len(candidates) == 0 {
		return nil
	}

	source := newNameCandidates(candidates)
	var (
		best      *NameMatch
		bestSet   bool
		bestScore int
		bestIndex int
	)
	for _, m := range fuzzy.FindFrom(pattern, source) {
		target := source.normalized[m.Index]
		confidence := 1.0
		if target != pattern {
			confidence = coverage(pattern, target)
		}
		inSet := setCode != "" && strings.EqualFold(candidates[m.Index].SetCode, setCode)

		better := best == nil ||
			confidence > best.Confidence ||
			(confidence == best.Confidence && inSet && !bestSet) ||
			(confidence == best.Confidence && inSet == bestSet && m.Score > bestScore) ||
			(confidence == best.Confidence && inSet == bestSet && m.Score == bestScore && m.Index < bestIndex)
		if better {
			best = &NameMatch{Card: candidates[m.Index], Confidence: confidence}
			bestSet, bestScore, bestIndex = inSet, m.Score, m.Index
		}
	}
	return best
}

func coverage(pattern, target string) float64 {
	return min(1, float64(utf8.RuneCountInString(pattern))/float64(utf8.RuneCountInString(target)))
}
