package sorting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	cards   []models.ScannedCard
	configs []models.SortingConfig
	bins    map[uint]*int
	saves   int
	saveErr error
}

func newFakeStore(cards ...models.ScannedCard) *fakeStore {
	return &fakeStore{cards: cards, bins: map[uint]*int{}}
}

func (f *fakeStore) Candidates(_ context.Context, collectionID *uint) ([]models.ScannedCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScannedCard
	for _, c := range f.cards {
		if collectionID != nil && (c.CollectionID == nil || *c.CollectionID != *collectionID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) FindOrCreateConfig(_ context.Context, cfg *models.SortingConfig) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.configs {
		sameShape := existing.Criterion == cfg.Criterion && existing.Letters == cfg.Letters && existing.BinCount == cfg.BinCount
		if cfg.Name != "" && existing.Name == cfg.Name {
			if !sameShape {
				return false, ErrInvalidConfiguration
			}
			*cfg = existing
			return false, nil
		}
		if cfg.Name == "" && sameShape {
			*cfg = existing
			return false, nil
		}
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfigName(Criterion(cfg.Criterion), cfg.Letters, cfg.BinCount)
	}
	cfg.ID = uint(len(f.configs) + 1)
	f.configs = append(f.configs, *cfg)
	return true, nil
}

func (f *fakeStore) SaveAssignments(_ context.Context, _ uint, assignments map[uint]int, unknown []uint, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	for id, bin := range assignments {
		b := bin
		f.bins[id] = &b
	}
	for _, id := range unknown {
		f.bins[id] = nil
	}
	return nil
}

func (f *fakeStore) add(c models.ScannedCard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, c)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []CompletionEvent
	err    error
}

func (n *fakeNotifier) SortingComplete(_ context.Context, ev CompletionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func scanned(id uint, card models.Card) models.ScannedCard {
	card.ID = fmt.Sprintf("card-%d", id)
	return models.ScannedCard{ID: id, CardID: card.ID, Card: card}
}

func colorCollection() []models.ScannedCard {
	colors := []string{"W", "W", "U", "B", "B", "B", "R", "G", "G", "G"}
	cards := make([]models.ScannedCard, len(colors))
	for i, c := range colors {
		cards[i] = scanned(uint(i+1), models.Card{Name: fmt.Sprintf("Card %d", i), Colors: []string{c}})
	}
	return cards
}

var colorRequest = Request{Criterion: CriterionColor, BinCount: 4}

func TestSession_PreviewDoesNotPersist(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	notifier := &fakeNotifier{}
	s := NewSession(store, notifier)

	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}

	first, err := s.Preview(context.Background(), colorRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Preview(context.Background(), colorRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("expected repeated previews to be identical")
	}
	if store.saves != 0 || len(store.configs) != 0 {
		t.Errorf("preview persisted something: %d saves, %d configs", store.saves, len(store.configs))
	}
	if notifier.count() != 0 {
		t.Errorf("preview should not notify, got %d events", notifier.count())
	}
	if s.State() != StatePreviewed {
		t.Errorf("expected previewed, got %s", s.State())
	}

	wantLabels := []string{"W-U", "B", "R", "G"}
	if !reflect.DeepEqual(first.Labels(), wantLabels) {
		t.Errorf("expected labels %v, got %v", wantLabels, first.Labels())
	}
	wantCounts := []int{3, 3, 1, 3}
	for i, b := range first.Bins {
		if b.Count != wantCounts[i] {
			t.Errorf("bin %d: expected %d cards, got %d", i, wantCounts[i], b.Count)
		}
	}
}

func TestSession_ApplyAfterPreview(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	notifier := &fakeNotifier{}
	s := NewSession(store, notifier)
	ctx := context.Background()

	preview, err := s.Preview(ctx, colorRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applied, err := s.Apply(ctx, ApplyRequest{Request: colorRequest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(applied.Assignments, preview.Assignments) {
		t.Errorf("apply diverged from preview: %v vs %v", applied.Assignments, preview.Assignments)
	}
	if !applied.Persisted || !applied.Notified || !applied.ConfigCreated {
		t.Errorf("unexpected apply flags: %+v", applied)
	}
	if applied.ConfigName != "color-4" {
		t.Errorf("expected generated config name color-4, got %s", applied.ConfigName)
	}
	if s.State() != StateApplied {
		t.Errorf("expected applied, got %s", s.State())
	}

	if notifier.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", notifier.count())
	}
	ev := notifier.events[0]
	if ev.TotalCards != 10 || ev.BinCount != 4 || ev.Criterion != CriterionColor {
		t.Errorf("unexpected event: %+v", ev)
	}

	// a fresh preview matches what was persisted
	again, err := s.Preview(ctx, colorRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for id, bin := range again.Assignments {
		if store.bins[id] == nil || *store.bins[id] != bin {
			t.Errorf("card %d: preview says bin %d, store has %v", id, bin, store.bins[id])
		}
	}
}

func TestSession_ApplyWithoutPreview(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	s := NewSession(store, nil)

	res, err := s.Apply(context.Background(), ApplyRequest{Request: colorRequest, ConfigName: "by color"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Notified {
		t.Error("expected Notified=false without a notifier")
	}
	if res.ConfigName != "by color" {
		t.Errorf("expected config name 'by color', got %s", res.ConfigName)
	}
	if store.saves != 1 {
		t.Errorf("expected 1 save, got %d", store.saves)
	}
}

func TestSession_StaleCandidateSet(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	notifier := &fakeNotifier{}
	s := NewSession(store, notifier)
	ctx := context.Background()

	if _, err := s.Preview(ctx, colorRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.add(scanned(11, models.Card{Name: "Late Arrival", Colors: []string{"R"}}))

	_, err := s.Apply(ctx, ApplyRequest{Request: colorRequest})
	if !errors.Is(err, ErrStaleCandidateSet) {
		t.Fatalf("expected ErrStaleCandidateSet, got %v", err)
	}
	if store.saves != 0 || notifier.count() != 0 {
		t.Errorf("stale apply had side effects: %d saves, %d events", store.saves, notifier.count())
	}

	// a new preview clears the way
	if _, err := s.Preview(ctx, colorRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Apply(ctx, ApplyRequest{Request: colorRequest}); err != nil {
		t.Errorf("expected apply after fresh preview to succeed, got %v", err)
	}
}

func TestSession_StaleExplicitFingerprint(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	s := NewSession(store, nil)
	ctx := context.Background()

	preview, err := s.Preview(ctx, colorRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Apply(ctx, ApplyRequest{Request: colorRequest, Fingerprint: "0000000000000000"}); !errors.Is(err, ErrStaleCandidateSet) {
		t.Errorf("expected ErrStaleCandidateSet, got %v", err)
	}
	if _, err := s.Apply(ctx, ApplyRequest{Request: colorRequest, Fingerprint: preview.Fingerprint}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSession_PreviewOfOtherScopeIsIgnored(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	s := NewSession(store, nil)
	ctx := context.Background()

	if _, err := s.Preview(ctx, Request{Criterion: CriterionColor, BinCount: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.add(scanned(11, models.Card{Colors: []string{"U"}}))

	if _, err := s.Apply(ctx, ApplyRequest{Request: colorRequest}); err != nil {
		t.Errorf("preview with another bin count should not make apply stale, got %v", err)
	}
}

func TestSession_NotifierFailure(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	s := NewSession(store, &fakeNotifier{err: errors.New("broker down")})

	res, err := s.Apply(context.Background(), ApplyRequest{Request: colorRequest})
	if err != nil {
		t.Fatalf("notifier failure should not fail apply: %v", err)
	}
	if !res.Persisted || res.Notified {
		t.Errorf("expected persisted and not notified, got %+v", res)
	}
}

func TestSession_SaveFailure(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	store.saveErr = errors.New("disk full")
	notifier := &fakeNotifier{}
	s := NewSession(store, notifier)

	if _, err := s.Apply(context.Background(), ApplyRequest{Request: colorRequest}); err == nil {
		t.Fatal("expected error")
	}
	if notifier.count() != 0 {
		t.Error("failed apply must not notify")
	}
	if s.State() == StateApplied {
		t.Error("failed apply must not reach applied state")
	}
}

func TestSession_Errors(t *testing.T) {
	ctx := context.Background()

	s := NewSession(newFakeStore(), nil)
	if _, err := s.Preview(ctx, colorRequest); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}

	s = NewSession(newFakeStore(colorCollection()...), nil)
	if _, err := s.Preview(ctx, Request{Criterion: CriterionColor, BinCount: 1}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := s.Apply(ctx, ApplyRequest{Request: Request{Criterion: CriterionColor, BinCount: 21}}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestSession_ConfigReuse(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	s := NewSession(store, nil)
	ctx := context.Background()

	first, err := s.Apply(ctx, ApplyRequest{Request: colorRequest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Apply(ctx, ApplyRequest{Request: colorRequest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ConfigCreated || second.ConfigID != first.ConfigID {
		t.Errorf("expected config %d to be reused, got %+v", first.ConfigID, second)
	}

	_, err = s.Apply(ctx, ApplyRequest{Request: Request{Criterion: CriterionColor, BinCount: 5}, ConfigName: first.ConfigName})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected name clash to fail with ErrInvalidConfiguration, got %v", err)
	}
}

func TestSession_ConcurrentApply(t *testing.T) {
	store := newFakeStore(colorCollection()...)
	notifier := &fakeNotifier{}
	s := NewSession(store, notifier)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Apply(context.Background(), ApplyRequest{Request: colorRequest})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if notifier.count() != 8 {
		t.Errorf("expected one notification per apply, got %d", notifier.count())
	}
	if len(store.configs) != 1 {
		t.Errorf("expected a single config, got %d", len(store.configs))
	}
}

func TestSession_CollectionScope(t *testing.T) {
	binder := uint(2)
	cards := colorCollection()
	for i := range cards[:4] {
		cards[i].CollectionID = &binder
	}
	s := NewSession(newFakeStore(cards...), nil)

	res, err := s.Preview(context.Background(), Request{Criterion: CriterionColor, BinCount: 2, CollectionID: &binder})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalCards != 4 {
		t.Errorf("expected 4 cards in collection scope, got %d", res.TotalCards)
	}
}

func TestPlan_UnknownAndLabels(t *testing.T) {
	cards := []models.ScannedCard{
		scanned(1, models.Card{Name: "Bolt", PriceUSD: price(0.30)}),
		scanned(2, models.Card{Name: "Jace", PriceUSD: price(80)}),
		scanned(3, models.Card{Name: "Mystery"}),
		{ID: 4, CardID: "missing"},
	}

	res, err := Plan(Request{Criterion: CriterionPrice, BinCount: 5}, cards)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.Unknown, []uint{3, 4}) {
		t.Errorf("expected unknown [3 4], got %v", res.Unknown)
	}
	if res.TotalCards != 4 || res.SortedCards != 2 {
		t.Errorf("expected 4 total and 2 sorted, got %d and %d", res.TotalCards, res.SortedCards)
	}
	wantLabels := []string{"Bulk", "Premium", "Empty", "Empty", "Empty"}
	if !reflect.DeepEqual(res.Labels(), wantLabels) {
		t.Errorf("expected labels %v, got %v", wantLabels, res.Labels())
	}
	if !reflect.DeepEqual(res.EmptyBins, []int{2, 3, 4}) {
		t.Errorf("expected empty bins [2 3 4], got %v", res.EmptyBins)
	}
}

func TestDefaultBinLabels(t *testing.T) {
	tests := []struct {
		criterion Criterion
		bins      int
		want      []string
	}{
		{CriterionAlphabetical, 6, []string{"A-D", "E-H", "I-L", "M-P", "Q-T", "U-Z"}},
		{CriterionAlphabetical, 2, []string{"A-M", "N-Z"}},
		{CriterionPrice, 6, []string{"Bulk", "Low", "Medium", "High", "Premium", "Bin 6"}},
		{CriterionColor, 3, []string{"W", "U", "B"}},
		{CriterionRarity, 2, []string{"Common", "Uncommon"}},
		{CriterionSet, 2, []string{"Set Group 1", "Set Group 2"}},
	}

	for _, tt := range tests {
		got, err := DefaultBinLabels(tt.criterion, tt.bins)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.criterion, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s/%d: expected %v, got %v", tt.criterion, tt.bins, tt.want, got)
		}
	}

	if _, err := DefaultBinLabels(CriterionColor, 30); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}

	got, _ := DefaultBinLabels(CriterionAlphabetical, 20)
	if got[0] != "A" || got[19] != "T-Z" {
		t.Errorf("unexpected 20 bin alphabet labels %v", got)
	}
}

func TestCompletionEvent_JSON(t *testing.T) {
	raw, err := json.Marshal(CompletionEvent{Criterion: CriterionColor, BinCount: 4})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["criterion"] != "color" {
		t.Errorf("expected criterion %q, got %v in %s", "color", fields["criterion"], raw)
	}
	if _, ok := fields["criteria"]; ok {
		t.Errorf("unexpected criteria field in %s", raw)
	}
}
