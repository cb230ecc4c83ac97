package sorting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

// State is where a Session is in its preview/apply cycle
type State int

const (
	StateIdle State = iota
	StatePreviewed
	StateApplied
)

func (s State) String() string {
	switch s {
	case StatePreviewed:
		return "previewed"
	case StateApplied:
		return "applied"
	default:
		return "idle"
	}
}

// Store is the persistence a Session needs. Implementations own their own
// transactions; SaveAssignments must be all-or-nothing.
type Store interface {
	// Candidates returns the scanned cards in scope with their catalog record
	// loaded. A nil collectionID means every scanned card.
	Candidates(ctx context.Context, collectionID *uint) ([]models.ScannedCard, error)

	// FindOrCreateConfig resolves cfg to a stored SortingConfig. With a name it
	// matches by name and fails with ErrInvalidConfiguration when the stored shape
	// differs. Without a name it reuses any config of the same shape, or creates
	// one named DefaultConfigName. cfg is filled in place; created reports a new row.
	FindOrCreateConfig(ctx context.Context, cfg *models.SortingConfig) (created bool, err error)

	// SaveAssignments writes the bin index of every assigned card and clears it
	// for the unknown ones, stamping configID and sortedAt on all of them.
	SaveAssignments(ctx context.Context, configID uint, assignments map[uint]int, unknown []uint, sortedAt time.Time) error
}

// CompletionEvent is emitted once per successful apply
type CompletionEvent struct {
	Criterion   Criterion `json:"criterion"`
	BinCount    int       `json:"bin_count"`
	TotalCards  int       `json:"total_cards"`
	SortedCards int       `json:"sorted_cards"`
	ConfigID    uint      `json:"config_id"`
	ConfigName  string    `json:"config_name"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier receives sorting complete events
type Notifier interface {
	SortingComplete(ctx context.Context, ev CompletionEvent) error
}

// ApplyRequest is a Request plus what the caller saw at preview time
type ApplyRequest struct {
	Request
	ConfigName  string `json:"config_name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"` // from a preview; empty uses the session's last matching preview
}

// ApplyResult is the preview shape plus what apply did
type ApplyResult struct {
	*Result
	ConfigID      uint   `json:"config_id"`
	ConfigName    string `json:"config_name"`
	ConfigCreated bool   `json:"config_created"`
	Persisted     bool   `json:"persisted"`
	Notified      bool   `json:"notified"`
}

type previewRecord struct {
	req         Request
	fingerprint string
}

// Session orchestrates preview and apply against a Store. It is safe for
// concurrent use; applies over the same criterion and candidate set are
// serialized.
type Session struct {
	store    Store
	notifier Notifier
	now      func() time.Time

	mu    sync.Mutex
	state State
	last  *previewRecord

	locks keyedMutex
}

// NewSession creates a session. notifier may be nil.
func NewSession(store Store, notifier Notifier) *Session {
	return &Session{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Preview computes the assignment for the current candidates without persisting
// anything
func (s *Session) Preview(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.SortingDuration.WithLabelValues("preview").Observe(time.Since(start).Seconds())
	}()

	res, err := s.compute(ctx, req)
	recordRun(req.Criterion, "preview", err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = StatePreviewed
	s.last = &previewRecord{req: requestOf(res, req), fingerprint: res.Fingerprint}
	s.mu.Unlock()
	return res, nil
}

// Apply recomputes the assignment, checks it against the preview it confirms and
// persists it. A candidate set that changed since that preview fails with
// ErrStaleCandidateSet and nothing is written.
func (s *Session) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	start := time.Now()
	defer func() {
		metrics.SortingDuration.WithLabelValues("apply").Observe(time.Since(start).Seconds())
	}()

	out, err := s.apply(ctx, req)
	recordRun(req.Criterion, "apply", err)
	return out, err
}

func (s *Session) apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	res, err := s.compute(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	scope := requestOf(res, req.Request)

	expected := req.Fingerprint
	if expected == "" {
		s.mu.Lock()
		if s.last != nil && s.last.req.sameScope(scope) {
			expected = s.last.fingerprint
		}
		s.mu.Unlock()
	}
	if expected != "" && expected != res.Fingerprint {
		return nil, fmt.Errorf("%w: previewed %s, now %s", ErrStaleCandidateSet, expected, res.Fingerprint)
	}

	unlock := s.locks.lock(string(res.Criterion) + "|" + res.Fingerprint)
	defer unlock()

	cfg := &models.SortingConfig{
		Name:      req.ConfigName,
		Criterion: string(res.Criterion),
		Letters:   res.Letters,
		BinCount:  res.BinCount,
		BinLabels: res.Labels(),
	}
	created, err := s.store.FindOrCreateConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving sorting config: %w", err)
	}

	sortedAt := s.now()
	if err := s.store.SaveAssignments(ctx, cfg.ID, res.Assignments, res.Unknown, sortedAt); err != nil {
		return nil, fmt.Errorf("saving bin assignments: %w", err)
	}
	metrics.SortingCardsAssigned.Add(float64(res.SortedCards))
	metrics.SortingUnknownCards.Add(float64(len(res.Unknown)))

	out := &ApplyResult{
		Result:        res,
		ConfigID:      cfg.ID,
		ConfigName:    cfg.Name,
		ConfigCreated: created,
		Persisted:     true,
	}

	if s.notifier != nil {
		ev := CompletionEvent{
			Criterion:   res.Criterion,
			BinCount:    res.BinCount,
			TotalCards:  res.TotalCards,
			SortedCards: res.SortedCards,
			ConfigID:    cfg.ID,
			ConfigName:  cfg.Name,
			CompletedAt: sortedAt,
		}
		if err := s.notifier.SortingComplete(ctx, ev); err != nil {
			log.Printf("Sorting: completion notification failed for config %q: %v", cfg.Name, err)
		} else {
			out.Notified = true
		}
	}

	s.mu.Lock()
	s.state = StateApplied
	s.last = nil
	s.mu.Unlock()

	log.Printf("Sorting: applied %s into %d bins (%d sorted, %d unknown, config %q)",
		res.Criterion, res.BinCount, res.SortedCards, len(res.Unknown), cfg.Name)
	return out, nil
}

func (s *Session) compute(ctx context.Context, req Request) (*Result, error) {
	normalized, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	cards, err := s.store.Candidates(ctx, normalized.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	return Plan(normalized, cards)
}

// requestOf rebuilds the normalized request behind a result
func requestOf(res *Result, req Request) Request {
	return Request{
		Criterion:    res.Criterion,
		Letters:      res.Letters,
		BinCount:     res.BinCount,
		CollectionID: req.CollectionID,
	}
}

func recordRun(c Criterion, phase string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidConfiguration):
		result = "invalid"
	case errors.Is(err, ErrEmptyInput):
		result = "empty"
	case errors.Is(err, ErrStaleCandidateSet):
		result = "stale"
	default:
		result = "error"
	}
	if _, ok := criteria[c]; !ok {
		c = "unknown"
	}
	metrics.SortingRunsTotal.WithLabelValues(string(c), phase, result).Inc()
}

// DefaultConfigName names a config after its shape: "color-4", "alphabetical-6-2l"
func DefaultConfigName(c Criterion, letters, binCount int) string {
	name := fmt.Sprintf("%s-%d", c, binCount)
	if letters > 1 {
		name += fmt.Sprintf("-%dl", letters)
	}
	return name
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
