package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-sorter/backend/internal/database"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), "silent")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	return db
}

func seedCards(t *testing.T, db *gorm.DB, cards ...models.Card) {
	t.Helper()
	for i := range cards {
		if err := db.Create(&cards[i]).Error; err != nil {
			t.Fatalf("seed card %s: %v", cards[i].ID, err)
		}
	}
}

func seedScans(t *testing.T, db *gorm.DB, collectionID *uint, cardIDs ...string) []models.ScannedCard {
	t.Helper()
	scans := make([]models.ScannedCard, len(cardIDs))
	for i, id := range cardIDs {
		scans[i] = models.ScannedCard{CardID: id, CollectionID: collectionID, Confidence: 1, ScannedAt: time.Now()}
	}
	if len(scans) > 0 {
		if err := db.Omit("Card").Create(&scans).Error; err != nil {
			t.Fatalf("seed scans: %v", err)
		}
	}
	return scans
}

func usd(v float64) *float64 { return &v }

func sfCard(id, name, set, number, rarity, priceUSD string) scryfallCard {
	return scryfallCard{
		ID:           id,
		Name:         name,
		Set:          set,
		SetName:      strings.ToUpper(set),
		CollectorNum: number,
		Rarity:       rarity,
		TypeLine:     "Instant",
		Colors:       []string{"R"},
		Prices:       scryfallPrices{USD: priceUSD},
	}
}

// fakeScryfall serves the subset of the Scryfall API the services call
type fakeScryfall struct {
	mu       sync.Mutex
	cards    []scryfallCard
	requests map[string]int
	pageSize int
	failPost bool
}

func newFakeScryfall(t *testing.T, cards ...scryfallCard) (*fakeScryfall, *ScryfallService) {
	t.Helper()
	f := &fakeScryfall{cards: cards, requests: make(map[string]int), pageSize: 2}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cards/named", f.named)
	mux.HandleFunc("GET /cards/search", f.search)
	mux.HandleFunc("POST /cards/collection", f.collection)
	mux.HandleFunc("GET /cards/{id}", f.byID)
	mux.HandleFunc("GET /cards/{set}/{number}", f.bySetNumber)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return f, NewScryfallService(ScryfallOptions{BaseURL: srv.URL, RateLimit: 1000, CacheSize: 16})
}

func (f *fakeScryfall) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[endpoint]
}

func (f *fakeScryfall) setPrice(id, priceUSD, priceEUR string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cards {
		if f.cards[i].ID == id {
			f.cards[i].Prices = scryfallPrices{USD: priceUSD, EUR: priceEUR}
		}
	}
}

func (f *fakeScryfall) setFailPost(fail bool) {
	f.mu.Lock()
	f.failPost = fail
	f.mu.Unlock()
}

func (f *fakeScryfall) hit(endpoint string) {
	f.mu.Lock()
	f.requests[endpoint]++
	f.mu.Unlock()
}

func (f *fakeScryfall) find(match func(scryfallCard) bool) (scryfallCard, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if match(c) {
			return c, true
		}
	}
	return scryfallCard{}, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeScryfall) byID(w http.ResponseWriter, r *http.Request) {
	f.hit("card")
	id := r.PathValue("id")
	c, ok := f.find(func(c scryfallCard) bool { return c.ID == id })
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, c)
}

func (f *fakeScryfall) bySetNumber(w http.ResponseWriter, r *http.Request) {
	f.hit("set_number")
	set, number := r.PathValue("set"), r.PathValue("number")
	c, ok := f.find(func(c scryfallCard) bool { return c.Set == set && c.CollectorNum == number })
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, c)
}

func (f *fakeScryfall) named(w http.ResponseWriter, r *http.Request) {
	f.hit("named")
	q := r.URL.Query()
	name := strings.ToLower(q.Get("fuzzy") + q.Get("exact"))
	set := q.Get("set")
	c, ok := f.find(func(c scryfallCard) bool {
		return strings.Contains(strings.ToLower(c.Name), name) && (set == "" || c.Set == set)
	})
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, c)
}

func (f *fakeScryfall) search(w http.ResponseWriter, r *http.Request) {
	f.hit("search")
	q := strings.ToLower(r.URL.Query().Get("q"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	var matches []scryfallCard
	f.mu.Lock()
	for _, c := range f.cards {
		if strings.Contains(strings.ToLower(c.Name), q) {
			matches = append(matches, c)
		}
	}
	f.mu.Unlock()
	if len(matches) == 0 {
		http.NotFound(w, r)
		return
	}

	start := min((page-1)*f.pageSize, len(matches))
	end := min(start+f.pageSize, len(matches))
	writeJSON(w, scryfallSearchResponse{
		Object:     "list",
		Data:       matches[start:end],
		TotalCards: len(matches),
		HasMore:    end < len(matches),
	})
}

func (f *fakeScryfall) collection(w http.ResponseWriter, r *http.Request) {
	f.hit("collection")
	f.mu.Lock()
	fail := f.failPost
	f.mu.Unlock()
	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	var body struct {
		Identifiers []scryfallIdentifier `json:"identifiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := scryfallCollectionResponse{Data: []scryfallCard{}}
	for _, ident := range body.Identifiers {
		c, ok := f.find(func(c scryfallCard) bool { return c.ID == ident.ID })
		if !ok {
			raw, _ := json.Marshal(ident)
			resp.NotFound = append(resp.NotFound, raw)
			continue
		}
		resp.Data = append(resp.Data, c)
	}
	writeJSON(w, resp)
}
