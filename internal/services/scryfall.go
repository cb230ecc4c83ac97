package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

const (
	scryfallBaseURL = "https://api.scryfall.com"

	// scryfallCollectionLimit is the most identifiers /cards/collection accepts
	scryfallCollectionLimit = 75
)

// ScryfallOptions tunes the Scryfall client. Zero values fall back to defaults.
type ScryfallOptions struct {
	BaseURL   string
	RateLimit float64 // requests per second
	CacheSize int
	Timeout   time.Duration
}

// ScryfallService looks up reference card data and prices. Calls are throttled to
// the configured rate and single-card lookups are cached.
type ScryfallService struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, models.Card]
}

func NewScryfallService(opts ScryfallOptions) *ScryfallService {
	if opts.BaseURL == "" {
		opts.BaseURL = scryfallBaseURL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	cache, err := lru.New[string, models.Card](opts.CacheSize)
	if err != nil {
		log.Printf("Scryfall: failed to create lookup cache: %v", err)
	}

	return &ScryfallService{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		cache:   cache,
	}
}

type scryfallSearchResponse struct {
	Data       []scryfallCard `json:"data"`
	Object     string         `json:"object"`
	TotalCards int            `json:"total_cards"`
	HasMore    bool           `json:"has_more"`
}

type scryfallCollectionResponse struct {
	Data     []scryfallCard    `json:"data"`
	NotFound []json.RawMessage `json:"not_found"`
}

type scryfallCard struct {
	ImageURIs    *scryfallImages `json:"image_uris"`
	CardFaces    []scryfallFace  `json:"card_faces"`
	Prices       scryfallPrices  `json:"prices"`
	Colors       []string        `json:"colors"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SetName      string          `json:"set_name"`
	Set          string          `json:"set"`
	CollectorNum string          `json:"collector_number"`
	Rarity       string          `json:"rarity"`
	TypeLine     string          `json:"type_line"`
	ManaCost     string          `json:"mana_cost"`
}

type scryfallImages struct {
	Small  string `json:"small"`
	Normal string `json:"normal"`
	Large  string `json:"large"`
}

type scryfallFace struct {
	ImageURIs *scryfallImages `json:"image_uris"`
	Colors    []string        `json:"colors"`
	TypeLine  string          `json:"type_line"`
	ManaCost  string          `json:"mana_cost"`
}

type scryfallPrices struct {
	USD string `json:"usd"`
	EUR string `json:"eur"`
}

type scryfallIdentifier struct {
	ID string `json:"id"`
}

// SearchCards runs a Scryfall query and returns one page of results. page starts
// at 1. No matches is an empty result, not an error.
func (s *ScryfallService) SearchCards(ctx context.Context, query string, page int) (*models.CardSearchResult, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))

	var searchResp scryfallSearchResponse
	found, err := s.get(ctx, "search", "/cards/search?"+params.Encode(), &searchResp)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.CardSearchResult{
			Cards:      []models.Card{},
			TotalCount: 0,
			HasMore:    false,
		}, nil
	}

	cards := make([]models.Card, len(searchResp.Data))
	for i, sc := range searchResp.Data {
		cards[i] = convertToCard(sc)
	}

	return &models.CardSearchResult{
		Cards:      cards,
		TotalCount: searchResp.TotalCards,
		HasMore:    searchResp.HasMore,
	}, nil
}

// GetCard retrieves a card by Scryfall id. Returns nil, nil if the card is not found.
func (s *ScryfallService) GetCard(ctx context.Context, id string) (*models.Card, error) {
	return s.lookup(ctx, "card", "id:"+id, "/cards/"+url.PathEscape(id))
}

// GetCardBySetAndNumber retrieves a specific printing by set code and collector
// number. Returns nil, nil if the card is not found.
func (s *ScryfallService) GetCardBySetAndNumber(ctx context.Context, setCode, number string) (*models.Card, error) {
	set := strings.ToLower(strings.TrimSpace(setCode))
	number = strings.TrimSpace(number)
	path := fmt.Sprintf("/cards/%s/%s", url.PathEscape(set), url.PathEscape(number))
	return s.lookup(ctx, "set_number", "set:"+set+"/"+number, path)
}

// GetCardByName resolves a name with Scryfall's fuzzy matcher (or exact match when
// fuzzy is false). setCode narrows the printing when non-empty. Returns nil, nil
// if nothing matches.
func (s *ScryfallService) GetCardByName(ctx context.Context, name, setCode string, fuzzy bool) (*models.Card, error) {
	mode := "exact"
	if fuzzy {
		mode = "fuzzy"
	}
	params := url.Values{}
	params.Set(mode, strings.TrimSpace(name))
	if setCode != "" {
		params.Set("set", strings.ToLower(setCode))
	}
	key := "named:" + mode + ":" + strings.ToLower(params.Encode())
	return s.lookup(ctx, "named", key, "/cards/named?"+params.Encode())
}

// GetCardsByIDs fetches fresh data for many cards, batching 75 ids per request.
// Results bypass the lookup cache since they are used for price refreshes. Ids
// Scryfall does not know are skipped.
func (s *ScryfallService) GetCardsByIDs(ctx context.Context, ids []string) ([]models.Card, error) {
	cards := make([]models.Card, 0, len(ids))
	for start := 0; start < len(ids); start += scryfallCollectionLimit {
		end := min(start+scryfallCollectionLimit, len(ids))
		body := struct {
			Identifiers []scryfallIdentifier `json:"identifiers"`
		}{}
		for _, id := range ids[start:end] {
			body.Identifiers = append(body.Identifiers, scryfallIdentifier{ID: id})
		}

		var resp scryfallCollectionResponse
		if _, err := s.post(ctx, "collection", "/cards/collection", body, &resp); err != nil {
			return cards, err
		}
		for _, sc := range resp.Data {
			cards = append(cards, convertToCard(sc))
		}
		if len(resp.NotFound) > 0 {
			log.Printf("Scryfall: %d of %d ids not found in collection lookup", len(resp.NotFound), end-start)
		}
	}
	return cards, nil
}

func (s *ScryfallService) lookup(ctx context.Context, endpoint, cacheKey, path string) (*models.Card, error) {
	if s.cache != nil {
		if card, ok := s.cache.Get(cacheKey); ok {
			metrics.ScryfallCacheHits.Inc()
			return &card, nil
		}
		metrics.ScryfallCacheMisses.Inc()
	}

	var sc scryfallCard
	found, err := s.get(ctx, endpoint, path, &sc)
	if err != nil || !found {
		return nil, err
	}

	card := convertToCard(sc)
	if s.cache != nil {
		s.cache.Add(cacheKey, card)
	}
	return &card, nil
}

func (s *ScryfallService) get(ctx context.Context, endpoint, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	return s.do(req, endpoint, out)
}

func (s *ScryfallService) post(ctx context.Context, endpoint, path string, body, out any) (bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, endpoint, out)
}

// do waits for the rate limiter, sends req and decodes a 200 body into out.
// A 404 returns found=false with no error.
func (s *ScryfallService) do(req *http.Request, endpoint string, out any) (bool, error) {
	if err := s.limiter.Wait(req.Context()); err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tcg-sorter/1.0")

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.ScryfallLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScryfallRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return false, fmt.Errorf("failed to reach scryfall: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.ScryfallRequestsTotal.WithLabelValues(endpoint, "not_found").Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ScryfallRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return false, fmt.Errorf("scryfall API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ScryfallRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return false, fmt.Errorf("failed to decode scryfall response: %w", err)
	}
	metrics.ScryfallRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return true, nil
}

func convertToCard(sc scryfallCard) models.Card {
	var imageURL string
	colors := sc.Colors
	typeLine := sc.TypeLine
	manaCost := sc.ManaCost

	if sc.ImageURIs != nil {
		imageURL = sc.ImageURIs.Normal
	}
	// Double-faced cards keep faces' images and colors on card_faces
	if len(sc.CardFaces) > 0 {
		front := sc.CardFaces[0]
		if imageURL == "" && front.ImageURIs != nil {
			imageURL = front.ImageURIs.Normal
		}
		if len(colors) == 0 {
			colors = front.Colors
		}
		if typeLine == "" {
			typeLine = front.TypeLine
		}
		if manaCost == "" {
			manaCost = front.ManaCost
		}
	}
	if colors == nil {
		colors = []string{}
	}

	var priceUpdatedAt *time.Time
	priceUSD := parsePrice(sc.Prices.USD)
	priceEUR := parsePrice(sc.Prices.EUR)
	if priceUSD != nil || priceEUR != nil {
		now := time.Now()
		priceUpdatedAt = &now
	}

	return models.Card{
		ID:              sc.ID,
		Name:            sc.Name,
		SetCode:         sc.Set,
		SetName:         sc.SetName,
		CollectorNumber: sc.CollectorNum,
		Colors:          colors,
		TypeLine:        typeLine,
		Rarity:          sc.Rarity,
		ManaCost:        manaCost,
		ImageURL:        imageURL,
		PriceUSD:        priceUSD,
		PriceEUR:        priceEUR,
		PriceUpdatedAt:  priceUpdatedAt,
	}
}

// parsePrice converts Scryfall's decimal strings; empty or malformed is unknown
func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
