package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

type SortingHandler struct {
	session         *sorting.Session
	store           *services.SortingStore
	defaultBinCount int
}

func NewSortingHandler(session *sorting.Session, store *services.SortingStore, defaultBinCount int) *SortingHandler {
	if defaultBinCount == 0 {
		defaultBinCount = sorting.DefaultBinCount
	}
	return &SortingHandler{
		session:         session,
		store:           store,
		defaultBinCount: defaultBinCount,
	}
}

type sortRequest struct {
	Criterion    string `json:"criterion" binding:"required"`
	Letters      int    `json:"letters"`
	BinCount     int    `json:"bin_count"`
	CollectionID *uint  `json:"collection_id"`
	ConfigName   string `json:"config_name"`
	Fingerprint  string `json:"fingerprint"`
}

func (h *SortingHandler) request(body sortRequest) (sorting.Request, error) {
	criterion, err := sorting.ParseCriterion(body.Criterion)
	if err != nil {
		return sorting.Request{}, err
	}
	binCount := body.BinCount
	if binCount == 0 {
		binCount = h.defaultBinCount
	}
	return sorting.Request{
		Criterion:    criterion,
		Letters:      body.Letters,
		BinCount:     binCount,
		CollectionID: body.CollectionID,
	}, nil
}

// Preview computes bin assignments without saving them
func (h *SortingHandler) Preview(c *gin.Context) {
	var body sortRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.request(body)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.session.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Apply recomputes and saves bin assignments. A candidate set that changed since
// the confirmed preview is rejected with 409.
func (h *SortingHandler) Apply(c *gin.Context) {
	var body sortRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.request(body)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.session.Apply(c.Request.Context(), sorting.ApplyRequest{
		Request:     req,
		ConfigName:  body.ConfigName,
		Fingerprint: body.Fingerprint,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type applyConfigRequest struct {
	CollectionID *uint  `json:"collection_id"`
	Fingerprint  string `json:"fingerprint"`
}

// lookupConfig resolves the :config path segment, a numeric id or a config name
func (h *SortingHandler) lookupConfig(c *gin.Context) (*models.SortingConfig, error) {
	ref := c.Param("config")
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return h.store.GetConfig(c.Request.Context(), uint(id))
	}
	return h.store.GetConfigByName(c.Request.Context(), ref)
}

// ApplyConfig applies a saved config
func (h *SortingHandler) ApplyConfig(c *gin.Context) {
	var body applyConfigRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg, err := h.lookupConfig(c)
	if err != nil {
		respondError(c, err)
		return
	}
	criterion, err := sorting.ParseCriterion(cfg.Criterion)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.session.Apply(c.Request.Context(), sorting.ApplyRequest{
		Request: sorting.Request{
			Criterion:    criterion,
			Letters:      cfg.Letters,
			BinCount:     cfg.BinCount,
			CollectionID: body.CollectionID,
		},
		ConfigName:  cfg.Name,
		Fingerprint: body.Fingerprint,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetState reports where the preview/apply cycle is
func (h *SortingHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.session.State().String()})
}

// GetCriteria lists the supported criteria
func (h *SortingHandler) GetCriteria(c *gin.Context) {
	criteria := sorting.AllCriteria()
	out := make([]gin.H, len(criteria))
	for i, criterion := range criteria {
		out[i] = gin.H{
			"criterion":    criterion,
			"display_name": criterion.DisplayName(),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"criteria":          out,
		"min_bins":          sorting.MinBins,
		"max_bins":          sorting.MaxBins,
		"default_bin_count": h.defaultBinCount,
	})
}

// GetLabels returns the suggested labels for ?criterion and ?bin_count
func (h *SortingHandler) GetLabels(c *gin.Context) {
	criterion, err := sorting.ParseCriterion(c.Query("criterion"))
	if err != nil {
		respondError(c, err)
		return
	}
	binCount := h.defaultBinCount
	if raw := c.Query("bin_count"); raw != "" {
		if binCount, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bin_count"})
			return
		}
	}

	labels, err := sorting.DefaultBinLabels(criterion, binCount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"criterion": criterion, "bin_count": binCount, "labels": labels})
}

func (h *SortingHandler) ListConfigs(c *gin.Context) {
	configs, err := h.store.ListConfigs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *SortingHandler) GetConfig(c *gin.Context) {
	cfg, err := h.lookupConfig(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *SortingHandler) CreateConfig(c *gin.Context) {
	var req models.CreateSortingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.store.CreateConfig(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *SortingHandler) DeleteConfig(c *gin.Context) {
	cfg, err := h.lookupConfig(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.DeleteConfig(c.Request.Context(), cfg.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetBin lists the cards assigned to one bin of a config. The label comes from
// the cards in the bin since later applies may cut bins differently than the run
// that created the config; the stored label only names an empty bin.
func (h *SortingHandler) GetBin(c *gin.Context) {
	bin, err := strconv.Atoi(c.Param("bin"))
	if err != nil || bin < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bin"})
		return
	}

	cfg, err := h.lookupConfig(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if bin >= cfg.BinCount {
		c.JSON(http.StatusNotFound, gin.H{"error": "bin out of range"})
		return
	}

	cards, err := h.store.BinContents(c.Request.Context(), cfg.ID, bin)
	if err != nil {
		respondError(c, err)
		return
	}
	catalog := make([]models.Card, 0, len(cards))
	for i := range cards {
		if cards[i].Card.ID != "" {
			catalog = append(catalog, cards[i].Card)
		}
	}
	label := sorting.LabelFor(sorting.Criterion(cfg.Criterion), cfg.Letters, catalog)
	if label == "" && bin < len(cfg.BinLabels) {
		label = cfg.BinLabels[bin]
	}
	c.JSON(http.StatusOK, gin.H{"config_id": cfg.ID, "bin": bin, "label": label, "cards": cards})
}
