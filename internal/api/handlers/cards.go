package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/services"
)

type CardHandler struct {
	catalog         *services.CatalogService
	scryfallService *services.ScryfallService
}

func NewCardHandler(catalog *services.CatalogService, scryfall *services.ScryfallService) *CardHandler {
	return &CardHandler{
		catalog:         catalog,
		scryfallService: scryfall,
	}
}

// SearchCards searches the local catalog, or Scryfall directly with source=scryfall
func (h *CardHandler) SearchCards(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))

	if c.Query("source") == "scryfall" {
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
			return
		}
		result, err := h.scryfallService.SearchCards(c.Request.Context(), query, 1)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	limit, offset := pagination(c)
	cards, total, err := h.catalog.Search(c.Request.Context(), query, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cards":       cards,
		"total_count": total,
		"has_more":    int64(offset+len(cards)) < total,
	})
}

func (h *CardHandler) GetCard(c *gin.Context) {
	card, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

type importRequest struct {
	ID       string `json:"id"`
	SetCode  string `json:"set_code"`
	Number   string `json:"collector_number"`
	Name     string `json:"name"`
	Query    string `json:"query"`
	MaxPages int    `json:"max_pages"`
}

// ImportCard adds cards to the catalog from Scryfall. Exactly one of id,
// set_code with collector_number, name or query selects what to import.
func (h *CardHandler) ImportCard(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	switch {
	case req.Query != "":
		imported, err := h.catalog.ImportSearch(ctx, req.Query, req.MaxPages)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"imported": imported})
		return
	case req.ID != "":
		card, err := h.catalog.ImportByID(ctx, req.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	case req.SetCode != "" && req.Number != "":
		card, err := h.catalog.ImportBySetAndNumber(ctx, req.SetCode, req.Number)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	case req.Name != "":
		card, err := h.catalog.ImportByName(ctx, req.Name, req.SetCode)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of id, set_code and collector_number, name or query is required"})
	}
}
