package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
)

type PriceHandler struct {
	priceWorker  *services.PriceWorker
	priceTracker *services.PriceTracker
}

func NewPriceHandler(priceWorker *services.PriceWorker, priceTracker *services.PriceTracker) *PriceHandler {
	return &PriceHandler{
		priceWorker:  priceWorker,
		priceTracker: priceTracker,
	}
}

// GetPriceStatus returns the background worker status
func (h *PriceHandler) GetPriceStatus(c *gin.Context) {
	status := h.priceWorker.GetStatus()
	c.JSON(http.StatusOK, status)
}

// RefreshCardPrice refreshes a single card's price now. With ?queue=true it is
// queued for the worker's next batch instead.
func (h *PriceHandler) RefreshCardPrice(c *gin.Context) {
	cardID := c.Param("id")

	if c.Query("queue") == "true" {
		position := h.priceWorker.QueueRefresh(cardID)
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "position": position})
		return
	}

	force := c.Query("force") == "true"
	card, err := h.priceTracker.RefreshCard(c.Request.Context(), cardID, force)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"card": card,
	})
}

// GetCardPrices returns a card's price history for ?days (default 30, 0 for
// all) in ?currency
func (h *PriceHandler) GetCardPrices(c *gin.Context) {
	cardID := c.Param("id")
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
		return
	}
	currency := models.NormalizeCurrency(c.Query("currency"))

	history, err := h.priceTracker.History(c.Request.Context(), cardID, days, currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.PriceHistoryResponse{
		CardID:  cardID,
		Days:    days,
		History: history,
	})
}

// RefreshAll refreshes every owned card, skipping fresh prices unless ?force=true
func (h *PriceHandler) RefreshAll(c *gin.Context) {
	result, err := h.priceTracker.RefreshAll(c.Request.Context(), c.Query("force") == "true")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	h.priceTracker.UpdateCollectionMetrics(c.Request.Context())
	c.JSON(http.StatusOK, result)
}
