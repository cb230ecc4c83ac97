package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
)

type CollectionHandler struct {
	collections     *services.CollectionService
	snapshotService *services.SnapshotService
}

func NewCollectionHandler(collections *services.CollectionService, snapshot *services.SnapshotService) *CollectionHandler {
	return &CollectionHandler{
		collections:     collections,
		snapshotService: snapshot,
	}
}

func (h *CollectionHandler) ListCollections(c *gin.Context) {
	collections, err := h.collections.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collections)
}

func (h *CollectionHandler) CreateCollection(c *gin.Context) {
	var req models.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collection, err := h.collections.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collection)
}

func (h *CollectionHandler) GetCollection(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	collection, err := h.collections.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (h *CollectionHandler) DeleteCollection(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.collections.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats returns counts and value for one collection, or everything without
// ?collection_id
func (h *CollectionHandler) GetStats(c *gin.Context) {
	collectionID, ok := collectionQuery(c)
	if !ok {
		return
	}
	currency := models.NormalizeCurrency(c.Query("currency"))

	stats, err := h.collections.Stats(c.Request.Context(), collectionID, currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetValueHistory returns daily value snapshots for ?period=week|month|3month|year|all
func (h *CollectionHandler) GetValueHistory(c *gin.Context) {
	period := c.DefaultQuery("period", "month")

	snapshots, err := h.snapshotService.GetHistory(c.Request.Context(), period)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ValueHistoryResponse{
		Snapshots: snapshots,
		Period:    period,
	})
}

// TakeSnapshot records today's value immediately
func (h *CollectionHandler) TakeSnapshot(c *gin.Context) {
	snapshot, err := h.snapshotService.TakeSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
