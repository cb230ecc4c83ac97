package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
)

type ScanHandler struct {
	scans *services.ScanService
}

func NewScanHandler(scans *services.ScanService) *ScanHandler {
	return &ScanHandler{scans: scans}
}

// CreateScan records one physical card from recognized scan text
func (h *ScanHandler) CreateScan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scanned, err := h.scans.Record(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, scanned)
}

func (h *ScanHandler) ListScans(c *gin.Context) {
	collectionID, ok := collectionQuery(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	scans, total, err := h.scans.List(c.Request.Context(), collectionID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scans":       scans,
		"total_count": total,
		"has_more":    int64(offset+len(scans)) < total,
	})
}

func (h *ScanHandler) GetScan(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	scanned, err := h.scans.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scanned)
}

func (h *ScanHandler) DeleteScan(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.scans.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
