package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-sorter/backend/internal/services"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, sorting.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, sorting.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sorting.ErrStaleCandidateSet),
		errors.Is(err, services.ErrCollectionExists),
		errors.Is(err, services.ErrConfigExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrCardNotFound),
		errors.Is(err, services.ErrScanNotFound),
		errors.Is(err, services.ErrCollectionNotFound),
		errors.Is(err, services.ErrConfigNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal errors are logged.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Handler error on %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// collectionQuery reads an optional ?collection_id filter
func collectionQuery(c *gin.Context) (*uint, bool) {
	raw := c.Query("collection_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection_id"})
		return nil, false
	}
	v := uint(id)
	return &v, true
}

// pagination reads ?limit and ?offset with sane bounds
func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
