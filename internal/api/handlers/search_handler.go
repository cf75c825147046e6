package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/echonote/internal/services"
)

type SearchHandler struct {
	search services.SearchService
}

func NewSearchHandler(search services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search runs a semantic query over the caller's indexed content.
// Query params: q (required), limit, min_similarity, types (repeatable),
// recency=1 to weight recent content more heavily.
func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	opts := services.QueryOptions{
		Limit:         intQuery(c, "limit", 0),
		MinSimilarity: floatQuery(c, "min_similarity", 0),
		ContentTypes:  c.QueryArray("types"),
		RecencyBias:   c.Query("recency") == "1",
	}

	results, err := h.search.Query(c.Request.Context(), userID, c.Query("q"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// RecommendTasks surfaces open tasks relevant to the query context.
func (h *SearchHandler) RecommendTasks(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	opts := services.RecommendOptions{
		Limit:            intQuery(c, "limit", 0),
		MinSimilarity:    floatQuery(c, "min_similarity", 0),
		IncludeCompleted: c.Query("include_completed") == "1",
	}

	recs, err := h.search.RecommendTasks(c.Request.Context(), userID, c.Query("q"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func intQuery(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

func floatQuery(c *gin.Context, key string, def float64) float64 {
	if v, err := strconv.ParseFloat(c.Query(key), 64); err == nil {
		return v
	}
	return def
}
