// Package api is the thin HTTP layer over the quote service.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"quote-api/internal/models"
	"quote-api/internal/service"
)

// Handler holds the route handlers.
type Handler struct {
	service *service.QuoteService
	logger  logrus.FieldLogger
}

// NewHandler creates the handler set.
func NewHandler(svc *service.QuoteService, logger logrus.FieldLogger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the routes on the engine.
func (h *Handler) Register(router *gin.Engine, promReg *prometheus.Registry) {
	router.GET("/health", h.Health)
	if promReg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/quotes", h.GetQuotes)
		v1.GET("/quotes/:symbol", h.GetQuote)
		v1.GET("/rates/:pair", h.GetExchangeRate)
		v1.POST("/prewarm", h.PreWarm)
		v1.POST("/invalidate", h.Invalidate)
	}
}

// quotesQuery binds the batch quote request.
type quotesQuery struct {
	DataType string `form:"dataType" binding:"required"`
	Symbols  string `form:"symbols" binding:"required"`
	Refresh  bool   `form:"refresh"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "quote-api"})
}

// GetQuotes handles GET /api/v1/quotes?dataType=US_STOCK&symbols=AAPL,MSFT.
func (h *Handler) GetQuotes(c *gin.Context) {
	var query quotesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dataType, err := models.ParseDataType(query.DataType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbols := splitSymbols(query.Symbols)
	if len(symbols) == 0 {
		c.JSON(http.StatusOK, gin.H{"quotes": gin.H{}, "count": 0})
		return
	}

	quotes, err := h.service.GetQuotes(c.Request.Context(), dataType, symbols, query.Refresh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes, "count": len(quotes)})
}

// GetQuote handles GET /api/v1/quotes/:symbol?dataType=JP_STOCK.
func (h *Handler) GetQuote(c *gin.Context) {
	dataType, err := models.ParseDataType(c.DefaultQuery("dataType", string(models.USStock)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	refresh := c.Query("refresh") == "true"

	quote, err := h.service.GetQuote(c.Request.Context(), dataType, c.Param("symbol"), refresh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GetExchangeRate handles GET /api/v1/rates/:pair, pair as "USD-JPY".
func (h *Handler) GetExchangeRate(c *gin.Context) {
	refresh := c.Query("refresh") == "true"
	quote, err := h.service.GetExchangeRate(c.Request.Context(), c.Param("pair"), "", refresh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// PreWarm handles POST /api/v1/prewarm.
func (h *Handler) PreWarm(c *gin.Context) {
	summary, err := h.service.PreWarm(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// invalidateRequest binds the invalidation body.
type invalidateRequest struct {
	DataType string   `json:"dataType" binding:"required"`
	Symbols  []string `json:"symbols" binding:"required,min=1"`
}

// Invalidate handles POST /api/v1/invalidate.
func (h *Handler) Invalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dataType, err := models.ParseDataType(req.DataType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, err := h.service.Invalidate(c.Request.Context(), dataType, req.Symbols)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
