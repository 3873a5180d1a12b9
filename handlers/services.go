package handlers

import (
	"net/http"
	"strings"

	"washly/models"
	"washly/services/booking"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the read-only endpoints: catalog, availability and quotes.
type CatalogHandler struct {
	Service booking.BookingService
}

func NewCatalogHandler(svc booking.BookingService) *CatalogHandler {
	return &CatalogHandler{Service: svc}
}

// ListServicesHandler handles GET /api/services.
func (h *CatalogHandler) ListServicesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.ListCatalog())
}

// AvailabilityHandler handles GET /api/availability?date=&serviceId=&addOns=a,b.
func (h *CatalogHandler) AvailabilityHandler(c *gin.Context) {
	q := models.AvailabilityQuery{
		Date:      c.Query("date"),
		ServiceID: c.Query("serviceId"),
		AddOnIDs:  splitList(c.QueryArray("addOns")),
	}
	resp, err := h.Service.GetAvailability(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// QuoteHandler handles POST /api/quote.
func (h *CatalogHandler) QuoteHandler(c *gin.Context) {
	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badInput(c, err)
		return
	}
	q, err := h.Service.Quote(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// splitList accepts both ?addOns=a,b and ?addOns=a&addOns=b.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
