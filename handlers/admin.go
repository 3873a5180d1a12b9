package handlers

import (
	"net/http"

	"washly/models"
	"washly/services/booking"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler encapsulates operator actions on bookings.
type AdminHandler struct {
	Service booking.BookingService
}

func NewAdminHandler(svc booking.BookingService) *AdminHandler {
	return &AdminHandler{Service: svc}
}

func (ah *AdminHandler) statusAction(c *gin.Context, action func(*gin.Context, string) (*models.Booking, error)) {
	b, err := action(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	getLogger(c).Info("Operator changed booking",
		zap.String("bookingID", b.ID),
		zap.String("status", string(b.Status)),
		zap.String("operator", c.GetString("adminSubject")))
	c.JSON(http.StatusOK, b)
}

// NoShowHandler handles POST /api/admin/bookings/:id/no-show.
func (ah *AdminHandler) NoShowHandler(c *gin.Context) {
	ah.statusAction(c, func(c *gin.Context, id string) (*models.Booking, error) {
		return ah.Service.MarkNoShow(c.Request.Context(), id)
	})
}

// CompleteHandler handles POST /api/admin/bookings/:id/complete.
func (ah *AdminHandler) CompleteHandler(c *gin.Context) {
	ah.statusAction(c, func(c *gin.Context, id string) (*models.Booking, error) {
		return ah.Service.MarkCompleted(c.Request.Context(), id)
	})
}

// RetryHandler handles POST /api/admin/bookings/:id/retry.
func (ah *AdminHandler) RetryHandler(c *gin.Context) {
	enqueued, err := ah.Service.RetrySideEffects(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookingId": c.Param("id"), "enqueued": enqueued})
}

// RunRemindersHandler handles POST /api/admin/reminders/run.
func (ah *AdminHandler) RunRemindersHandler(c *gin.Context) {
	n, err := ah.Service.SendDueReminders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enqueued": n})
}
