package handlers

import (
	"errors"
	"net/http"

	"washly/services/booking"
	"washly/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps the booking error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		verr *booking.ValidationError
		cerr *booking.ConflictError
		nerr *booking.NotFoundError
		terr *booking.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", verr.Error())
	case errors.As(err, &cerr):
		utils.JSONError(c, http.StatusConflict, "Requested time is no longer available", cerr.Error())
	case errors.As(err, &nerr):
		utils.JSONError(c, http.StatusNotFound, "Booking not found", nerr.Error())
	case errors.As(err, &terr):
		utils.JSONError(c, http.StatusConflict, "Booking cannot change state", terr.Error())
	default:
		getLogger(c).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal server error", "")
	}
}

func badInput(c *gin.Context, err error) {
	utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
}
