package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/gatherly/internal/helpers"
	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/joshua-takyi/gatherly/internal/services"
)

// requesterID extracts the authenticated user's id set by AuthMiddleware.
func requesterID(c *gin.Context) (string, bool) {
	claims, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
		return "", false
	}
	userClaims, ok := claims.(*helpers.CustomClaims)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse("invalid user claims"))
		return "", false
	}
	return userClaims.UserID(), true
}

func errStatus(err error) int {
	switch err {
	case models.ErrEventNotFound:
		return http.StatusNotFound
	case models.ErrForbidden:
		return http.StatusForbidden
	case models.ErrUnauthorized:
		return http.StatusUnauthorized
	case models.ErrBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func CreateEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requesterID(c)
		if !ok {
			return
		}

		var event models.Event
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		created, err := es.CreateEvent(c.Request.Context(), &event, userID)
		if err != nil {
			c.JSON(errStatus(err), models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Event created successfully"))
	}
}

func ListEvents(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := es.ListEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(events, len(events)))
	}
}

func SearchEvents(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("query parameter is required"))
			return
		}
		events, err := es.SearchEvents(c.Request.Context(), query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(events, len(events)))
	}
}

func ListUpcomingEvents(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := es.ListUpcomingEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(events, len(events)))
	}
}

func ListPastEvents(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := es.ListPastEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(events, len(events)))
	}
}

func GetEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := helpers.StringTrim(c.Param("id"))
		event, err := es.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			c.JSON(errStatus(err), models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, ""))
	}
}

func UpdateEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requesterID(c)
		if !ok {
			return
		}
		eventID := helpers.StringTrim(c.Param("id"))

		var update models.EventUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		updated, err := es.UpdateEvent(c.Request.Context(), eventID, &update, userID)
		if err != nil {
			c.JSON(errStatus(err), models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Event updated successfully"))
	}
}

func DeleteEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requesterID(c)
		if !ok {
			return
		}
		eventID := helpers.StringTrim(c.Param("id"))

		if err := es.DeleteEvent(c.Request.Context(), eventID, userID); err != nil {
			c.JSON(errStatus(err), models.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Event deleted successfully"))
	}
}
