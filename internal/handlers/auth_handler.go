package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/joshua-takyi/gatherly/internal/services"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func Register(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		res, err := u.Register(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			if err == models.ErrUserExists {
				c.JSON(http.StatusBadRequest, models.ErrorResponse("user already exists"))
				return
			}
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(res, "Registered successfully"))
	}
}

func Login(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		res, err := u.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if err == models.ErrInvalidCredentials {
				c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid credentials"))
				return
			}
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(res, "Logged in successfully"))
	}
}
