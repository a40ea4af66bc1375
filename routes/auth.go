package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"garantia-push/utils"
)

// DevToken mints a bearer token for a user ID. Development harness only: the
// push server has no user store, the real application issues its own session
// tokens.
func DevToken(c *gin.Context) {
	var request struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := utils.GenerateToken(request.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
	})
}
