package handlers

import (
	"errors"
	"net/http"

	"docsync-api/internal/auth"
	"docsync-api/internal/database"
	"docsync-api/internal/middleware"
	"docsync-api/internal/models"
	"docsync-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

// Login handles POST /api/login. The first login with an email registers
// the account; later logins must present the same password.
func Login(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request. Email and a password of at least 6 characters are required.",
			})
			return
		}

		db := database.GetDB()
		var user models.User
		err := db.Where("email = ?", req.Email).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hash, hashErr := auth.HashPassword(req.Password)
			if hashErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
				return
			}
			user = models.User{
				ID:          uuid.NewString(),
				Email:       req.Email,
				DisplayName: req.DisplayName,
				Password:    hash,
			}
			if err := db.Create(&user).Error; err != nil {
				// a concurrent first login may have registered the email already
				var existing models.User
				if db.Where("email = ?", req.Email).First(&existing).Error != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
					return
				}
				if !auth.CheckPassword(existing.Password, req.Password) {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
					return
				}
				user = existing
			}
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		default:
			if !auth.CheckPassword(user.Password, req.Password) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
				return
			}
		}

		identity := realtime.Identity{UserID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
		token, err := tokens.GenerateToken(identity)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:   token,
			User:    UserResponse{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName},
			Message: "Login successful",
		})
	}
}

// Me handles GET /api/me and returns the verified identity of the caller.
func Me(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authorized"})
		return
	}
	c.JSON(http.StatusOK, UserResponse{ID: id.UserID, Email: id.Email, DisplayName: id.Name()})
}
