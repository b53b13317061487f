package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"docsync-api/internal/database"
	"docsync-api/internal/middleware"
	"docsync-api/internal/models"
	"docsync-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const roomCodeAttempts = 5

// CreateDocumentRequest represents the request payload for registering a document
type CreateDocumentRequest struct {
	Title     string `json:"title" binding:"required"`
	URL       string `json:"url" binding:"required,url"`
	PageCount int    `json:"pageCount" binding:"min=0"`
}

/*
*
CreateDocument handles POST /api/documents
Registers document metadata for the caller and assigns it a room code.
*/
func CreateDocument(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	db := database.GetDB()
	code, err := uniqueRoomCode(db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate room code"})
		return
	}

	doc := models.Document{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		URL:       req.URL,
		PageCount: req.PageCount,
		RoomCode:  code,
		OwnerID:   id.UserID,
	}
	if err := db.Create(&doc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func uniqueRoomCode(db *gorm.DB) (string, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		code, err := realtime.NewRoomCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Unscoped().Model(&models.Document{}).Where("room_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", roomCodeAttempts)
}

/*
*
GetDocuments handles GET /api/documents
Returns documents page by page. Query params: page (default 1), limit
(default 10, max 100), sort (asc|desc on created_at), ownerId.
*/
func GetDocuments(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	sortParam := strings.ToLower(c.DefaultQuery("sort", "desc"))
	order := "created_at desc"
	if sortParam == "asc" {
		order = "created_at asc"
	}

	query := database.GetDB().Model(&models.Document{})
	if owner := c.Query("ownerId"); owner != "" {
		query = query.Where("owner_id = ?", owner)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count documents"})
		return
	}

	var docs []models.Document
	if err := query.Session(&gorm.Session{}).Order(order).Limit(limit).Offset((page - 1) * limit).Find(&docs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch documents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"count":     len(docs),
		"total":     total,
		"page":      page,
		"limit":     limit,
		"sort":      sortParam,
	})
}

// GetDocumentByID handles GET /api/documents/:id
func GetDocumentByID(c *gin.Context) {
	var doc models.Document
	err := database.GetDB().Where("id = ?", c.Param("id")).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/:id. Only the owner may delete.
func DeleteDocument(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return
	}

	db := database.GetDB()
	var doc models.Document
	err := db.Where("id = ?", c.Param("id")).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document"})
		return
	}
	if doc.OwnerID != id.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can delete this document"})
		return
	}
	if err := db.Delete(&doc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}
