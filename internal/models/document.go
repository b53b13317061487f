package models

import (
	"gorm.io/gorm"
)

// Document is the metadata of a shared document. The bytes live with the
// storage provider behind URL; viewers collaborate on it in RoomCode.
type Document struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Title     string `json:"title" gorm:"not null"`
	URL       string `json:"url" gorm:"not null"`
	PageCount int    `json:"pageCount" gorm:"column:page_count;default:0"`
	RoomCode  string `json:"roomCode" gorm:"column:room_code;uniqueIndex;not null"`
	OwnerID   string `json:"ownerId" gorm:"column:owner_id;index"`
	gorm.Model
}

// TableName specifies the table name for Document Model
func (Document) TableName() string {
	return "documents"
}
