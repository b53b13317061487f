package models

import (
	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Email       string `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"displayName" gorm:"column:display_name"`
	Password    string `json:"-" gorm:"not null"`
	gorm.Model
}

// TableName specifies the table name for User Model
func (User) TableName() string {
	return "users"
}
