package models

import (
	"time"
)

// User mirrors the profile rows owned by the identity provider. The chat core
// only reads them to validate member ids and to label direct threads.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    uint   `gorm:"not null;index" json:"tenant_id"`
	DisplayName string `gorm:"size:120;not null" json:"display_name"`
	Email       string `gorm:"size:255" json:"email"`
	Avatar      string `json:"avatar"`
	Department  string `gorm:"size:60" json:"department"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
}

type UserResponse struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Department  string `json:"department"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Department:  u.Department,
	}
}
