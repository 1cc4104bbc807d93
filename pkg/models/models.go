package models

import (
	"strings"
	"time"
)

// User is the end customer owning ledger rows
type User struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:254" validate:"required,email,max=254"`
	FirstName string    `json:"first_name" gorm:"size:64"`
	LastName  string    `json:"last_name" gorm:"size:64"`
	Country   string    `json:"country" gorm:"size:2"`
	KYCStatus string    `json:"kyc_status" gorm:"size:16" validate:"omitempty,oneof=pending approved rejected"`
	IsBlocked bool      `json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Operator is a console user who may receive moderation notifications
type Operator struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Email       string    `json:"email" gorm:"uniqueIndex;size:254"`
	Name        string    `json:"name" gorm:"size:128"`
	Permissions string    `json:"permissions" gorm:"type:text"` // comma separated
	Active      bool      `json:"active" gorm:"default:true;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (o Operator) HasPermission(perm string) bool {
	for _, p := range strings.Split(o.Permissions, ",") {
		if strings.TrimSpace(p) == perm {
			return true
		}
	}
	return false
}

// Actor is the authenticated operator performing a request
type Actor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (a Actor) Can(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}
