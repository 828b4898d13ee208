package models

import (
	"time"

	"gorm.io/gorm"
)

// Role controls both routing and which data a user may see.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleCommercial Role = "COMMERCIAL"
	RoleMarketing  Role = "MARKETING"
)

var Roles = []Role{RoleAdmin, RoleCommercial, RoleMarketing}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCommercial, RoleMarketing:
		return true
	}
	return false
}

// User represents a CRM account
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:0" json:"-"`

	// Google sign-in, only linked to an existing account
	GoogleID *string `gorm:"uniqueIndex" json:"google_id,omitempty"`

	// Profile information
	Name  string `gorm:"not null" json:"name"`
	Phone string `json:"phone,omitempty"`

	// Account status
	Role        Role       `gorm:"type:varchar(20);not null;default:'COMMERCIAL';index" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Relations
	AssignedLeads []Lead `gorm:"foreignKey:AssignedToID" json:"-"`
	Tasks         []Task `gorm:"foreignKey:AssignedToID" json:"-"`
	Goals         []Goal `gorm:"foreignKey:UserID" json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsCommercial() bool {
	return u.Role == RoleCommercial
}

func (u *User) IsMarketing() bool {
	return u.Role == RoleMarketing
}

// SeedAdmin creates the bootstrap administrator when no account with that
// email exists yet.
func SeedAdmin(db *gorm.DB, email, name, passwordHash string) error {
	admin := User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	return db.Where("email = ?", email).FirstOrCreate(&admin).Error
}
