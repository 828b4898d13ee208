package models

import (
	"time"

	"gorm.io/gorm"
)

// Course is what a lead enrolls in; its price is the default revenue of an enrollment.
type Course struct {
	gorm.Model
	Name        string     `gorm:"not null;uniqueIndex" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Price       float64    `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`

	// Relations
	Campaigns []Campaign `gorm:"foreignKey:CourseID" json:"campaigns,omitempty"`
	Leads     []Lead     `gorm:"foreignKey:CourseID" json:"-"`
}
