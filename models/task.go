package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// Task is a reminder for a user, optionally about a lead.
type Task struct {
	gorm.Model
	Title        string       `gorm:"not null" json:"title"`
	Description  string       `gorm:"type:text" json:"description"`
	DueAt        time.Time    `gorm:"not null;index" json:"due_at"`
	Priority     TaskPriority `gorm:"type:varchar(10);default:'MEDIUM'" json:"priority"`
	Completed    bool         `gorm:"default:false;index" json:"completed"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	RemindedAt   *time.Time   `json:"reminded_at,omitempty"`
	AssignedToID uint         `gorm:"not null;index" json:"assigned_to_id"`
	LeadID       *uint        `gorm:"index" json:"lead_id,omitempty"`

	// Relations
	AssignedTo *User `gorm:"foreignKey:AssignedToID" json:"-"`
	Lead       *Lead `json:"lead,omitempty"`
}

// NotificationType classifies in-app alerts.
type NotificationType string

const (
	NotificationLeadAssigned  NotificationType = "LEAD_ASSIGNED"
	NotificationLeadEnrolled  NotificationType = "LEAD_ENROLLED"
	NotificationTaskDue       NotificationType = "TASK_DUE"
	NotificationImportApplied NotificationType = "IMPORT_APPLIED"
)

// Notification is an in-app alert for one user.
type Notification struct {
	gorm.Model
	UserID  uint             `gorm:"not null;index" json:"user_id"`
	Type    NotificationType `gorm:"type:varchar(30);not null" json:"type"`
	Title   string           `gorm:"not null" json:"title"`
	Message string           `gorm:"type:text" json:"message"`
	IsRead  bool             `gorm:"default:false;index" json:"is_read"`
	ReadAt  *time.Time       `json:"read_at,omitempty"`
	LeadID  *uint            `json:"lead_id,omitempty"`
}

// Goal is a monthly sales target for a commercial.
type Goal struct {
	gorm.Model
	UserID            uint    `gorm:"not null;uniqueIndex:idx_goal_user_month" json:"user_id"`
	Year              int     `gorm:"not null;uniqueIndex:idx_goal_user_month" json:"year"`
	Month             int     `gorm:"not null;uniqueIndex:idx_goal_user_month" json:"month"`
	TargetEnrollments int     `gorm:"default:0" json:"target_enrollments"`
	TargetRevenue     float64 `gorm:"type:decimal(12,2);default:0" json:"target_revenue"`
	TargetContacts    int     `gorm:"default:0" json:"target_contacts"`

	User *User `json:"user,omitempty"`
}

// Period returns the [first day, first day of next month) window of the goal.
func (g *Goal) Period(loc *time.Location) (time.Time, time.Time) {
	start := time.Date(g.Year, time.Month(g.Month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
