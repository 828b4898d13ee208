package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"funnelcrm/normalize"
)

// LeadStatus is the current funnel stage of a lead.
type LeadStatus string

const (
	StatusNew         LeadStatus = "NUOVO"
	StatusContacted   LeadStatus = "CONTATTATO"
	StatusNegotiating LeadStatus = "IN_TRATTATIVA"
	StatusEnrolled    LeadStatus = "ISCRITTO"
	StatusLost        LeadStatus = "PERSO"
)

// LeadStatuses lists the stages in canonical funnel order.
var LeadStatuses = []LeadStatus{StatusNew, StatusContacted, StatusNegotiating, StatusEnrolled, StatusLost}

func (s LeadStatus) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusNegotiating, StatusEnrolled, StatusLost:
		return true
	}
	return false
}

// ParseLeadStatus accepts the stored value, its Italian label or the English stage name.
func ParseLeadStatus(s string) (LeadStatus, error) {
	switch normalize.Name(s) {
	case "nuovo", "new":
		return StatusNew, nil
	case "contattato", "contacted":
		return StatusContacted, nil
	case "in trattativa", "trattativa", "negotiating", "in negotiation":
		return StatusNegotiating, nil
	case "iscritto", "enrolled":
		return StatusEnrolled, nil
	case "perso", "lost":
		return StatusLost, nil
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// Lead represents one prospective student
type Lead struct {
	gorm.Model

	// Identity
	Name           string `gorm:"not null" json:"name"`
	NormalizedName string `gorm:"not null;index" json:"-"`
	Email          string `gorm:"index" json:"email"`
	Phone          string `json:"phone"`

	// Lifecycle
	Status     LeadStatus `gorm:"type:varchar(20);not null;default:'NUOVO';index" json:"status"`
	Contacted  bool       `gorm:"default:false" json:"contacted"`
	Enrolled   bool       `gorm:"default:false;index" json:"enrolled"`
	IsTarget   bool       `gorm:"default:false" json:"is_target"`
	LostReason string     `json:"lost_reason,omitempty"`
	Notes      string     `gorm:"type:text" json:"notes,omitempty"`

	// Money, revenue is only meaningful while enrolled
	Revenue         float64 `gorm:"type:decimal(12,2);default:0" json:"revenue"`
	AcquisitionCost float64 `gorm:"type:decimal(12,2);default:0" json:"acquisition_cost"`

	// Transition timestamps
	ContactedAt    *time.Time `json:"contacted_at,omitempty"`
	EnrolledAt     *time.Time `gorm:"index" json:"enrolled_at,omitempty"`
	LostAt         *time.Time `json:"lost_at,omitempty"`
	FirstAttemptAt *time.Time `json:"first_attempt_at,omitempty"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	CallAttempts   int        `gorm:"default:0" json:"call_attempts"`

	// Foreign keys
	CourseID     *uint `gorm:"index" json:"course_id,omitempty"`
	CampaignID   *uint `gorm:"index" json:"campaign_id,omitempty"`
	AssignedToID *uint `gorm:"index" json:"assigned_to_id,omitempty"`
	CreatedByID  *uint `gorm:"index" json:"created_by_id,omitempty"`

	// Relations
	Course     *Course   `json:"course,omitempty"`
	Campaign   *Campaign `json:"campaign,omitempty"`
	AssignedTo *User     `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	CreatedBy  *User     `gorm:"foreignKey:CreatedByID" json:"-"`
}

// BeforeSave keeps the match key in sync with the display name.
func (l *Lead) BeforeSave(tx *gorm.DB) error {
	l.NormalizedName = normalize.Name(l.Name)
	return nil
}

// ApplyStatus moves the lead to status at the given time, keeping the boolean
// flags, timestamps and revenue consistent with the new stage. coursePrice is
// used as revenue when the lead enrolls without an explicit amount.
func (l *Lead) ApplyStatus(status LeadStatus, at time.Time, coursePrice float64) error {
	if !status.Valid() {
		return fmt.Errorf("unknown lead status %q", status)
	}

	switch status {
	case StatusNew:
		l.Contacted = false
		l.ContactedAt = nil
		l.clearEnrollment()
		l.LostAt = nil
		l.LostReason = ""

	case StatusContacted, StatusNegotiating:
		l.markContacted(at)
		l.clearEnrollment()
		l.LostAt = nil
		l.LostReason = ""

	case StatusEnrolled:
		l.markContacted(at)
		if !l.Enrolled || l.EnrolledAt == nil {
			l.EnrolledAt = timePtr(at)
		}
		l.Enrolled = true
		if l.Revenue <= 0 {
			l.Revenue = coursePrice
		}
		l.LostAt = nil
		l.LostReason = ""

	case StatusLost:
		l.clearEnrollment()
		if l.Status != StatusLost || l.LostAt == nil {
			l.LostAt = timePtr(at)
		}
	}

	l.Status = status
	return nil
}

// RecordAttempt registers a contact attempt (a call, a message) at the given time.
func (l *Lead) RecordAttempt(at time.Time) {
	l.CallAttempts++
	if l.FirstAttemptAt == nil {
		l.FirstAttemptAt = timePtr(at)
	}
	l.LastAttemptAt = timePtr(at)
}

// Consistent reports whether flags and revenue agree with the status.
func (l *Lead) Consistent() bool {
	if l.Enrolled != (l.Status == StatusEnrolled) {
		return false
	}
	if !l.Enrolled && l.Revenue != 0 {
		return false
	}
	return true
}

func (l *Lead) markContacted(at time.Time) {
	l.Contacted = true
	if l.ContactedAt == nil {
		l.ContactedAt = timePtr(at)
	}
}

func (l *Lead) clearEnrollment() {
	l.Enrolled = false
	l.EnrolledAt = nil
	l.Revenue = 0
}

func timePtr(t time.Time) *time.Time {
	return &t
}
