package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Platform is the advertising network a campaign runs on.
type Platform string

const (
	PlatformMeta      Platform = "META"
	PlatformGoogleAds Platform = "GOOGLE_ADS"
	PlatformLinkedIn  Platform = "LINKEDIN"
	PlatformTikTok    Platform = "TIKTOK"
)

var Platforms = []Platform{PlatformMeta, PlatformGoogleAds, PlatformLinkedIn, PlatformTikTok}

func (p Platform) Valid() bool {
	switch p {
	case PlatformMeta, PlatformGoogleAds, PlatformLinkedIn, PlatformTikTok:
		return true
	}
	return false
}

// ParsePlatform accepts the canonical value or a loose spelling ("google ads", "facebook").
func ParsePlatform(s string) (Platform, bool) {
	switch strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s))) {
	case "META", "FACEBOOK", "INSTAGRAM":
		return PlatformMeta, true
	case "GOOGLE_ADS", "GOOGLE", "GOOGLEADS":
		return PlatformGoogleAds, true
	case "LINKEDIN":
		return PlatformLinkedIn, true
	case "TIKTOK", "TIK_TOK":
		return PlatformTikTok, true
	}
	return "", false
}

type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// MasterCampaign groups the per-platform campaigns promoting one course.
type MasterCampaign struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	CourseID    uint   `gorm:"not null;index" json:"course_id"`

	// Relations
	Course    *Course    `json:"course,omitempty"`
	Campaigns []Campaign `gorm:"foreignKey:MasterCampaignID" json:"campaigns,omitempty"`
}

// Campaign is one advertising effort for one course on one platform.
type Campaign struct {
	gorm.Model
	Name             string         `gorm:"not null" json:"name"`
	Description      string         `json:"description"`
	CourseID         uint           `gorm:"not null;index" json:"course_id"`
	Platform         Platform       `gorm:"type:varchar(20);not null;index" json:"platform"`
	MasterCampaignID *uint          `gorm:"index" json:"master_campaign_id,omitempty"`
	Status           CampaignStatus `gorm:"type:varchar(20);default:'ACTIVE'" json:"status"`
	Budget           float64        `gorm:"type:decimal(12,2);default:0" json:"budget"`
	StartDate        *time.Time     `json:"start_date,omitempty"`
	EndDate          *time.Time     `json:"end_date,omitempty"`
	CreatedByID      *uint          `gorm:"index" json:"created_by_id,omitempty"`

	// Relations
	Course         *Course         `json:"course,omitempty"`
	MasterCampaign *MasterCampaign `json:"master_campaign,omitempty"`
	Spends         []CampaignSpend `gorm:"foreignKey:CampaignID" json:"spends,omitempty"`
	Leads          []Lead          `gorm:"foreignKey:CampaignID" json:"-"`
}

// CampaignSpend is an amount billed over [StartDate, EndDate]; a nil EndDate
// means the spend is still running.
type CampaignSpend struct {
	gorm.Model
	CampaignID uint       `gorm:"not null;index" json:"campaign_id"`
	StartDate  time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate    *time.Time `gorm:"index" json:"end_date,omitempty"`
	Amount     float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Notes      string     `json:"notes,omitempty"`

	Campaign *Campaign `json:"-"`
}
