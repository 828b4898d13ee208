package repository

import (
	"gorm.io/gorm"

	"funnelcrm/analytics"
	"funnelcrm/models"
)

// LeadFilter narrows lead queries. Range applies to the creation time.
type LeadFilter struct {
	Range        analytics.DateRange
	CourseID     *uint
	CampaignID   *uint
	AssignedToID *uint
	Platform     models.Platform
	Status       models.LeadStatus
	Search       string
}

// WithoutAssignee returns a copy of f that spans every commercial.
func (f LeadFilter) WithoutAssignee() LeadFilter {
	f.AssignedToID = nil
	return f
}

// Scope applies the filter to a query on the leads table.
func (f LeadFilter) Scope(db *gorm.DB) *gorm.DB {
	if f.Range.Start != nil {
		db = db.Where("leads.created_at >= ?", *f.Range.Start)
	}
	if f.Range.End != nil {
		db = db.Where("leads.created_at <= ?", *f.Range.End)
	}
	if f.CourseID != nil {
		db = db.Where("leads.course_id = ?", *f.CourseID)
	}
	if f.CampaignID != nil {
		db = db.Where("leads.campaign_id = ?", *f.CampaignID)
	}
	if f.AssignedToID != nil {
		db = db.Where("leads.assigned_to_id = ?", *f.AssignedToID)
	}
	if f.Status != "" {
		db = db.Where("leads.status = ?", f.Status)
	}
	if f.Platform != "" {
		db = db.Where("leads.campaign_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&models.Campaign{}).Select("id").Where("platform = ?", f.Platform))
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		db = db.Where("(leads.name ILIKE ? OR leads.email ILIKE ? OR leads.phone ILIKE ?)", like, like, like)
	}
	return db
}

// SpendFilter narrows spend queries. Records overlapping Range are returned
// whole; prorating is left to the analytics package.
type SpendFilter struct {
	Range      analytics.DateRange
	CourseID   *uint
	CampaignID *uint
	Platform   models.Platform
}

func (f SpendFilter) Scope(db *gorm.DB) *gorm.DB {
	if f.Range.End != nil {
		db = db.Where("campaign_spends.start_date <= ?", *f.Range.End)
	}
	if f.Range.Start != nil {
		db = db.Where("(campaign_spends.end_date IS NULL OR campaign_spends.end_date >= ?)", *f.Range.Start)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_spends.campaign_id = ?", *f.CampaignID)
	}
	if f.CourseID != nil || f.Platform != "" {
		campaigns := db.Session(&gorm.Session{NewDB: true}).Model(&models.Campaign{}).Select("id")
		if f.CourseID != nil {
			campaigns = campaigns.Where("course_id = ?", *f.CourseID)
		}
		if f.Platform != "" {
			campaigns = campaigns.Where("platform = ?", f.Platform)
		}
		db = db.Where("campaign_spends.campaign_id IN (?)", campaigns)
	}
	return db
}

// SpendFilterFor derives the spend side of a lead report. Status and
// assignee do not apply to spend.
func SpendFilterFor(f LeadFilter) SpendFilter {
	return SpendFilter{
		Range:      f.Range,
		CourseID:   f.CourseID,
		CampaignID: f.CampaignID,
		Platform:   f.Platform,
	}
}
