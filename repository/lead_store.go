// Package repository is the gorm-backed Lead Record Store used by the
// reports, the lead endpoints and the reconciliation job.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funnelcrm/analytics"
	"funnelcrm/models"
	"funnelcrm/reconcile"
)

var ErrNotFound = errors.New("record not found")

type LeadStore struct {
	db *gorm.DB
}

func NewLeadStore(db *gorm.DB) *LeadStore {
	return &LeadStore{db: db}
}

var leadFactColumns = []string{
	"leads.id", "leads.status", "leads.contacted", "leads.enrolled", "leads.revenue",
	"leads.course_id", "leads.campaign_id", "leads.assigned_to_id",
}

// FindLeads returns the analytics view of every lead matching f.
func (s *LeadStore) FindLeads(ctx context.Context, f LeadFilter) ([]analytics.LeadFact, error) {
	var leads []models.Lead
	err := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select(leadFactColumns).
		Scopes(f.Scope).
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("find leads: %w", err)
	}

	facts := make([]analytics.LeadFact, len(leads))
	for i := range leads {
		facts[i] = FactFromLead(&leads[i])
	}
	return facts, nil
}

func FactFromLead(l *models.Lead) analytics.LeadFact {
	return analytics.LeadFact{
		ID:           l.ID,
		Status:       l.Status,
		Contacted:    l.Contacted,
		Enrolled:     l.Enrolled,
		Revenue:      l.Revenue,
		CourseID:     l.CourseID,
		CampaignID:   l.CampaignID,
		AssignedToID: l.AssignedToID,
	}
}

// FindSpendRecords returns spend records overlapping f.Range.
func (s *LeadStore) FindSpendRecords(ctx context.Context, f SpendFilter) ([]analytics.SpendRecord, error) {
	var spends []models.CampaignSpend
	err := s.db.WithContext(ctx).
		Model(&models.CampaignSpend{}).
		Select("campaign_spends.campaign_id", "campaign_spends.start_date", "campaign_spends.end_date", "campaign_spends.amount").
		Scopes(f.Scope).
		Find(&spends).Error
	if err != nil {
		return nil, fmt.Errorf("find spend records: %w", err)
	}

	records := make([]analytics.SpendRecord, len(spends))
	for i, sp := range spends {
		records[i] = analytics.SpendRecord{
			CampaignID: sp.CampaignID,
			StartDate:  sp.StartDate,
			EndDate:    sp.EndDate,
			Amount:     sp.Amount,
		}
	}
	return records, nil
}

// CampaignIndex maps every campaign, deleted ones included, to its course and platform.
func (s *LeadStore) CampaignIndex(ctx context.Context) (analytics.CampaignIndex, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).Unscoped().
		Select("id", "name", "course_id", "platform").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}

	index := make(analytics.CampaignIndex, len(campaigns))
	for _, c := range campaigns {
		index[c.ID] = analytics.CampaignInfo{ID: c.ID, Name: c.Name, CourseID: c.CourseID, Platform: c.Platform}
	}
	return index, nil
}

// StatusChange is the outcome of UpdateLeadStatus.
type StatusChange struct {
	Lead     *models.Lead
	Previous models.LeadStatus
}

// UpdateLeadStatus moves a lead to status at the given time. Revenue on
// enrollment defaults to the course's current price. Concurrent writers are
// not serialized; the last write wins.
func (s *LeadStore) UpdateLeadStatus(ctx context.Context, id uint, status models.LeadStatus, at time.Time) (StatusChange, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).Preload("Course").First(&lead, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StatusChange{}, fmt.Errorf("lead %d: %w", id, ErrNotFound)
		}
		return StatusChange{}, fmt.Errorf("load lead %d: %w", id, err)
	}

	change := StatusChange{Lead: &lead, Previous: lead.Status}
	price := 0.0
	if lead.Course != nil {
		price = lead.Course.Price
	}
	if err := lead.ApplyStatus(status, at, price); err != nil {
		return StatusChange{}, err
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(&lead).Error; err != nil {
		return StatusChange{}, fmt.Errorf("save lead %d: %w", id, err)
	}
	return change, nil
}

// ReferenceData loads the lookup tables the import converter matches against.
func (s *LeadStore) ReferenceData(ctx context.Context) ([]reconcile.CourseRef, []reconcile.UserRef, []reconcile.CampaignRef, error) {
	db := s.db.WithContext(ctx)

	var courses []models.Course
	if err := db.Select("id", "name", "price").Find(&courses).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load courses: %w", err)
	}
	var users []models.User
	if err := db.Select("id", "name", "email").
		Where("role = ? AND is_active = ?", models.RoleCommercial, true).
		Find(&users).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load commercials: %w", err)
	}
	var campaigns []models.Campaign
	if err := db.Select("id", "name", "course_id").Find(&campaigns).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load campaigns: %w", err)
	}

	courseRefs := make([]reconcile.CourseRef, len(courses))
	for i, c := range courses {
		courseRefs[i] = reconcile.CourseRef{ID: c.ID, Name: c.Name, Price: c.Price}
	}
	userRefs := make([]reconcile.UserRef, len(users))
	for i, u := range users {
		userRefs[i] = reconcile.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	campaignRefs := make([]reconcile.CampaignRef, len(campaigns))
	for i, c := range campaigns {
		campaignRefs[i] = reconcile.CampaignRef{ID: c.ID, Name: c.Name, CourseID: c.CourseID}
	}
	return courseRefs, userRefs, campaignRefs, nil
}

// ExistingLeads returns the stored leads of the given courses.
func (s *LeadStore) ExistingLeads(ctx context.Context, courseIDs []uint) ([]reconcile.ExistingLead, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	var leads []models.Lead
	err := s.db.WithContext(ctx).
		Where("course_id IN ?", courseIDs).
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("load existing leads: %w", err)
	}

	out := make([]reconcile.ExistingLead, 0, len(leads))
	for _, l := range leads {
		if l.CourseID == nil {
			continue
		}
		out = append(out, reconcile.ExistingLead{
			ID:             l.ID,
			Name:           l.Name,
			NormalizedName: l.NormalizedName,
			Email:          l.Email,
			Phone:          l.Phone,
			CourseID:       *l.CourseID,
			CampaignID:     l.CampaignID,
			AssignedToID:   l.AssignedToID,
			Status:         l.Status,
			EnrolledAt:     l.EnrolledAt,
			Revenue:        l.Revenue,
		})
	}
	return out, nil
}

// UpsertLead writes one reconciliation item. Without a LeadID the lead is
// looked up by folded name and course and created when missing, so applying
// the same item twice leaves a single lead.
func (s *LeadStore) UpsertLead(ctx context.Context, item reconcile.PlanItem, appliedBy *uint, at time.Time) (bool, error) {
	c := item.Candidate
	courseID := c.CourseID
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lead models.Lead
		if item.LeadID != nil {
			if err := tx.First(&lead, *item.LeadID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("lead %d: %w", *item.LeadID, ErrNotFound)
				}
				return err
			}
		} else {
			err := tx.Where("normalized_name = ? AND course_id = ?", c.NormalizedName, courseID).
				Attrs(models.Lead{Name: c.Name, CourseID: &courseID, CreatedByID: appliedBy, Status: models.StatusNew}).
				FirstOrInit(&lead).Error
			if err != nil {
				return err
			}
		}
		created = lead.ID == 0

		if c.Email != "" {
			lead.Email = c.Email
		}
		if c.Phone != "" {
			lead.Phone = c.Phone
		}
		if c.Notes != "" && lead.Notes == "" {
			lead.Notes = c.Notes
		}
		if c.AssignedToID != nil {
			lead.AssignedToID = c.AssignedToID
		}
		if c.CampaignID != nil {
			lead.CampaignID = c.CampaignID
		}

		status := lead.Status
		switch {
		case created:
			status = c.EffectiveStatus()
		case c.Status != "":
			status = c.Status
		}

		statusAt := at
		if status == models.StatusEnrolled {
			if c.Revenue != nil {
				lead.Revenue = *c.Revenue
			}
			if c.EnrolledAt != nil {
				statusAt = *c.EnrolledAt
			}
		}

		var course models.Course
		if err := tx.Select("id", "price").First(&course, courseID).Error; err != nil {
			return fmt.Errorf("course %d: %w", courseID, err)
		}
		if err := lead.ApplyStatus(status, statusAt, course.Price); err != nil {
			return err
		}
		if status == models.StatusEnrolled && c.EnrolledAt != nil {
			lead.EnrolledAt = c.EnrolledAt
		}

		return tx.Omit(clause.Associations).Save(&lead).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
