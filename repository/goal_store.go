package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gorm.io/gorm"

	"funnelcrm/analytics"
	"funnelcrm/models"
)

// GoalProgress is a goal with what its user achieved inside the goal month.
type GoalProgress struct {
	Goal               models.Goal `json:"goal"`
	Enrollments        int64       `json:"enrollments"`
	Revenue            float64     `json:"revenue"`
	Contacts           int64       `json:"contacts"`
	EnrollmentProgress float64     `json:"enrollment_progress"`
	RevenueProgress    float64     `json:"revenue_progress"`
	ContactProgress    float64     `json:"contact_progress"`
}

// Progress counts enrollments, revenue and first contacts of the goal's user
// whose timestamps fall in the goal month (in loc).
func (s *LeadStore) Progress(ctx context.Context, goal models.Goal, loc *time.Location) (GoalProgress, error) {
	start, end := goal.Period(loc)
	db := s.db.WithContext(ctx).Model(&models.Lead{}).Where("assigned_to_id = ?", goal.UserID)

	p := GoalProgress{Goal: goal}

	var enrolled struct {
		Count   int64
		Revenue float64
	}
	err := db.Session(&gorm.Session{}).
		Select("COUNT(*) AS count, COALESCE(SUM(revenue), 0) AS revenue").
		Where("enrolled = ? AND enrolled_at >= ? AND enrolled_at < ?", true, start, end).
		Scan(&enrolled).Error
	if err != nil {
		return GoalProgress{}, fmt.Errorf("goal %d enrollments: %w", goal.ID, err)
	}
	p.Enrollments = enrolled.Count
	p.Revenue = enrolled.Revenue

	err = db.Session(&gorm.Session{}).
		Where("contacted_at >= ? AND contacted_at < ?", start, end).
		Count(&p.Contacts).Error
	if err != nil {
		return GoalProgress{}, fmt.Errorf("goal %d contacts: %w", goal.ID, err)
	}

	p.EnrollmentProgress = progressPct(float64(p.Enrollments), float64(goal.TargetEnrollments))
	p.RevenueProgress = progressPct(p.Revenue, goal.TargetRevenue)
	p.ContactProgress = progressPct(float64(p.Contacts), float64(goal.TargetContacts))
	return p, nil
}

// CurrentGoal returns the progress on userID's goal for the month containing
// at, or nil when no goal is set.
func (s *LeadStore) CurrentGoal(ctx context.Context, userID uint, at time.Time, loc *time.Location) (*GoalProgress, error) {
	at = at.In(loc)
	var goal models.Goal
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND year = ? AND month = ?", userID, at.Year(), int(at.Month())).
		First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}
	p, err := s.Progress(ctx, goal, loc)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DimensionLabels maps profitability keys to display names.
func (s *LeadStore) DimensionLabels(ctx context.Context, dim analytics.Dimension) (map[string]string, error) {
	type row struct {
		ID   uint
		Name string
	}
	var rows []row
	db := s.db.WithContext(ctx)

	var err error
	switch dim {
	case analytics.DimensionCommercial:
		err = db.Unscoped().Model(&models.User{}).Select("id", "name").Scan(&rows).Error
	case analytics.DimensionCourse:
		err = db.Unscoped().Model(&models.Course{}).Select("id", "name").Scan(&rows).Error
	case analytics.DimensionCampaign:
		err = db.Unscoped().Model(&models.Campaign{}).Select("id", "name").Scan(&rows).Error
	case analytics.DimensionPlatform:
		labels := make(map[string]string, len(models.Platforms))
		for _, p := range models.Platforms {
			labels[string(p)] = string(p)
		}
		return labels, nil
	default:
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s labels: %w", dim, err)
	}

	labels := make(map[string]string, len(rows))
	for _, r := range rows {
		labels[strconv.FormatUint(uint64(r.ID), 10)] = r.Name
	}
	return labels, nil
}

func progressPct(done, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Round(done/target*10000) / 100
}
