package controller

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funnelcrm/events"
	"funnelcrm/middleware"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

// LeadStatusStore performs status transitions.
type LeadStatusStore interface {
	UpdateLeadStatus(ctx context.Context, id uint, status models.LeadStatus, at time.Time) (repository.StatusChange, error)
}

type LeadController struct {
	DB       *gorm.DB
	Store    LeadStatusStore
	Events   events.Publisher
	Location *time.Location
	Logger   *logrus.Entry
	now      func() time.Time
}

func NewLeadController(db *gorm.DB, store LeadStatusStore, publisher events.Publisher, loc *time.Location, logger *logrus.Entry) *LeadController {
	return &LeadController{
		DB:       db,
		Store:    store,
		Events:   publisher,
		Location: loc,
		Logger:   logger,
		now:      time.Now,
	}
}

type CreateLeadRequest struct {
	Name         string            `json:"name" validate:"required,max=200"`
	Email        string            `json:"email" validate:"omitempty,email"`
	Phone        string            `json:"phone" validate:"omitempty,max=30"`
	CourseID     *uint             `json:"course_id"`
	CampaignID   *uint             `json:"campaign_id"`
	AssignedToID *uint             `json:"assigned_to_id"`
	Status       models.LeadStatus `json:"status" validate:"omitempty,lead_status"`
	Revenue      float64           `json:"revenue" validate:"min=0"`
	IsTarget     bool              `json:"is_target"`
	Notes        string            `json:"notes"`
}

type UpdateLeadRequest struct {
	Name            *string  `json:"name" validate:"omitempty,max=200"`
	Email           *string  `json:"email" validate:"omitempty,email"`
	Phone           *string  `json:"phone" validate:"omitempty,max=30"`
	CourseID        *uint    `json:"course_id"`
	CampaignID      *uint    `json:"campaign_id"`
	IsTarget        *bool    `json:"is_target"`
	Notes           *string  `json:"notes"`
	LostReason      *string  `json:"lost_reason" validate:"omitempty,max=500"`
	Revenue         *float64 `json:"revenue" validate:"omitempty,min=0"`
	AcquisitionCost *float64 `json:"acquisition_cost" validate:"omitempty,min=0"`
}

type StatusRequest struct {
	Status models.LeadStatus `json:"status" validate:"required,lead_status"`
}

type AssignRequest struct {
	AssignedToID *uint `json:"assigned_to_id"`
}

// GetLeads returns a page of leads; commercials only see their own
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	user := currentUser(c)
	f, err := leadFilterFromQuery(c, user, lc.Location)
	if err != nil {
		return fail(c, lc.Logger, err, "Invalid filter")
	}
	page, limit, offset := utils.Pagination(c)

	query := lc.DB.Model(&models.Lead{}).Scopes(f.Scope)
	if c.Query("unassigned") == "true" && !user.IsCommercial() {
		query = query.Where("leads.assigned_to_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, lc.Logger, err, "Failed to count leads")
	}

	var leads []models.Lead
	err = query.
		Preload("Course").
		Preload("Campaign").
		Preload("AssignedTo", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "email", "role") }).
		Order(leadOrder(c.Query("sort"))).
		Offset(offset).
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to fetch leads")
	}

	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{Data: leads, Total: total, Page: page, Limit: limit}))
}

func leadOrder(sort string) string {
	switch sort {
	case "name":
		return "leads.name ASC"
	case "updated":
		return "leads.updated_at DESC"
	case "last_attempt":
		return "leads.last_attempt_at DESC NULLS LAST"
	}
	return "leads.created_at DESC"
}

// findLead loads a lead the caller may see.
func (lc *LeadController) findLead(c *fiber.Ctx, id uint, preload bool) (*models.Lead, error) {
	user := currentUser(c)
	query := lc.DB.WithContext(c.UserContext())
	if preload {
		query = query.Preload("Course").Preload("Campaign").
			Preload("AssignedTo", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "email", "role") })
	}
	if user.IsCommercial() {
		query = query.Where("assigned_to_id = ?", user.ID)
	}

	var lead models.Lead
	if err := query.First(&lead, id).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, lc.Logger, err, "")
	}
	lead, err := lc.findLead(c, id, true)
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to fetch lead")
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// CreateLead creates a lead. A commercial's new lead is assigned to them.
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	user := currentUser(c)

	var input CreateLeadRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if user.IsCommercial() {
		input.AssignedToID = &user.ID
	}

	lead := models.Lead{
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        strings.TrimSpace(input.Phone),
		CourseID:     input.CourseID,
		CampaignID:   input.CampaignID,
		AssignedToID: input.AssignedToID,
		CreatedByID:  &user.ID,
		IsTarget:     input.IsTarget,
		Notes:        input.Notes,
		Revenue:      input.Revenue,
		Status:       models.StatusNew,
	}

	course, err := lc.resolveCourse(&lead)
	if err != nil {
		return fail(c, lc.Logger, err, "Database error")
	}
	if lead.AssignedToID != nil && !user.IsCommercial() {
		if err := lc.requireCommercial(*lead.AssignedToID); err != nil {
			return fail(c, lc.Logger, err, "Database error")
		}
	}

	status := input.Status
	if status == "" {
		status = models.StatusNew
	}
	if err := lead.ApplyStatus(status, lc.now(), course.Price); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status", err)
	}

	if err := lc.DB.Omit(clause.Associations).Create(&lead).Error; err != nil {
		return fail(c, lc.Logger, err, "Failed to create lead")
	}

	if lead.AssignedToID != nil && *lead.AssignedToID != user.ID {
		lc.publish(c.UserContext(), lc.assignedEvent(&lead, user.ID))
	}
	if status != models.StatusNew {
		middleware.RecordLeadTransition(string(models.StatusNew), string(status))
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// resolveCourse fills the course from the campaign when missing and checks
// that both agree. It returns the lead's course (zero when none).
func (lc *LeadController) resolveCourse(lead *models.Lead) (models.Course, error) {
	var course models.Course
	if lead.CampaignID != nil {
		var campaign models.Campaign
		if err := lc.DB.Select("id", "course_id").First(&campaign, *lead.CampaignID).Error; err != nil {
			if isNotFound(err) {
				return course, fiber.NewError(fiber.StatusBadRequest, "Campaign not found")
			}
			return course, err
		}
		if lead.CourseID == nil {
			lead.CourseID = &campaign.CourseID
		} else if *lead.CourseID != campaign.CourseID {
			return course, fiber.NewError(fiber.StatusBadRequest, "Campaign belongs to another course")
		}
	}
	if lead.CourseID == nil {
		return course, nil
	}
	if err := lc.DB.Select("id", "price").First(&course, *lead.CourseID).Error; err != nil {
		if isNotFound(err) {
			return course, fiber.NewError(fiber.StatusBadRequest, "Course not found")
		}
		return course, err
	}
	return course, nil
}

func (lc *LeadController) requireCommercial(userID uint) error {
	var count int64
	err := lc.DB.Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ?", userID, models.RoleCommercial, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Assignee must be an active commercial")
	}
	return nil
}

// UpdateLead edits contact and attribution fields. Status changes go through
// UpdateStatus and assignment through AssignLead.
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, lc.Logger, err, "")
	}

	var input UpdateLeadRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	lead, err := lc.findLead(c, id, false)
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to fetch lead")
	}

	if input.Name != nil {
		lead.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		lead.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		lead.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.CourseID != nil {
		lead.CourseID = input.CourseID
	}
	if input.CampaignID != nil {
		lead.CampaignID = input.CampaignID
	}
	if input.IsTarget != nil {
		lead.IsTarget = *input.IsTarget
	}
	if input.Notes != nil {
		lead.Notes = *input.Notes
	}
	if input.LostReason != nil {
		if lead.Status != models.StatusLost {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "lost_reason requires status PERSO", nil)
		}
		lead.LostReason = *input.LostReason
	}
	if input.Revenue != nil {
		if !lead.Enrolled {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "revenue can only be set on enrolled leads", nil)
		}
		lead.Revenue = *input.Revenue
	}
	if input.AcquisitionCost != nil {
		lead.AcquisitionCost = *input.AcquisitionCost
	}
	if input.CourseID != nil || input.CampaignID != nil {
		if _, err := lc.resolveCourse(lead); err != nil {
			return fail(c, lc.Logger, err, "Database error")
		}
	}

	if err := lc.DB.Omit(clause.Associations).Save(lead).Error; err != nil {
		return fail(c, lc.Logger, err, "Failed to update lead")
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// UpdateStatus moves a lead through the funnel
func (lc *LeadController) UpdateStatus(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, lc.Logger, err, "")
	}

	var input StatusRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if parsed, err := models.ParseLeadStatus(string(input.Status)); err == nil {
		input.Status = parsed
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if user.IsCommercial() {
		if _, err := lc.findLead(c, id, false); err != nil {
			return fail(c, lc.Logger, err, "Failed to fetch lead")
		}
	}

	change, err := lc.Store.UpdateLeadStatus(c.UserContext(), id, input.Status, lc.now())
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to update status")
	}

	if change.Previous != change.Lead.Status {
		middleware.RecordLeadTransition(string(change.Previous), string(change.Lead.Status))
		e := events.New(events.LeadStatusChanged)
		e.ActorID = &user.ID
		e.LeadID = &change.Lead.ID
		e.LeadName = change.Lead.Name
		e.UserID = change.Lead.AssignedToID
		e.From = change.Previous
		e.To = change.Lead.Status
		lc.publish(c.UserContext(), e)
	}
	return c.JSON(utils.SuccessResponse(change.Lead))
}

// RecordAttempt registers a contact attempt on the lead
func (lc *LeadController) RecordAttempt(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, lc.Logger, err, "")
	}
	lead, err := lc.findLead(c, id, false)
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to fetch lead")
	}

	lead.RecordAttempt(lc.now())
	err = lc.DB.Model(lead).Select("call_attempts", "first_attempt_at", "last_attempt_at").Updates(lead).Error
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to record attempt")
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// AssignLead sets or clears the lead's commercial
func (lc *LeadController) AssignLead(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, lc.Logger, err, "")
	}

	var input AssignRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if input.AssignedToID != nil {
		if err := lc.requireCommercial(*input.AssignedToID); err != nil {
			return fail(c, lc.Logger, err, "Database error")
		}
	}

	var lead models.Lead
	if err := lc.DB.First(&lead, id).Error; err != nil {
		return fail(c, lc.Logger, err, "Failed to fetch lead")
	}
	previous := lead.AssignedToID
	lead.AssignedToID = input.AssignedToID
	if err := lc.DB.Model(&lead).Select("assigned_to_id").Updates(&lead).Error; err != nil {
		return fail(c, lc.Logger, err, "Failed to assign lead")
	}

	if lead.AssignedToID != nil && (previous == nil || *previous != *lead.AssignedToID) {
		lc.publish(c.UserContext(), lc.assignedEvent(&lead, user.ID))
	}
	return c.JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, lc.Logger, err, "")
	}

	result := lc.DB.Delete(&models.Lead{}, id)
	if result.Error != nil {
		return fail(c, lc.Logger, result.Error, "Failed to delete lead")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	utils.LogEvent(lc.Logger, "lead_deleted", map[string]interface{}{"lead_id": id, "user_id": currentUser(c).ID})
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

// ExportLeads writes the filtered leads as CSV with the same headers the
// reconciliation import reads.
func (lc *LeadController) ExportLeads(c *fiber.Ctx) error {
	user := currentUser(c)
	f, err := leadFilterFromQuery(c, user, lc.Location)
	if err != nil {
		return fail(c, lc.Logger, err, "Invalid filter")
	}

	var leads []models.Lead
	err = lc.DB.Model(&models.Lead{}).Scopes(f.Scope).
		Preload("Course").
		Preload("Campaign").
		Preload("AssignedTo").
		Order("leads.created_at ASC").
		Find(&leads).Error
	if err != nil {
		return fail(c, lc.Logger, err, "Failed to fetch leads")
	}

	c.Set("Content-Type", "text/csv; charset=utf-8")
	c.Set("Content-Disposition", "attachment; filename=leads_export_"+lc.now().In(lc.Location).Format("20060102")+".csv")

	writer := csv.NewWriter(c)
	defer writer.Flush()

	header := []string{"name", "email", "phone", "course", "campaign", "commercial", "status", "enrolled_at", "revenue", "notes", "created_at"}
	if err := writer.Write(header); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
	}
	for i := range leads {
		if err := writer.Write(lc.exportRecord(&leads[i])); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
		}
	}
	return nil
}

func (lc *LeadController) exportRecord(l *models.Lead) []string {
	var course, campaign, commercial, enrolledAt, revenue string
	if l.Course != nil {
		course = l.Course.Name
	}
	if l.Campaign != nil {
		campaign = l.Campaign.Name
	}
	if l.AssignedTo != nil {
		commercial = l.AssignedTo.Email
	}
	if l.EnrolledAt != nil {
		enrolledAt = l.EnrolledAt.In(lc.Location).Format("2006-01-02")
	}
	if l.Enrolled {
		revenue = strconv.FormatFloat(l.Revenue, 'f', 2, 64)
	}
	return []string{
		l.Name,
		l.Email,
		l.Phone,
		course,
		campaign,
		commercial,
		string(l.Status),
		enrolledAt,
		revenue,
		l.Notes,
		l.CreatedAt.In(lc.Location).Format(time.RFC3339),
	}
}

func (lc *LeadController) assignedEvent(lead *models.Lead, actorID uint) events.Event {
	e := events.New(events.LeadAssigned)
	e.ActorID = &actorID
	e.LeadID = &lead.ID
	e.LeadName = lead.Name
	e.UserID = lead.AssignedToID
	return e
}

// publish logs and drops publish errors.
// publishTimeout bounds how long a request waits on a full event bus.
const publishTimeout = 5 * time.Second

func (lc *LeadController) publish(ctx context.Context, e events.Event) {
	if lc.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := lc.Events.Publish(ctx, e); err != nil {
		utils.LogError(lc.Logger, "event_publish_failed", err, map[string]interface{}{
			"event_type": e.Type,
			"event_id":   e.ID,
		})
		return
	}
	lc.Logger.WithFields(logrus.Fields{"event_type": e.Type, "event_id": e.ID}).Debug("Event published")
}

