package controller

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

type GoalController struct {
	DB       *gorm.DB
	Store    *repository.LeadStore
	Location *time.Location
	Logger   *logrus.Entry
}

func NewGoalController(db *gorm.DB, store *repository.LeadStore, loc *time.Location, logger *logrus.Entry) *GoalController {
	return &GoalController{DB: db, Store: store, Location: loc, Logger: logger}
}

type GoalInput struct {
	UserID            uint    `json:"user_id" validate:"required"`
	Year              int     `json:"year" validate:"required,min=2000,max=2100"`
	Month             int     `json:"month" validate:"required,min=1,max=12"`
	TargetEnrollments int     `json:"target_enrollments" validate:"min=0"`
	TargetRevenue     float64 `json:"target_revenue" validate:"min=0"`
	TargetContacts    int     `json:"target_contacts" validate:"min=0"`
}

// UpsertGoal sets the monthly targets of a commercial
func (gc *GoalController) UpsertGoal(c *fiber.Ctx) error {
	var input GoalInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var count int64
	if err := gc.DB.Model(&models.User{}).Where("id = ? AND role = ?", input.UserID, models.RoleCommercial).Count(&count).Error; err != nil {
		return fail(c, gc.Logger, err, "Database error")
	}
	if count == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Goals can only be set for commercials", nil)
	}

	goal := models.Goal{
		UserID:            input.UserID,
		Year:              input.Year,
		Month:             input.Month,
		TargetEnrollments: input.TargetEnrollments,
		TargetRevenue:     input.TargetRevenue,
		TargetContacts:    input.TargetContacts,
	}
	err := gc.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_enrollments", "target_revenue", "target_contacts", "updated_at"}),
	}).Omit("User").Create(&goal).Error
	if err != nil {
		return fail(c, gc.Logger, err, "Failed to save goal")
	}
	return c.JSON(utils.SuccessResponse(goal))
}

// ListGoals returns the goals of a month with the achieved progress.
// Commercials only see their own.
func (gc *GoalController) ListGoals(c *fiber.Ctx) error {
	user := currentUser(c)
	now := time.Now().In(gc.Location)

	year, err := strconv.Atoi(c.Query("year", strconv.Itoa(now.Year())))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid year", nil)
	}
	month, err := strconv.Atoi(c.Query("month", strconv.Itoa(int(now.Month()))))
	if err != nil || month < 1 || month > 12 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid month", nil)
	}

	query := gc.DB.Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "email") }).
		Where("year = ? AND month = ?", year, month)
	if user.IsCommercial() {
		query = query.Where("user_id = ?", user.ID)
	}

	var goals []models.Goal
	if err := query.Order("user_id ASC").Find(&goals).Error; err != nil {
		return fail(c, gc.Logger, err, "Failed to fetch goals")
	}

	progress := make([]repository.GoalProgress, 0, len(goals))
	for _, g := range goals {
		p, err := gc.Store.Progress(c.UserContext(), g, gc.Location)
		if err != nil {
			return fail(c, gc.Logger, err, "Failed to compute goal progress")
		}
		progress = append(progress, p)
	}
	return c.JSON(utils.SuccessResponse(progress))
}

func (gc *GoalController) DeleteGoal(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, gc.Logger, err, "")
	}
	result := gc.DB.Unscoped().Delete(&models.Goal{}, id)
	if result.Error != nil {
		return fail(c, gc.Logger, result.Error, "Failed to delete goal")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Goal not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
