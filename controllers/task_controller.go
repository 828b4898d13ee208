package controller

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"funnelcrm/models"
	"funnelcrm/utils"
)

type TaskController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewTaskController(db *gorm.DB, logger *logrus.Entry) *TaskController {
	return &TaskController{DB: db, Logger: logger}
}

type TaskInput struct {
	Title        string              `json:"title" validate:"required,max=200"`
	Description  string              `json:"description"`
	DueAt        time.Time           `json:"due_at" validate:"required"`
	Priority     models.TaskPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	AssignedToID *uint               `json:"assigned_to_id"`
	LeadID       *uint               `json:"lead_id"`
}

// scope limits non-admins to their own tasks.
func (tc *TaskController) scope(user *models.User) *gorm.DB {
	query := tc.DB.Model(&models.Task{})
	if !user.IsAdmin() {
		query = query.Where("assigned_to_id = ?", user.ID)
	}
	return query
}

// ListTasks returns tasks ordered by due date
func (tc *TaskController) ListTasks(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := tc.scope(user)
	switch c.Query("completed") {
	case "true":
		query = query.Where("completed = ?", true)
	case "false":
		query = query.Where("completed = ?", false)
	}
	if leadID, err := utils.ParseOptionalUint(c.Query("lead_id")); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead_id", nil)
	} else if leadID != nil {
		query = query.Where("lead_id = ?", *leadID)
	}
	if user.IsAdmin() {
		if assignee, err := utils.ParseOptionalUint(c.Query("assigned_to_id")); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid assigned_to_id", nil)
		} else if assignee != nil {
			query = query.Where("assigned_to_id = ?", *assignee)
		}
	}
	if before := c.Query("due_before"); before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_before", err)
		}
		query = query.Where("due_at <= ?", t)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to count tasks")
	}
	var tasks []models.Task
	err := query.Preload("Lead", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "status") }).
		Order("completed ASC, due_at ASC").
		Offset(offset).Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return fail(c, tc.Logger, err, "Failed to fetch tasks")
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{Data: tasks, Total: total, Page: page, Limit: limit}))
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, tc.Logger, err, "")
	}
	var task models.Task
	if err := tc.scope(currentUser(c)).Preload("Lead").First(&task, id).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to fetch task")
	}
	return c.JSON(utils.SuccessResponse(task))
}

// CreateTask creates a task for the caller; admins may assign it to anyone.
func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	user := currentUser(c)

	var input TaskInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	task := models.Task{AssignedToID: user.ID, Priority: models.PriorityMedium}
	if err := tc.apply(&task, input, user); err != nil {
		return fail(c, tc.Logger, err, "Database error")
	}
	if err := tc.DB.Omit("AssignedTo", "Lead").Create(&task).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to create task")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, tc.Logger, err, "")
	}

	var input TaskInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var task models.Task
	if err := tc.scope(user).First(&task, id).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to fetch task")
	}
	dueChanged := !task.DueAt.Equal(input.DueAt)
	if err := tc.apply(&task, input, user); err != nil {
		return fail(c, tc.Logger, err, "Database error")
	}
	// a rescheduled task is reminded again
	if dueChanged {
		task.RemindedAt = nil
	}
	if err := tc.DB.Omit("AssignedTo", "Lead").Save(&task).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to update task")
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) apply(task *models.Task, input TaskInput, user *models.User) error {
	if input.AssignedToID != nil && *input.AssignedToID != user.ID {
		if !user.IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "Only admins can assign tasks to others")
		}
		var count int64
		if err := tc.DB.Model(&models.User{}).Where("id = ? AND is_active = ?", *input.AssignedToID, true).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Assignee not found")
		}
		task.AssignedToID = *input.AssignedToID
	}
	if input.LeadID != nil {
		query := tc.DB.Model(&models.Lead{}).Where("id = ?", *input.LeadID)
		if user.IsCommercial() {
			query = query.Where("assigned_to_id = ?", user.ID)
		}
		var count int64
		if err := query.Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Lead not found")
		}
	}

	task.Title = strings.TrimSpace(input.Title)
	task.Description = input.Description
	task.DueAt = input.DueAt
	task.LeadID = input.LeadID
	if input.Priority != "" {
		task.Priority = input.Priority
	}
	return nil
}

// CompleteTask marks a task done, or open again with ?completed=false
func (tc *TaskController) CompleteTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, tc.Logger, err, "")
	}

	var task models.Task
	if err := tc.scope(currentUser(c)).First(&task, id).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to fetch task")
	}

	task.Completed = c.Query("completed", "true") != "false"
	task.CompletedAt = nil
	if task.Completed {
		now := time.Now()
		task.CompletedAt = &now
	}
	if err := tc.DB.Model(&task).Select("completed", "completed_at").Updates(&task).Error; err != nil {
		return fail(c, tc.Logger, err, "Failed to update task")
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, tc.Logger, err, "")
	}

	result := tc.scope(currentUser(c)).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return fail(c, tc.Logger, result.Error, "Failed to delete task")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
