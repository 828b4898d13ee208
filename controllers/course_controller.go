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

type CourseController struct {
	DB       *gorm.DB
	Location *time.Location
	Logger   *logrus.Entry
}

func NewCourseController(db *gorm.DB, loc *time.Location, logger *logrus.Entry) *CourseController {
	return &CourseController{DB: db, Location: loc, Logger: logger}
}

type CourseInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description"`
	Price       *float64 `json:"price" validate:"omitempty,min=0"`
	IsActive    *bool    `json:"is_active"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
}

func (cc *CourseController) ListCourses(c *fiber.Ctx) error {
	query := cc.DB.Model(&models.Course{})
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}
	if q := strings.TrimSpace(c.Query("search")); q != "" {
		query = query.Where("name ILIKE ?", "%"+q+"%")
	}

	var courses []models.Course
	if err := query.Order("name ASC").Find(&courses).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch courses")
	}
	return c.JSON(utils.SuccessResponse(courses))
}

func (cc *CourseController) GetCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var course models.Course
	if err := cc.DB.Preload("Campaigns").First(&course, id).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch course")
	}
	return c.JSON(utils.SuccessResponse(course))
}

func (cc *CourseController) CreateCourse(c *fiber.Ctx) error {
	var input CourseInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	course := models.Course{IsActive: true}
	if err := cc.apply(&course, input); err != nil {
		return fail(c, cc.Logger, err, "")
	}
	if err := cc.DB.Create(&course).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to create course")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(course))
}

// UpdateCourse changes the course. A new price only affects future
// enrollments; stored lead revenue is left alone.
func (cc *CourseController) UpdateCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var input CourseInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var course models.Course
	if err := cc.DB.First(&course, id).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch course")
	}
	if err := cc.apply(&course, input); err != nil {
		return fail(c, cc.Logger, err, "")
	}
	if err := cc.DB.Omit("Campaigns", "Leads").Save(&course).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to update course")
	}
	return c.JSON(utils.SuccessResponse(course))
}

func (cc *CourseController) apply(course *models.Course, input CourseInput) error {
	start, err := parseDay(input.StartDate, cc.Location, "start_date")
	if err != nil {
		return err
	}
	end, err := parseDay(input.EndDate, cc.Location, "end_date")
	if err != nil {
		return err
	}
	if start != nil && end != nil && end.Before(*start) {
		return fiber.NewError(fiber.StatusBadRequest, "end_date must not be before start_date")
	}

	course.Name = strings.TrimSpace(input.Name)
	course.Description = input.Description
	if input.Price != nil {
		course.Price = *input.Price
	}
	if input.IsActive != nil {
		course.IsActive = *input.IsActive
	}
	course.StartDate = start
	course.EndDate = end
	return nil
}

// DeleteCourse soft-deletes a course that no active campaign uses.
func (cc *CourseController) DeleteCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var campaigns int64
	if err := cc.DB.Model(&models.Campaign{}).Where("course_id = ?", id).Count(&campaigns).Error; err != nil {
		return fail(c, cc.Logger, err, "Database error")
	}
	if campaigns > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Course still has campaigns", nil)
	}

	result := cc.DB.Delete(&models.Course{}, id)
	if result.Error != nil {
		return fail(c, cc.Logger, result.Error, "Failed to delete course")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Course not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
