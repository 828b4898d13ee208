package controller

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"funnelcrm/analytics"
	"funnelcrm/models"
	"funnelcrm/utils"
)

type CampaignController struct {
	DB       *gorm.DB
	Reports  ReportStore
	Calc     *analytics.Calculator
	Location *time.Location
	Logger   *logrus.Entry
}

func NewCampaignController(db *gorm.DB, reports ReportStore, loc *time.Location, logger *logrus.Entry) *CampaignController {
	return &CampaignController{
		DB:       db,
		Reports:  reports,
		Calc:     analytics.NewCalculator(loc),
		Location: loc,
		Logger:   logger,
	}
}

type MasterCampaignInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	CourseID    uint   `json:"course_id" validate:"required"`
}

func (cc *CampaignController) ListMasterCampaigns(c *fiber.Ctx) error {
	query := cc.DB.Model(&models.MasterCampaign{}).Preload("Campaigns")
	if courseID, err := utils.ParseOptionalUint(c.Query("course_id")); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid course_id", nil)
	} else if courseID != nil {
		query = query.Where("course_id = ?", *courseID)
	}

	var masters []models.MasterCampaign
	if err := query.Order("created_at DESC").Find(&masters).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch master campaigns")
	}
	return c.JSON(utils.SuccessResponse(masters))
}

func (cc *CampaignController) GetMasterCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}
	var master models.MasterCampaign
	if err := cc.DB.Preload("Course").Preload("Campaigns").First(&master, id).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch master campaign")
	}
	return c.JSON(utils.SuccessResponse(master))
}

func (cc *CampaignController) CreateMasterCampaign(c *fiber.Ctx) error {
	var input MasterCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := cc.requireCourse(input.CourseID); err != nil {
		return fail(c, cc.Logger, err, "Database error")
	}

	master := models.MasterCampaign{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		CourseID:    input.CourseID,
	}
	if err := cc.DB.Create(&master).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to create master campaign")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(master))
}

func (cc *CampaignController) UpdateMasterCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}
	var input MasterCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var master models.MasterCampaign
	if err := cc.DB.First(&master, id).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch master campaign")
	}
	if err := cc.requireCourse(input.CourseID); err != nil {
		return fail(c, cc.Logger, err, "Database error")
	}

	master.Name = strings.TrimSpace(input.Name)
	master.Description = input.Description
	master.CourseID = input.CourseID
	if err := cc.DB.Omit("Course", "Campaigns").Save(&master).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to update master campaign")
	}
	return c.JSON(utils.SuccessResponse(master))
}

// DeleteMasterCampaign detaches its campaigns and removes the umbrella.
func (cc *CampaignController) DeleteMasterCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Campaign{}).Where("master_campaign_id = ?", id).
			Update("master_campaign_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.MasterCampaign{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return fail(c, cc.Logger, err, "Failed to delete master campaign")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

func (cc *CampaignController) requireCourse(id uint) error {
	var count int64
	if err := cc.DB.Model(&models.Course{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Course not found")
	}
	return nil
}
