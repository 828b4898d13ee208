package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"funnelcrm/models"
	"funnelcrm/utils"
)

type CampaignInput struct {
	Name             string                `json:"name" validate:"required,max=200"`
	Description      string                `json:"description"`
	CourseID         uint                  `json:"course_id" validate:"required"`
	Platform         models.Platform       `json:"platform" validate:"required,platform"`
	MasterCampaignID *uint                 `json:"master_campaign_id"`
	Status           models.CampaignStatus `json:"status" validate:"omitempty,oneof=ACTIVE PAUSED COMPLETED"`
	Budget           float64               `json:"budget" validate:"min=0"`
	StartDate        string                `json:"start_date"`
	EndDate          string                `json:"end_date"`
}

// CreateCampaign creates a campaign for one course on one platform
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := currentUser(c)

	var input CampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	campaign := models.Campaign{Status: models.CampaignActive, CreatedByID: &user.ID}
	if err := cc.applyCampaign(&campaign, input); err != nil {
		return fail(c, cc.Logger, err, "Database error")
	}
	if err := cc.DB.Create(&campaign).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to create campaign")
	}

	utils.LogEvent(cc.Logger, "campaign_created", map[string]interface{}{
		"campaign_id": campaign.ID,
		"platform":    campaign.Platform,
		"user_id":     user.ID,
	})
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}

// applyCampaign validates references and copies input onto campaign.
func (cc *CampaignController) applyCampaign(campaign *models.Campaign, input CampaignInput) error {
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

	if err := cc.requireCourse(input.CourseID); err != nil {
		return err
	}
	if input.MasterCampaignID != nil {
		var master models.MasterCampaign
		if err := cc.DB.Select("id", "course_id").First(&master, *input.MasterCampaignID).Error; err != nil {
			if isNotFound(err) {
				return fiber.NewError(fiber.StatusBadRequest, "Master campaign not found")
			}
			return err
		}
		if master.CourseID != input.CourseID {
			return fiber.NewError(fiber.StatusBadRequest, "Master campaign belongs to another course")
		}
	}

	campaign.Name = strings.TrimSpace(input.Name)
	campaign.Description = input.Description
	campaign.CourseID = input.CourseID
	campaign.Platform = input.Platform
	campaign.MasterCampaignID = input.MasterCampaignID
	if input.Status != "" {
		campaign.Status = input.Status
	}
	campaign.Budget = input.Budget
	campaign.StartDate = start
	campaign.EndDate = end
	return nil
}
