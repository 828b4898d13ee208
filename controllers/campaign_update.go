package controller

import (
	"github.com/gofiber/fiber/v2"

	"funnelcrm/models"
	"funnelcrm/utils"
)

func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var input CampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, id).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch campaign")
	}
	if err := cc.applyCampaign(&campaign, input); err != nil {
		return fail(c, cc.Logger, err, "Database error")
	}
	if err := cc.DB.Omit("Course", "MasterCampaign", "Spends", "Leads").Save(&campaign).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to update campaign")
	}
	return c.JSON(utils.SuccessResponse(campaign))
}

// UpdateCampaignStatus pauses, resumes or completes a campaign
func (cc *CampaignController) UpdateCampaignStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var input struct {
		Status models.CampaignStatus `json:"status" validate:"required,oneof=ACTIVE PAUSED COMPLETED"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	result := cc.DB.Model(&models.Campaign{}).Where("id = ?", id).Update("status", input.Status)
	if result.Error != nil {
		return fail(c, cc.Logger, result.Error, "Failed to update campaign")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "status": input.Status}))
}
