package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"funnelcrm/models"
	"funnelcrm/utils"
)

// GetCampaigns lists campaigns filtered by course, platform, status or master
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	query := cc.DB.Model(&models.Campaign{}).Preload("Course")

	courseID, err := utils.ParseOptionalUint(c.Query("course_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid course_id", nil)
	}
	if courseID != nil {
		query = query.Where("course_id = ?", *courseID)
	}
	masterID, err := utils.ParseOptionalUint(c.Query("master_campaign_id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid master_campaign_id", nil)
	}
	if masterID != nil {
		query = query.Where("master_campaign_id = ?", *masterID)
	}
	if p := c.Query("platform"); p != "" {
		platform, ok := models.ParsePlatform(p)
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid platform", nil)
		}
		query = query.Where("platform = ?", platform)
	}
	if s := c.Query("status"); s != "" {
		query = query.Where("status = ?", s)
	}

	var campaigns []models.Campaign
	if err := query.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch campaigns")
	}
	return c.JSON(utils.SuccessResponse(campaigns))
}

// GetCampaign returns one campaign with its spend records
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var campaign models.Campaign
	err = cc.DB.Preload("Course").Preload("MasterCampaign").
		Preload("Spends", func(db *gorm.DB) *gorm.DB { return db.Order("start_date ASC") }).
		First(&campaign, id).Error
	if err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch campaign")
	}
	return c.JSON(utils.SuccessResponse(campaign))
}
