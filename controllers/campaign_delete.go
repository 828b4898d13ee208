package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"funnelcrm/models"
	"funnelcrm/utils"
)

// DeleteCampaign soft-deletes the campaign and its spend records. Leads keep
// their campaign id so historical reports still attribute them.
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Campaign{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("campaign_id = ?", id).Delete(&models.CampaignSpend{}).Error
	})
	if err != nil {
		return fail(c, cc.Logger, err, "Failed to delete campaign")
	}

	utils.LogEvent(cc.Logger, "campaign_deleted", map[string]interface{}{
		"campaign_id": id,
		"user_id":     currentUser(c).ID,
	})
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
