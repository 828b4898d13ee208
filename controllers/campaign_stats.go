package controller

import (
	"github.com/gofiber/fiber/v2"

	"funnelcrm/analytics"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

type SpendInput struct {
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	Notes     string  `json:"notes" validate:"max=500"`
}

// GetCampaignSpends lists the spend records of a campaign
func (cc *CampaignController) GetCampaignSpends(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var spends []models.CampaignSpend
	if err := cc.DB.Where("campaign_id = ?", id).Order("start_date ASC").Find(&spends).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch spend records")
	}
	return c.JSON(utils.SuccessResponse(spends))
}

// AddCampaignSpend records an amount billed over a date range. Without an
// end date the spend is open and accrues up to the report's end.
func (cc *CampaignController) AddCampaignSpend(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	var input SpendInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	start, err := parseDay(input.StartDate, cc.Location, "start_date")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}
	end, err := parseDay(input.EndDate, cc.Location, "end_date")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}
	if end != nil && end.Before(*start) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "end_date must not be before start_date", nil)
	}

	var campaign models.Campaign
	if err := cc.DB.Select("id").First(&campaign, id).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch campaign")
	}

	spend := models.CampaignSpend{
		CampaignID: id,
		StartDate:  *start,
		EndDate:    end,
		Amount:     input.Amount,
		Notes:      input.Notes,
	}
	if err := cc.DB.Create(&spend).Error; err != nil {
		return fail(c, cc.Logger, err, "Failed to add spend")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(spend))
}

func (cc *CampaignController) DeleteCampaignSpend(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}
	spendID, err := paramID(c, "spendId")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	result := cc.DB.Where("campaign_id = ?", id).Delete(&models.CampaignSpend{}, spendID)
	if result.Error != nil {
		return fail(c, cc.Logger, result.Error, "Failed to delete spend")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Spend record not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": spendID}))
}

// GetCampaignStats returns funnel and profitability of one campaign over
// the requested date range.
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, cc.Logger, err, "")
	}

	f, err := leadFilterFromQuery(c, user, cc.Location)
	if err != nil {
		return fail(c, cc.Logger, err, "Invalid filter")
	}
	f.CampaignID = &id

	ctx := c.UserContext()
	leads, err := cc.Reports.FindLeads(ctx, f.WithoutAssignee())
	if err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch leads")
	}
	spend, err := cc.Reports.FindSpendRecords(ctx, repository.SpendFilterFor(f))
	if err != nil {
		return fail(c, cc.Logger, err, "Failed to fetch spend records")
	}
	if f.AssignedToID != nil {
		spend = analytics.SpendShareOf(*f.AssignedToID, leads, spend)
		leads = analytics.OwnedBy(*f.AssignedToID, leads)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"campaign_id":   id,
		"range":         f.Range,
		"funnel":        cc.Calc.AggregateFunnel(leads),
		"profitability": cc.Calc.ComputeProfitability(leads, spend, f.Range),
	}))
}
