package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"funnelcrm/analytics"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

// paramID reads a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrNotFound)
}

// leadFilterFromQuery reads the shared lead/report query parameters and
// applies the caller's role: commercials only ever see their own leads and
// marketing users may not filter by commercial.
func leadFilterFromQuery(c *fiber.Ctx, user *models.User, loc *time.Location) (repository.LeadFilter, error) {
	var f repository.LeadFilter

	r, err := analytics.ParseDateRange(c.Query("start_date"), c.Query("end_date"), loc)
	if err != nil {
		return f, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	f.Range = r

	if f.CourseID, err = utils.ParseOptionalUint(c.Query("course_id")); err != nil {
		return f, fiber.NewError(fiber.StatusBadRequest, "Invalid course_id")
	}
	if f.CampaignID, err = utils.ParseOptionalUint(c.Query("campaign_id")); err != nil {
		return f, fiber.NewError(fiber.StatusBadRequest, "Invalid campaign_id")
	}
	if f.AssignedToID, err = utils.ParseOptionalUint(c.Query("assigned_to_id")); err != nil {
		return f, fiber.NewError(fiber.StatusBadRequest, "Invalid assigned_to_id")
	}
	if p := c.Query("platform"); p != "" {
		platform, ok := models.ParsePlatform(p)
		if !ok {
			return f, fiber.NewError(fiber.StatusBadRequest, "Invalid platform")
		}
		f.Platform = platform
	}
	if s := c.Query("status"); s != "" {
		status, err := models.ParseLeadStatus(s)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "Invalid status")
		}
		f.Status = status
	}
	f.Search = strings.TrimSpace(c.Query("search"))

	switch user.Role {
	case models.RoleCommercial:
		f.AssignedToID = &user.ID
	case models.RoleMarketing:
		if f.AssignedToID != nil {
			return f, fiber.NewError(fiber.StatusForbidden, "Filtering by commercial is not allowed")
		}
	}
	return f, nil
}

// fail turns a *fiber.Error or a not-found error into the matching error
// envelope; anything else is logged and answered with a 500.
func fail(c *fiber.Ctx, log logrus.FieldLogger, err error, message string) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fe.Code, fe.Message, nil)
	}
	if isNotFound(err) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Not found", nil)
	}
	utils.LogError(log, "request_failed", err, map[string]interface{}{
		"path":   c.Path(),
		"method": c.Method(),
	})
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, message, err)
}

// parseDay reads an optional YYYY-MM-DD (or RFC3339) body date; a plain
// date is midnight in loc.
func parseDay(s string, loc *time.Location, field string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	r, err := analytics.ParseDateRange(s, "", loc)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+field)
	}
	return r.Start, nil
}
