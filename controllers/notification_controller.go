package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"funnelcrm/models"
	"funnelcrm/utils"
)

type NotificationController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewNotificationController(db *gorm.DB, logger *logrus.Entry) *NotificationController {
	return &NotificationController{DB: db, Logger: logger}
}

func (nc *NotificationController) ListNotifications(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := nc.DB.Model(&models.Notification{}).Where("user_id = ?", user.ID)
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, nc.Logger, err, "Failed to count notifications")
	}
	var notifications []models.Notification
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&notifications).Error; err != nil {
		return fail(c, nc.Logger, err, "Failed to fetch notifications")
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{Data: notifications, Total: total, Page: page, Limit: limit}))
}

func (nc *NotificationController) UnreadCount(c *fiber.Ctx) error {
	var count int64
	err := nc.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", currentUser(c).ID, false).
		Count(&count).Error
	if err != nil {
		return fail(c, nc.Logger, err, "Failed to count notifications")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"unread": count}))
}

func (nc *NotificationController) MarkRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, nc.Logger, err, "")
	}

	result := nc.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, currentUser(c).ID).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	if result.Error != nil {
		return fail(c, nc.Logger, result.Error, "Failed to update notification")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "is_read": true}))
}

func (nc *NotificationController) MarkAllRead(c *fiber.Ctx) error {
	result := nc.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", currentUser(c).ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	if result.Error != nil {
		return fail(c, nc.Logger, result.Error, "Failed to update notifications")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"updated": result.RowsAffected}))
}
