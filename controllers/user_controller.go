package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"funnelcrm/models"
	"funnelcrm/utils"
)

type UserController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewUserController(db *gorm.DB, logger *logrus.Entry) *UserController {
	return &UserController{DB: db, Logger: logger}
}

type CreateUserRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Name     string      `json:"name" validate:"required,max=100"`
	Phone    string      `json:"phone" validate:"omitempty,max=30"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     models.Role `json:"role" validate:"required,role"`
}

type UpdateUserRequest struct {
	Name     *string      `json:"name" validate:"omitempty,max=100"`
	Phone    *string      `json:"phone" validate:"omitempty,max=30"`
	Role     *models.Role `json:"role" validate:"omitempty,role"`
	IsActive *bool        `json:"is_active"`
	Password *string      `json:"password" validate:"omitempty,min=8"`
}

// ListUsers returns a page of accounts, optionally filtered by role
func (uc *UserController) ListUsers(c *fiber.Ctx) error {
	page, limit, offset := utils.Pagination(c)

	query := uc.DB.Model(&models.User{})
	if role := c.Query("role"); role != "" {
		if !models.Role(role).Valid() {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role", nil)
		}
		query = query.Where("role = ?", role)
	}
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, uc.Logger, err, "Failed to count users")
	}
	var users []models.User
	if err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return fail(c, uc.Logger, err, "Failed to fetch users")
	}

	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{Data: users, Total: total, Page: page, Limit: limit}))
}

// ListCommercials is the assignee picker, open to every role.
func (uc *UserController) ListCommercials(c *fiber.Ctx) error {
	var users []models.User
	err := uc.DB.Select("id", "name", "email", "role", "is_active").
		Where("role = ? AND is_active = ?", models.RoleCommercial, true).
		Order("name ASC").
		Find(&users).Error
	if err != nil {
		return fail(c, uc.Logger, err, "Failed to fetch commercials")
	}
	return c.JSON(utils.SuccessResponse(users))
}

func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var count int64
	if err := uc.DB.Model(&models.User{}).Where("LOWER(email) = ?", email).Count(&count).Error; err != nil {
		return fail(c, uc.Logger, err, "Database error")
	}
	if count > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Email already registered", nil)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return fail(c, uc.Logger, err, "Failed to hash password")
	}

	user := models.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := uc.DB.Create(&user).Error; err != nil {
		return fail(c, uc.Logger, err, "Failed to create user")
	}

	utils.LogEvent(uc.Logger, "user_created", map[string]interface{}{
		"user_id":    user.ID,
		"role":       user.Role,
		"created_by": currentUser(c).ID,
	})
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(user))
}

// UpdateUser edits profile, role and status. Changing the password, the role
// or deactivating the account revokes the user's sessions.
func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, uc.Logger, err, "")
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var user models.User
	if err := uc.DB.First(&user, id).Error; err != nil {
		return fail(c, uc.Logger, err, "Failed to fetch user")
	}

	if me := currentUser(c); me.ID == user.ID {
		if (req.Role != nil && *req.Role != user.Role) || (req.IsActive != nil && !*req.IsActive) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "You cannot demote or deactivate yourself", nil)
		}
	}

	revoke := false
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Role != nil && *req.Role != user.Role {
		user.Role = *req.Role
		revoke = true
	}
	if req.IsActive != nil && *req.IsActive != user.IsActive {
		user.IsActive = *req.IsActive
		revoke = revoke || !user.IsActive
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return fail(c, uc.Logger, err, "Failed to hash password")
		}
		user.PasswordHash = hash
		revoke = true
	}
	if revoke {
		user.TokenVersion++
	}

	if err := uc.DB.Select("name", "phone", "role", "is_active", "password_hash", "token_version").Save(&user).Error; err != nil {
		return fail(c, uc.Logger, err, "Failed to update user")
	}
	return c.JSON(utils.SuccessResponse(user))
}

// DeactivateUser disables login and revokes sessions; leads stay assigned.
func (uc *UserController) DeactivateUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, uc.Logger, err, "")
	}
	if currentUser(c).ID == id {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "You cannot deactivate yourself", nil)
	}

	result := uc.DB.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":     false,
		"token_version": gorm.Expr("token_version + 1"),
	})
	if result.Error != nil {
		return fail(c, uc.Logger, result.Error, "Failed to deactivate user")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found", nil)
	}

	utils.LogEvent(uc.Logger, "user_deactivated", map[string]interface{}{"user_id": id})
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "is_active": false}))
}
