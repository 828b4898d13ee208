package controller

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"funnelcrm/config"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	utils.TokenPair
	User *models.User `json:"user"`
}

// UserAccounts is the account storage sign-in and revocation need.
type UserAccounts interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByGoogle(ctx context.Context, googleID, email string) (*models.User, error)
	LinkGoogle(ctx context.Context, id uint, googleID string) error
	RecordLogin(ctx context.Context, id uint, at time.Time) error
	BumpTokenVersion(ctx context.Context, id uint) error
	SetPassword(ctx context.Context, id uint, hash string, tokenVersion int) error
}

type AuthController struct {
	Users  UserAccounts
	Tokens *utils.TokenManager
	Config *config.Config
	Logger *logrus.Entry

	// nil when Google sign-in is not configured
	google *oauth2.Config
}

func NewAuthController(users UserAccounts, tokens *utils.TokenManager, cfg *config.Config, logger *logrus.Entry) *AuthController {
	ac := &AuthController{Users: users, Tokens: tokens, Config: cfg, Logger: logger}
	if cfg.GoogleEnabled() {
		ac.google = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURI,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	}
	return ac
}

// HashPassword is the bcrypt hash used for every stored password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	user, err := ac.Users.UserByEmail(c.UserContext(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
		}
		return fail(c, ac.Logger, err, "Database error")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		utils.LogEvent(ac.Logger, "login_failed", map[string]interface{}{"user_id": user.ID, "ip": c.IP()})
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}
	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
	}

	return ac.startSession(c, user)
}

// startSession issues a token pair, sets the session cookies and records the login.
func (ac *AuthController) startSession(c *fiber.Ctx, user *models.User) error {
	pair, err := ac.Tokens.GenerateTokens(user)
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to generate tokens")
	}

	now := time.Now()
	if err := ac.Users.RecordLogin(c.UserContext(), user.ID, now); err != nil {
		ac.Logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to record login time")
	}
	user.LastLoginAt = &now

	ac.setSessionCookies(c, pair)
	utils.LogEvent(ac.Logger, "login", map[string]interface{}{"user_id": user.ID, "role": user.Role})
	return c.JSON(utils.SuccessResponse(AuthResponse{TokenPair: pair, User: user}))
}

func (ac *AuthController) setSessionCookies(c *fiber.Ctx, pair utils.TokenPair) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    pair.AccessToken,
		Expires:  pair.AccessExpiresAt,
		HTTPOnly: true,
		Secure:   ac.Config.CookieSecure,
		SameSite: "Lax",
		Path:     "/",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    pair.RefreshToken,
		Expires:  pair.RefreshExpiresAt,
		HTTPOnly: true,
		Secure:   ac.Config.CookieSecure,
		SameSite: "Lax",
		Path:     "/api/v1/auth",
	})
}

func (ac *AuthController) clearSessionCookies(c *fiber.Ctx) {
	expired := time.Now().Add(-time.Hour)
	c.Cookie(&fiber.Cookie{Name: "access_token", Value: "", Expires: expired, HTTPOnly: true, Path: "/"})
	c.Cookie(&fiber.Cookie{Name: "refresh_token", Value: "", Expires: expired, HTTPOnly: true, Path: "/api/v1/auth"})
}

// RefreshToken exchanges a refresh token (body or cookie) for a new pair
func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	_ = c.BodyParser(&req)
	token := req.RefreshToken
	if token == "" {
		token = c.Cookies("refresh_token")
	}
	if token == "" {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Refresh token required", nil)
	}

	claims, err := ac.Tokens.ParseToken(token, utils.TokenRefresh)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired refresh token", nil)
	}

	user, err := ac.Users.UserByID(c.UserContext(), claims.UserID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", nil)
	}
	if !user.IsActive || claims.TokenVersion != user.TokenVersion {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Session has been revoked", nil)
	}

	pair, err := ac.Tokens.GenerateTokens(user)
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to generate tokens")
	}
	ac.setSessionCookies(c, pair)
	return c.JSON(utils.SuccessResponse(AuthResponse{TokenPair: pair, User: user}))
}

// Logout revokes every token issued to the user so far
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	user := currentUser(c)
	if err := ac.Users.BumpTokenVersion(c.UserContext(), user.ID); err != nil {
		return fail(c, ac.Logger, err, "Failed to log out")
	}
	ac.clearSessionCookies(c)
	utils.LogEvent(ac.Logger, "logout", map[string]interface{}{"user_id": user.ID})
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Logged out"}))
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(currentUser(c)))
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user := currentUser(c)

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Current password is incorrect", nil)
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to hash password")
	}

	// Other sessions are revoked; the caller gets a fresh pair.
	user.PasswordHash = hash
	user.TokenVersion++
	if err := ac.Users.SetPassword(c.UserContext(), user.ID, hash, user.TokenVersion); err != nil {
		return fail(c, ac.Logger, err, "Failed to update password")
	}

	utils.LogEvent(ac.Logger, "password_changed", map[string]interface{}{"user_id": user.ID})
	return ac.startSession(c, user)
}

func (ac *AuthController) GoogleOAuth(c *fiber.Ctx) error {
	if ac.google == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Google sign-in is not configured", nil)
	}

	state, err := randomState()
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to generate state token")
	}

	c.Cookie(&fiber.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		Secure:   ac.Config.CookieSecure,
		SameSite: "Lax",
	})

	return c.Redirect(ac.google.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

type googleUserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified_email"`
}

// GoogleOAuthCallback signs in an existing account; unknown Google users are
// refused since accounts are created by an administrator.
func (ac *AuthController) GoogleOAuthCallback(c *fiber.Ctx) error {
	if ac.google == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Google sign-in is not configured", nil)
	}

	state := c.Query("state")
	cookieState := c.Cookies("oauth_state")
	if state == "" || cookieState == "" || state != cookieState {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid state parameter", nil)
	}
	c.ClearCookie("oauth_state")

	code := c.Query("code")
	if code == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Authorization code not provided", nil)
	}

	info, err := ac.fetchGoogleUser(c.UserContext(), code)
	if err != nil {
		return fail(c, ac.Logger, err, "Google sign-in failed")
	}
	if info.Email == "" || !info.Verified {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Google account email is not verified", nil)
	}

	user, err := ac.Users.UserByGoogle(c.UserContext(), info.ID, info.Email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.LogEvent(ac.Logger, "google_login_unknown", map[string]interface{}{"email": info.Email})
		return utils.ErrorResponse(c, fiber.StatusForbidden, "No account is registered for this Google user", nil)
	}
	if err != nil {
		return fail(c, ac.Logger, err, "Database error")
	}
	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
	}

	if user.GoogleID == nil || *user.GoogleID != info.ID {
		user.GoogleID = &info.ID
		if err := ac.Users.LinkGoogle(c.UserContext(), user.ID, info.ID); err != nil {
			return fail(c, ac.Logger, err, "Failed to link Google account")
		}
	}

	pair, err := ac.Tokens.GenerateTokens(user)
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to generate tokens")
	}
	ac.setSessionCookies(c, pair)
	utils.LogEvent(ac.Logger, "login", map[string]interface{}{"user_id": user.ID, "provider": "google"})
	return c.Redirect(strings.TrimRight(ac.Config.AppURL, "/")+"/auth/callback", fiber.StatusTemporaryRedirect)
}

func (ac *AuthController) fetchGoogleUser(ctx context.Context, code string) (*googleUserInfo, error) {
	token, err := ac.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange token: %w", err)
	}

	resp, err := ac.google.Client(ctx, token).Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google api error: %s", string(body))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parse user info: %w", err)
	}
	return &info, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
