package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelcrm/models"
	"funnelcrm/utils"
)

func withUser(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user", &models.User{Role: role})
		return c.Next()
	}
}

func TestRequireRoles(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	tests := []struct {
		role models.Role
		want int
	}{
		{models.RoleAdmin, fiber.StatusOK},
		{models.RoleMarketing, fiber.StatusOK},
		{models.RoleCommercial, fiber.StatusForbidden},
	}
	for _, tt := range tests {
		app := fiber.New()
		app.Get("/", withUser(tt.role), RequireRoles(models.RoleAdmin, models.RoleMarketing), ok)

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.role)
	}
}

func TestRequireRolesWithoutUser(t *testing.T) {
	app := fiber.New()
	app.Get("/", RequireRoles(models.RoleAdmin), func(c *fiber.Ctx) error { return nil })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRejectsBeforeLookup(t *testing.T) {
	tokens := utils.NewTokenManager("0123456789abcdef0123456789abcdef", time.Minute, time.Hour)
	refresh, err := tokens.GenerateTokens(&models.User{Role: models.RoleAdmin})
	require.NoError(t, err)

	app := fiber.New()
	// no database: every request below must be turned away by token checks
	app.Get("/", Protected(nil, tokens), func(c *fiber.Ctx) error { return nil })

	cases := map[string]string{
		"missing":       "",
		"bad scheme":    "Basic abc",
		"garbage":       "Bearer not-a-jwt",
		"refresh token": "Bearer " + refresh.RefreshToken,
	}
	for name, header := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err, name)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestCORSPreflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(DefaultCORSConfig("http://localhost:3000")))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestLoginRateLimiterMemory(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimiter(2, nil, logrus.New()), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/leads/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/metrics", MetricsHandler())

	_, err := app.Test(httptest.NewRequest("GET", "/leads/42", nil))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
