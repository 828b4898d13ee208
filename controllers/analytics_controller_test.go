package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"funnelcrm/analytics"
	"funnelcrm/models"
	"funnelcrm/repository"
)

type mockReportStore struct {
	mock.Mock
}

func (m *mockReportStore) FindLeads(ctx context.Context, f repository.LeadFilter) ([]analytics.LeadFact, error) {
	args := m.Called(ctx, f)
	leads, _ := args.Get(0).([]analytics.LeadFact)
	return leads, args.Error(1)
}

func (m *mockReportStore) FindSpendRecords(ctx context.Context, f repository.SpendFilter) ([]analytics.SpendRecord, error) {
	args := m.Called(ctx, f)
	spend, _ := args.Get(0).([]analytics.SpendRecord)
	return spend, args.Error(1)
}

func (m *mockReportStore) CampaignIndex(ctx context.Context) (analytics.CampaignIndex, error) {
	args := m.Called(ctx)
	index, _ := args.Get(0).(analytics.CampaignIndex)
	return index, args.Error(1)
}

func (m *mockReportStore) DimensionLabels(ctx context.Context, dim analytics.Dimension) (map[string]string, error) {
	args := m.Called(ctx, dim)
	labels, _ := args.Get(0).(map[string]string)
	return labels, args.Error(1)
}

func (m *mockReportStore) CurrentGoal(ctx context.Context, userID uint, at time.Time, loc *time.Location) (*repository.GoalProgress, error) {
	args := m.Called(ctx, userID, at, loc)
	goal, _ := args.Get(0).(*repository.GoalProgress)
	return goal, args.Error(1)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func ptrUint(v uint) *uint { return &v }

func reportFixture() ([]analytics.LeadFact, []analytics.SpendRecord, analytics.CampaignIndex) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	leads := []analytics.LeadFact{
		{ID: 1, Status: models.StatusEnrolled, Contacted: true, Enrolled: true, Revenue: 1000, CampaignID: ptrUint(1), AssignedToID: ptrUint(7)},
		{ID: 2, Status: models.StatusContacted, Contacted: true, CampaignID: ptrUint(1), AssignedToID: ptrUint(7)},
		{ID: 3, Status: models.StatusNew, CampaignID: ptrUint(1), AssignedToID: ptrUint(8)},
		{ID: 4, Status: models.StatusNew, CampaignID: ptrUint(1), AssignedToID: ptrUint(8)},
	}
	spend := []analytics.SpendRecord{{CampaignID: 1, StartDate: start, EndDate: &end, Amount: 400}}
	index := analytics.CampaignIndex{1: {ID: 1, Name: "Meta Spring", CourseID: 10, Platform: models.PlatformMeta}}
	return leads, spend, index
}

func newReportApp(store ReportStore, cache repository.ReportCache, user *models.User) *fiber.App {
	ac := NewAnalyticsController(store, cache, time.Minute, time.UTC, logrus.NewEntry(logrus.New()))
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	})
	app.Get("/analytics/funnel", ac.Funnel)
	app.Get("/analytics/profitability", ac.Profitability)
	app.Get("/dashboard/commercial", ac.CommercialDashboard)
	return app
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, body io.Reader) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func TestFunnelForcesCommercialScope(t *testing.T) {
	leads, _, _ := reportFixture()
	store := new(mockReportStore)
	store.On("FindLeads", mock.Anything, mock.MatchedBy(func(f repository.LeadFilter) bool {
		return f.AssignedToID != nil && *f.AssignedToID == 7
	})).Return(analytics.OwnedBy(7, leads), nil).Once()

	user := &models.User{Role: models.RoleCommercial}
	user.ID = 7
	app := newReportApp(store, nil, user)

	// asking for another commercial's leads is silently narrowed to self
	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/funnel?assigned_to_id=8", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decode[analytics.FunnelReport](t, resp.Body)
	assert.True(t, env.Success)
	assert.Equal(t, 2, env.Data.Total)
	assert.Equal(t, 1, env.Data.Count(models.StatusEnrolled))
	store.AssertExpectations(t)
}

func TestFunnelRejectsBadInput(t *testing.T) {
	user := &models.User{Role: models.RoleMarketing}
	user.ID = 3
	app := newReportApp(new(mockReportStore), nil, user)

	tests := map[string]int{
		"/analytics/funnel?start_date=2025-02-01&end_date=2025-01-01": fiber.StatusBadRequest,
		"/analytics/funnel?start_date=yesterday":                      fiber.StatusBadRequest,
		"/analytics/funnel?course_id=abc":                             fiber.StatusBadRequest,
		"/analytics/funnel?platform=radio":                            fiber.StatusBadRequest,
		"/analytics/funnel?assigned_to_id=7":                          fiber.StatusForbidden,
		"/analytics/profitability?group_by=commercial":                fiber.StatusForbidden,
		"/analytics/profitability?group_by=weather":                   fiber.StatusBadRequest,
	}
	for url, want := range tests {
		resp, err := app.Test(httptest.NewRequest("GET", url, nil))
		require.NoError(t, err, url)
		assert.Equal(t, want, resp.StatusCode, url)
	}
}

func TestProfitabilityByCampaign(t *testing.T) {
	leads, spend, index := reportFixture()
	store := new(mockReportStore)
	store.On("FindLeads", mock.Anything, mock.Anything).Return(leads, nil)
	store.On("FindSpendRecords", mock.Anything, mock.Anything).Return(spend, nil)
	store.On("CampaignIndex", mock.Anything).Return(index, nil)
	store.On("DimensionLabels", mock.Anything, analytics.DimensionCampaign).Return(map[string]string{"1": "Meta Spring"}, nil)

	user := &models.User{Role: models.RoleAdmin}
	user.ID = 1
	app := newReportApp(store, nil, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/profitability?group_by=campaign", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decode[ProfitabilityReport](t, resp.Body)
	assert.Equal(t, analytics.DimensionCampaign, env.Data.GroupBy)
	assert.Equal(t, 1000.0, env.Data.Totals.Revenue)
	assert.Equal(t, 400.0, env.Data.Totals.TotalSpend)
	require.NotNil(t, env.Data.Totals.ROI)
	assert.Equal(t, 150.0, *env.Data.Totals.ROI)
	require.Len(t, env.Data.Groups, 1)
	assert.Equal(t, "Meta Spring", env.Data.Groups[0].Label)
}

func TestProfitabilityForCommercialUsesSpendShare(t *testing.T) {
	leads, spend, index := reportFixture()
	store := new(mockReportStore)
	// the commercial's share needs every lead of the campaign
	store.On("FindLeads", mock.Anything, mock.MatchedBy(func(f repository.LeadFilter) bool {
		return f.AssignedToID == nil
	})).Return(leads, nil).Once()
	store.On("FindSpendRecords", mock.Anything, mock.Anything).Return(spend, nil)
	store.On("CampaignIndex", mock.Anything).Return(index, nil)

	user := &models.User{Role: models.RoleCommercial}
	user.ID = 8
	app := newReportApp(store, nil, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/profitability", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decode[ProfitabilityReport](t, resp.Body)
	assert.Equal(t, 2, env.Data.Totals.Leads)
	assert.Equal(t, 200.0, env.Data.Totals.TotalSpend)
	assert.Zero(t, env.Data.Totals.Revenue)
	store.AssertExpectations(t)
}

func TestProfitabilityStatusFilterSharesAmongMatchingLeads(t *testing.T) {
	leads, spend, index := reportFixture()
	store := new(mockReportStore)
	store.On("FindLeads", mock.Anything, mock.MatchedBy(func(f repository.LeadFilter) bool {
		return f.AssignedToID == nil && f.Status == models.StatusEnrolled
	})).Return(leads[:1], nil).Once()
	store.On("FindSpendRecords", mock.Anything, mock.Anything).Return(spend, nil)
	store.On("CampaignIndex", mock.Anything).Return(index, nil)

	user := &models.User{Role: models.RoleCommercial}
	user.ID = 7
	app := newReportApp(store, nil, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/profitability?status=ISCRITTO", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// the only enrolled lead of the campaign is the commercial's, so the
	// whole campaign spend is theirs
	env := decode[ProfitabilityReport](t, resp.Body)
	assert.Equal(t, 1, env.Data.Totals.Leads)
	assert.Equal(t, 400.0, env.Data.Totals.TotalSpend)
	assert.Equal(t, 1000.0, env.Data.Totals.Revenue)
	store.AssertExpectations(t)
}

func TestReportCacheServesSecondRequest(t *testing.T) {
	leads, _, _ := reportFixture()
	store := new(mockReportStore)
	store.On("FindLeads", mock.Anything, mock.Anything).Return(leads, nil).Once()

	user := &models.User{Role: models.RoleAdmin}
	user.ID = 1
	cache := &memoryCache{entries: map[string][]byte{}}
	app := newReportApp(store, cache, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/funnel?status=NUOVO&course_id=1", nil))
	require.NoError(t, err)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	// same query in a different order
	resp, err = app.Test(httptest.NewRequest("GET", "/analytics/funnel?course_id=1&status=NUOVO", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	env := decode[analytics.FunnelReport](t, resp.Body)
	assert.Equal(t, 4, env.Data.Total)
	store.AssertExpectations(t)
}

func TestCommercialDashboardIncludesGoal(t *testing.T) {
	leads, spend, index := reportFixture()
	store := new(mockReportStore)
	store.On("FindLeads", mock.Anything, mock.Anything).Return(leads, nil)
	store.On("FindSpendRecords", mock.Anything, mock.Anything).Return(spend, nil)
	store.On("CampaignIndex", mock.Anything).Return(index, nil)
	store.On("DimensionLabels", mock.Anything, analytics.DimensionCourse).Return(map[string]string{"10": "Data Science"}, nil)
	goal := &repository.GoalProgress{Goal: models.Goal{UserID: 7, TargetEnrollments: 4}, Enrollments: 1, EnrollmentProgress: 25}
	store.On("CurrentGoal", mock.Anything, uint(7), mock.Anything, mock.Anything).Return(goal, nil)

	user := &models.User{Role: models.RoleCommercial}
	user.ID = 7
	app := newReportApp(store, nil, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/dashboard/commercial", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decode[Dashboard](t, resp.Body)
	assert.Equal(t, 2, env.Data.Funnel.Total)
	require.NotNil(t, env.Data.Goal)
	assert.Equal(t, 25.0, env.Data.Goal.EnrollmentProgress)
	require.Len(t, env.Data.Breakdowns[analytics.DimensionCourse], 1)
	assert.Equal(t, "Data Science", env.Data.Breakdowns[analytics.DimensionCourse][0].Label)
}

func TestCommercialDashboardNeedsCommercialForAdmin(t *testing.T) {
	user := &models.User{Role: models.RoleAdmin}
	user.ID = 1
	app := newReportApp(new(mockReportStore), nil, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/dashboard/commercial", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReportStoreErrorIs500(t *testing.T) {
	store := new(mockReportStore)
	store.On("FindLeads", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	user := &models.User{Role: models.RoleAdmin}
	user.ID = 1
	app := newReportApp(store, nil, user)

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/funnel", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
