package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"funnelcrm/analytics"
	"funnelcrm/middleware"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

// ReportStore is the read side of the lead store used by reports.
type ReportStore interface {
	FindLeads(ctx context.Context, f repository.LeadFilter) ([]analytics.LeadFact, error)
	FindSpendRecords(ctx context.Context, f repository.SpendFilter) ([]analytics.SpendRecord, error)
	CampaignIndex(ctx context.Context) (analytics.CampaignIndex, error)
	DimensionLabels(ctx context.Context, dim analytics.Dimension) (map[string]string, error)
	CurrentGoal(ctx context.Context, userID uint, at time.Time, loc *time.Location) (*repository.GoalProgress, error)
}

type AnalyticsController struct {
	Store    ReportStore
	Cache    repository.ReportCache
	CacheTTL time.Duration
	Calc     *analytics.Calculator
	Location *time.Location
	Logger   *logrus.Entry
	now      func() time.Time
}

// NewAnalyticsController builds the report handlers. cache may be nil.
func NewAnalyticsController(store ReportStore, cache repository.ReportCache, cacheTTL time.Duration, loc *time.Location, logger *logrus.Entry) *AnalyticsController {
	return &AnalyticsController{
		Store:    store,
		Cache:    cache,
		CacheTTL: cacheTTL,
		Calc:     analytics.NewCalculator(loc),
		Location: loc,
		Logger:   logger,
		now:      time.Now,
	}
}

type ProfitabilityGroup struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	analytics.Profitability
}

type ProfitabilityReport struct {
	GroupBy analytics.Dimension     `json:"group_by,omitempty"`
	Range   analytics.DateRange     `json:"range"`
	Totals  analytics.Profitability `json:"totals"`
	Groups  []ProfitabilityGroup    `json:"groups,omitempty"`
}

type Dashboard struct {
	Role       models.Role                                  `json:"role"`
	Range      analytics.DateRange                          `json:"range"`
	Funnel     analytics.FunnelReport                       `json:"funnel"`
	Totals     analytics.Profitability                      `json:"totals"`
	Breakdowns map[analytics.Dimension][]ProfitabilityGroup `json:"breakdowns"`
	Goal       *repository.GoalProgress                     `json:"goal,omitempty"`
}

type reportData struct {
	leads     []analytics.LeadFact
	spend     []analytics.SpendRecord
	campaigns analytics.CampaignIndex
	labels    map[analytics.Dimension]map[string]string
}

// load runs the lead, spend and lookup queries of one report concurrently.
// When the filter names a commercial, spend is narrowed to that commercial's
// share of each campaign, counted over the leads that pass the rest of the
// filter (status included).
func (ac *AnalyticsController) load(ctx context.Context, f repository.LeadFilter, withSpend bool, dims ...analytics.Dimension) (*reportData, error) {
	d := &reportData{labels: make(map[analytics.Dimension]map[string]string, len(dims))}
	scoped := f.AssignedToID
	leadFilter := f
	if withSpend && scoped != nil {
		leadFilter = f.WithoutAssignee()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		leads, err := ac.Store.FindLeads(gctx, leadFilter)
		d.leads = leads
		return err
	})
	if withSpend {
		g.Go(func() error {
			spend, err := ac.Store.FindSpendRecords(gctx, repository.SpendFilterFor(f))
			d.spend = spend
			return err
		})
		g.Go(func() error {
			index, err := ac.Store.CampaignIndex(gctx)
			d.campaigns = index
			return err
		})
	}
	labels := make([]map[string]string, len(dims))
	for i, dim := range dims {
		i, dim := i, dim
		g.Go(func() error {
			l, err := ac.Store.DimensionLabels(gctx, dim)
			labels[i] = l
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, dim := range dims {
		d.labels[dim] = labels[i]
	}

	if withSpend && scoped != nil {
		d.spend = analytics.SpendShareOf(*scoped, d.leads, d.spend)
		d.leads = analytics.OwnedBy(*scoped, d.leads)
	}
	return d, nil
}

func (ac *AnalyticsController) groups(d *reportData, dim analytics.Dimension, r analytics.DateRange) ([]ProfitabilityGroup, error) {
	rows, err := ac.Calc.ProfitabilityBy(dim, d.leads, d.spend, d.campaigns, r)
	if err != nil {
		return nil, err
	}
	labels := d.labels[dim]
	out := make([]ProfitabilityGroup, len(rows))
	for i, row := range rows {
		out[i] = ProfitabilityGroup{Key: row.Key, Label: labels[row.Key], Profitability: row.Profitability}
	}
	return out, nil
}

// respond serves data from the report cache when possible. Keys include the
// user id, so role scoping is never shared between callers.
func (ac *AnalyticsController) respond(c *fiber.Ctx, user *models.User, build func(ctx context.Context) (interface{}, error)) error {
	ctx := c.UserContext()
	key := reportCacheKey(c.Path(), user.ID, string(c.Request().URI().QueryString()))

	if ac.Cache != nil {
		body, ok, err := ac.Cache.Get(ctx, key)
		if err != nil {
			ac.Logger.WithError(err).Warn("Report cache read failed")
		}
		middleware.RecordReportCache(ok)
		if ok {
			c.Set("X-Cache", "HIT")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(body)
		}
	}

	data, err := build(ctx)
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to build report")
	}

	if ac.Cache == nil {
		return c.JSON(utils.SuccessResponse(data))
	}
	body, err := json.Marshal(utils.SuccessResponse(data))
	if err != nil {
		return fail(c, ac.Logger, err, "Failed to encode report")
	}
	if err := ac.Cache.Set(ctx, key, body, ac.CacheTTL); err != nil {
		ac.Logger.WithError(err).Warn("Report cache write failed")
	}
	c.Set("X-Cache", "MISS")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// reportCacheKey sorts the query so equivalent requests share an entry.
func reportCacheKey(path string, userID uint, rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Sprintf("%s:%d:%s", path, userID, rawQuery)
	}
	return fmt.Sprintf("%s:%d:%s", path, userID, values.Encode())
}

// Funnel returns the snapshot funnel of the filtered leads
func (ac *AnalyticsController) Funnel(c *fiber.Ctx) error {
	user := currentUser(c)
	f, err := leadFilterFromQuery(c, user, ac.Location)
	if err != nil {
		return fail(c, ac.Logger, err, "Invalid filter")
	}

	return ac.respond(c, user, func(ctx context.Context) (interface{}, error) {
		d, err := ac.load(ctx, f, false)
		if err != nil {
			return nil, err
		}
		return ac.Calc.AggregateFunnel(d.leads), nil
	})
}

// Profitability returns totals and, with group_by, one row per partition
func (ac *AnalyticsController) Profitability(c *fiber.Ctx) error {
	user := currentUser(c)
	f, err := leadFilterFromQuery(c, user, ac.Location)
	if err != nil {
		return fail(c, ac.Logger, err, "Invalid filter")
	}

	var dim analytics.Dimension
	if g := c.Query("group_by"); g != "" {
		if dim, err = analytics.ParseDimension(g); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid group_by", err)
		}
		if dim == analytics.DimensionCommercial && user.IsMarketing() {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Grouping by commercial is not allowed", nil)
		}
	}

	return ac.respond(c, user, func(ctx context.Context) (interface{}, error) {
		var dims []analytics.Dimension
		if dim != "" {
			dims = append(dims, dim)
		}
		d, err := ac.load(ctx, f, true, dims...)
		if err != nil {
			return nil, err
		}

		report := ProfitabilityReport{
			GroupBy: dim,
			Range:   f.Range,
			Totals:  ac.Calc.ComputeProfitability(d.leads, d.spend, f.Range),
		}
		if dim != "" {
			if report.Groups, err = ac.groups(d, dim, f.Range); err != nil {
				return nil, err
			}
		}
		return report, nil
	})
}

func (ac *AnalyticsController) AdminDashboard(c *fiber.Ctx) error {
	return ac.dashboard(c, models.RoleAdmin, analytics.DimensionCommercial, analytics.DimensionCourse)
}

func (ac *AnalyticsController) MarketingDashboard(c *fiber.Ctx) error {
	return ac.dashboard(c, models.RoleMarketing, analytics.DimensionPlatform, analytics.DimensionCampaign, analytics.DimensionCourse)
}

// CommercialDashboard shows one commercial's leads and goal. Admins pick the
// commercial with assigned_to_id.
func (ac *AnalyticsController) CommercialDashboard(c *fiber.Ctx) error {
	return ac.dashboard(c, models.RoleCommercial, analytics.DimensionCourse)
}

func (ac *AnalyticsController) dashboard(c *fiber.Ctx, kind models.Role, dims ...analytics.Dimension) error {
	user := currentUser(c)
	f, err := leadFilterFromQuery(c, user, ac.Location)
	if err != nil {
		return fail(c, ac.Logger, err, "Invalid filter")
	}
	if kind == models.RoleCommercial && f.AssignedToID == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "assigned_to_id is required", nil)
	}

	return ac.respond(c, user, func(ctx context.Context) (interface{}, error) {
		d, err := ac.load(ctx, f, true, dims...)
		if err != nil {
			return nil, err
		}

		dash := Dashboard{
			Role:       kind,
			Range:      f.Range,
			Funnel:     ac.Calc.AggregateFunnel(d.leads),
			Totals:     ac.Calc.ComputeProfitability(d.leads, d.spend, f.Range),
			Breakdowns: make(map[analytics.Dimension][]ProfitabilityGroup, len(dims)),
		}
		for _, dim := range dims {
			if dash.Breakdowns[dim], err = ac.groups(d, dim, f.Range); err != nil {
				return nil, err
			}
		}
		if kind == models.RoleCommercial {
			if dash.Goal, err = ac.Store.CurrentGoal(ctx, *f.AssignedToID, ac.now(), ac.Location); err != nil {
				return nil, err
			}
		}
		return dash, nil
	})
}
