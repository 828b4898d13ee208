package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"funnelcrm/events"
	"funnelcrm/middleware"
	"funnelcrm/reconcile"
	"funnelcrm/utils"
)

// ImportStore is what the import endpoints need from the lead store.
type ImportStore interface {
	reconcile.Catalog
	reconcile.Store
}

type ReconcileController struct {
	Store    ImportStore
	Events   events.Publisher
	MaxBytes int64
	Location *time.Location
	Logger   *logrus.Entry
	now      func() time.Time
}

func NewReconcileController(store ImportStore, publisher events.Publisher, maxBytes int64, loc *time.Location, logger *logrus.Entry) *ReconcileController {
	return &ReconcileController{
		Store:    store,
		Events:   publisher,
		MaxBytes: maxBytes,
		Location: loc,
		Logger:   logger,
		now:      time.Now,
	}
}

// Preview parses an uploaded enrollment export and returns the plan of
// changes. Nothing is written.
func (rc *ReconcileController) Preview(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing file", err)
	}
	if rc.MaxBytes > 0 && file.Size > rc.MaxBytes {
		return utils.ErrorResponse(c, fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds %d bytes", rc.MaxBytes), nil)
	}

	f, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unreadable file", err)
	}
	defer f.Close()

	source := filepath.Base(file.Filename)
	rows, err := reconcile.Read(source, f)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Could not parse file", err)
	}

	plan, err := reconcile.Prepare(c.UserContext(), source, rows, rc.Store, rc.Location, rc.now())
	if err != nil {
		return fail(c, rc.Logger, err, "Failed to build import plan")
	}

	utils.LogEvent(rc.Logger, "import_previewed", map[string]interface{}{
		"plan_id":    plan.ID,
		"source":     source,
		"rows":       len(rows),
		"rejections": len(plan.Rejections),
		"summary":    plan.Summary,
	})
	return c.JSON(utils.SuccessResponse(plan))
}

// Apply writes a previewed plan. REVIEW items are written only when the
// client marked them approved.
func (rc *ReconcileController) Apply(c *fiber.Ctx) error {
	user := currentUser(c)

	var plan reconcile.Plan
	if err := c.BodyParser(&plan); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid plan", err)
	}
	if plan.ID == "" || len(plan.Items) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Plan has no items", nil)
	}

	result, err := reconcile.Apply(c.UserContext(), plan, rc.Store, &user.ID, rc.now())
	if err != nil {
		return fail(c, rc.Logger, err, "Import interrupted")
	}
	middleware.RecordReconcileChanges(result.Created, result.Updated, result.Failed)

	utils.LogEvent(rc.Logger, "import_applied", map[string]interface{}{
		"plan_id":    plan.ID,
		"source":     plan.Source,
		"applied_by": user.ID,
		"created":    result.Created,
		"updated":    result.Updated,
		"failed":     result.Failed,
	})

	if result.Changed() > 0 && rc.Events != nil {
		e := events.New(events.ImportApplied)
		e.ActorID = &user.ID
		e.Summary = fmt.Sprintf("%s: %d created, %d updated, %d failed", plan.Source, result.Created, result.Updated, result.Failed)
		// the request may be gone by the time the bus confirms
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := rc.Events.Publish(ctx, e); err != nil {
			utils.LogError(rc.Logger, "event_publish_failed", err, map[string]interface{}{"plan_id": plan.ID})
		}
	}
	return c.JSON(utils.SuccessResponse(result))
}
