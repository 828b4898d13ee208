package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"funnelcrm/events"
	"funnelcrm/models"
	"funnelcrm/utils"
)

// Consumer is the receiving side of the event bus.
type Consumer interface {
	Consume(ctx context.Context, h events.Handler) error
}

// NotificationWorker turns lead lifecycle events into notifications.
type NotificationWorker struct {
	Bus    Consumer
	Store  Store
	Pusher Pusher
	Logger *logrus.Entry
}

func NewNotificationWorker(bus Consumer, store Store, pusher Pusher, logger *logrus.Entry) *NotificationWorker {
	return &NotificationWorker{Bus: bus, Store: store, Pusher: pusher, Logger: logger}
}

func (nw *NotificationWorker) Start(ctx context.Context) {
	nw.Logger.Info("Notification worker started")
	err := nw.Bus.Consume(ctx, nw.Handle)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, events.ErrClosed) {
		utils.LogError(nw.Logger, "notification_consumer_stopped", err, nil)
		return
	}
	nw.Logger.Info("Notification worker shutting down...")
}

// Handle processes one event. Unknown event types are ignored.
func (nw *NotificationWorker) Handle(ctx context.Context, e events.Event) error {
	var err error
	switch e.Type {
	case events.LeadAssigned:
		err = nw.leadAssigned(ctx, e)
	case events.LeadStatusChanged:
		err = nw.statusChanged(ctx, e)
	case events.ImportApplied:
		err = nw.notifyAdmins(ctx, models.Notification{
			Type:    models.NotificationImportApplied,
			Title:   "Enrollment import applied",
			Message: e.Summary,
		}, e.ActorID)
	default:
		nw.Logger.WithField("event_type", e.Type).Debug("Ignoring event")
		return nil
	}
	if err != nil {
		utils.LogError(nw.Logger, "notification_failed", err, map[string]interface{}{
			"event_id":   e.ID,
			"event_type": e.Type,
		})
	}
	return err
}

func (nw *NotificationWorker) leadAssigned(ctx context.Context, e events.Event) error {
	// self-assignment needs no alert
	if e.UserID == nil || (e.ActorID != nil && *e.ActorID == *e.UserID) {
		return nil
	}
	return notify(ctx, nw.Store, nw.Pusher, models.Notification{
		UserID:  *e.UserID,
		Type:    models.NotificationLeadAssigned,
		Title:   "New lead assigned",
		Message: fmt.Sprintf("%s has been assigned to you", e.LeadName),
		LeadID:  e.LeadID,
	})
}

func (nw *NotificationWorker) statusChanged(ctx context.Context, e events.Event) error {
	if e.To != models.StatusEnrolled || e.From == models.StatusEnrolled {
		return nil
	}
	return nw.notifyAdmins(ctx, models.Notification{
		Type:    models.NotificationLeadEnrolled,
		Title:   "Lead enrolled",
		Message: fmt.Sprintf("%s is now enrolled", e.LeadName),
		LeadID:  e.LeadID,
	}, e.ActorID)
}

// notifyAdmins sends n to every active admin except the one who caused it.
func (nw *NotificationWorker) notifyAdmins(ctx context.Context, n models.Notification, actorID *uint) error {
	admins, err := nw.Store.AdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}
	for _, id := range admins {
		if actorID != nil && *actorID == id {
			continue
		}
		n.UserID = id
		if err := notify(ctx, nw.Store, nw.Pusher, n); err != nil {
			return err
		}
	}
	return nil
}
