// Package worker runs the background jobs: task reminders and the
// notification consumer.
package worker

import (
	"context"
	"time"

	"funnelcrm/models"
)

// Pusher delivers a stored notification to the user's open connections.
type Pusher interface {
	Push(userID uint, n models.Notification)
}

// Store is the persistence the workers need.
type Store interface {
	DueTasks(ctx context.Context, until time.Time) ([]models.Task, error)
	MarkReminded(ctx context.Context, taskID uint, at time.Time) (bool, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	AdminIDs(ctx context.Context) ([]uint, error)
}

// notify stores n and pushes it when a pusher is set.
func notify(ctx context.Context, store Store, pusher Pusher, n models.Notification) error {
	if err := store.CreateNotification(ctx, &n); err != nil {
		return err
	}
	if pusher != nil {
		pusher.Push(n.UserID, n)
	}
	return nil
}
