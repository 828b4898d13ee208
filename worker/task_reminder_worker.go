package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"funnelcrm/models"
	"funnelcrm/utils"
)

type TaskReminderWorker struct {
	Store    Store
	Pusher   Pusher
	Mailer   utils.MailSender // nil disables reminder e-mails
	AppURL   string
	Window   time.Duration
	Tick     time.Duration
	// Location is the zone due times are written in.
	Location *time.Location
	Logger   *logrus.Entry
	now      func() time.Time
}

func NewTaskReminderWorker(store Store, pusher Pusher, mailer utils.MailSender, appURL string, window, tick time.Duration, loc *time.Location, logger *logrus.Entry) *TaskReminderWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &TaskReminderWorker{
		Store:    store,
		Pusher:   pusher,
		Mailer:   mailer,
		AppURL:   appURL,
		Window:   window,
		Tick:     tick,
		Location: loc,
		Logger:   logger,
		now:      time.Now,
	}
}

func (tw *TaskReminderWorker) Start(ctx context.Context) {
	tw.Logger.WithFields(logrus.Fields{"window": tw.Window, "tick": tw.Tick}).Info("Task reminder worker started")

	ticker := time.NewTicker(tw.Tick)
	defer ticker.Stop()

	tw.RemindDue(ctx)
	for {
		select {
		case <-ctx.Done():
			tw.Logger.Info("Task reminder worker shutting down...")
			return
		case <-ticker.C:
			tw.RemindDue(ctx)
		}
	}
}

// RemindDue notifies the assignee of every open task due within the window.
// It returns the number of reminders sent.
func (tw *TaskReminderWorker) RemindDue(ctx context.Context) int {
	now := tw.now()
	tasks, err := tw.Store.DueTasks(ctx, now.Add(tw.Window))
	if err != nil {
		utils.LogError(tw.Logger, "task_reminder_query_failed", err, nil)
		return 0
	}

	sent := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		reminded, err := tw.remind(ctx, task, now)
		if err != nil {
			utils.LogError(tw.Logger, "task_reminder_failed", err, map[string]interface{}{"task_id": task.ID})
			continue
		}
		if reminded {
			sent++
		}
	}
	if sent > 0 {
		tw.Logger.WithField("count", sent).Info("Task reminders sent")
	}
	return sent
}

func (tw *TaskReminderWorker) remind(ctx context.Context, task models.Task, now time.Time) (bool, error) {
	// claim first so two instances never remind the same task twice
	claimed, err := tw.Store.MarkReminded(ctx, task.ID, now)
	if err != nil {
		return false, fmt.Errorf("mark reminded: %w", err)
	}
	if !claimed {
		return false, nil
	}

	leadName := ""
	if task.Lead != nil {
		leadName = task.Lead.Name
	}

	dueAt := task.DueAt.In(tw.Location)
	message := "Due " + dueAt.Format("02/01/2006 15:04")
	if leadName != "" {
		message += " · " + leadName
	}
	n := models.Notification{
		UserID:  task.AssignedToID,
		Type:    models.NotificationTaskDue,
		Title:   task.Title,
		Message: message,
		LeadID:  task.LeadID,
	}
	if err := notify(ctx, tw.Store, tw.Pusher, n); err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}

	if tw.Mailer == nil || task.AssignedTo == nil || task.AssignedTo.Email == "" {
		return true, nil
	}
	link := fmt.Sprintf("%s/tasks/%d", tw.AppURL, task.ID)
	data := utils.NewTaskReminderData(task.AssignedTo.Name, task.Title, task.Description, leadName, link, dueAt, now)
	err = tw.Mailer.Send(utils.EmailData{
		Subject:  "Reminder: " + task.Title,
		To:       []string{task.AssignedTo.Email},
		Template: "task_reminder",
		Data:     data,
	})
	if err != nil {
		// the in-app notification already went out
		utils.LogError(tw.Logger, "task_reminder_email_failed", err, map[string]interface{}{"task_id": task.ID})
	}
	return true, nil
}
