package worker

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"funnelcrm/events"
	"funnelcrm/models"
	"funnelcrm/utils"
)

type mockStore struct {
	mock.Mock
	created []models.Notification
}

func (m *mockStore) DueTasks(ctx context.Context, until time.Time) ([]models.Task, error) {
	args := m.Called(ctx, until)
	tasks, _ := args.Get(0).([]models.Task)
	return tasks, args.Error(1)
}

func (m *mockStore) MarkReminded(ctx context.Context, taskID uint, at time.Time) (bool, error) {
	args := m.Called(ctx, taskID, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.created = append(m.created, *n)
	return nil
}

func (m *mockStore) AdminIDs(ctx context.Context) ([]uint, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]uint)
	return ids, args.Error(1)
}

type recordingPusher struct {
	pushed map[uint][]models.Notification
}

func (p *recordingPusher) Push(userID uint, n models.Notification) {
	if p.pushed == nil {
		p.pushed = make(map[uint][]models.Notification)
	}
	p.pushed[userID] = append(p.pushed[userID], n)
}

type recordingMailer struct {
	sent []utils.EmailData
	err  error
}

func (m *recordingMailer) Send(data utils.EmailData) error {
	m.sent = append(m.sent, data)
	return m.err
}

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func dueTask(id uint, title string, assignee *models.User) models.Task {
	t := models.Task{
		Title:        title,
		DueAt:        time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		AssignedToID: assignee.ID,
		AssignedTo:   assignee,
	}
	t.ID = id
	return t
}

func TestRemindDueNotifiesAndMails(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	laura := &models.User{Name: "Laura", Email: "laura@example.com"}
	laura.ID = 7
	leadID := uint(42)
	task := dueTask(1, "Call back Mario", laura)
	task.LeadID = &leadID
	task.Lead = &models.Lead{Name: "Mario Rossi"}

	store := new(mockStore)
	store.On("DueTasks", mock.Anything, now.Add(time.Hour)).Return([]models.Task{task}, nil).Once()
	store.On("MarkReminded", mock.Anything, uint(1), now).Return(true, nil).Once()
	pusher := &recordingPusher{}
	mailer := &recordingMailer{}

	w := NewTaskReminderWorker(store, pusher, mailer, "https://crm.example.com", time.Hour, time.Minute, time.UTC, testLogger())
	w.now = func() time.Time { return now }

	assert.Equal(t, 1, w.RemindDue(context.Background()))
	store.AssertExpectations(t)

	require.Len(t, store.created, 1)
	n := store.created[0]
	assert.Equal(t, uint(7), n.UserID)
	assert.Equal(t, models.NotificationTaskDue, n.Type)
	assert.Equal(t, "Call back Mario", n.Title)
	assert.Contains(t, n.Message, "Mario Rossi")
	assert.Equal(t, &leadID, n.LeadID)
	assert.Len(t, pusher.pushed[7], 1)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"laura@example.com"}, mailer.sent[0].To)
	assert.Equal(t, "task_reminder", mailer.sent[0].Template)
	data := mailer.sent[0].Data.(utils.TaskReminderData)
	assert.Equal(t, "https://crm.example.com/tasks/1", data.Link)
	assert.Equal(t, "in 30.0 minutes", data.DueIn)
}

func TestRemindDueWritesLocalTime(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	laura := &models.User{Name: "Laura", Email: "laura@example.com"}
	laura.ID = 7

	store := new(mockStore)
	store.On("DueTasks", mock.Anything, mock.Anything).Return([]models.Task{dueTask(1, "Call back", laura)}, nil).Once()
	store.On("MarkReminded", mock.Anything, uint(1), now).Return(true, nil).Once()
	mailer := &recordingMailer{}

	w := NewTaskReminderWorker(store, nil, mailer, "", time.Hour, time.Minute, rome, testLogger())
	w.now = func() time.Time { return now }
	require.Equal(t, 1, w.RemindDue(context.Background()))

	// 10:00 UTC is 11:00 in Rome in March
	require.Len(t, store.created, 1)
	assert.Equal(t, "Due 10/03/2025 11:00", store.created[0].Message)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "10/03/2025 11:00", mailer.sent[0].Data.(utils.TaskReminderData).DueAt)
}

func TestRemindDueSkipsClaimedTasks(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	laura := &models.User{Name: "Laura"}
	laura.ID = 7

	store := new(mockStore)
	store.On("DueTasks", mock.Anything, mock.Anything).
		Return([]models.Task{dueTask(1, "a", laura), dueTask(2, "b", laura)}, nil).Once()
	store.On("MarkReminded", mock.Anything, uint(1), now).Return(false, nil).Once()
	store.On("MarkReminded", mock.Anything, uint(2), now).Return(false, errors.New("db down")).Once()

	w := NewTaskReminderWorker(store, nil, nil, "", time.Hour, time.Minute, time.UTC, testLogger())
	w.now = func() time.Time { return now }

	assert.Zero(t, w.RemindDue(context.Background()))
	assert.Empty(t, store.created)
}

func TestRemindDueMailFailureKeepsNotification(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	laura := &models.User{Name: "Laura", Email: "laura@example.com"}
	laura.ID = 7

	store := new(mockStore)
	store.On("DueTasks", mock.Anything, mock.Anything).Return([]models.Task{dueTask(1, "a", laura)}, nil).Once()
	store.On("MarkReminded", mock.Anything, uint(1), now).Return(true, nil).Once()
	mailer := &recordingMailer{err: errors.New("smtp down")}

	w := NewTaskReminderWorker(store, nil, mailer, "", time.Hour, time.Minute, time.UTC, testLogger())
	w.now = func() time.Time { return now }

	assert.Equal(t, 1, w.RemindDue(context.Background()))
	assert.Len(t, store.created, 1)
}

func TestNotificationWorkerLeadAssigned(t *testing.T) {
	store := new(mockStore)
	pusher := &recordingPusher{}
	w := NewNotificationWorker(nil, store, pusher, testLogger())

	actor, assignee, leadID := uint(1), uint(7), uint(42)
	e := events.New(events.LeadAssigned)
	e.ActorID, e.UserID, e.LeadID, e.LeadName = &actor, &assignee, &leadID, "Mario Rossi"

	require.NoError(t, w.Handle(context.Background(), e))
	require.Len(t, store.created, 1)
	assert.Equal(t, uint(7), store.created[0].UserID)
	assert.Equal(t, models.NotificationLeadAssigned, store.created[0].Type)
	assert.Contains(t, store.created[0].Message, "Mario Rossi")
	assert.Len(t, pusher.pushed[7], 1)

	// a commercial creating their own lead is not notified
	e.ActorID = &assignee
	require.NoError(t, w.Handle(context.Background(), e))
	assert.Len(t, store.created, 1)
}

func TestNotificationWorkerEnrollmentNotifiesOtherAdmins(t *testing.T) {
	store := new(mockStore)
	store.On("AdminIDs", mock.Anything).Return([]uint{1, 2, 3}, nil).Once()
	w := NewNotificationWorker(nil, store, nil, testLogger())

	actor := uint(2)
	e := events.New(events.LeadStatusChanged)
	e.ActorID, e.LeadName = &actor, "Mario Rossi"
	e.From, e.To = models.StatusNegotiating, models.StatusEnrolled

	require.NoError(t, w.Handle(context.Background(), e))
	require.Len(t, store.created, 2)
	assert.Equal(t, uint(1), store.created[0].UserID)
	assert.Equal(t, uint(3), store.created[1].UserID)
	assert.Equal(t, models.NotificationLeadEnrolled, store.created[0].Type)
	store.AssertExpectations(t)
}

func TestNotificationWorkerIgnoresOtherTransitions(t *testing.T) {
	store := new(mockStore)
	w := NewNotificationWorker(nil, store, nil, testLogger())

	e := events.New(events.LeadStatusChanged)
	e.From, e.To = models.StatusNew, models.StatusContacted
	require.NoError(t, w.Handle(context.Background(), e))

	require.NoError(t, w.Handle(context.Background(), events.Event{Type: "lead.unknown"}))
	assert.Empty(t, store.created)
	store.AssertNotCalled(t, "AdminIDs", mock.Anything)
}

func TestNotificationWorkerAdminLookupFails(t *testing.T) {
	store := new(mockStore)
	store.On("AdminIDs", mock.Anything).Return(nil, errors.New("db down")).Once()
	w := NewNotificationWorker(nil, store, nil, testLogger())

	e := events.New(events.ImportApplied)
	e.Summary = "file.csv: 2 created"
	assert.Error(t, w.Handle(context.Background(), e))
}

func TestNotificationWorkerConsumesChannelBus(t *testing.T) {
	store := new(mockStore)
	bus := events.NewChannelBus(4)
	w := NewNotificationWorker(bus, store, nil, testLogger())

	assignee := uint(7)
	e := events.New(events.LeadAssigned)
	e.UserID = &assignee
	require.NoError(t, bus.Publish(context.Background(), e))
	require.NoError(t, bus.Close())

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after the bus closed")
	}
	assert.Len(t, store.created, 1)
}
