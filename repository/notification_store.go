package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"funnelcrm/models"
)

// NotificationStore backs the background workers: due tasks, admin lookup and
// notification rows.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// maxRemindersPerTick bounds one reminder pass; the rest wait for the next tick.
const maxRemindersPerTick = 200

// DueTasks returns open tasks due before until that were never reminded,
// with their assignee and lead loaded.
func (s *NotificationStore) DueTasks(ctx context.Context, until time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Preload("AssignedTo").
		Preload("Lead", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name") }).
		Where("completed = ? AND reminded_at IS NULL AND due_at <= ?", false, until).
		Order("due_at ASC").
		Limit(maxRemindersPerTick).
		Find(&tasks).Error
	return tasks, err
}

// MarkReminded stamps the task so it is not reminded again. It reports false
// when another pass got there first.
func (s *NotificationStore) MarkReminded(ctx context.Context, taskID uint, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND reminded_at IS NULL", taskID).
		Update("reminded_at", at)
	return result.RowsAffected > 0, result.Error
}

func (s *NotificationStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

// AdminIDs lists active admins.
func (s *NotificationStore) AdminIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
