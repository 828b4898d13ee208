package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"funnelcrm/analytics"
	"funnelcrm/models"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)
	return db
}

func TestLeadFilterScope(t *testing.T) {
	db := dryRunDB(t)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	commercial := uint(7)
	f := LeadFilter{
		Range:        analytics.DateRange{Start: &start},
		AssignedToID: &commercial,
		Platform:     models.PlatformMeta,
		Status:       models.StatusEnrolled,
	}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&models.Lead{}).Scopes(f.Scope).Find(&[]models.Lead{})
	})

	assert.Contains(t, sql, "leads.created_at >=")
	assert.Contains(t, sql, "leads.assigned_to_id = 7")
	assert.Contains(t, sql, "leads.status = 'ISCRITTO'")
	assert.Contains(t, sql, "leads.campaign_id IN (SELECT")
	assert.Contains(t, sql, "FROM \"campaigns\" WHERE platform = 'META'")
	assert.Contains(t, sql, "\"leads\".\"deleted_at\" IS NULL")
	assert.NotContains(t, sql, "course_id")
}

func TestLeadFilterWithoutAssignee(t *testing.T) {
	commercial := uint(7)
	f := LeadFilter{AssignedToID: &commercial, Status: models.StatusNew}
	g := f.WithoutAssignee()
	assert.Nil(t, g.AssignedToID)
	assert.Equal(t, models.StatusNew, g.Status)
	assert.NotNil(t, f.AssignedToID)
}

func TestSpendFilterScopeOverlap(t *testing.T) {
	db := dryRunDB(t)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	course := uint(3)
	f := SpendFilterFor(LeadFilter{Range: analytics.DateRange{Start: &start, End: &end}, CourseID: &course, Status: models.StatusLost})

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&models.CampaignSpend{}).Scopes(f.Scope).Find(&[]models.CampaignSpend{})
	})

	assert.Contains(t, sql, "campaign_spends.start_date <=")
	assert.Contains(t, sql, "(campaign_spends.end_date IS NULL OR campaign_spends.end_date >=")
	assert.Contains(t, sql, "campaign_spends.campaign_id IN (SELECT")
	assert.Contains(t, sql, "FROM \"campaigns\" WHERE course_id = 3")
	assert.NotContains(t, sql, "status")
}
