package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelcrm/models"
)

func leadsWithStatuses(spec map[models.LeadStatus]int) []LeadFact {
	var leads []LeadFact
	for status, n := range spec {
		for i := 0; i < n; i++ {
			leads = append(leads, LeadFact{ID: uint(len(leads) + 1), Status: status})
		}
	}
	return leads
}

func TestAggregateFunnelScenario(t *testing.T) {
	leads := leadsWithStatuses(map[models.LeadStatus]int{
		models.StatusNew:         3,
		models.StatusContacted:   2,
		models.StatusNegotiating: 1,
		models.StatusEnrolled:    3,
		models.StatusLost:        1,
	})

	report := AggregateFunnel(leads)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 30.0, report.ConversionRate)
	assert.Equal(t, 33.33, report.DropoffBetween(models.StatusNew, models.StatusContacted))
	assert.Equal(t, 50.0, report.DropoffBetween(models.StatusContacted, models.StatusNegotiating))
	// more leads sit in ISCRITTO than in IN_TRATTATIVA
	assert.Equal(t, -200.0, report.DropoffBetween(models.StatusNegotiating, models.StatusEnrolled))

	assert.Equal(t, 1, report.Lost.Count)
	assert.Equal(t, 10.0, report.Lost.Percentage)
	assert.Len(t, report.Dropoff, 3)
}

func TestAggregateFunnelStageOrder(t *testing.T) {
	report := AggregateFunnel(nil)
	require.Len(t, report.Stages, 5)
	for i, status := range models.LeadStatuses {
		assert.Equal(t, status, report.Stages[i].Status)
	}
}

func TestAggregateFunnelEmpty(t *testing.T) {
	report := AggregateFunnel([]LeadFact{})

	assert.Zero(t, report.Total)
	assert.Zero(t, report.ConversionRate)
	assert.Zero(t, report.Lost.Percentage)
	for _, s := range report.Stages {
		assert.Zero(t, s.Count)
		assert.False(t, math.IsNaN(s.Percentage))
		assert.Zero(t, s.Percentage)
	}
	for _, d := range report.Dropoff {
		assert.False(t, math.IsNaN(d.Percentage))
		assert.Zero(t, d.Percentage)
	}
}

func TestAggregateFunnelCountsEveryLeadOnce(t *testing.T) {
	sets := [][]LeadFact{
		leadsWithStatuses(map[models.LeadStatus]int{models.StatusEnrolled: 4}),
		leadsWithStatuses(map[models.LeadStatus]int{models.StatusNew: 1, models.StatusLost: 7}),
		append(leadsWithStatuses(map[models.LeadStatus]int{models.StatusContacted: 2}), LeadFact{Status: "ARCHIVED"}),
	}
	for _, leads := range sets {
		report := AggregateFunnel(leads)
		sum := 0
		for _, s := range report.Stages {
			sum += s.Count
		}
		assert.Equal(t, len(leads), sum)
	}
}

func TestAggregateFunnelSingleStageNoNaN(t *testing.T) {
	report := AggregateFunnel(leadsWithStatuses(map[models.LeadStatus]int{models.StatusEnrolled: 2}))

	assert.Equal(t, 100.0, report.ConversionRate)
	assert.Zero(t, report.DropoffBetween(models.StatusNew, models.StatusContacted))
	assert.Zero(t, report.DropoffBetween(models.StatusNegotiating, models.StatusEnrolled))
}
