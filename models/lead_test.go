package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeadStatus(t *testing.T) {
	tests := map[string]LeadStatus{
		"NUOVO":         StatusNew,
		"Contattato":    StatusContacted,
		"in trattativa": StatusNegotiating,
		"IN_TRATTATIVA": StatusNegotiating,
		"Iscritto":      StatusEnrolled,
		"enrolled":      StatusEnrolled,
		"perso":         StatusLost,
	}
	for in, want := range tests {
		got, err := ParseLeadStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLeadStatus("maybe")
	assert.Error(t, err)
}

func TestApplyStatusEnrollCapturesCoursePrice(t *testing.T) {
	at := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	lead := &Lead{Status: StatusNew}

	require.NoError(t, lead.ApplyStatus(StatusEnrolled, at, 1490))

	assert.Equal(t, StatusEnrolled, lead.Status)
	assert.True(t, lead.Enrolled)
	assert.True(t, lead.Contacted)
	assert.Equal(t, 1490.0, lead.Revenue)
	require.NotNil(t, lead.EnrolledAt)
	assert.Equal(t, at, *lead.EnrolledAt)
	require.NotNil(t, lead.ContactedAt)
	assert.True(t, lead.Consistent())
}

func TestApplyStatusKeepsExplicitRevenue(t *testing.T) {
	lead := &Lead{Status: StatusNegotiating}
	require.NoError(t, lead.ApplyStatus(StatusEnrolled, time.Now(), 1000))
	assert.Equal(t, 1000.0, lead.Revenue)

	// a later course price edit does not touch past revenue
	require.NoError(t, lead.ApplyStatus(StatusEnrolled, time.Now(), 2000))
	assert.Equal(t, 1000.0, lead.Revenue)
}

func TestApplyStatusLeavingEnrollmentClearsRevenue(t *testing.T) {
	at := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	lead := &Lead{}
	require.NoError(t, lead.ApplyStatus(StatusEnrolled, at, 800))

	require.NoError(t, lead.ApplyStatus(StatusLost, at.Add(24*time.Hour), 800))
	assert.False(t, lead.Enrolled)
	assert.Zero(t, lead.Revenue)
	assert.Nil(t, lead.EnrolledAt)
	require.NotNil(t, lead.LostAt)
	assert.True(t, lead.Consistent())

	require.NoError(t, lead.ApplyStatus(StatusNew, at.Add(48*time.Hour), 800))
	assert.False(t, lead.Contacted)
	assert.Nil(t, lead.ContactedAt)
	assert.Nil(t, lead.LostAt)
	assert.True(t, lead.Consistent())
}

func TestApplyStatusKeepsFirstContactTime(t *testing.T) {
	first := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	lead := &Lead{}
	require.NoError(t, lead.ApplyStatus(StatusContacted, first, 0))
	require.NoError(t, lead.ApplyStatus(StatusNegotiating, first.Add(72*time.Hour), 0))

	require.NotNil(t, lead.ContactedAt)
	assert.Equal(t, first, *lead.ContactedAt)
}

func TestApplyStatusRejectsUnknown(t *testing.T) {
	lead := &Lead{Status: StatusNew}
	assert.Error(t, lead.ApplyStatus("ARCHIVED", time.Now(), 0))
	assert.Equal(t, StatusNew, lead.Status)
}

func TestApplyStatusAlwaysConsistent(t *testing.T) {
	at := time.Now()
	for _, from := range LeadStatuses {
		for _, to := range LeadStatuses {
			lead := &Lead{}
			require.NoError(t, lead.ApplyStatus(from, at, 500))
			require.NoError(t, lead.ApplyStatus(to, at, 500))
			assert.True(t, lead.Consistent(), "%s -> %s", from, to)
		}
	}
}

func TestRecordAttempt(t *testing.T) {
	first := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)
	lead := &Lead{}

	lead.RecordAttempt(first)
	lead.RecordAttempt(second)

	assert.Equal(t, 2, lead.CallAttempts)
	assert.Equal(t, first, *lead.FirstAttemptAt)
	assert.Equal(t, second, *lead.LastAttemptAt)
}

func TestParsePlatform(t *testing.T) {
	p, ok := ParsePlatform("google ads")
	assert.True(t, ok)
	assert.Equal(t, PlatformGoogleAds, p)

	p, ok = ParsePlatform("Facebook")
	assert.True(t, ok)
	assert.Equal(t, PlatformMeta, p)

	_, ok = ParsePlatform("radio")
	assert.False(t, ok)
}

func TestGoalPeriod(t *testing.T) {
	g := Goal{Year: 2025, Month: 12}
	start, end := g.Period(time.UTC)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
