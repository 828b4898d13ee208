package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"funnelcrm/models"
)

// memoryStore keeps leads in a slice and upserts like the gorm store does.
type memoryStore struct {
	leads  []ExistingLead
	nextID uint
}

func (s *memoryStore) UpsertLead(_ context.Context, item PlanItem, _ *uint, at time.Time) (bool, error) {
	c := item.Candidate
	idx := -1
	for i, l := range s.leads {
		if (item.LeadID != nil && l.ID == *item.LeadID) ||
			(item.LeadID == nil && l.NormalizedName == c.NormalizedName && l.CourseID == c.CourseID) {
			idx = i
			break
		}
	}
	created := idx < 0
	if created {
		s.nextID++
		s.leads = append(s.leads, ExistingLead{ID: s.nextID, Name: c.Name, NormalizedName: c.NormalizedName, CourseID: c.CourseID, Status: c.EffectiveStatus()})
		idx = len(s.leads) - 1
	}
	l := &s.leads[idx]
	if c.Status != "" {
		l.Status = c.Status
	}
	if c.Email != "" {
		l.Email = c.Email
	}
	if c.AssignedToID != nil {
		l.AssignedToID = c.AssignedToID
	}
	if l.Status == models.StatusEnrolled {
		l.EnrolledAt = &at
		if c.EnrolledAt != nil {
			l.EnrolledAt = c.EnrolledAt
		}
		if c.Revenue != nil {
			l.Revenue = *c.Revenue
		}
	}
	return created, nil
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertLead(ctx context.Context, item PlanItem, appliedBy *uint, at time.Time) (bool, error) {
	args := m.Called(ctx, item, appliedBy, at)
	return args.Bool(0), args.Error(1)
}

func candidate(line int, name string, courseID uint, status models.LeadStatus) LeadCandidate {
	return LeadCandidate{Source: "f.csv", Line: line, Name: name, NormalizedName: NormalizeName(name), CourseID: courseID, Status: status}
}

func uintPtr(v uint) *uint { return &v }

func TestBuildPlanActions(t *testing.T) {
	existing := []ExistingLead{
		{ID: 1, Name: "Mario Rossi", NormalizedName: "mario rossi", CourseID: 1, Status: models.StatusContacted},
		{ID: 2, Name: "Anna Verdi", CourseID: 1, Status: models.StatusNew},
		{ID: 3, Name: "Luca Bellini", CourseID: 2, Status: models.StatusNew},
	}
	candidates := []LeadCandidate{
		candidate(2, "MARIO ROSSI", 1, models.StatusEnrolled),
		candidate(3, "Anna Verdi", 1, ""),
		candidate(4, "Luca Bellinzona", 2, models.StatusContacted),
		candidate(5, "Giulia Neri", 1, models.StatusNew),
		candidate(6, "Luca Bellini", 1, models.StatusNew),
	}

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	plan := BuildPlan("f.csv", candidates, nil, existing, now)

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, now, plan.CreatedAt)
	require.Len(t, plan.Items, 5)

	assert.Equal(t, ActionUpdate, plan.Items[0].Action)
	assert.Equal(t, uint(1), *plan.Items[0].LeadID)
	assert.Equal(t, []FieldChange{{Field: "status", From: "CONTATTATO", To: "ISCRITTO"}}, plan.Items[0].Changes)

	assert.Equal(t, ActionNoop, plan.Items[1].Action, "missing status keeps the stored one")

	assert.Equal(t, ActionReview, plan.Items[2].Action)
	assert.Equal(t, "Luca Bellini", plan.Items[2].MatchedName)
	assert.False(t, plan.Items[2].Approved)

	assert.Equal(t, ActionCreate, plan.Items[3].Action)
	assert.Equal(t, ActionCreate, plan.Items[4].Action, "same name on another course is another lead")

	assert.Equal(t, map[Action]int{ActionUpdate: 1, ActionNoop: 1, ActionReview: 1, ActionCreate: 2}, plan.Summary)
	assert.Len(t, plan.Pending(), 3)
}

func TestBuildPlanHoldsFuzzyAssigneeForReview(t *testing.T) {
	existing := []ExistingLead{{ID: 1, Name: "Mario Rossi", CourseID: 1, Status: models.StatusNew}}
	update := candidate(2, "Mario Rossi", 1, "")
	update.AssignedToID = uintPtr(10)
	update.FuzzyAssignee = true
	create := candidate(3, "Giulia Neri", 1, "")
	create.AssignedToID = uintPtr(10)
	create.FuzzyAssignee = true

	plan := BuildPlan("f.csv", []LeadCandidate{update, create}, nil, existing, time.Now())
	require.Len(t, plan.Items, 2)
	assert.Equal(t, ActionReview, plan.Items[0].Action)
	assert.Equal(t, uint(1), *plan.Items[0].LeadID)
	assert.Equal(t, ActionReview, plan.Items[1].Action)
	assert.Nil(t, plan.Items[1].LeadID)
	assert.Empty(t, plan.Pending())

	store := &memoryStore{leads: existing, nextID: 1}
	res, err := Apply(context.Background(), plan, store, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Nil(t, store.leads[0].AssignedToID)

	plan.Items[0].Approved = true
	plan.Items[1].Approved = true
	res, err = Apply(context.Background(), plan, store, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, uint(10), *store.leads[0].AssignedToID)
}

func TestBuildPlanRejectsEarlierDuplicates(t *testing.T) {
	candidates := []LeadCandidate{
		candidate(2, "Mario Rossi", 1, models.StatusNew),
		candidate(3, "mario rossi", 1, models.StatusContacted),
	}
	plan := BuildPlan("f.csv", candidates, []Rejection{{Line: 9, Reasons: []RejectReason{ReasonMissingName}}}, nil, time.Now())

	require.Len(t, plan.Items, 1)
	assert.Equal(t, 3, plan.Items[0].Candidate.Line)
	require.Len(t, plan.Rejections, 2)
	assert.Equal(t, 2, plan.Rejections[0].Line)
	assert.Equal(t, []RejectReason{ReasonDuplicateRow}, plan.Rejections[0].Reasons)
	assert.Equal(t, 9, plan.Rejections[1].Line)
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	store := &memoryStore{}
	enrolledAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	revenue := 1490.0
	first := candidate(2, "Mario Rossi", 1, models.StatusEnrolled)
	first.EnrolledAt = &enrolledAt
	first.Revenue = &revenue
	first.AssignedToID = uintPtr(10)
	candidates := []LeadCandidate{first, candidate(3, "Anna Verdi", 1, models.StatusContacted)}

	now := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	res, err := Apply(context.Background(), BuildPlan("f.csv", candidates, nil, store.leads, now), store, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Changed())

	again := BuildPlan("f.csv", candidates, nil, store.leads, now)
	for _, item := range again.Items {
		assert.Equal(t, ActionNoop, item.Action, item.Candidate.Name)
	}
	res, err = Apply(context.Background(), again, store, nil, now)
	require.NoError(t, err)
	assert.Zero(t, res.Changed())
	assert.Equal(t, 2, res.Unchanged)
	assert.Len(t, store.leads, 2)
}

func TestApplySkipsUnapprovedReview(t *testing.T) {
	store := new(mockStore)
	plan := Plan{ID: "p1", Items: []PlanItem{
		{Action: ActionReview, LeadID: uintPtr(4), Candidate: candidate(2, "Luca Bellinzona", 1, models.StatusNew)},
		{Action: ActionNoop, LeadID: uintPtr(5), Candidate: candidate(3, "Anna Verdi", 1, "")},
	}}

	res, err := Apply(context.Background(), plan, store, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Unchanged)
	store.AssertNotCalled(t, "UpsertLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyApprovedReviewAndFailures(t *testing.T) {
	store := new(mockStore)
	approved := PlanItem{Action: ActionReview, Approved: true, LeadID: uintPtr(4), Candidate: candidate(2, "Luca Bellinzona", 1, models.StatusContacted)}
	failing := PlanItem{Action: ActionCreate, Candidate: candidate(3, "Giulia Neri", 1, models.StatusNew)}
	plan := Plan{ID: "p2", Items: []PlanItem{approved, failing}}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	admin := uintPtr(1)

	store.On("UpsertLead", mock.Anything, approved, admin, now).Return(false, nil).Once()
	store.On("UpsertLead", mock.Anything, failing, admin, now).Return(false, errors.New("db down")).Once()

	res, err := Apply(context.Background(), plan, store, admin, now)
	require.NoError(t, err)
	assert.Equal(t, "p2", res.PlanID)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Line)
	assert.Contains(t, res.Errors[0].Error, "db down")
	store.AssertExpectations(t)
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan := Plan{Items: []PlanItem{{Action: ActionCreate, Candidate: candidate(2, "Mario Rossi", 1, "")}}}

	_, err := Apply(ctx, plan, new(mockStore), nil, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
