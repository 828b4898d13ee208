package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelcrm/models"
)

func testConverter() *Converter {
	return NewConverter(
		[]CourseRef{
			{ID: 1, Name: "Web Design", Price: 1490},
			{ID: 2, Name: "Data Science", Price: 2200},
			{ID: 3, Name: "Data Science Advanced", Price: 2900},
			{ID: 4, Name: "UX Design", Price: 990},
		},
		[]UserRef{
			{ID: 10, Name: "Laura Bianchi", Email: "laura@example.com"},
			{ID: 11, Name: "Marco Ferri", Email: "marco.ferri@example.com"},
			{ID: 12, Name: "Marco Galli", Email: "marco.galli@example.com"},
		},
		[]CampaignRef{{ID: 7, Name: "Meta Primavera", CourseID: 1}},
		time.UTC,
	)
}

func row(fields map[string]string) RawImportRow {
	return RawImportRow{Source: "test.csv", Line: 2, Fields: fields}
}

func TestConvertValidRow(t *testing.T) {
	c, reasons := testConverter().Convert(row(map[string]string{
		FieldName:       "  Mario   Rossi ",
		FieldEmail:      "Mario@Example.com",
		FieldCourse:     "web design",
		FieldCampaign:   "meta primavera",
		FieldCommercial: "laura@example.com",
		FieldEnrolledAt: "10/03/2025",
		FieldRevenue:    "€ 1.290,50",
	}))
	require.Empty(t, reasons)

	assert.Equal(t, "Mario Rossi", c.Name)
	assert.Equal(t, "mario rossi", c.NormalizedName)
	assert.Equal(t, "mario@example.com", c.Email)
	assert.Equal(t, uint(1), c.CourseID)
	require.NotNil(t, c.CampaignID)
	assert.Equal(t, uint(7), *c.CampaignID)
	require.NotNil(t, c.AssignedToID)
	assert.Equal(t, uint(10), *c.AssignedToID)
	assert.Equal(t, models.StatusEnrolled, c.Status)
	require.NotNil(t, c.EnrolledAt)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), *c.EnrolledAt)
	require.NotNil(t, c.Revenue)
	assert.Equal(t, 1290.5, *c.Revenue)
	assert.Equal(t, "mario rossi|1", c.Key())
}

func TestConvertCollectsEveryReason(t *testing.T) {
	_, reasons := testConverter().Convert(row(map[string]string{
		FieldEmail:      "not-an-email",
		FieldCourse:     "Cooking",
		FieldStatus:     "maybe",
		FieldEnrolledAt: "yesterday",
		FieldRevenue:    "-20",
	}))
	assert.ElementsMatch(t, []RejectReason{
		ReasonMissingName, ReasonInvalidEmail, ReasonUnrecognizedCourse,
		ReasonInvalidStatus, ReasonInvalidDate, ReasonInvalidAmount,
	}, reasons)
}

func TestConvertCourseMatching(t *testing.T) {
	conv := testConverter()

	c, reasons := conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "Data Science"}))
	require.Empty(t, reasons)
	assert.Equal(t, uint(2), c.CourseID, "exact name beats containment")

	c, reasons = conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "Corso Web Design 2025"}))
	require.Empty(t, reasons)
	assert.Equal(t, uint(1), c.CourseID)

	_, reasons = conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "Design"}))
	assert.Equal(t, []RejectReason{ReasonAmbiguousCourse}, reasons)

	_, reasons = conv.Convert(row(map[string]string{FieldName: "A B"}))
	assert.Equal(t, []RejectReason{ReasonUnrecognizedCourse}, reasons)
}

func TestConvertCommercialMatching(t *testing.T) {
	conv := testConverter()

	c, reasons := conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "UX Design", FieldCommercial: "laura bianchi"}))
	require.Empty(t, reasons)
	assert.Equal(t, uint(10), *c.AssignedToID)
	assert.False(t, c.FuzzyAssignee)

	c, reasons = conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "UX Design", FieldCommercial: "Bianchi Laura"}))
	require.Empty(t, reasons)
	assert.Equal(t, uint(10), *c.AssignedToID)
	assert.True(t, c.FuzzyAssignee, "a similar name is only a proposal")

	_, reasons = conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "UX Design", FieldCommercial: "Marco"}))
	assert.Equal(t, []RejectReason{ReasonAmbiguousCommercial}, reasons)

	_, reasons = conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "UX Design", FieldCommercial: "Paolo Conti"}))
	assert.Equal(t, []RejectReason{ReasonUnknownCommercial}, reasons)

	c, reasons = conv.Convert(row(map[string]string{FieldName: "A B", FieldCourse: "UX Design"}))
	require.Empty(t, reasons)
	assert.Nil(t, c.AssignedToID)
	assert.Empty(t, c.Status)
	assert.Equal(t, models.StatusNew, c.EffectiveStatus())
}

func TestConvertRejectsNonFiniteRevenue(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "-Inf", "infinity"} {
		_, reasons := testConverter().Convert(row(map[string]string{
			FieldName: "Mario Rossi", FieldCourse: "UX Design", FieldRevenue: raw,
		}))
		assert.Equal(t, []RejectReason{ReasonInvalidAmount}, reasons, raw)
	}
}

func TestConvertAllSplitsRejections(t *testing.T) {
	rows := []RawImportRow{
		{Source: "f.csv", Line: 2, Fields: map[string]string{FieldName: "Mario Rossi", FieldCourse: "UX Design"}},
		{Source: "f.csv", Line: 3, Fields: map[string]string{FieldName: "", FieldCourse: "UX Design"}},
	}
	candidates, rejections := testConverter().ConvertAll(rows)
	assert.Len(t, candidates, 1)
	require.Len(t, rejections, 1)
	assert.Equal(t, 3, rejections[0].Line)
	assert.Equal(t, []RejectReason{ReasonMissingName}, rejections[0].Reasons)
}

func TestParseAmount(t *testing.T) {
	tests := map[string]float64{
		"1490":      1490,
		"1.490":     1490,
		"1.490,00":  1490,
		"1,490.00":  1490,
		"1490,5":    1490.5,
		"€ 990":     990,
		"990 EUR":   990,
		"1.234.567": 1234567,
		"12.5":      12.5,
	}
	for in, want := range tests {
		got, ok := parseAmount(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "-5", "€", "NaN", "nan", "Inf", "+Inf", "-Inf", "infinity", "€ NaN"} {
		_, ok := parseAmount(in)
		assert.False(t, ok, in)
	}
}
