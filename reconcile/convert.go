package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/badoux/checkmail"

	"funnelcrm/models"
)

// RejectReason explains why a row could not become a lead candidate.
type RejectReason string

const (
	ReasonMissingName         RejectReason = "MISSING_NAME"
	ReasonUnrecognizedCourse  RejectReason = "UNRECOGNIZED_COURSE"
	ReasonAmbiguousCourse     RejectReason = "AMBIGUOUS_COURSE"
	ReasonUnknownCommercial   RejectReason = "UNKNOWN_COMMERCIAL"
	ReasonAmbiguousCommercial RejectReason = "AMBIGUOUS_COMMERCIAL"
	ReasonUnknownCampaign     RejectReason = "UNKNOWN_CAMPAIGN"
	ReasonInvalidEmail        RejectReason = "INVALID_EMAIL"
	ReasonInvalidStatus       RejectReason = "INVALID_STATUS"
	ReasonInvalidDate         RejectReason = "INVALID_DATE"
	ReasonInvalidAmount       RejectReason = "INVALID_AMOUNT"
	ReasonDuplicateRow        RejectReason = "DUPLICATE_ROW"
)

// Rejection is a row left out of the plan, with every reason found.
type Rejection struct {
	Source  string            `json:"source"`
	Line    int               `json:"line"`
	Name    string            `json:"name,omitempty"`
	Reasons []RejectReason    `json:"reasons"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// LeadCandidate is a validated row ready to be compared with stored leads.
type LeadCandidate struct {
	Source         string            `json:"source"`
	Line           int               `json:"line"`
	Name           string            `json:"name"`
	NormalizedName string            `json:"normalized_name"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	CourseID       uint              `json:"course_id"`
	CourseName     string            `json:"course_name"`
	CampaignID     *uint             `json:"campaign_id,omitempty"`
	AssignedToID   *uint             `json:"assigned_to_id,omitempty"`
	// FuzzyAssignee is set when AssignedToID came from a similar name
	// rather than an exact one. Such rows need an operator's approval.
	FuzzyAssignee  bool              `json:"fuzzy_assignee,omitempty"`
	Status         models.LeadStatus `json:"status,omitempty"`
	EnrolledAt     *time.Time        `json:"enrolled_at,omitempty"`
	Revenue        *float64          `json:"revenue,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// EffectiveStatus is the status a new lead is created with. An empty Status
// means the file did not say, and stored leads keep theirs.
func (c LeadCandidate) EffectiveStatus() models.LeadStatus {
	if c.Status == "" {
		return models.StatusNew
	}
	return c.Status
}

// Key identifies the person on the course.
func (c LeadCandidate) Key() string {
	return c.NormalizedName + "|" + strconv.FormatUint(uint64(c.CourseID), 10)
}

// CourseRef, UserRef and CampaignRef are the lookup tables a Converter matches against.
type CourseRef struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type UserRef struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CampaignRef struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	CourseID uint   `json:"course_id"`
}

// Converter turns raw rows into candidates. It is safe for concurrent use
// once built.
type Converter struct {
	courses     []CourseRef
	commercials []UserRef
	campaigns   []CampaignRef
	loc         *time.Location
}

func NewConverter(courses []CourseRef, commercials []UserRef, campaigns []CampaignRef, loc *time.Location) *Converter {
	if loc == nil {
		loc = time.UTC
	}
	return &Converter{courses: courses, commercials: commercials, campaigns: campaigns, loc: loc}
}

// ConvertAll converts every row, splitting candidates from rejections.
func (c *Converter) ConvertAll(rows []RawImportRow) ([]LeadCandidate, []Rejection) {
	candidates := make([]LeadCandidate, 0, len(rows))
	var rejections []Rejection
	for _, row := range rows {
		candidate, reasons := c.Convert(row)
		if len(reasons) > 0 {
			rejections = append(rejections, Rejection{
				Source:  row.Source,
				Line:    row.Line,
				Name:    row.Get(FieldName),
				Reasons: reasons,
				Fields:  row.Fields,
			})
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rejections
}

// Convert validates one row. Every problem is reported, not only the first.
func (c *Converter) Convert(row RawImportRow) (LeadCandidate, []RejectReason) {
	var reasons []RejectReason
	reject := func(r RejectReason) { reasons = append(reasons, r) }

	candidate := LeadCandidate{
		Source: row.Source,
		Line:   row.Line,
		Name:   strings.Join(strings.Fields(row.Get(FieldName)), " "),
		Phone:  row.Get(FieldPhone),
		Notes:  row.Get(FieldNotes),
	}
	candidate.NormalizedName = NormalizeName(candidate.Name)
	if candidate.NormalizedName == "" {
		reject(ReasonMissingName)
	}

	if email := strings.ToLower(row.Get(FieldEmail)); email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			reject(ReasonInvalidEmail)
		} else {
			candidate.Email = email
		}
	}

	if course, reason := c.matchCourse(row.Get(FieldCourse)); reason != "" {
		reject(reason)
	} else {
		candidate.CourseID = course.ID
		candidate.CourseName = course.Name
	}

	if label := row.Get(FieldCampaign); label != "" {
		if campaign, ok := c.matchCampaign(label, candidate.CourseID); ok {
			candidate.CampaignID = &campaign.ID
		} else {
			reject(ReasonUnknownCampaign)
		}
	}

	if label := row.Get(FieldCommercial); label != "" {
		user, guessed, reason := c.matchCommercial(label)
		if reason != "" {
			reject(reason)
		} else {
			candidate.AssignedToID = &user.ID
			candidate.FuzzyAssignee = guessed
		}
	}

	if raw := row.Get(FieldEnrolledAt); raw != "" {
		if at, ok := parseDate(raw, c.loc); ok {
			candidate.EnrolledAt = &at
		} else {
			reject(ReasonInvalidDate)
		}
	}

	if raw := row.Get(FieldRevenue); raw != "" {
		if amount, ok := parseAmount(raw); ok {
			candidate.Revenue = &amount
		} else {
			reject(ReasonInvalidAmount)
		}
	}

	if raw := row.Get(FieldStatus); raw != "" {
		status, err := models.ParseLeadStatus(raw)
		if err != nil {
			reject(ReasonInvalidStatus)
		}
		candidate.Status = status
	} else if candidate.EnrolledAt != nil || (candidate.Revenue != nil && *candidate.Revenue > 0) {
		// enrollment exports often carry no status column at all
		candidate.Status = models.StatusEnrolled
	}

	return candidate, reasons
}

// matchCourse prefers an exact folded match, then a unique containment match.
func (c *Converter) matchCourse(label string) (CourseRef, RejectReason) {
	key := NormalizeName(label)
	if key == "" {
		return CourseRef{}, ReasonUnrecognizedCourse
	}
	for _, course := range c.courses {
		if NormalizeName(course.Name) == key {
			return course, ""
		}
	}

	var hits []CourseRef
	for _, course := range c.courses {
		name := NormalizeName(course.Name)
		if strings.Contains(name, key) || strings.Contains(key, name) {
			hits = append(hits, course)
		}
	}
	switch len(hits) {
	case 0:
		return CourseRef{}, ReasonUnrecognizedCourse
	case 1:
		return hits[0], ""
	}
	return CourseRef{}, ReasonAmbiguousCourse
}

func (c *Converter) matchCampaign(label string, courseID uint) (CampaignRef, bool) {
	key := NormalizeName(label)
	for _, campaign := range c.campaigns {
		if NormalizeName(campaign.Name) != key {
			continue
		}
		if courseID == 0 || campaign.CourseID == courseID {
			return campaign, true
		}
	}
	return CampaignRef{}, false
}

// matchCommercial accepts an e-mail, a full name or a unique partial name.
func (c *Converter) matchCommercial(label string) (UserRef, bool, RejectReason) {
	if strings.Contains(label, "@") {
		for _, user := range c.commercials {
			if strings.EqualFold(user.Email, label) {
				return user, false, ""
			}
		}
		return UserRef{}, false, ReasonUnknownCommercial
	}

	key := NormalizeName(label)
	for _, user := range c.commercials {
		if NormalizeName(user.Name) == key {
			return user, false, ""
		}
	}

	var hits []UserRef
	for _, user := range c.commercials {
		if NamesSimilar(user.Name, label) {
			hits = append(hits, user)
		}
	}
	switch len(hits) {
	case 0:
		return UserRef{}, false, ReasonUnknownCommercial
	case 1:
		return hits[0], true, ""
	}
	return UserRef{}, false, ReasonAmbiguousCommercial
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
}

// parseDate reads ISO and day-first dates as written in Italian spreadsheets.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmount reads "1490", "1.490", "1.490,00", "1,490.00" and "€ 1490".
// The last separator is the decimal one when both appear.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSuffix(s, "€")
	s = strings.ReplaceAll(s, "EUR", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return 0, false
	}

	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1, lastDot >= 0 && len(s)-lastDot == 4:
		// "1.490" is a thousands separator in Italian exports
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	// ParseFloat also accepts "NaN" and "Inf", which no report can serialize
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
