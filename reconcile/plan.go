package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"funnelcrm/models"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionNoop   Action = "NOOP"
	ActionReview Action = "REVIEW"
)

// ExistingLead is the stored state a candidate is compared with.
type ExistingLead struct {
	ID             uint              `json:"id"`
	Name           string            `json:"name"`
	NormalizedName string            `json:"normalized_name"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	CourseID       uint              `json:"course_id"`
	CampaignID     *uint             `json:"campaign_id,omitempty"`
	AssignedToID   *uint             `json:"assigned_to_id,omitempty"`
	Status         models.LeadStatus `json:"status"`
	EnrolledAt     *time.Time        `json:"enrolled_at,omitempty"`
	Revenue        float64           `json:"revenue"`
}

type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// PlanItem is one proposed change. LeadID points at the stored lead an
// UPDATE or REVIEW item refers to; a REVIEW item without one creates a lead.
// REVIEW items are applied only when an operator sets Approved.
type PlanItem struct {
	Action      Action        `json:"action"`
	Candidate   LeadCandidate `json:"candidate"`
	LeadID      *uint         `json:"lead_id,omitempty"`
	MatchedName string        `json:"matched_name,omitempty"`
	Changes     []FieldChange `json:"changes,omitempty"`
	Approved    bool          `json:"approved"`
}

type Plan struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	CreatedAt  time.Time      `json:"created_at"`
	Items      []PlanItem     `json:"items"`
	Rejections []Rejection    `json:"rejections"`
	Summary    map[Action]int `json:"summary"`
}

// Pending returns the items Apply would write.
func (p *Plan) Pending() []PlanItem {
	var out []PlanItem
	for _, item := range p.Items {
		if item.writable() {
			out = append(out, item)
		}
	}
	return out
}

func (i PlanItem) writable() bool {
	switch i.Action {
	case ActionCreate, ActionUpdate:
		return true
	case ActionReview:
		return i.Approved
	}
	return false
}

// BuildPlan compares candidates with the stored leads. Only an exact match on
// folded name and course yields UPDATE or NOOP; a fuzzy match on the same
// course yields REVIEW; anything else is a CREATE. A CREATE or UPDATE whose
// commercial was only matched by a similar name is held as REVIEW. When the same person and
// course appears on several rows, the last row wins and the earlier ones are
// rejected as duplicates.
func BuildPlan(source string, candidates []LeadCandidate, rejections []Rejection, existing []ExistingLead, now time.Time) Plan {
	byKey := make(map[string]ExistingLead, len(existing))
	byCourse := make(map[uint][]ExistingLead)
	for _, lead := range existing {
		key := lead.NormalizedName
		if key == "" {
			key = NormalizeName(lead.Name)
		}
		lead.NormalizedName = key
		byKey[key+"|"+strconv.FormatUint(uint64(lead.CourseID), 10)] = lead
		byCourse[lead.CourseID] = append(byCourse[lead.CourseID], lead)
	}

	lastRow := make(map[string]int, len(candidates))
	for i, c := range candidates {
		lastRow[c.Key()] = i
	}

	plan := Plan{
		ID:         uuid.New().String(),
		Source:     source,
		CreatedAt:  now,
		Items:      make([]PlanItem, 0, len(candidates)),
		Rejections: append([]Rejection(nil), rejections...),
		Summary:    make(map[Action]int),
	}

	for i, c := range candidates {
		if lastRow[c.Key()] != i {
			plan.Rejections = append(plan.Rejections, Rejection{
				Source:  c.Source,
				Line:    c.Line,
				Name:    c.Name,
				Reasons: []RejectReason{ReasonDuplicateRow},
			})
			continue
		}

		item := PlanItem{Candidate: c}
		if match, ok := byKey[c.Key()]; ok {
			id := match.ID
			item.LeadID = &id
			item.MatchedName = match.Name
			item.Changes = diff(match, c)
			item.Action = ActionUpdate
			if len(item.Changes) == 0 {
				item.Action = ActionNoop
			}
		} else if match, ok := fuzzyMatch(byCourse[c.CourseID], c.Name); ok {
			id := match.ID
			item.LeadID = &id
			item.MatchedName = match.Name
			item.Changes = diff(match, c)
			item.Action = ActionReview
		} else {
			item.Action = ActionCreate
		}
		if c.FuzzyAssignee && (item.Action == ActionCreate || item.Action == ActionUpdate) {
			item.Action = ActionReview
		}

		plan.Items = append(plan.Items, item)
		plan.Summary[item.Action]++
	}

	sort.SliceStable(plan.Rejections, func(a, b int) bool {
		return plan.Rejections[a].Line < plan.Rejections[b].Line
	})
	return plan
}

func fuzzyMatch(leads []ExistingLead, name string) (ExistingLead, bool) {
	for _, lead := range leads {
		if NamesSimilar(lead.Name, name) {
			return lead, true
		}
	}
	return ExistingLead{}, false
}

// diff lists the fields the candidate would change. Empty candidate fields
// never clear stored values.
func diff(stored ExistingLead, c LeadCandidate) []FieldChange {
	var changes []FieldChange
	add := func(field, from, to string) {
		if from != to {
			changes = append(changes, FieldChange{Field: field, From: from, To: to})
		}
	}

	if c.Status != "" {
		add("status", string(stored.Status), string(c.Status))
	}
	if c.Email != "" {
		add("email", stored.Email, c.Email)
	}
	if c.Phone != "" {
		add("phone", stored.Phone, c.Phone)
	}
	if c.AssignedToID != nil {
		add("assigned_to_id", formatID(stored.AssignedToID), formatID(c.AssignedToID))
	}
	if c.CampaignID != nil {
		add("campaign_id", formatID(stored.CampaignID), formatID(c.CampaignID))
	}
	if c.Status == models.StatusEnrolled {
		if c.EnrolledAt != nil {
			add("enrolled_at", formatDate(stored.EnrolledAt), formatDate(c.EnrolledAt))
		}
		if c.Revenue != nil {
			add("revenue", formatAmount(stored.Revenue), formatAmount(*c.Revenue))
		}
	}
	return changes
}

func formatID(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
