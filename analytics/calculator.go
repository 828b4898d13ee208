// Package analytics holds the reporting math: pro-rata spend attribution,
// the funnel snapshot and per-dimension profitability. Everything here works
// on already-fetched values and performs no I/O.
package analytics

import (
	"math"
	"time"

	"funnelcrm/models"
)

// SpendRecord is the part of a CampaignSpend the calculators need.
type SpendRecord struct {
	CampaignID uint       `json:"campaign_id"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Amount     float64    `json:"amount"`
}

// LeadFact is the part of a Lead the calculators need.
type LeadFact struct {
	ID           uint              `json:"id"`
	Status       models.LeadStatus `json:"status"`
	Contacted    bool              `json:"contacted"`
	Enrolled     bool              `json:"enrolled"`
	Revenue      float64           `json:"revenue"`
	CourseID     *uint             `json:"course_id,omitempty"`
	CampaignID   *uint             `json:"campaign_id,omitempty"`
	AssignedToID *uint             `json:"assigned_to_id,omitempty"`
}

// CampaignInfo maps a campaign onto the course and platform dimensions.
type CampaignInfo struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	CourseID uint            `json:"course_id"`
	Platform models.Platform `json:"platform"`
}

type CampaignIndex map[uint]CampaignInfo

type Calculator struct {
	now func() time.Time
	loc *time.Location
}

// NewCalculator counts calendar days in loc (UTC when nil).
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{now: time.Now, loc: loc}
}

// WithClock returns a copy of the calculator that reads "now" from clock.
func (c *Calculator) WithClock(clock func() time.Time) *Calculator {
	cp := *c
	cp.now = clock
	return &cp
}

var defaultCalculator = NewCalculator(time.UTC)

// ProRataSpend returns the share of record.Amount that falls inside filter.
func ProRataSpend(record SpendRecord, filter DateRange) float64 {
	return defaultCalculator.ProRataSpend(record, filter)
}

// ProRataSpendAt is ProRataSpend with a fixed "now" for open-ended records.
func ProRataSpendAt(record SpendRecord, filter DateRange, now time.Time) float64 {
	return defaultCalculator.WithClock(func() time.Time { return now }).ProRataSpend(record, filter)
}

// AggregateFunnel builds the snapshot funnel of leads.
func AggregateFunnel(leads []LeadFact) FunnelReport {
	return defaultCalculator.AggregateFunnel(leads)
}

// ComputeProfitability combines revenue and pro-rata spend of one group.
func ComputeProfitability(leads []LeadFact, spend []SpendRecord, filter DateRange) Profitability {
	return defaultCalculator.ComputeProfitability(leads, spend, filter)
}

// ProRataSpend prorates by inclusive calendar days. An open-ended record runs
// to the end of the filter, or to now when the filter has no end. Records
// shorter than a day count as one full day.
func (c *Calculator) ProRataSpend(record SpendRecord, filter DateRange) float64 {
	if !filter.Bounded() {
		return record.Amount
	}

	recordStart := record.StartDate
	var recordEnd time.Time
	switch {
	case record.EndDate != nil:
		recordEnd = *record.EndDate
	case filter.End != nil:
		recordEnd = *filter.End
	default:
		recordEnd = c.now()
	}

	totalDays := c.inclusiveDays(recordStart, recordEnd)

	overlapStart := recordStart
	if filter.Start != nil && filter.Start.After(overlapStart) {
		overlapStart = *filter.Start
	}
	overlapEnd := recordEnd
	if filter.End != nil && filter.End.Before(overlapEnd) {
		overlapEnd = *filter.End
	}
	if c.civilDay(overlapEnd).Before(c.civilDay(overlapStart)) {
		return 0
	}

	overlapDays := c.inclusiveDays(overlapStart, overlapEnd)
	if overlapDays > totalDays {
		overlapDays = totalDays
	}
	return record.Amount * float64(overlapDays) / float64(totalDays)
}

// TotalSpend sums the pro-rata share of every record.
func (c *Calculator) TotalSpend(spend []SpendRecord, filter DateRange) float64 {
	total := 0.0
	for _, record := range spend {
		total += c.ProRataSpend(record, filter)
	}
	return total
}

func (c *Calculator) civilDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inclusiveDays counts calendar days touched by [start, end], at least 1.
func (c *Calculator) inclusiveDays(start, end time.Time) int {
	days := int(c.civilDay(end).Sub(c.civilDay(start)).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0
	}
	return result
}

func percent(part, whole float64) float64 {
	return round2(safeDivide(part, whole) * 100)
}

// round2 maps non-finite values to 0 so reports always encode as JSON.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
