package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dimension is the axis a profitability report is partitioned on.
type Dimension string

const (
	DimensionCommercial Dimension = "commercial"
	DimensionCourse     Dimension = "course"
	DimensionCampaign   Dimension = "campaign"
	DimensionPlatform   Dimension = "platform"
)

// KeyNone collects leads and spend that have no value on the dimension,
// e.g. unassigned leads or organic leads without a campaign.
const KeyNone = "none"

func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case DimensionCommercial, DimensionCourse, DimensionCampaign, DimensionPlatform:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

type Profitability struct {
	Leads             int      `json:"leads"`
	Contacted         int      `json:"contacted"`
	Enrolled          int      `json:"enrolled"`
	Revenue           float64  `json:"revenue"`
	TotalSpend        float64  `json:"total_spend"`
	CostPerLead       float64  `json:"cost_per_lead"`
	CostPerContact    float64  `json:"cost_per_contact"`
	CostPerEnrollment float64  `json:"cost_per_enrollment"`
	ROI               *float64 `json:"roi"`
	NetProfit         float64  `json:"net_profit"`
}

// GroupProfitability is one partition of a ProfitabilityBy report. Key is the
// id (or platform name) of the partition, KeyNone for the leftover bucket.
type GroupProfitability struct {
	Key string `json:"key"`
	Profitability
}

// ProfitabilityBy partitions leads and spend on dim and reduces each partition.
func ProfitabilityBy(dim Dimension, leads []LeadFact, spend []SpendRecord, campaigns CampaignIndex, filter DateRange) ([]GroupProfitability, error) {
	return defaultCalculator.ProfitabilityBy(dim, leads, spend, campaigns, filter)
}

func (c *Calculator) ComputeProfitability(leads []LeadFact, spend []SpendRecord, filter DateRange) Profitability {
	return profitabilityOf(leads, c.TotalSpend(spend, filter))
}

// ProfitabilityBy returns one row per partition sorted by net profit, highest
// first. For the commercial dimension a campaign's spend is shared among the
// commercials owning its leads, proportionally to their lead count.
func (c *Calculator) ProfitabilityBy(dim Dimension, leads []LeadFact, spend []SpendRecord, campaigns CampaignIndex, filter DateRange) ([]GroupProfitability, error) {
	if _, err := ParseDimension(string(dim)); err != nil {
		return nil, err
	}

	leadGroups := make(map[string][]LeadFact)
	for _, lead := range leads {
		key := leadKey(dim, lead, campaigns)
		leadGroups[key] = append(leadGroups[key], lead)
	}

	var spendGroups map[string]float64
	if dim == DimensionCommercial {
		spendGroups = c.commercialSpend(leads, spend, filter)
	} else {
		spendGroups = make(map[string]float64)
		for _, record := range spend {
			spendGroups[spendKey(dim, record.CampaignID, campaigns)] += c.ProRataSpend(record, filter)
		}
	}

	keys := make(map[string]struct{}, len(leadGroups)+len(spendGroups))
	for k := range leadGroups {
		keys[k] = struct{}{}
	}
	for k := range spendGroups {
		keys[k] = struct{}{}
	}

	rows := make([]GroupProfitability, 0, len(keys))
	for k := range keys {
		rows = append(rows, GroupProfitability{
			Key:           k,
			Profitability: profitabilityOf(leadGroups[k], spendGroups[k]),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].NetProfit != rows[j].NetProfit {
			return rows[i].NetProfit > rows[j].NetProfit
		}
		return rows[i].Key < rows[j].Key
	})
	return rows, nil
}

func (c *Calculator) commercialSpend(leads []LeadFact, spend []SpendRecord, filter DateRange) map[string]float64 {
	perCampaign := make(map[uint]map[string]int)
	campaignTotals := make(map[uint]int)
	for _, lead := range leads {
		if lead.CampaignID == nil {
			continue
		}
		id := *lead.CampaignID
		if perCampaign[id] == nil {
			perCampaign[id] = make(map[string]int)
		}
		perCampaign[id][idKey(lead.AssignedToID)]++
		campaignTotals[id]++
	}

	out := make(map[string]float64)
	for _, record := range spend {
		amount := c.ProRataSpend(record, filter)
		total := campaignTotals[record.CampaignID]
		if total == 0 {
			out[KeyNone] += amount
			continue
		}
		for key, n := range perCampaign[record.CampaignID] {
			out[key] += amount * float64(n) / float64(total)
		}
	}
	return out
}

func leadKey(dim Dimension, lead LeadFact, campaigns CampaignIndex) string {
	switch dim {
	case DimensionCommercial:
		return idKey(lead.AssignedToID)
	case DimensionCampaign:
		return idKey(lead.CampaignID)
	case DimensionCourse:
		if lead.CourseID != nil {
			return idKey(lead.CourseID)
		}
		if lead.CampaignID != nil {
			if info, ok := campaigns[*lead.CampaignID]; ok {
				return strconv.FormatUint(uint64(info.CourseID), 10)
			}
		}
	case DimensionPlatform:
		if lead.CampaignID != nil {
			if info, ok := campaigns[*lead.CampaignID]; ok && info.Platform != "" {
				return string(info.Platform)
			}
		}
	}
	return KeyNone
}

func spendKey(dim Dimension, campaignID uint, campaigns CampaignIndex) string {
	if dim == DimensionCampaign {
		return strconv.FormatUint(uint64(campaignID), 10)
	}
	info, ok := campaigns[campaignID]
	if !ok {
		return KeyNone
	}
	switch dim {
	case DimensionCourse:
		return strconv.FormatUint(uint64(info.CourseID), 10)
	case DimensionPlatform:
		if info.Platform != "" {
			return string(info.Platform)
		}
	}
	return KeyNone
}

func idKey(id *uint) string {
	if id == nil {
		return KeyNone
	}
	return strconv.FormatUint(uint64(*id), 10)
}

func profitabilityOf(leads []LeadFact, totalSpend float64) Profitability {
	p := Profitability{Leads: len(leads)}
	revenue := 0.0
	for _, lead := range leads {
		if lead.Contacted {
			p.Contacted++
		}
		if lead.Enrolled {
			p.Enrolled++
			revenue += lead.Revenue
		}
	}

	p.Revenue = round2(revenue)
	p.TotalSpend = round2(totalSpend)
	p.CostPerLead = round2(safeDivide(totalSpend, float64(p.Leads)))
	p.CostPerContact = round2(safeDivide(totalSpend, float64(p.Contacted)))
	p.CostPerEnrollment = round2(safeDivide(totalSpend, float64(p.Enrolled)))
	p.NetProfit = round2(revenue - totalSpend)
	if totalSpend > 0 {
		roi := round2((revenue - totalSpend) / totalSpend * 100)
		p.ROI = &roi
	}
	return p
}

// SpendShareOf scales every spend record down to the share of its campaign's
// leads assigned to userID. Campaigns without leads from userID are dropped.
// Profitability over the result agrees with the user's row of the commercial
// dimension, whatever dimension it is then grouped on.
func SpendShareOf(userID uint, leads []LeadFact, spend []SpendRecord) []SpendRecord {
	own := make(map[uint]int)
	total := make(map[uint]int)
	for _, lead := range leads {
		if lead.CampaignID == nil {
			continue
		}
		total[*lead.CampaignID]++
		if lead.AssignedToID != nil && *lead.AssignedToID == userID {
			own[*lead.CampaignID]++
		}
	}

	out := make([]SpendRecord, 0, len(spend))
	for _, record := range spend {
		n := own[record.CampaignID]
		if n == 0 {
			continue
		}
		record.Amount = record.Amount * float64(n) / float64(total[record.CampaignID])
		out = append(out, record)
	}
	return out
}

// OwnedBy keeps the leads assigned to userID.
func OwnedBy(userID uint, leads []LeadFact) []LeadFact {
	out := make([]LeadFact, 0, len(leads))
	for _, lead := range leads {
		if lead.AssignedToID != nil && *lead.AssignedToID == userID {
			out = append(out, lead)
		}
	}
	return out
}
