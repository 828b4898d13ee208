package analytics

import "funnelcrm/models"

// funnelChain is the ordered path a lead travels; PERSO sits outside it.
var funnelChain = []models.LeadStatus{
	models.StatusNew,
	models.StatusContacted,
	models.StatusNegotiating,
	models.StatusEnrolled,
}

type StageCount struct {
	Status     models.LeadStatus `json:"status"`
	Count      int               `json:"count"`
	Percentage float64           `json:"percentage"`
}

type StageDropoff struct {
	From       models.LeadStatus `json:"from"`
	To         models.LeadStatus `json:"to"`
	Percentage float64           `json:"percentage"`
}

// FunnelReport is a snapshot funnel: each lead sits in exactly one stage.
type FunnelReport struct {
	Total          int            `json:"total"`
	Stages         []StageCount   `json:"stages"`
	Dropoff        []StageDropoff `json:"dropoff"`
	Lost           StageCount     `json:"lost"`
	ConversionRate float64        `json:"conversion_rate"`
}

// Count returns the number of leads currently in status.
func (f FunnelReport) Count(status models.LeadStatus) int {
	for _, stage := range f.Stages {
		if stage.Status == status {
			return stage.Count
		}
	}
	return 0
}

// DropoffBetween returns the drop-off percentage from one chain stage to the next.
func (f FunnelReport) DropoffBetween(from, to models.LeadStatus) float64 {
	for _, d := range f.Dropoff {
		if d.From == from && d.To == to {
			return d.Percentage
		}
	}
	return 0
}

// AggregateFunnel counts leads per stage. A lead with an unknown status is
// counted as NUOVO so that the stage counts always add up to the total.
// Drop-off can be negative because stages are snapshots, not cohorts.
func (c *Calculator) AggregateFunnel(leads []LeadFact) FunnelReport {
	counts := make(map[models.LeadStatus]int, len(models.LeadStatuses))
	for _, lead := range leads {
		status := lead.Status
		if !status.Valid() {
			status = models.StatusNew
		}
		counts[status]++
	}

	total := len(leads)
	report := FunnelReport{
		Total:   total,
		Stages:  make([]StageCount, 0, len(models.LeadStatuses)),
		Dropoff: make([]StageDropoff, 0, len(funnelChain)-1),
	}

	for _, status := range models.LeadStatuses {
		report.Stages = append(report.Stages, StageCount{
			Status:     status,
			Count:      counts[status],
			Percentage: percent(float64(counts[status]), float64(total)),
		})
	}

	for i := 1; i < len(funnelChain); i++ {
		prev, cur := funnelChain[i-1], funnelChain[i]
		report.Dropoff = append(report.Dropoff, StageDropoff{
			From:       prev,
			To:         cur,
			Percentage: percent(float64(counts[prev]-counts[cur]), float64(counts[prev])),
		})
	}

	report.Lost = StageCount{
		Status:     models.StatusLost,
		Count:      counts[models.StatusLost],
		Percentage: percent(float64(counts[models.StatusLost]), float64(total)),
	}
	report.ConversionRate = percent(float64(counts[models.StatusEnrolled]), float64(total))

	return report
}
