package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Catalog is the read side of the lead store used to build a plan.
type Catalog interface {
	ReferenceData(ctx context.Context) ([]CourseRef, []UserRef, []CampaignRef, error)
	ExistingLeads(ctx context.Context, courseIDs []uint) ([]ExistingLead, error)
}

// Prepare converts rows against the catalog and plans them against the leads
// already stored for the courses they mention.
func Prepare(ctx context.Context, source string, rows []RawImportRow, catalog Catalog, loc *time.Location, now time.Time) (Plan, error) {
	courses, commercials, campaigns, err := catalog.ReferenceData(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load reference data: %w", err)
	}

	candidates, rejections := NewConverter(courses, commercials, campaigns, loc).ConvertAll(rows)

	seen := make(map[uint]bool)
	var courseIDs []uint
	for _, c := range candidates {
		if !seen[c.CourseID] {
			seen[c.CourseID] = true
			courseIDs = append(courseIDs, c.CourseID)
		}
	}
	sort.Slice(courseIDs, func(i, j int) bool { return courseIDs[i] < courseIDs[j] })

	var existing []ExistingLead
	if len(courseIDs) > 0 {
		existing, err = catalog.ExistingLeads(ctx, courseIDs)
		if err != nil {
			return Plan{}, fmt.Errorf("load existing leads: %w", err)
		}
	}
	return BuildPlan(source, candidates, rejections, existing, now), nil
}
