package reconcile

import (
	"context"
	"fmt"
	"time"
)

// Store persists plan items. UpsertLead must be idempotent: the lead is
// found by LeadID when set, otherwise by folded name and course, and created
// only when no such lead exists.
type Store interface {
	UpsertLead(ctx context.Context, item PlanItem, appliedBy *uint, at time.Time) (created bool, err error)
}

type ItemError struct {
	Line  int    `json:"line"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

type Result struct {
	PlanID    string      `json:"plan_id"`
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Unchanged int         `json:"unchanged"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// Changed is the number of leads written.
func (r Result) Changed() int {
	return r.Created + r.Updated
}

// Apply writes the CREATE, UPDATE and approved REVIEW items of plan. NOOP
// items and unapproved REVIEW items are counted and skipped. A failing item
// does not stop the run; only a cancelled context does.
func Apply(ctx context.Context, plan Plan, store Store, appliedBy *uint, now time.Time) (Result, error) {
	res := Result{PlanID: plan.ID}
	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch {
		case item.Action == ActionNoop:
			res.Unchanged++
			continue
		case !item.writable():
			res.Skipped++
			continue
		}

		created, err := store.UpsertLead(ctx, item, appliedBy, now)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{
				Line:  item.Candidate.Line,
				Name:  item.Candidate.Name,
				Error: fmt.Sprintf("%s: %v", item.Action, err),
			})
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}
