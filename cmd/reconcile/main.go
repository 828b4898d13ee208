// Command reconcile matches an enrollment export (.csv or .xlsx) against the
// stored leads.
//
// Usage:
//
//	reconcile -file iscrizioni.xlsx -plan-out plan.json   # preview only
//	reconcile -apply-plan plan.json                       # write a reviewed plan
//	reconcile -file iscrizioni.csv -apply                 # preview and write, REVIEW items skipped
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"funnelcrm/config"
	"funnelcrm/reconcile"
	"funnelcrm/repository"
)

func main() {
	file := flag.String("file", "", "enrollment export to reconcile (.csv, .xlsx)")
	planOut := flag.String("plan-out", "", "write the plan as JSON to this path (default stdout)")
	applyPlan := flag.String("apply-plan", "", "apply a previously written plan")
	apply := flag.Bool("apply", false, "apply the plan built from -file right away")
	flag.Parse()

	if (*file == "") == (*applyPlan == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -file or -apply-plan is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := cfg.NewLogger()

	db, err := config.ConnectDB(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	store := repository.NewLeadStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var plan reconcile.Plan
	if *applyPlan != "" {
		plan, err = readPlan(*applyPlan)
		if err != nil {
			log.Fatalf("Failed to read plan: %v", err)
		}
	} else {
		rows, err := reconcile.ReadFile(*file)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *file, err)
		}
		plan, err = reconcile.Prepare(ctx, filepath.Base(*file), rows, store, cfg.Location, time.Now())
		if err != nil {
			log.Fatalf("Failed to build plan: %v", err)
		}
		log.WithFields(logrus.Fields{
			"plan_id":    plan.ID,
			"rows":       len(rows),
			"rejections": len(plan.Rejections),
			"summary":    plan.Summary,
		}).Info("Plan built")

		if err := writePlan(*planOut, plan); err != nil {
			log.Fatalf("Failed to write plan: %v", err)
		}
		if !*apply {
			return
		}
	}

	result, err := reconcile.Apply(ctx, plan, store, nil, time.Now())
	if err != nil {
		log.WithError(err).Error("Apply interrupted")
	}
	log.WithFields(logrus.Fields{
		"plan_id":   result.PlanID,
		"created":   result.Created,
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Plan applied")
	for _, e := range result.Errors {
		log.WithFields(logrus.Fields{"line": e.Line, "name": e.Name}).Warn(e.Error)
	}
	if err != nil || result.Failed > 0 {
		os.Exit(1)
	}
}

func readPlan(path string) (reconcile.Plan, error) {
	var plan reconcile.Plan
	raw, err := os.ReadFile(path)
	if err != nil {
		return plan, err
	}
	err = json.Unmarshal(raw, &plan)
	return plan, err
}

func writePlan(path string, plan reconcile.Plan) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
