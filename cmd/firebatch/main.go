// Command firebatch downloads the current FIRMS fire feed, maps detections to
// talukas and prints the fire alerts a scheduled run would queue. Nothing is
// written to the service's state files.
//
// Usage:
//
//	go run ./cmd/firebatch -catalog data/merged_village_temperature_data.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/taluka-alert-service/internal/adapter/firms"
	"github.com/couchcryptid/taluka-alert-service/internal/catalog"
	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/evaluator"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
)

func main() {
	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(out io.Writer) error {
	catalogPath := flag.String("catalog", "data/merged_village_temperature_data.csv", "reference dataset CSV")
	baseURL := flag.String("firms-url", "https://firms.modaps.eosdis.nasa.gov/data/active_fire/modis-c6.1/csv", "FIRMS CSV directory")
	maxDist := flag.Float64("max-distance", 0.5, "mapping radius in degrees")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	verbose := flag.Bool("v", false, "log progress to stderr")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := observability.NewLogger(os.Stderr, level, "text")
	metrics := observability.NewMetricsForTesting()

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	drafts := &draftLog{}
	hist := &history{}
	eval := evaluator.New(evaluator.Deps{
		Catalog:  cat,
		FireFeed: firms.NewClient(*baseURL, firms.Gujarat, *timeout, metrics, logger),
		Queue:    drafts,
		Fires:    hist,
		Clock:    clockwork.NewRealClock(),
		Logger:   logger,
		Metrics:  metrics,
	}, evaluator.Thresholds{FireMaxDistance: *maxDist})

	rep, err := eval.RunFireCycle(ctx)
	if err != nil {
		return err
	}

	mapped := 0
	for _, h := range hist.batch {
		if !h.Area.IsUnknown() {
			mapped++
		}
	}
	fmt.Fprintf(out, "detections in region: %d (mapped to talukas: %d, skipped for alerting: %d)\n",
		rep.Checked, mapped, rep.Skipped)
	if len(drafts.drafts) == 0 {
		fmt.Fprintln(out, "no high-confidence fire alerts")
		return nil
	}
	fmt.Fprintf(out, "fire alerts: %d\n", len(drafts.drafts))
	for _, d := range drafts.drafts {
		fmt.Fprintf(out, "  [%s] %s\n", d.Severity, d.Message)
	}
	return nil
}

// draftLog collects drafts instead of queueing them.
type draftLog struct{ drafts []domain.Draft }

func (l *draftLog) Enqueue(_ context.Context, d domain.Draft) (domain.Alert, error) {
	l.drafts = append(l.drafts, d)
	return domain.Alert{Area: d.Area, Message: d.Message, Category: d.Category, Severity: d.Severity}, nil
}

// history keeps the mapped batch in memory.
type history struct{ batch []domain.Hotspot }

func (h *history) Record(_ context.Context, batch []domain.Hotspot) error {
	h.batch = batch
	return nil
}
