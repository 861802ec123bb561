// activity-report prints productivity analytics from the agent's database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/config"
	"jordanella.com/activity-agent/internal/storage"
)

type options struct {
	configPath string
	dbPath     string
	limit      int
	since      time.Duration
	days       int
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("activity-report", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to agent.ini, used to locate the database")
	flagSet.StringVar(&opts.dbPath, "db", "", "database path (overrides the config)")
	flagSet.IntVarP(&opts.limit, "limit", "n", 50, "analyse the newest N activities")
	flagSet.DurationVar(&opts.since, "since", 0, "analyse activities from this long ago instead of --limit, e.g. 8h")
	flagSet.IntVar(&opts.days, "days", 7, "days in the daily breakdown; 0 hides it")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	dbPath := cfg.Storage.Path
	if opts.dbPath != "" {
		dbPath = opts.dbPath
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database %s: %w", dbPath, err)
	}

	db, err := storage.Open(dbPath, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	store := storage.NewStore(db, cfg.StoreOptions())

	ctx := context.Background()
	var acts []classifier.ContentAnalysis
	if opts.since > 0 {
		acts, err = store.AnalysesSince(ctx, time.Now().Add(-opts.since))
	} else {
		acts, err = store.RecentAnalyses(ctx, opts.limit)
	}
	if err != nil {
		return err
	}

	var daily []storage.DailyActivity
	if opts.days > 0 {
		if daily, err = store.DailySummary(ctx, opts.days); err != nil {
			return err
		}
	}

	printReport(out, classifier.Analyze(acts, cfg.ClassifierRules()), acts, daily)
	return nil
}

func printReport(out io.Writer, report classifier.Report, acts []classifier.ContentAnalysis, daily []storage.DailyActivity) {
	fmt.Fprintf(out, "Activities analysed: %d\n", report.Activities)
	if report.Activities == 0 {
		fmt.Fprintln(out, "No activity recorded yet.")
		return
	}
	first, last := acts[0].Timestamp, acts[len(acts)-1].Timestamp
	fmt.Fprintf(out, "Period:              %s to %s\n", first.Local().Format("2006-01-02 15:04"), last.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Productivity score:  %d/100\n", report.ProductivityScore)
	if len(report.Patterns) > 0 {
		fmt.Fprintf(out, "Patterns:            %s\n", strings.Join(report.Patterns, ", "))
	} else {
		fmt.Fprintln(out, "Patterns:            none")
	}
	fmt.Fprintf(out, "Likely next:         %s\n", report.PredictedNext)

	if len(daily) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tCONTENT\tACTIVITIES\tPRODUCTIVE\tFOCUSED")
	for _, d := range daily {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", d.Day, d.ContentType, d.Activities, d.Productive, d.Focused)
	}
	w.Flush()
}
