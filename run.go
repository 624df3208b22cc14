package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"

	"github.com/foamtail/foamtail/analyzer"
	"github.com/foamtail/foamtail/matchers"
	"github.com/foamtail/foamtail/metrics"
	"github.com/foamtail/foamtail/outfile"
	"github.com/foamtail/foamtail/reporting"
	"github.com/foamtail/foamtail/source"
	"github.com/foamtail/foamtail/timeline"
)

// runStats is shared between the feeding goroutine and the status logger.
type runStats struct {
	lines    int64
	steps    int64
	restarts int64
	started  time.Time
}

func (s *runStats) log(dump *matchers.Dump) {
	fields := logrus.Fields{
		"lines":      humanize.Comma(atomic.LoadInt64(&s.lines)),
		"time_steps": humanize.Comma(atomic.LoadInt64(&s.steps)),
		"restarts":   atomic.LoadInt64(&s.restarts),
		"elapsed":    time.Since(s.started).Round(time.Second),
	}
	if dump != nil {
		fields["values"] = len(dump.Rows())
	}
	logrus.WithFields(fields).Info("Summary of log analysis")
}

// buildAnalyzer registers the standard matchers followed by the user
// defined ones.
func buildAnalyzer(options GlobalOptions) (*analyzer.Analyzer, error) {
	a, err := analyzer.New(analyzer.Options{
		Strip:     !options.NoStrip,
		TimeRegex: options.TimeRegex,
	})
	if err != nil {
		return nil, err
	}

	conf := routerConfig(options.Output)
	entries := matchers.Standard(conf)
	for i, c := range options.Custom {
		ro, err := matchers.ParseRegexOption(c)
		if err != nil {
			return nil, err
		}
		m, err := matchers.NewRegex(ro, conf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, matchers.Entry{Name: matchers.CustomName(i+1, ro.Name), Matcher: m})
	}
	for _, kv := range options.KeyVal {
		ko, err := parseKeyValOption(kv)
		if err != nil {
			return nil, err
		}
		m, err := matchers.NewKeyVal(ko, conf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, matchers.Entry{Name: ko.Name, Matcher: m})
	}
	if err := matchers.Register(a, entries); err != nil {
		return nil, err
	}
	return a, nil
}

func routerConfig(o OutputOptions) analyzer.RouterConfig {
	// already validated by sanityCheckOptions
	start, _ := parseBound(o.Start)
	end, _ := parseBound(o.End)
	return analyzer.RouterConfig{
		NoFiles:      o.NoFiles,
		SingleFile:   o.SingleFile,
		StartTime:    start,
		EndTime:      end,
		Iterations:   o.Iterations,
		Accumulation: o.Accumulation,
	}
}

// analyze feeds every line of src to a until src is exhausted. It is the
// only goroutine touching a while the run lasts.
func analyze(a *analyzer.Analyzer, src source.Source, stats *runStats, progress bool) error {
	for line := range src.Lines() {
		if line.Restart {
			atomic.AddInt64(&stats.restarts, 1)
			a.ResetFile()
		}
		before := a.Time()
		var pending string
		if progress {
			pending = a.Progress()
		}
		if err := a.AnalyzeLine(line.Text); err != nil {
			return err
		}
		atomic.AddInt64(&stats.lines, 1)
		if a.Time() != before {
			atomic.AddInt64(&stats.steps, 1)
			if progress && before != "" {
				fmt.Printf("t = %s %s\n", before, pending)
			}
		}
	}
	if progress && a.Time() != "" {
		fmt.Printf("t = %s %s\n", a.Time(), a.Progress())
	}
	err := src.Err()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printSummary(rows []matchers.Row) {
	if len(rows) == 0 {
		return
	}
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.AppendHeader(table.Row{"Matcher", "Value", "Latest"})
	for _, r := range rows {
		tbl.AppendRow(table.Row{r.Matcher, r.Key, fmt.Sprintf("%v", r.Value)})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d values", len(rows))})
	tbl.Render()
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{"err": err, "addr": addr}).Error(
				"Metrics endpoint stopped")
		}
	}()
	return srv
}

// actually go and analyze
func run(ctx context.Context, options GlobalOptions) {
	logrus.WithFields(logrus.Fields{
		"file":           options.Reqs.LogFile,
		"dir":            options.Output.Dir,
		"max_open_files": outfile.MaxOpenFiles,
	}).Info("Starting foamtail")

	sigs := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	a, err := buildAnalyzer(options)
	if err != nil {
		logrus.WithFields(logrus.Fields{"err": err}).Fatal(
			"Error setting up matchers")
	}

	store := timeline.NewCollection()
	store.SetExtend(options.Output.Extend)
	var hc *timeline.Honeycomb
	if options.Honeycomb.Dataset != "" {
		hc, err = timeline.NewHoneycomb(options.Honeycomb)
		if err != nil {
			logrus.WithFields(logrus.Fields{"err": err}).Fatal(
				"Error occurred while spinning up Honeycomb client")
		}
		hc.SetExtend(options.Output.Extend)
		store.AddCollector(hc)
	}
	a.SetTimeline(store)

	if !options.Output.NoFiles {
		if err := a.SetDirectory(options.Output.Dir); err != nil {
			logrus.WithFields(logrus.Fields{"err": err}).Fatal(
				"Error preparing output directory")
		}
	}

	stats := &runStats{started: time.Now()}
	dump := matchers.NewDump()
	if err := a.AddTimeListener(dump); err != nil {
		logrus.WithFields(logrus.Fields{"err": err}).Fatal("Error registering listener")
	}
	a.AddResetFileTrigger(func() {
		logrus.WithFields(logrus.Fields{
			"file": options.Reqs.LogFile,
			"time": a.Time(),
		}).Warn("Log restarted, following the new run")
	})

	if options.MetricsAddr != "" {
		srv := serveMetrics(options.MetricsAddr)
		defer srv.Close()
	}

	src, err := source.Open(ctx, options.Reqs.LogFile, options.Tail)
	if err != nil {
		logrus.WithFields(logrus.Fields{"err": err}).Fatal(
			"Error occurred while trying to read logfile")
	}

	// set up our signal handler and support canceling
	go func() {
		sig := <-sigs
		fmt.Fprintf(os.Stderr, "Aborting! Caught signal \"%s\"\n", sig)
		fmt.Fprintf(os.Stderr, "Cleaning up...\n")
		cancel()
		// and if they insist, catch a second CTRL-C or timeout on 10sec
		select {
		case <-sigs:
			fmt.Fprintf(os.Stderr, "Caught second signal... Aborting.\n")
			os.Exit(1)
		case <-time.After(10 * time.Second):
			fmt.Fprintf(os.Stderr, "Taking too long... Aborting.\n")
			os.Exit(1)
		}
	}()

	if options.StatusInterval > 0 {
		ticker := time.NewTicker(time.Duration(options.StatusInterval) * time.Second)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ticker.C:
					stats.log(dump)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- analyze(a, src, stats, options.Progress)
	}()
	runErr := <-done
	if runErr != nil {
		reporting.WriteFailure(runErr)
	}
	src.Close()

	var rows []matchers.Row
	if options.Summary {
		rows = matchers.Rows(a.CollectData(true))
	}
	if err := a.TearDown(); err != nil && runErr == nil {
		runErr = err
	}
	if hc != nil {
		hc.Close()
	}

	printSummary(rows)
	stats.log(dump)
	reporting.Summary()
	if runErr != nil {
		os.Exit(1)
	}
}
