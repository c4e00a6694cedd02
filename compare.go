// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vuality tool's compare subcommand implementation.

package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/evolution-gaming/vuality/internal/analysis"
	"github.com/evolution-gaming/vuality/internal/logging"
	"github.com/evolution-gaming/vuality/internal/metric"
	"github.com/evolution-gaming/vuality/internal/vqm"
	"github.com/jszwec/csvutil"
	"golang.org/x/sync/errgroup"
)

// Make sure CompareApp implements Commander interface.
var _ Commander = (*CompareApp)(nil)

// CreateCompareCommand will create instance of CompareApp.
func CreateCompareCommand() *CompareApp {
	longHelp := `Subcommand "compare" will assess every input against the reference with
each of requested metrics, run assessments concurrently and save results into
output directory: a CSV report with per-channel statistics, JSON result and
per-channel plots for every input and metric.

Examples:

  vuality compare -ref source.mp4 -i enc1.mp4 -i enc2.mp4 -out-dir results
  vuality compare -ref source.mp4 -i anim.gif -metrics ssim -scale 496x498 -out-dir results`

	app := &CompareApp{
		fs:        flag.NewFlagSet("compare", flag.ContinueOnError),
		gf:        globalFlags{},
		mStore:    metric.NewStore(),
		flMetrics: metricList{vqm.MetricPSNR, vqm.MetricSSIM},
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flReference, "ref", "", "Reference media file (mandatory)")
	app.fs.Var(&app.flInputs, "i", "Input media file. Use multiple times for multiple files (mandatory)")
	app.fs.StringVar(&app.flOutDir, "out-dir", "", "Output directory to store results (mandatory)")
	app.fs.Var(&app.flMetrics, "metrics", "Comma separated metrics to measure")
	app.fs.IntVar(&app.flJobs, "jobs", 0, "Number of concurrent assessments (configured \"jobs\" by default)")
	app.fs.Var(&app.flScale, "scale", "Scale inputs and reference to WxH before comparison")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// CompareApp is subcommand application context that implements Commander interface.
type CompareApp struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *flag.FlagSet
	// Reference media file
	flReference string
	// Media files to assess
	flInputs inputFiles
	// Output directory for results
	flOutDir string
	// Metrics to measure
	flMetrics metricList
	// Concurrency limit
	flJobs  int
	flScale scaleFlag
	// Global flags
	gf globalFlags
	// Per-channel metric store
	mStore *metric.Store
}

func (a *CompareApp) Name() string {
	return a.fs.Name()
}

func (a *CompareApp) Help() {
	a.fs.Usage()
}

// init will do CompareApp state initialization.
func (a *CompareApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	a.gf.apply()

	if a.flReference == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -ref is missing",
		}
	}

	if len(a.flInputs) == 0 {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	if a.flOutDir == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -out-dir is missing",
		}
	}

	if len(a.flMetrics) == 0 {
		return &AppError{exitCode: 2, msg: "no metrics to measure"}
	}

	if a.flJobs < 0 {
		return &AppError{exitCode: 2, msg: "option -jobs should not be negative"}
	}

	// Every input gets its own result directory named after it.
	seen := make(map[string]string, len(a.flInputs))
	for _, in := range a.flInputs {
		if in == "-" {
			return &AppError{exitCode: 2, msg: "stdin input is not supported by compare"}
		}
		if prev, ok := seen[baseName(in)]; ok {
			return &AppError{exitCode: 2, msg: fmt.Sprintf("inputs %s and %s have same name", prev, in)}
		}
		seen[baseName(in)] = in
	}

	// Do not write over existing output directory.
	if isNonEmptyDir(a.flOutDir) {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("non-empty out dir: %s", a.flOutDir)}
	}

	// Load application configuration.
	c, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	a.cfg = &c

	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	if a.flJobs == 0 {
		a.flJobs = a.cfg.Jobs.Value()
	}

	return nil
}

// assessment is a single input and metric combination.
type assessment struct {
	input  string
	metric vqm.Metric
	// Directory for result file and plots
	resDir string
}

func (s assessment) resultFile() string {
	return path.Join(s.resDir, fmt.Sprintf("%s_%s.json", baseName(s.input), s.metric))
}

// assess runs every assessment with concurrency bounded by -jobs.
func (a *CompareApp) assess(ctx context.Context, assessor *vqm.Assessor) error {
	opts := vqm.Options{Scale: a.flScale.scale}
	ref := vqm.FileInput(a.flReference)

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(a.flJobs)

	for _, in := range a.flInputs {
		resDir := path.Join(a.flOutDir, baseName(in))
		if err := os.MkdirAll(resDir, os.FileMode(0o755)); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}

		for _, m := range a.flMetrics {
			s := assessment{input: in, metric: m, resDir: resDir}
			g.Go(func() error {
				logging.Infof("Start measuring %s for %s", s.metric, s.input)
				if err := a.assessOne(ctx, assessor, s, ref, opts); err != nil {
					failed.Add(1)
					logging.Infof("Failed measuring %s for %s: %s", s.metric, s.input, err)
					return err
				}
				logging.Infof("Done measuring %s for %s", s.metric, s.input)
				return nil
			})
		}
	}

	err := g.Wait()
	if cnt := failed.Load(); cnt != 0 {
		return fmt.Errorf("%d assessment(s) failed, see log for reasons: %w", cnt, err)
	}
	return nil
}

// assessOne measures single assessment, saves its result file and records aggregates.
func (a *CompareApp) assessOne(ctx context.Context, assessor *vqm.Assessor, s assessment, ref vqm.Input, opts vqm.Options) error {
	var (
		result any
		frames []vqm.Frame
	)
	switch s.metric {
	case vqm.MetricPSNR:
		r, err := assessor.PSNR(ctx, vqm.FileInput(s.input), ref, opts)
		if err != nil {
			return err
		}
		result, frames = r, r.FramesOf()
	case vqm.MetricSSIM:
		r, err := assessor.SSIM(ctx, vqm.FileInput(s.input), ref, opts)
		if err != nil {
			return err
		}
		result, frames = r, r.FramesOf()
	default:
		return fmt.Errorf("assessOne(): %w: %q", vqm.ErrUnknownMetric, s.metric)
	}

	fd, err := os.Create(s.resultFile())
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	err = vqm.WriteJSON(fd, result)
	// Should avoid use of defer in loop, close right away.
	fd.Close()
	if err != nil {
		return err
	}

	summary, err := vqm.Summarize(frames, s.metric)
	if err != nil {
		return err
	}
	if s.metric == vqm.MetricPSNR && all(vqm.Series(frames, "psnr", "avg"), math.Inf(1)) {
		logging.Infof("%s is identical to reference", s.input)
	}
	for group, channels := range vqm.Aggregates(frames, s.metric) {
		for ch, agg := range channels {
			id := a.mStore.Insert(metric.Record{
				Input:      s.input,
				Reference:  a.flReference,
				ResultFile: s.resultFile(),
				Metric:     string(s.metric),
				Group:      group,
				Channel:    ch,
				Frames:     agg.Frames,
				Mean:       summary[group][ch],
				Min:        agg.Min,
				Max:        agg.Max,
				StDev:      agg.StDev,
			})
			logging.Debugf("Storing record (id=%v) for %s %s_%s", id, s.input, group, ch)
		}
	}

	return nil
}

// analyse creates per-channel plots from saved result files.
func (a *CompareApp) analyse() error {
	for _, r := range a.sortedRecords() {
		fd, err := os.Open(r.ResultFile)
		if err != nil {
			return fmt.Errorf("opening result file: %w", err)
		}
		frames, err := vqm.ReadFrames(fd)
		// Close fd at earliest convenience. Should avoid use of defer in loop in this case.
		fd.Close()
		if err != nil {
			return fmt.Errorf("reading result file %s: %w", r.ResultFile, err)
		}

		base := baseName(r.Input)
		plotFile := path.Join(filepath.Dir(r.ResultFile), fmt.Sprintf("%s_%s_%s.png", base, r.Group, r.Channel))
		name := fmt.Sprintf("%s %s", r.Group, r.Channel)
		err = analysis.MultiPlotVqm(vqm.Series(frames, r.Group, r.Channel), name, base, plotFile)
		switch {
		case errors.Is(err, analysis.ErrNoFiniteValues):
			logging.Infof("Skip %s multi-plot for %s, no finite values", name, r.Input)
		case err != nil:
			return fmt.Errorf("creating %s multi-plot: %w", name, err)
		default:
			logging.Debugf("%s multi-plot done: %s", name, plotFile)
		}
	}

	return nil
}

// sortedRecords returns stored records in stable order regardless of assessment
// completion order.
func (a *CompareApp) sortedRecords() []metric.Record {
	records := a.mStore.Records()
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i], records[j]
		if ri.Input != rj.Input {
			return ri.Input < rj.Input
		}
		if ri.Metric != rj.Metric {
			return ri.Metric < rj.Metric
		}
		if ri.Group != rj.Group {
			return ri.Group < rj.Group
		}
		return ri.Channel < rj.Channel
	})
	return records
}

// saveReport writes recorded metrics to report file.
func (a *CompareApp) saveReport() error {
	report := a.sortedRecords()

	reportPath := path.Join(a.flOutDir, a.cfg.ReportFileName.Value())
	reportOut, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating CSV report file: %w", err)
	}
	defer reportOut.Close()

	w := csv.NewWriter(reportOut)
	if err := csvutil.NewEncoder(w).Encode(report); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	logging.Infof("Report written to %s", reportPath)

	return nil
}

// Run is main entry point into CompareApp execution.
func (a *CompareApp) Run(args []string) error {
	logging.Infof("vuality version: %s", vInfo)
	if err := a.init(args); err != nil {
		return err
	}
	if logging.IsDebug() {
		if b, err := json.Marshal(a.cfg); err == nil {
			logging.Debugf("Application configuration: %s", b)
		}
	}

	assessor, err := a.cfg.newAssessor()
	if err != nil {
		return assessmentError(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	assessErr := a.assess(ctx, assessor)

	// Report whatever has been measured, even if some assessments failed.
	if len(a.mStore.GetIDs()) != 0 {
		if err = a.saveReport(); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
		if err = a.analyse(); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
	}

	if assessErr != nil {
		return assessmentError(assessErr)
	}

	logging.Info("Done")
	return nil
}
