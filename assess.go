// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vuality tool's psnr and ssim subcommands implementation.

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evolution-gaming/vuality/internal/logging"
	"github.com/evolution-gaming/vuality/internal/tools"
	"github.com/evolution-gaming/vuality/internal/vqm"
)

var errNoFfprobe = errors.New("ffprobe path not configured")

// Make sure AssessApp implements Commander interface.
var _ Commander = (*AssessApp)(nil)

// AssessApp is psnr/ssim subcommand context that implements Commander interface.
type AssessApp struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *flag.FlagSet
	// Metric to measure
	metric vqm.Metric
	// Input media file, "-" for stdin
	flInput string
	// Reference media file
	flReference string
	// Output JSON file, stdout by default
	flOutFile string
	// Scale both videos to reference dimensions
	flScaleToRef bool
	flScale      scaleFlag
	// Global flags
	gf globalFlags
	// Source of "-" input
	in io.Reader
	// Default result destination
	out io.Writer
}

// CreateAssessCommand will create AssessApp measuring given metric.
func CreateAssessCommand(m vqm.Metric) *AssessApp {
	longHelp := fmt.Sprintf(`Subcommand "%[1]s" will measure %[1]s of input against reference using ffmpeg
and output per-frame values along with per-channel means as JSON.

Input "-" reads media from stdin. Inputs of different dimensions have to be
scaled to a common size with -scale or -scale-to-ref (requires ffprobe).

Examples:

  vuality %[1]s -i encoded.mp4 -ref source.mp4
  vuality %[1]s -i animation.gif -ref source.mp4 -scale 496x498 -o result.json
  cat encoded.mp4 | vuality %[1]s -i - -ref source.mp4 -scale-to-ref`, m)

	app := &AssessApp{
		fs:     flag.NewFlagSet(string(m), flag.ContinueOnError),
		metric: m,
		gf:     globalFlags{},
		in:     os.Stdin,
		out:    os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flInput, "i", "", "Input media file, \"-\" for stdin (mandatory)")
	app.fs.StringVar(&app.flReference, "ref", "", "Reference media file (mandatory)")
	app.fs.StringVar(&app.flOutFile, "o", "", "Output JSON file (stdout by default)")
	app.fs.Var(&app.flScale, "scale", "Scale input and reference to WxH before comparison")
	app.fs.BoolVar(&app.flScaleToRef, "scale-to-ref", false, "Scale input and reference to reference dimensions")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *AssessApp) Name() string {
	return a.fs.Name()
}

func (a *AssessApp) Help() {
	a.fs.Usage()
}

// init will do AssessApp state initialization.
func (a *AssessApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	a.gf.apply()

	if a.flInput == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	if a.flReference == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -ref is missing",
		}
	}

	if a.flScaleToRef && a.flScale.scale != nil {
		return &AppError{
			exitCode: 2,
			msg:      "options -scale and -scale-to-ref are mutually exclusive",
		}
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

	return nil
}

// options builds assessment options from flags.
func (a *AssessApp) options() (vqm.Options, error) {
	var opts vqm.Options
	switch {
	case a.flScale.scale != nil:
		opts.Scale = a.flScale.scale
	case a.flScaleToRef:
		sc, err := scaleToReference(a.cfg.FfprobePath.Value(), a.flReference)
		if err != nil {
			return opts, err
		}
		opts.Scale = &sc
	}
	return opts, nil
}

// scaleToReference probes reference dimensions.
func scaleToReference(ffprobePath, reference string) (vqm.Scale, error) {
	if ffprobePath == "" {
		return vqm.Scale{}, fmt.Errorf("scale to reference: %w", errNoFfprobe)
	}
	probe := tools.Ffprobe{Path: ffprobePath}
	meta, err := probe.ExtractMetadata(reference)
	if err != nil {
		return vqm.Scale{}, fmt.Errorf("scale to reference: %w", err)
	}
	logging.Debugf("Reference %s is %s %s %s", reference, meta.Size(), meta.CodecName, meta.PixFmt)
	return vqm.Scale{Width: meta.Width, Height: meta.Height}, nil
}

// input maps -i flag value into vqm.Input.
func (a *AssessApp) input() vqm.Input {
	if a.flInput == "-" {
		return vqm.ReaderInput(a.in)
	}
	return vqm.FileInput(a.flInput)
}

// Run is main entry point into AssessApp execution.
func (a *AssessApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	opts, err := a.options()
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	assessor, err := a.cfg.newAssessor()
	if err != nil {
		return assessmentError(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	ref := vqm.FileInput(a.flReference)
	var result any
	switch a.metric {
	case vqm.MetricPSNR:
		r, err := assessor.PSNR(ctx, a.input(), ref, opts)
		if err != nil {
			return assessmentError(err)
		}
		logging.Infof("PSNR of %s: %v", a.flInput, formatStat(r.PSNR))
		result = r
	case vqm.MetricSSIM:
		r, err := assessor.SSIM(ctx, a.input(), ref, opts)
		if err != nil {
			return assessmentError(err)
		}
		logging.Infof("SSIM of %s: %v", a.flInput, formatStat(r.SSIM))
		result = r
	default:
		return &AppError{exitCode: 2, msg: fmt.Sprintf("unsupported metric %q", a.metric)}
	}

	if err := a.writeResult(result); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	return nil
}

// writeResult writes result JSON either to -o file or to default output.
func (a *AssessApp) writeResult(result any) error {
	if a.flOutFile == "" {
		return vqm.WriteJSON(a.out, result)
	}

	if dir := filepath.Dir(a.flOutFile); dir != "" {
		if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	fd, err := os.Create(a.flOutFile)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	defer fd.Close()

	if err := vqm.WriteJSON(fd, result); err != nil {
		return err
	}
	logging.Infof("Result written to %s", a.flOutFile)
	return nil
}

// formatStat renders Stat as sorted "key=value" pairs for logging.
func formatStat(s vqm.Stat) string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4f", k, s[k])
	}
	return strings.Join(parts, " ")
}
