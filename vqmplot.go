// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vuality tool's vqmplot subcommand implementation.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/evolution-gaming/vuality/internal/analysis"
	"github.com/evolution-gaming/vuality/internal/logging"
	"github.com/evolution-gaming/vuality/internal/vqm"
)

// Make sure VQMPlotApp implements Commander interface.
var _ Commander = (*VQMPlotApp)(nil)

// Preferred group to plot when -g is not given.
var defaultPlotGroups = []string{"psnr", "ssim"}

// VQMPlotApp is vqmplot subcommand context that implements Commander interface.
type VQMPlotApp struct {
	// FlagSet instance
	fs *flag.FlagSet
	// Result JSON file
	flInFile string
	// Plot output file
	flOutFile string
	// Metric group to plot
	flGroup string
	// Channel to plot, all channels if empty
	flChannel string
	// Global flags
	gf globalFlags
}

// CreateVQMPlotCommand will create Commander instance from VQMPlotApp.
func CreateVQMPlotCommand() *VQMPlotApp {
	longHelp := `Subcommand "vqmplot" will create plot for given metric group and channel from
JSON result produced by "psnr" or "ssim" subcommand.

With -c, plot includes per-frame values, histogram and CDF of the channel. Without
-c, per-frame values of all channels are plotted together.

Examples:

  vuality vqmplot -i result.json
  vuality vqmplot -i result.json -g mse -c y -o mse_y.png`

	app := &VQMPlotApp{
		fs: flag.NewFlagSet("vqmplot", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flInFile, "i", "", "Result JSON file (mandatory)")
	app.fs.StringVar(&app.flOutFile, "o", "", "File to save plot to")
	app.fs.StringVar(&app.flGroup, "g", "", "Metric group: psnr, mse or ssim (default psnr or ssim)")
	app.fs.StringVar(&app.flChannel, "c", "", "Channel, e.g. y, u, v, avg, all (default all channels)")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

func (a *VQMPlotApp) Name() string {
	return a.fs.Name()
}

func (a *VQMPlotApp) Help() {
	a.fs.Usage()
}

// pickGroup returns group to plot: the requested one or a sensible default.
func pickGroup(frames []vqm.Frame, requested string) (string, error) {
	present := make(map[string]bool)
	for _, f := range frames {
		for g := range f.Groups {
			present[g] = true
		}
	}

	if requested != "" {
		if !present[requested] {
			return "", fmt.Errorf("group %q not found in result", requested)
		}
		return requested, nil
	}

	for _, g := range defaultPlotGroups {
		if present[g] {
			return g, nil
		}
	}
	groups := make([]string, 0, len(present))
	for g := range present {
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return "", fmt.Errorf("no metric groups in result")
	}
	sort.Strings(groups)
	return groups[0], nil
}

// Run is main entry point into VQMPlotApp execution.
func (a *VQMPlotApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	a.gf.apply()

	if a.flInFile == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	fd, err := os.Open(a.flInFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	frames, err := vqm.ReadFrames(fd)
	fd.Close()
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	group, err := pickGroup(frames, a.flGroup)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	base := baseName(a.flInFile)
	if a.flOutFile == "" {
		name := base + "_" + group
		if a.flChannel != "" {
			name += "_" + a.flChannel
		}
		a.flOutFile = filepath.Join(filepath.Dir(a.flInFile), name+".png")
	}

	if a.flChannel == "" {
		err = a.plotChannels(frames, group, base)
	} else {
		err = a.plotChannel(frames, group, base)
	}
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	logging.Infof("Plot written to %s", a.flOutFile)
	return nil
}

// plotChannel creates multi plot of single channel.
func (a *VQMPlotApp) plotChannel(frames []vqm.Frame, group, title string) error {
	channels := vqm.Channels(frames, group)
	i := sort.SearchStrings(channels, a.flChannel)
	if i == len(channels) || channels[i] != a.flChannel {
		return fmt.Errorf("channel %q not found in group %s, have: %v", a.flChannel, group, channels)
	}

	name := fmt.Sprintf("%s %s", group, a.flChannel)
	return analysis.MultiPlotVqm(vqm.Series(frames, group, a.flChannel), name, title, a.flOutFile)
}

// plotChannels creates per-frame plot of all channels of group.
func (a *VQMPlotApp) plotChannels(frames []vqm.Frame, group, title string) error {
	series := make(map[string][]float64)
	for _, ch := range vqm.Channels(frames, group) {
		series[ch] = vqm.Series(frames, group, ch)
	}

	p, err := analysis.CreateChannelsPlot(series, group)
	if err != nil {
		return err
	}
	return analysis.SavePlot(p, title, a.flOutFile)
}
