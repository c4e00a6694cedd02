// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for vuality application

package main

import (
	"fmt"
	"os"

	"github.com/evolution-gaming/vuality/internal/logging"
	"github.com/evolution-gaming/vuality/internal/vqm"
)

// root represents top level of vuality command, including dispatching to subcommands.
func root(args []string) error {
	usage := `Vuality - Video Quality Assessment

Usage:

    vuality <command> [arguments] [-h|-help]

The commands are:

    psnr        measure PSNR and MSE of input against reference
    ssim        measure SSIM of input against reference
    compare     assess several inputs against one reference and report
    vqmplot     create plot for given metric from psnr/ssim JSON result
    dump-conf   output actual application configuration
    version     print vuality version and exit

Use "vuality <command> -h|-help" for more information about command.`

	if len(args) < 1 {
		fmt.Println(usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	switch args[0] {
	case "psnr":
		return CreateAssessCommand(vqm.MetricPSNR).Run(args[1:])
	case "ssim":
		return CreateAssessCommand(vqm.MetricSSIM).Run(args[1:])
	case "compare":
		return CreateCompareCommand().Run(args[1:])
	case "vqmplot":
		return CreateVQMPlotCommand().Run(args[1:])
	case "dump-conf", "dump":
		return CreateDumpConfCommand().Run(args[1:])
	case "version":
		printVersion()
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Println(usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Println(usage)
		return &AppError{
			msg:      "unknown command/flag",
			exitCode: 2,
		}
	}
}

func main() {
	// Enable info logger by default and early enough.
	logging.EnableInfoLogger()

	if err := root(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		switch e := err.(type) {
		case *AppError:
			os.Exit(e.ExitCode())
		default:
			os.Exit(1)
		}
	}
	os.Exit(0)
}
