/*
 * main.go, part of matflow.
 *
 * Copyright 2021 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Command matflow enumerates doped oxide structures, submits their calculation
//workflows to a launchpad and post-processes the results.
//
//Usage:
//
//	matflow [-v] [-log-format text|json] [-metrics file] <command> [flags]
//
//Run "matflow help" for the list of commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/metrics"
)

//errUsage is returned for bad command lines, after the usage has been printed.
var errUsage = errors.New("usage error")

type command struct {
	help string
	run  func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"enumerate":        {"enumerate the templates of a campaign file", cmdEnumerate},
	"submit":           {"build and submit the workflows of a campaign file", cmdSubmit},
	"high-fft":         {"repeat tagged static calculations with a dense FFT grid", cmdHighFFT},
	"bader":            {"store Bader analyses in the task documents", cmdBader},
	"perovskite-wfs":   {"submit the cubic perovskites not yet computed", cmdPerovskiteWFs},
	"publish":          {"publish simplified perovskite documents", cmdPublish},
	"elastic-defuse":   {"defuse elastic workflows of materials with elasticity data", cmdElasticDefuse},
	"elastic-priority": {"raise the priority of minimal elastic workflows", cmdElasticPriority},
	"plot":             {"plot a structure or its Bader charge transfers", cmdPlot},
	"fetch":            {"download a structure from the Materials Project", cmdFetch},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "matflow:", err)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: matflow [-v] [-log-format text|json] [-metrics file] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-17s %s\n", n, commands[n].help)
	}
}

//run parses the global flags, sets up the logger and runs the command.
func run(ctx context.Context, args []string, out, errw io.Writer) error {
	fs := flag.NewFlagSet("matflow", flag.ContinueOnError)
	fs.SetOutput(errw)
	fs.Usage = func() { usage(errw) }
	verbose := fs.Bool("v", false, "debug logging")
	format := fs.String("log-format", "text", "log format, text or json")
	metricsFile := fs.String("metrics", "", "write the counters to this file, in the Prometheus text format")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		usage(errw)
		return errUsage
	}
	name := fs.Arg(0)
	if name == "help" {
		usage(out)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(errw, "matflow: command %q not supported\n", name)
		usage(errw)
		return errUsage
	}
	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := ctxlog.New(level, strings.ToLower(*format), errw)
	slog.SetDefault(logger)
	ctx = ctxlog.WithLogger(ctx, logger)
	err := cmd.run(ctx, fs.Args()[1:], out)
	if *metricsFile != "" {
		if merr := metrics.WriteFile(*metricsFile); merr != nil {
			logger.Error("could not write metrics", "file", *metricsFile, "error", merr)
			if err == nil {
				err = merr
			}
		}
	}
	if err != nil && !errors.Is(err, errUsage) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return err
}
