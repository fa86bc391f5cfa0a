/*
 * commands.go, part of matflow.
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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/archive"
	"github.com/rmera/matflow/bader"
	"github.com/rmera/matflow/campaign"
	"github.com/rmera/matflow/chemplot"
	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/elastic"
	"github.com/rmera/matflow/enum"
	"github.com/rmera/matflow/launchpad"
	"github.com/rmera/matflow/metrics"
	"github.com/rmera/matflow/mpapi"
	"github.com/rmera/matflow/perovskite"
	"github.com/rmera/matflow/store"
	"github.com/rmera/matflow/wf"
)

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "%s: unexpected arguments %v\n", fs.Name(), fs.Args())
		return errUsage
	}
	return nil
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		if fs.Lookup(n).Value.String() == "" {
			fmt.Fprintf(fs.Output(), "%s: -%s is required\n", fs.Name(), n)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

//openLaunchpad connects to the launchpad of the my_launchpad.yaml file at path,
//or of the one found through FW_CONFIG_FILE if path is empty.
func openLaunchpad(ctx context.Context, path string) (*launchpad.LaunchPad, error) {
	var lpad *launchpad.LaunchPad
	var err error
	if path == "" {
		lpad, err = launchpad.AutoLoad()
	} else {
		lpad, err = launchpad.FromFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := lpad.Connect(ctx); err != nil {
		return nil, err
	}
	return lpad, nil
}

//openStore connects to the store of the db file at path, or to the task
//database of the worker if path is empty.
func openStore(ctx context.Context, path string) (store.Store, error) {
	var s store.Store
	var err error
	if path == "" {
		s, err = launchpad.DBFromFworker("")
	} else {
		s, err = store.FromDBFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

//fetcher returns a Materials Project client, or nil if there is no API key,
//in which case only templates with local structures can be enumerated.
func fetcher(ctx context.Context) enum.Fetcher {
	c, err := mpapi.New(mpapi.Config{})
	if err != nil {
		ctxlog.FromContext(ctx).Debug("no Materials Project client", "error", err)
		return nil
	}
	return c
}

func plan(ctx context.Context, path string) (*campaign.Campaign, []campaign.Item, error) {
	C, err := campaign.Load(path)
	if err != nil {
		return nil, nil, err
	}
	items, err := campaign.Plan(ctx, C, fetcher(ctx))
	if err != nil {
		return nil, nil, err
	}
	return C, items, nil
}

func cmdEnumerate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("enumerate", flag.ContinueOnError)
	file := fs.String("campaign", "", "campaign file")
	dir := fs.String("poscar-dir", "", "write every structure as a POSCAR file in this directory")
	plotFile := fs.String("plot", "", "draw the compositions of the structures to this file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "campaign"); err != nil {
		return err
	}
	_, items, err := plan(ctx, *file)
	if err != nil {
		return err
	}
	structs := make([]*matflow.Structure, len(items))
	for i, it := range items {
		structs[i] = it.Structure
		fmt.Fprintf(out, "%4d %-12s %s\n", i, it.MaterialID, it.Structure.Formula())
		if *dir == "" {
			continue
		}
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			return err
		}
		name := filepath.Join(*dir, fmt.Sprintf("POSCAR_%s_%03d", it.MaterialID, i))
		if err := matflow.PoscarWrite(name, it.Structure, it.MaterialID+" "+it.Structure.Formula()); err != nil {
			return err
		}
	}
	if *plotFile != "" {
		return chemplot.Compositions(structs, "Enumerated compositions", *plotFile)
	}
	return nil
}

func cmdSubmit(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	file := fs.String("campaign", "", "campaign file")
	dry := fs.Bool("dry-run", false, "build the workflows without adding them, even if the campaign says launch")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "campaign"); err != nil {
		return err
	}
	C, items, err := plan(ctx, *file)
	if err != nil {
		return err
	}
	if *dry {
		C.Launch = false
	}
	var lpad *launchpad.LaunchPad
	if C.Launch {
		lpad, err = openLaunchpad(ctx, C.Path(C.Launchpad))
		if err != nil {
			return err
		}
		defer lpad.Close()
	}
	wfs, err := campaign.Submit(ctx, C, items, lpad)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d workflows built, launched: %t\n", len(wfs), C.Launch)
	return nil
}

func cmdHighFFT(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("high-fft", flag.ContinueOnError)
	tag := fs.String("tag", "", "tag of the static calculations to repeat")
	db := fs.String("tasks-db", "", "task database file (the worker's if empty)")
	lp := fs.String("launchpad", "", "my_launchpad.yaml file (found through FW_CONFIG_FILE if empty)")
	dry := fs.Bool("dry-run", false, "build the workflows without adding them")
	workers := fs.Int("workers", 4, "workflows built at the same time")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "tag"); err != nil {
		return err
	}
	tasks, err := openStore(ctx, *db)
	if err != nil {
		return err
	}
	defer tasks.Close()
	var lpad *launchpad.LaunchPad
	if !*dry {
		lpad, err = openLaunchpad(ctx, *lp)
		if err != nil {
			return err
		}
		defer lpad.Close()
	}
	wfs, err := campaign.HighFFT(ctx, tasks, *tag, lpad, *workers)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d dense grid workflows, launched: %t\n", len(wfs), !*dry)
	return nil
}

func cmdBader(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bader", flag.ContinueOnError)
	tag := fs.String("tag", "", "tag of the static calculations to analyze")
	db := fs.String("tasks-db", "", "task database file (the worker's if empty)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "tag"); err != nil {
		return err
	}
	tasks, err := openStore(ctx, *db)
	if err != nil {
		return err
	}
	defer tasks.Close()
	n, err := bader.AddBader(ctx, tasks, store.Doc{"tags": *tag, "task_label": "static"})
	fmt.Fprintf(out, "%d Bader analyses stored\n", n)
	return err
}

func cmdPerovskiteWFs(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("perovskite-wfs", flag.ContinueOnError)
	db := fs.String("ase-db", "cubic_perovskites.db", "ASE database with the perovskites")
	csv := fs.String("screened", "screened.csv", "CSV file of the perovskites already computed")
	lp := fs.String("launchpad", "", "my_launchpad.yaml file (found through FW_CONFIG_FILE if empty)")
	dump := fs.String("dump", "", "also dump the workflows to this file")
	dry := fs.Bool("dry-run", false, "build the workflows without adding them")
	if err := parse(fs, args); err != nil {
		return err
	}
	cands, err := perovskite.GenerateStructures(ctx, *db, *csv)
	if err != nil {
		return err
	}
	wfs, err := wf.GenerateAll(ctx, cands, func(c perovskite.Candidate) (*wf.Workflow, error) {
		return wf.OptStatic(c.Structure, perovskite.Tag)
	}, 0)
	if err != nil {
		return err
	}
	metrics.WorkflowsBuilt.Add(float64(len(wfs)))
	if *dump != "" {
		if err := wf.DumpFile(*dump, wfs); err != nil {
			return err
		}
	}
	if !*dry {
		lpad, err := openLaunchpad(ctx, *lp)
		if err != nil {
			return err
		}
		defer lpad.Close()
		for _, W := range wfs {
			if _, err := lpad.AddWF(ctx, W); err != nil {
				return err
			}
			metrics.WorkflowsSubmitted.Inc()
		}
	}
	fmt.Fprintf(out, "%d perovskite workflows, launched: %t\n", len(wfs), !*dry)
	return nil
}

func cmdPublish(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	db := fs.String("tasks-db", "", "task database file (the worker's if empty)")
	target := fs.String("target", "", "db file of the collaborators' database")
	tag := fs.String("tag", perovskite.Tag, "tag of the tasks to publish")
	export := fs.String("export", "", "also write the documents to this JSON file (.gz and .zst are compressed)")
	upload := fs.Bool("s3", false, "upload the exported file to the bucket given by MATFLOW_S3_BUCKET")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *target == "" && *export == "" {
		fmt.Fprintln(fs.Output(), "publish: one of -target or -export is required")
		return errUsage
	}
	if *upload && *export == "" {
		fmt.Fprintln(fs.Output(), "publish: -s3 needs -export")
		return errUsage
	}
	tasks, err := openStore(ctx, *db)
	if err != nil {
		return err
	}
	defer tasks.Close()
	docs, err := perovskite.SimplifiedDocs(ctx, tasks, store.Doc{"tags": *tag})
	if err != nil {
		return err
	}
	if *target != "" {
		t, err := openStore(ctx, *target)
		if err != nil {
			return err
		}
		defer t.Close()
		if err := perovskite.Publish(ctx, docs, t); err != nil {
			return err
		}
	}
	if *export != "" {
		if err := perovskite.Export(*export, docs); err != nil {
			return err
		}
	}
	if *upload {
		c, err := archive.S3ConfigFromEnv()
		if err != nil {
			return err
		}
		u, err := archive.NewUploader(ctx, c)
		if err != nil {
			return err
		}
		loc, err := u.UploadFile(ctx, *export, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "uploaded %s\n", loc)
	}
	fmt.Fprintf(out, "%d documents published\n", len(docs))
	return nil
}

func cmdElasticDefuse(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("elastic-defuse", flag.ContinueOnError)
	db := fs.String("materials-db", "", "db file of the materials collection")
	lp := fs.String("launchpad", "", "my_launchpad.yaml file (found through FW_CONFIG_FILE if empty)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "materials-db"); err != nil {
		return err
	}
	materials, err := openStore(ctx, *db)
	if err != nil {
		return err
	}
	defer materials.Close()
	lpad, err := openLaunchpad(ctx, *lp)
	if err != nil {
		return err
	}
	defer lpad.Close()
	done, err := elastic.DefuseWithElasticityData(ctx, materials, lpad)
	fmt.Fprintf(out, "defused the workflows of %d materials\n", len(done))
	return err
}

func cmdElasticPriority(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("elastic-priority", flag.ContinueOnError)
	lp := fs.String("launchpad", "", "my_launchpad.yaml file (found through FW_CONFIG_FILE if empty)")
	if err := parse(fs, args); err != nil {
		return err
	}
	lpad, err := openLaunchpad(ctx, *lp)
	if err != nil {
		return err
	}
	defer lpad.Close()
	n, err := elastic.SetPriority(ctx, lpad)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "minimal: %d, minimal full stencil: %d, deformations: %d\n", n[0], n[1], n[2])
	return nil
}

func cmdPlot(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	poscar := fs.String("poscar", "", "structure to draw")
	baderDir := fs.String("bader", "", "calculation directory whose Bader charge transfers are drawn")
	axis := fs.Int("axis", 2, "projection axis: 0, 1 or 2")
	o := fs.String("o", "", "output file (png, svg or pdf)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "o"); err != nil {
		return err
	}
	switch {
	case *baderDir != "":
		A, err := bader.FromPath(*baderDir)
		if err != nil {
			return err
		}
		if A.Structure == nil {
			return fmt.Errorf("no structure in %s", *baderDir)
		}
		values := make([]float64, len(A.Atoms))
		for i := range values {
			values[i] = A.ChargeTransfer(i)
		}
		return chemplot.Bars(chemplot.SiteLabels(A.Structure), values, "Bader charge transfer", "charge - ZVAL (e)", *o)
	case *poscar != "":
		S, err := matflow.PoscarRead(*poscar)
		if err != nil {
			return err
		}
		return chemplot.Projection(S, *axis, S.Formula(), *o)
	}
	fmt.Fprintln(fs.Output(), "plot: one of -poscar or -bader is required")
	return errUsage
}

func cmdFetch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	id := fs.String("id", "", "material id, i.e. mp-2657")
	o := fs.String("o", "", "write the structure to this POSCAR file instead of the standard output")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "id"); err != nil {
		return err
	}
	c, err := mpapi.New(mpapi.Config{})
	if err != nil {
		return err
	}
	defer c.Close()
	S, err := c.StructureByMaterialID(ctx, *id)
	if errors.Is(err, mpapi.ErrNotFound) {
		return fmt.Errorf("%s: %w", *id, err)
	}
	if err != nil {
		return err
	}
	if *o != "" {
		return matflow.PoscarWrite(*o, S, *id+" "+S.Formula())
	}
	return matflow.WritePoscar(out, S, *id+" "+S.Formula())
}
