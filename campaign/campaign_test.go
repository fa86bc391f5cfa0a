/*
 * campaign_test.go, part of matflow.
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

package campaign

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/launchpad"
	"github.com/rmera/matflow/store"
	"github.com/rmera/matflow/wf"
)

const campaignFile = `
tag    = "${env.MATFLOW_TEST_PREFIX}_test"
launch = true
dump   = "wfs.json.gz"
workers = 2

template "mp-2657" {
  perturbations = 1
  replace_sites = { Ti = ["Mn", "Sb"] }
  keep_reduced_formula = ["Mn9Sb7O32"]
}

template "local" {
  poscar        = "POSCAR"
  perturbations = 0
  replace_species = { Ti = "Mn" }
}
`

type fakeFetcher map[string]*matflow.Structure

func (f fakeFetcher) StructureByMaterialID(ctx context.Context, id string) (*matflow.Structure, error) {
	s, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("no such material %s", id)
	}
	return s.Copy(), nil
}

func writeCampaign(Te *testing.T, content string) string {
	Te.Helper()
	dir := Te.TempDir()
	b, err := os.ReadFile("../testdata/POSCAR_rutile")
	if err != nil {
		Te.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "POSCAR"), b, 0o644); err != nil {
		Te.Fatal(err)
	}
	path := filepath.Join(dir, "campaign.hcl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		Te.Fatal(err)
	}
	return path
}

func TestLoad(Te *testing.T) {
	Te.Setenv("MATFLOW_TEST_PREFIX", "mn_sb_calcs")
	C, err := Load(writeCampaign(Te, campaignFile))
	if err != nil {
		Te.Fatal(err)
	}
	if C.Tag != "mn_sb_calcs_test" || !C.Launch || C.Workers != 2 || len(C.Templates) != 2 {
		Te.Errorf("unexpected campaign %+v", C)
	}
	t := C.Templates[0]
	if t.ID != "mp-2657" || *t.Perturbations != 1 || len(t.ReplaceSites["Ti"]) != 2 {
		Te.Errorf("unexpected first template %+v", t)
	}
	if C.Templates[1].ReplaceSpecies["Ti"] != "Mn" {
		Te.Errorf("unexpected second template %+v", C.Templates[1])
	}
	bad := map[string]string{
		"no tag":        `template "mp-1" {}`,
		"no templates":  `tag = "x"`,
		"repeated":      `tag = "x"` + "\n" + `template "mp-1" {}` + "\n" + `template "mp-1" {}`,
		"bad formula":   `tag = "x"` + "\n" + `template "mp-1" { keep_reduced_formula = ["Mn("] }`,
		"bad pair":      `tag = "x"` + "\n" + `substitutions = [["Mn"]]` + "\n" + `template "mp-1" {}`,
		"syntax":        `tag = `,
		"unknown field": `tag = "x"` + "\n" + `colour = "red"` + "\n" + `template "mp-1" {}`,
	}
	for name, content := range bad {
		if _, err := Load(writeCampaign(Te, content)); err == nil {
			Te.Errorf("%s: expected an error", name)
		} else {
			fmt.Println(name, err)
		}
	}
}

func TestPlanAndSubmit(Te *testing.T) {
	Te.Setenv("MATFLOW_TEST_PREFIX", "mn_sb_calcs")
	ctx := context.Background()
	path := writeCampaign(Te, campaignFile)
	C, err := Load(path)
	if err != nil {
		Te.Fatal(err)
	}
	rutile, err := matflow.PoscarRead("../testdata/POSCAR_rutile")
	if err != nil {
		Te.Fatal(err)
	}
	items, err := Plan(ctx, C, fakeFetcher{"mp-2657": rutile})
	if err != nil {
		Te.Fatal(err)
	}
	if len(items) != 2 {
		Te.Fatalf("expected 2 structures, got %d", len(items))
	}
	if items[0].MaterialID != "mp-2657" || items[0].Structure.Formula() != "Mn9Sb7O32" {
		Te.Errorf("unexpected first item %s %s", items[0].MaterialID, items[0].Structure.Formula())
	}
	if items[1].MaterialID != "local" || items[1].Structure.Formula() != "MnO2" {
		Te.Errorf("unexpected second item %s %s", items[1].MaterialID, items[1].Structure.Formula())
	}
	lpad := launchpad.NewMemory()
	if err := lpad.Connect(ctx); err != nil {
		Te.Fatal(err)
	}
	defer lpad.Close()
	wfs, err := Submit(ctx, C, items, lpad)
	if err != nil {
		Te.Fatal(err)
	}
	if len(wfs) != 2 {
		Te.Fatalf("expected 2 workflows, got %d", len(wfs))
	}
	n, err := lpad.Fireworks().Count(ctx, store.Doc{"spec.tags": "mn_sb_calcs_test"})
	if err != nil || n != 4 {
		Te.Errorf("expected 4 fireworks with the campaign tag, got %d %v", n, err)
	}
	if n, _ := lpad.Fireworks().Count(ctx, store.Doc{"spec.tags": "local"}); n != 2 {
		Te.Errorf("expected 2 fireworks tagged with the template id, got %d", n)
	}
	dumped, err := wf.LoadFile(filepath.Join(filepath.Dir(path), "wfs.json.gz"))
	if err != nil {
		Te.Fatal(err)
	}
	if len(dumped) != 2 || dumped[0].Name != wfs[0].Name {
		Te.Errorf("the dumped workflows differ from the submitted ones")
	}
	C.Launch = true
	if _, err := Submit(ctx, C, items, nil); err == nil {
		Te.Error("expected an error when launching without a launchpad")
	}
}

func TestHighFFT(Te *testing.T) {
	ctx := context.Background()
	S, err := matflow.PoscarRead("../testdata/POSCAR_rutile")
	if err != nil {
		Te.Fatal(err)
	}
	sd, err := S.AsDict()
	if err != nil {
		Te.Fatal(err)
	}
	tasks := store.NewMemory("tasks")
	if err := tasks.Connect(ctx); err != nil {
		Te.Fatal(err)
	}
	defer tasks.Close()
	err = tasks.Update(ctx, []store.Doc{
		{"task_id": "mp-1002", "task_label": "static", "tags": []any{"mn_sb", "mp-2657"}, "output": map[string]any{"structure": sd}},
		{"task_id": "mp-1001", "task_label": "static", "tags": []any{"mn_sb", "mp-24845"}, "output": map[string]any{"structure": sd}},
		{"task_id": "mp-1003", "task_label": "static", "tags": []any{"mn_sb", wf.DenseGridTag}, "output": map[string]any{"structure": sd}},
		{"task_id": "mp-1004", "task_label": "structure optimization", "tags": []any{"mn_sb"}, "output": map[string]any{"structure": sd}},
		{"task_id": "mp-1005", "task_label": "static", "tags": []any{"other"}, "output": map[string]any{"structure": sd}},
	}, "task_id")
	if err != nil {
		Te.Fatal(err)
	}
	structs, tags, err := StaticTasks(ctx, tasks, "mn_sb")
	if err != nil {
		Te.Fatal(err)
	}
	if len(structs) != 2 || tags[0][1] != "mp-24845" || tags[1][1] != "mp-2657" {
		Te.Fatalf("unexpected static tasks %v", tags)
	}
	lpad := launchpad.NewMemory()
	if err := lpad.Connect(ctx); err != nil {
		Te.Fatal(err)
	}
	defer lpad.Close()
	wfs, err := HighFFT(ctx, tasks, "mn_sb", lpad, 0)
	if err != nil {
		Te.Fatal(err)
	}
	if len(wfs) != 2 {
		Te.Fatalf("expected 2 workflows, got %d", len(wfs))
	}
	n, err := lpad.Fireworks().Count(ctx, store.Doc{"spec.tags": wf.DenseGridTag})
	if err != nil || n != 2 {
		Te.Errorf("expected 2 dense grid fireworks, got %d %v", n, err)
	}
	if n, _ := lpad.Fireworks().Count(ctx, store.Doc{"spec.tags": "mp-2657"}); n != 1 {
		Te.Errorf("the tags of the static calculation were not kept")
	}
}
