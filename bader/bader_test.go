/*
 * bader_test.go, part of matflow.
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

package bader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmera/matflow/archive"
	"github.com/rmera/matflow/store"
)

//calcDir copies the test calculation to a temporary directory, compressing
//the files in compress.
func calcDir(Te *testing.T, compress ...string) string {
	Te.Helper()
	dir := Te.TempDir()
	gz := map[string]bool{}
	for _, c := range compress {
		gz[c] = true
	}
	for _, name := range []string{"ACF.dat", "CONTCAR", "POTCAR", "bader.out"} {
		in, err := os.Open(filepath.Join("testdata", name))
		if err != nil {
			Te.Fatal(err)
		}
		out := filepath.Join(dir, name)
		if gz[name] {
			out += ".gz"
		}
		w, err := archive.Create(out)
		if err != nil {
			Te.Fatal(err)
		}
		if _, err := io.Copy(w, in); err != nil {
			Te.Fatal(err)
		}
		in.Close()
		if err := w.Close(); err != nil {
			Te.Fatal(err)
		}
	}
	return dir
}

func TestFromPath(Te *testing.T) {
	A, err := FromPath(calcDir(Te, "POTCAR", "CONTCAR"))
	if err != nil {
		Te.Fatal(err)
	}
	if len(A.Atoms) != 6 || A.NElectrons != 42 || A.Version != 1.04 {
		Te.Errorf("unexpected analysis %d atoms, %f electrons, version %f", len(A.Atoms), A.NElectrons, A.Version)
	}
	want := []float64{1.8, 2.9, -1.175}
	for i, w := range want {
		if got := -A.ChargeTransfer(i); math.Abs(got-w) > 1e-6 {
			Te.Errorf("site %d: oxidation state %f, want %f", i, got, w)
		}
	}
	S, err := A.OxidationDecorated()
	if err != nil {
		Te.Fatal(err)
	}
	total := 0.0
	for _, s := range S.Sites {
		total += s.Properties["oxi_state"].(float64)
	}
	if math.Abs(total) > 1e-6 {
		Te.Errorf("the oxidation states should add up to zero, got %f", total)
	}
	if A.Structure.Sites[0].Properties != nil {
		Te.Error("OxidationDecorated modified the analysis structure")
	}
	sum := A.Summary()
	fmt.Println(sum["charge_transfer"])
	if len(sum["charge"].([]float64)) != 6 || sum["bader_version"] != 1.04 {
		Te.Errorf("unexpected summary %v", sum)
	}
}

func TestFromPathErrors(Te *testing.T) {
	dir := calcDir(Te)
	os.Remove(filepath.Join(dir, "POTCAR"))
	if _, err := FromPath(dir); !errors.Is(err, ErrMissingFile) {
		Te.Errorf("expected ErrMissingFile, got %v", err)
	}
	if _, err := FromPath(Te.TempDir()); !errors.Is(err, ErrMissingFile) {
		Te.Errorf("expected ErrMissingFile for an empty directory, got %v", err)
	}
}

func TestRunDir(Te *testing.T) {
	if d := RunDir("node12.cluster:/scratch/launcher_1"); d != "/scratch/launcher_1" {
		Te.Errorf("RunDir gave %s", d)
	}
	if d := RunDir("/local/run"); d != "/local/run" {
		Te.Errorf("RunDir gave %s", d)
	}
}

func TestAddBader(Te *testing.T) {
	ctx := context.Background()
	tasks := store.NewMemory("tasks")
	if err := tasks.Connect(ctx); err != nil {
		Te.Fatal(err)
	}
	defer tasks.Close()
	good := calcDir(Te, "ACF.dat")
	docs := []store.Doc{
		{"task_id": "mp-1", "task_label": "static", "tags": []any{"mn_sb"}, "dir_name": "node1:" + good},
		{"task_id": "mp-2", "task_label": "static", "tags": []any{"mn_sb"}, "dir_name": "node1:" + Te.TempDir()},
		{"task_id": "mp-3", "task_label": "structure optimization", "tags": []any{"mn_sb"}, "dir_name": "node1:" + good},
		{"task_id": "mp-4", "task_label": "static", "tags": []any{"mn_sb"}, "dir_name": good, "bader": map[string]any{}},
	}
	if err := tasks.Update(ctx, docs, "task_id"); err != nil {
		Te.Fatal(err)
	}
	n, err := AddBader(ctx, tasks, store.Doc{"tags": "mn_sb", "task_label": "static"})
	if n != 1 {
		Te.Errorf("expected one analysis, got %d", n)
	}
	if !errors.Is(err, ErrMissingFile) {
		Te.Errorf("the failed directory should be reported, got %v", err)
	}
	d, err := tasks.QueryOne(ctx, store.Doc{"task_id": "mp-1"})
	if err != nil {
		Te.Fatal(err)
	}
	if v, ok := store.GetMongolike(d, "bader.oxi_structure.sites"); !ok || len(v.([]any)) != 6 {
		Te.Errorf("the decorated structure wasn't stored: %v", d["bader"])
	}
	if v, _ := store.GetMongolike(d, "bader.charge_transfer"); len(store.Normalize(v).([]any)) != 6 {
		Te.Error("the charge transfer wasn't stored")
	}
	if c, _ := tasks.Count(ctx, store.Doc{"bader": map[string]any{"$exists": true}}); c != 2 {
		Te.Errorf("%d tasks with bader, expected 2", c)
	}
}
