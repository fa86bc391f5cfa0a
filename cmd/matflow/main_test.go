/*
 * main_test.go, part of matflow.
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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testCampaign = `
tag  = "cli_test"
dump = "wfs.json.zst"

template "rutile" {
  poscar        = "POSCAR"
  perturbations = 1
  replace_sites = { Ti = ["Mn", "Sb"] }
}
`

func setupCampaign(Te *testing.T) string {
	Te.Helper()
	dir := Te.TempDir()
	b, err := os.ReadFile("../../testdata/POSCAR_rutile")
	if err != nil {
		Te.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "POSCAR"), b, 0o644); err != nil {
		Te.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "campaign.hcl"), []byte(testCampaign), 0o644); err != nil {
		Te.Fatal(err)
	}
	return dir
}

func TestUsage(Te *testing.T) {
	ctx := context.Background()
	var out, errw bytes.Buffer
	if err := run(ctx, []string{"launch-rockets"}, &out, &errw); !errors.Is(err, errUsage) {
		Te.Errorf("expected a usage error, got %v", err)
	}
	if !strings.Contains(errw.String(), "not supported") {
		Te.Errorf("unexpected error output %q", errw.String())
	}
	if err := run(ctx, nil, &out, &errw); !errors.Is(err, errUsage) {
		Te.Errorf("expected a usage error without command, got %v", err)
	}
	out.Reset()
	if err := run(ctx, []string{"help"}, &out, &errw); err != nil {
		Te.Fatal(err)
	}
	for name := range commands {
		if !strings.Contains(out.String(), name) {
			Te.Errorf("command %s missing from the help", name)
		}
	}
	if err := run(ctx, []string{"enumerate"}, &out, &errw); !errors.Is(err, errUsage) {
		Te.Errorf("expected a usage error without -campaign, got %v", err)
	}
}

func TestEnumerateAndSubmit(Te *testing.T) {
	Te.Setenv("MP_API_KEY", "")
	ctx := context.Background()
	dir := setupCampaign(Te)
	camp := filepath.Join(dir, "campaign.hcl")
	metricsFile := filepath.Join(dir, "metrics.prom")
	var out, errw bytes.Buffer
	args := []string{"-metrics", metricsFile, "enumerate", "-campaign", camp, "-poscar-dir", filepath.Join(dir, "out"), "-plot", filepath.Join(dir, "comp.png")}
	if err := run(ctx, args, &out, &errw); err != nil {
		Te.Fatal(err, errw.String())
	}
	fmt.Print(out.String())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		Te.Errorf("expected 3 structures, got %d", len(lines))
	}
	poscars, _ := filepath.Glob(filepath.Join(dir, "out", "POSCAR_rutile_*"))
	if len(poscars) != 3 {
		Te.Errorf("expected 3 POSCAR files, got %d", len(poscars))
	}
	for _, f := range []string{"comp.png", "metrics.prom"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			Te.Error(err)
		}
	}
	m, _ := os.ReadFile(metricsFile)
	if !strings.Contains(string(m), "matflow_structures_enumerated_total") {
		Te.Errorf("metrics file without the enumeration counter:\n%s", m)
	}
	out.Reset()
	if err := run(ctx, []string{"submit", "-campaign", camp, "-dry-run"}, &out, &errw); err != nil {
		Te.Fatal(err, errw.String())
	}
	if !strings.Contains(out.String(), "3 workflows built, launched: false") {
		Te.Errorf("unexpected output %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "wfs.json.zst")); err != nil {
		Te.Error(err)
	}
}

func TestPlot(Te *testing.T) {
	ctx := context.Background()
	dir := Te.TempDir()
	var out, errw bytes.Buffer
	o := filepath.Join(dir, "rutile.svg")
	if err := run(ctx, []string{"plot", "-poscar", "../../testdata/POSCAR_rutile", "-axis", "0", "-o", o}, &out, &errw); err != nil {
		Te.Fatal(err)
	}
	if _, err := os.Stat(o); err != nil {
		Te.Error(err)
	}
	o = filepath.Join(dir, "bader.png")
	if err := run(ctx, []string{"plot", "-bader", "../../bader/testdata", "-o", o}, &out, &errw); err != nil {
		Te.Fatal(err)
	}
	if _, err := os.Stat(o); err != nil {
		Te.Error(err)
	}
	if err := run(ctx, []string{"plot", "-o", o}, &out, &errw); !errors.Is(err, errUsage) {
		Te.Errorf("expected a usage error without input, got %v", err)
	}
}
