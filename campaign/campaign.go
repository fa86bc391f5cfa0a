/*
 * campaign.go, part of matflow.
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

//Package campaign runs enumeration campaigns described in HCL files: which
//templates to enumerate and how to edit them, where to submit the resulting
//workflows and how to tag them.
//
//	launchpad = "my_launchpad.yaml"
//	tag       = "mn_sb_calcs_4"
//	launch    = true
//
//	template "mp-2657" {
//	  perturbations = 2
//	  replace_sites = { Ti = ["Mn", "Sb"] }
//	}
//
//	template "mp-24845" {
//	  perturbations        = 3
//	  replace_species      = { Co = "Mn" }
//	  keep_reduced_formula = ["Mn2SbO6"]
//	}
//
//The environment variables are available as env.NAME, i.e.
//launchpad = "${env.HOME}/.fireworks/my_launchpad.yaml".
package campaign

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/enum"
)

//Campaign is the content of a campaign file.
type Campaign struct {
	Launchpad          string      `hcl:"launchpad,optional"`
	TasksDB            string      `hcl:"tasks_db,optional"`
	Tag                string      `hcl:"tag"`
	Launch             bool        `hcl:"launch,optional"`
	Workers            int         `hcl:"workers,optional"`
	Anion              string      `hcl:"anion,optional"`
	Substitutions      [][]string  `hcl:"substitutions,optional"`
	KeepReducedFormula []string    `hcl:"keep_reduced_formula,optional"`
	Dump               string      `hcl:"dump,optional"` //file to dump the workflows to
	Templates          []*Template `hcl:"template,block"`

	dir string
}

//Template is a template block.
type Template struct {
	ID                 string              `hcl:"id,label"`
	Perturbations      *int                `hcl:"perturbations,optional"` //1 if not given
	ReplaceSpecies     map[string]string   `hcl:"replace_species,optional"`
	ReplaceSites       map[string][]string `hcl:"replace_sites,optional"`
	Poscar             string              `hcl:"poscar,optional"` //a local structure instead of the one of the materials database
	KeepReducedFormula []string            `hcl:"keep_reduced_formula,optional"`
}

//Load reads and checks a campaign file.
func Load(path string) (*Campaign, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("campaign: failed to parse %s: %w", path, diags)
	}
	var C Campaign
	diags = gohcl.DecodeBody(f.Body, evalContext(), &C)
	if diags.HasErrors() {
		return nil, fmt.Errorf("campaign: failed to decode %s: %w", path, diags)
	}
	C.dir = filepath.Dir(path)
	if err := C.Check(); err != nil {
		return nil, fmt.Errorf("campaign: %s: %w", path, err)
	}
	return &C, nil
}

func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	//an empty map has no element type to infer.
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": envVal}}
}

//Check validates the campaign.
func (C *Campaign) Check() error {
	if C.Tag == "" {
		return fmt.Errorf("empty tag")
	}
	if len(C.Templates) == 0 {
		return fmt.Errorf("no templates")
	}
	for _, s := range C.Substitutions {
		if len(s) != 2 {
			return fmt.Errorf("substitutions must be [from, to] pairs, got %v", s)
		}
	}
	seen := map[string]bool{}
	for _, t := range C.Templates {
		if seen[t.ID] {
			return fmt.Errorf("template %s given twice", t.ID)
		}
		seen[t.ID] = true
		if t.Perturbations != nil && *t.Perturbations < 0 {
			return fmt.Errorf("template %s: negative perturbations", t.ID)
		}
		for _, f := range append(append([]string(nil), t.KeepReducedFormula...), C.KeepReducedFormula...) {
			if _, err := matflow.ParseFormula(f); err != nil {
				return fmt.Errorf("template %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

//Path returns p relative to the directory of the campaign file, unless it is
//absolute or empty.
func (C *Campaign) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || C.dir == "" {
		return p
	}
	return filepath.Join(C.dir, p)
}

//Options returns the enumeration options of the campaign.
func (C *Campaign) Options() *enum.Options {
	o := &enum.Options{Anion: C.Anion}
	for _, s := range C.Substitutions {
		o.Substitutions = append(o.Substitutions, [2]string{s[0], s[1]})
	}
	return o
}

//EnumTemplate converts the block to an enumeration template, reading the local
//structure if one is given.
func (C *Campaign) EnumTemplate(t *Template) (enum.Template, error) {
	et := enum.Template{ID: t.ID, Perturbations: 1}
	if t.Perturbations != nil {
		et.Perturbations = *t.Perturbations
	}
	if t.Poscar != "" {
		S, err := matflow.PoscarRead(C.Path(t.Poscar))
		if err != nil {
			return et, fmt.Errorf("campaign: template %s: %w", t.ID, err)
		}
		et.Structure = S
	}
	var edits []func(*matflow.Structure) error
	if len(t.ReplaceSpecies) > 0 {
		edits = append(edits, enum.ReplaceSpecies(t.ReplaceSpecies))
	}
	els := make([]string, 0, len(t.ReplaceSites))
	for el := range t.ReplaceSites {
		els = append(els, el)
	}
	sort.Strings(els)
	for _, el := range els {
		edits = append(edits, enum.ReplaceSites(el, t.ReplaceSites[el]...))
	}
	if len(edits) > 0 {
		et.Edit = enum.Chain(edits...)
	}
	return et, nil
}

//keep returns the reduced compositions to keep for the template, nil meaning all.
func (C *Campaign) keep(t *Template) []matflow.Composition {
	formulas := t.KeepReducedFormula
	if len(formulas) == 0 {
		formulas = C.KeepReducedFormula
	}
	var ret []matflow.Composition
	for _, f := range formulas {
		c, _ := matflow.ParseFormula(f) //checked in Check
		ret = append(ret, c)
	}
	return ret
}
