/*
 * spec.go, part of matflow.
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

package wf

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/vasp"
)

//go:embed specs/*.yaml
var builtinSpecs embed.FS

//FWSpec is one firework of a workflow spec.
type FWSpec struct {
	FW     string         `yaml:"fw"`
	Params map[string]any `yaml:"params"`
}

//Spec describes a workflow as a list of firework builders and their parameters.
//Parents are given as indexes in the list, under params.parents.
type Spec struct {
	Name         string         `yaml:"name"`
	Fireworks    []FWSpec       `yaml:"fireworks"`
	CommonParams map[string]any `yaml:"common_params"`
	Metadata     map[string]any `yaml:"metadata"`
}

//ReadSpec parses a YAML workflow spec.
func ReadSpec(b []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("wf: %w", err)
	}
	if len(s.Fireworks) == 0 {
		return nil, fmt.Errorf("wf: spec %q has no fireworks", s.Name)
	}
	return &s, nil
}

//LoadSpec returns a spec by name. Names of built-in specs ("opt_static", "static_only",
//with or without the .yaml extension) are resolved first, then the name is read as a file.
func LoadSpec(name string) (*Spec, error) {
	base := strings.TrimSuffix(filepath.Base(name), ".yaml")
	if b, err := builtinSpecs.ReadFile("specs/" + base + ".yaml"); err == nil && !strings.ContainsRune(name, os.PathSeparator) {
		return ReadSpec(b)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("wf: %w", err)
	}
	s, err := ReadSpec(b)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = base
	}
	return s, nil
}

//Builder creates a firework for structure S. parents are the fireworks already built
//that the new one depends on, and vis, if not nil, overrides the builder's input set.
type Builder func(S *matflow.Structure, params map[string]any, parents []*Firework, vis vasp.InputSet) (*Firework, error)

var builders = map[string]Builder{
	"OptimizeFW": OptimizeFW,
	"StaticFW":   StaticFW,
}

//RegisterBuilder makes a firework builder available to specs under name.
func RegisterBuilder(name string, b Builder) {
	builders[name] = b
}

func builderFor(name string) (Builder, error) {
	//specs written for the Python tools use full module paths.
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("wf: unknown firework %q", name)
	}
	return b, nil
}

//FromSpec builds the workflow described by spec for structure S. vis, if not nil,
//replaces the input set of every firework that writes its inputs from a structure.
func FromSpec(S *matflow.Structure, spec *Spec, vis vasp.InputSet) (*Workflow, error) {
	fws := make([]*Firework, 0, len(spec.Fireworks))
	for i, fs := range spec.Fireworks {
		b, err := builderFor(fs.FW)
		if err != nil {
			return nil, err
		}
		params := make(map[string]any, len(fs.Params)+len(spec.CommonParams))
		for k, v := range spec.CommonParams {
			params[k] = v
		}
		for k, v := range fs.Params {
			params[k] = v
		}
		idx, err := parentIndexes(params["parents"])
		if err != nil {
			return nil, fmt.Errorf("wf: firework %d of %s: %w", i, spec.Name, err)
		}
		delete(params, "parents")
		var parents []*Firework
		for _, p := range idx {
			if p < 0 || p >= i {
				return nil, fmt.Errorf("wf: firework %d of %s: parent %d must come before it", i, spec.Name, p)
			}
			parents = append(parents, fws[p])
		}
		fw, err := b(S, params, parents, vis)
		if err != nil {
			return nil, fmt.Errorf("wf: firework %d of %s: %w", i, spec.Name, err)
		}
		fw.ID = -(i + 1)
		for _, p := range parents {
			fw.Parents = append(fw.Parents, p.ID)
		}
		fws = append(fws, fw)
	}
	meta := map[string]any{
		"nsites":          S.Len(),
		"reduced_formula": S.Formula(),
		"elements":        S.Composition().Elements(),
	}
	if d, err := S.AsDict(); err == nil {
		meta["structure"] = d
	}
	for k, v := range spec.Metadata {
		meta[k] = v
	}
	return NewWorkflow(fmt.Sprintf("%s:%s", S.Formula(), spec.Name), fws, meta)
}

//FromSpecFile is FromSpec with the spec read by LoadSpec.
func FromSpecFile(S *matflow.Structure, name string, vis vasp.InputSet) (*Workflow, error) {
	spec, err := LoadSpec(name)
	if err != nil {
		return nil, err
	}
	return FromSpec(S, spec, vis)
}

func parentIndexes(v any) ([]int, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		return []int{t}, nil
	case []any:
		ret := make([]int, 0, len(t))
		for _, x := range t {
			i, ok := x.(int)
			if !ok {
				return nil, fmt.Errorf("parents must be integers, got %v", x)
			}
			ret = append(ret, i)
		}
		sort.Ints(ret)
		return ret, nil
	}
	return nil, fmt.Errorf("parents must be an integer or a list, got %v", v)
}

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func mapParam(params map[string]any, key string) map[string]any {
	m, _ := params[key].(map[string]any)
	return m
}

func floatParam(params map[string]any, key string) float64 {
	switch t := params[key].(type) {
	case int:
		return float64(t)
	case float64:
		return t
	}
	return 0
}

//inputSetDoc describes an input set and its rendered inputs for the task that writes them.
func inputSetDoc(S *matflow.Structure, set vasp.InputSet) (map[string]any, error) {
	I, err := set.Incar(S)
	if err != nil {
		return nil, err
	}
	K, err := set.Kpoints(S)
	if err != nil {
		return nil, err
	}
	d, err := S.AsDict()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":           set.Name(),
		"structure":      d,
		"incar":          I.Map(),
		"kpoints":        map[string]any{"grid": K.Grid[:], "gamma": K.Gamma},
		"potcar_symbols": set.PotcarSymbols(S),
	}, nil
}

func runAndStore(name string, params map[string]any) []Task {
	return []Task{
		{Name: "{{atomate.vasp.firetasks.run_calc.RunVaspCustodian}}", Params: map[string]any{
			"vasp_cmd": stringParam(params, "vasp_cmd", ">>vasp_cmd<<"),
			"job_type": stringParam(params, "job_type", "normal"),
		}},
		{Name: "{{atomate.common.firetasks.glue_tasks.PassCalcLocs}}", Params: map[string]any{"name": name}},
		{Name: "{{atomate.vasp.firetasks.parse_outputs.VaspToDb}}", Params: map[string]any{
			"db_file":           stringParam(params, "db_file", ">>db_file<<"),
			"additional_fields": map[string]any{"task_label": name},
		}},
	}
}

//OptimizeFW is a full relaxation.
func OptimizeFW(S *matflow.Structure, params map[string]any, parents []*Firework, vis vasp.InputSet) (*Firework, error) {
	if vis == nil {
		vis = vasp.RelaxSet{UserIncar: mapParam(params, "user_incar_settings")}
	}
	name := stringParam(params, "name", "structure optimization")
	doc, err := inputSetDoc(S, vis)
	if err != nil {
		return nil, err
	}
	tasks := []Task{{Name: "{{atomate.vasp.firetasks.write_inputs.WriteVaspFromIOSet}}", Params: map[string]any{"vasp_input_set": doc}}}
	p := map[string]any{"job_type": "double_relaxation_run"}
	for k, v := range params {
		p[k] = v
	}
	tasks = append(tasks, runAndStore(name, p)...)
	return &Firework{Name: fmt.Sprintf("%s-%s", S.Formula(), name), Spec: map[string]any{}, Tasks: tasks}, nil
}

//StaticFW is a static calculation. With a parent it starts from the parent's
//relaxed structure, otherwise from S.
func StaticFW(S *matflow.Structure, params map[string]any, parents []*Firework, vis vasp.InputSet) (*Firework, error) {
	name := stringParam(params, "name", "static")
	var tasks []Task
	if len(parents) > 0 {
		tasks = append(tasks,
			Task{Name: "{{atomate.common.firetasks.glue_tasks.CopyVaspOutputs}}", Params: map[string]any{"calc_loc": true, "contcar_to_poscar": true}},
			Task{Name: "{{atomate.vasp.firetasks.write_inputs.WriteVaspStaticFromPrev}}", Params: map[string]any{
				"reciprocal_density": floatParamDefault(params, "reciprocal_density", 100),
				"other_params":       map[string]any{"user_incar_settings": mapParam(params, "user_incar_settings")},
			}})
	} else {
		if vis == nil {
			vis = vasp.StaticSet{UserIncar: mapParam(params, "user_incar_settings"), ReciprocalDensity: floatParam(params, "reciprocal_density")}
		}
		doc, err := inputSetDoc(S, vis)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, Task{Name: "{{atomate.vasp.firetasks.write_inputs.WriteVaspFromIOSet}}", Params: map[string]any{"vasp_input_set": doc}})
	}
	tasks = append(tasks, runAndStore(name, params)...)
	return &Firework{Name: fmt.Sprintf("%s-%s", S.Formula(), name), Spec: map[string]any{}, Tasks: tasks}, nil
}

func floatParamDefault(params map[string]any, key string, def float64) float64 {
	if v := floatParam(params, key); v > 0 {
		return v
	}
	return def
}
