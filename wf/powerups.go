/*
 * powerups.go, part of matflow.
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
	"strings"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/vasp"
)

//Powerups modify a workflow in place and return it, so they can be chained.

const (
	runVaspTask     = "RunVasp"
	vaspToDbTask    = "VaspToDb"
	modifyIncarTask = "{{atomate.vasp.firetasks.write_inputs.ModifyIncar}}"
)

//AddTags adds tags to the spec of every firework, to the documents the fireworks
//will store, and to the workflow metadata.
func AddTags(W *Workflow, tags ...string) *Workflow {
	if len(tags) == 0 {
		return W
	}
	for _, f := range W.Fireworks {
		if f.Spec == nil {
			f.Spec = map[string]any{}
		}
		f.Spec["tags"] = appendTags(f.Spec["tags"], tags)
		for i, t := range f.Tasks {
			if !strings.Contains(t.Name, vaspToDbTask) {
				continue
			}
			if t.Params == nil {
				f.Tasks[i].Params = map[string]any{}
				t = f.Tasks[i]
			}
			af, _ := t.Params["additional_fields"].(map[string]any)
			if af == nil {
				af = map[string]any{}
				t.Params["additional_fields"] = af
			}
			af["tags"] = appendTags(af["tags"], tags)
		}
	}
	if W.Metadata == nil {
		W.Metadata = map[string]any{}
	}
	W.Metadata["tags"] = appendTags(W.Metadata["tags"], tags)
	return W
}

func appendTags(cur any, tags []string) []string {
	var ret []string
	switch t := cur.(type) {
	case []string:
		ret = append(ret, t...)
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok {
				ret = append(ret, s)
			}
		}
	}
	for _, t := range tags {
		dup := false
		for _, r := range ret {
			if r == t {
				dup = true
				break
			}
		}
		if !dup {
			ret = append(ret, t)
		}
	}
	return ret
}

//AddModifyIncar inserts, before the VASP run of every firework, a task that updates
//the INCAR with update. A nil update makes the task read the update from the
//worker's environment (">>incar_update<<"), so INCAR settings can be changed per
//machine without touching the workflow.
func AddModifyIncar(W *Workflow, update map[string]any) *Workflow {
	var u any = ">>incar_update<<"
	if update != nil {
		u = update
	}
	for _, f := range W.Fireworks {
		i := f.TaskIndex(runVaspTask)
		if i < 0 {
			continue
		}
		f.InsertTask(i, Task{Name: modifyIncarTask, Params: map[string]any{"incar_update": u}})
	}
	return W
}

//AddPriority sets the priority of the root fireworks to root and of the others to child.
func AddPriority(W *Workflow, root, child int) *Workflow {
	roots := map[int]bool{}
	for _, r := range W.Roots() {
		roots[r.ID] = true
	}
	for _, f := range W.Fireworks {
		if f.Spec == nil {
			f.Spec = map[string]any{}
		}
		if roots[f.ID] {
			f.Spec["_priority"] = root
		} else {
			f.Spec["_priority"] = child
		}
	}
	return W
}

//AddCommonParams sets params in every task that already has them, e.g. to point
//all the fireworks to a different db_file or vasp_cmd.
func AddCommonParams(W *Workflow, params map[string]any) *Workflow {
	for _, f := range W.Fireworks {
		for _, t := range f.Tasks {
			for k, v := range params {
				if _, ok := t.Params[k]; ok {
					t.Params[k] = v
				}
			}
		}
	}
	return W
}

//OptStatic returns a relaxation followed by a static calculation for S, with
//the INCAR update taken from the worker environment, tagged with tags.
func OptStatic(S *matflow.Structure, tags ...string) (*Workflow, error) {
	W, err := FromSpecFile(S, "opt_static", nil)
	if err != nil {
		return nil, err
	}
	AddModifyIncar(W, nil)
	return AddTags(W, tags...), nil
}

//DenseGridTag marks the static calculations with a high FFT grid.
const DenseGridTag = "dense_grid"

//HighFFTStatic returns a static calculation on S with a dense k-point mesh
//(reciprocal density 500), ENAUG = 5000 and PREC = High, for charge analyses
//that need an accurate density. The workflow is tagged with tags and DenseGridTag.
func HighFFTStatic(S *matflow.Structure, tags ...string) (*Workflow, error) {
	W, err := FromSpecFile(S, "static_only", vasp.StaticSet{ReciprocalDensity: 500})
	if err != nil {
		return nil, err
	}
	AddModifyIncar(W, nil)
	AddModifyIncar(W, map[string]any{"ENAUG": 5000, "PREC": "High"})
	return AddTags(W, append(append([]string(nil), tags...), DenseGridTag)...), nil
}
