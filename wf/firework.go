/*
 * firework.go, part of matflow.
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

//Package wf builds workflows of VASP calculations: fireworks (single jobs made of
//tasks), the links between them, the usual modifications ("powerups") and the
//pre-defined workflows used by matflow.
package wf

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//Task is one step of a firework. It is serialized as a flat document with the task
//name under "_fw_name", as the job manager expects.
type Task struct {
	Name   string
	Params map[string]any
}

func (T Task) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(T.Params)+1)
	for k, v := range T.Params {
		m[k] = v
	}
	m["_fw_name"] = T.Name
	return json.Marshal(m)
}

func (T *Task) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	name, ok := m["_fw_name"].(string)
	if !ok {
		return fmt.Errorf("wf: task without _fw_name")
	}
	delete(m, "_fw_name")
	T.Name = name
	T.Params = m
	return nil
}

//Firework is a job: a list of tasks run in order, with a spec shared by all of them.
//IDs are negative until the firework is added to a launchpad.
type Firework struct {
	ID      int            `json:"fw_id"`
	Name    string         `json:"name"`
	Spec    map[string]any `json:"spec"`
	Tasks   []Task         `json:"-"`
	Parents []int          `json:"parents,omitempty"`
}

//MarshalJSON writes the tasks under spec._tasks.
func (F *Firework) MarshalJSON() ([]byte, error) {
	type plain Firework
	p := plain(*F)
	p.Spec = make(map[string]any, len(F.Spec)+1)
	for k, v := range F.Spec {
		p.Spec[k] = v
	}
	p.Spec["_tasks"] = F.Tasks
	return json.Marshal(p)
}

func (F *Firework) UnmarshalJSON(b []byte) error {
	type plain Firework
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*F = Firework(p)
	var aux struct {
		Spec struct {
			Tasks []Task `json:"_tasks"`
		} `json:"spec"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	F.Tasks = aux.Spec.Tasks
	delete(F.Spec, "_tasks")
	return nil
}

//TaskIndex returns the index of the first task whose name contains name, or -1.
//Task names may carry their module path, e.g. "{{atomate.vasp.firetasks.RunVaspCustodian}}".
func (F *Firework) TaskIndex(name string) int {
	for i, t := range F.Tasks {
		if strings.Contains(t.Name, name) {
			return i
		}
	}
	return -1
}

//InsertTask inserts t at position i.
func (F *Firework) InsertTask(i int, t Task) {
	F.Tasks = append(F.Tasks, Task{})
	copy(F.Tasks[i+1:], F.Tasks[i:])
	F.Tasks[i] = t
}

//Workflow is a set of fireworks and the dependencies between them.
type Workflow struct {
	Name      string         `json:"name"`
	Fireworks []*Firework    `json:"fws"`
	Links     map[int][]int  `json:"links"` //parent id -> children ids
	Metadata  map[string]any `json:"metadata"`
}

//NewWorkflow builds a workflow from fireworks whose Parents are set, and checks that
//the resulting graph is a DAG.
func NewWorkflow(name string, fws []*Firework, metadata map[string]any) (*Workflow, error) {
	W := &Workflow{Name: name, Fireworks: fws, Links: map[int][]int{}, Metadata: metadata}
	if W.Metadata == nil {
		W.Metadata = map[string]any{}
	}
	for _, f := range fws {
		if _, ok := W.Links[f.ID]; !ok {
			W.Links[f.ID] = nil
		}
		for _, p := range f.Parents {
			W.Links[p] = append(W.Links[p], f.ID)
		}
	}
	for _, c := range W.Links {
		sort.Ints(c)
	}
	if err := W.Validate(); err != nil {
		return nil, err
	}
	return W, nil
}

//Firework returns the firework with the given id, or nil.
func (W *Workflow) Firework(id int) *Firework {
	for _, f := range W.Fireworks {
		if f.ID == id {
			return f
		}
	}
	return nil
}

//ParentsOf returns the ids of the parents of the firework id, according to the links.
func (W *Workflow) ParentsOf(id int) []int {
	var ret []int
	for p, children := range W.Links {
		for _, c := range children {
			if c == id {
				ret = append(ret, p)
			}
		}
	}
	sort.Ints(ret)
	return ret
}

//Roots returns the fireworks without parents.
func (W *Workflow) Roots() []*Firework {
	var ret []*Firework
	for _, f := range W.Fireworks {
		if len(W.ParentsOf(f.ID)) == 0 {
			ret = append(ret, f)
		}
	}
	return ret
}

//Leaves returns the fireworks without children.
func (W *Workflow) Leaves() []*Firework {
	var ret []*Firework
	for _, f := range W.Fireworks {
		if len(W.Links[f.ID]) == 0 {
			ret = append(ret, f)
		}
	}
	return ret
}

//Reassign changes the firework ids using mapping (old -> new), in the fireworks,
//their Parents and the links.
func (W *Workflow) Reassign(mapping map[int]int) {
	get := func(id int) int {
		if n, ok := mapping[id]; ok {
			return n
		}
		return id
	}
	for _, f := range W.Fireworks {
		f.ID = get(f.ID)
		for i, p := range f.Parents {
			f.Parents[i] = get(p)
		}
	}
	links := make(map[int][]int, len(W.Links))
	for p, children := range W.Links {
		nc := make([]int, len(children))
		for i, c := range children {
			nc[i] = get(c)
		}
		sort.Ints(nc)
		links[get(p)] = nc
	}
	W.Links = links
}
