/*
 * launchpad.go, part of matflow.
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

//Package launchpad keeps workflows in a job database with the layout of a
//FireWorks launchpad: a fireworks collection, a workflows collection and an id
//counter. It does the bookkeeping part only (adding, defusing and reigniting
//workflows, and querying and updating fireworks); running the jobs is left to
//the workers.
package launchpad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/store"
	"github.com/rmera/matflow/wf"
)

//Firework states.
const (
	Waiting   = "WAITING"
	Ready     = "READY"
	Running   = "RUNNING"
	Completed = "COMPLETED"
	Fizzled   = "FIZZLED"
	Defused   = "DEFUSED"
)

var (
	//ErrNotFound is returned when no firework or workflow matches a request.
	ErrNotFound = errors.New("not found in the launchpad")
	//ErrIDInUse is returned when the id counter is behind the stored fireworks.
	ErrIDInUse = errors.New("firework ids already in use")
)

const counterName = "fw_id_assigner"

//LaunchPad is a job database.
type LaunchPad struct {
	fws     store.Store
	wfs     store.Store
	counter store.Store
	mu      sync.Mutex //serializes id assignment within the process
}

//New returns a launchpad on the given stores. They are connected by Connect.
func New(fireworks, workflows, counter store.Store) *LaunchPad {
	return &LaunchPad{fws: fireworks, wfs: workflows, counter: counter}
}

//NewMemory returns a launchpad in memory, mostly for tests and dry runs.
func NewMemory() *LaunchPad {
	return New(store.NewMemory("fireworks"), store.NewMemory("workflows"), store.NewMemory(counterName))
}

//Connect connects the three stores.
func (L *LaunchPad) Connect(ctx context.Context) error {
	for _, s := range []store.Store{L.fws, L.wfs, L.counter} {
		if err := s.Connect(ctx); err != nil {
			return fmt.Errorf("launchpad: %w", err)
		}
	}
	return nil
}

//Close closes the stores and returns the first error.
func (L *LaunchPad) Close() error {
	var first error
	for _, s := range []store.Store{L.fws, L.wfs, L.counter} {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

//Fireworks returns the store of firework documents.
func (L *LaunchPad) Fireworks() store.Store { return L.fws }

//Workflows returns the store of workflow documents.
func (L *LaunchPad) Workflows() store.Store { return L.wfs }

//Reset removes every firework and workflow and restarts the ids at 1.
func (L *LaunchPad) Reset(ctx context.Context) error {
	for _, s := range []store.Store{L.fws, L.wfs, L.counter} {
		if err := s.Drop(ctx); err != nil {
			return fmt.Errorf("launchpad: %w", err)
		}
	}
	return nil
}

//nextIDs reserves n consecutive firework ids and returns the first. The counter
//is the single document of the counter store, as FireWorks keeps it
//({next_fw_id, next_launch_id}); it is created only if the store is empty.
func (L *LaunchPad) nextIDs(ctx context.Context, n int) (int, error) {
	L.mu.Lock()
	defer L.mu.Unlock()
	inc := store.Doc{"$inc": map[string]any{"next_fw_id": n}}
	c, err := L.counter.FindOneAndUpdate(ctx, nil, inc)
	if errors.Is(err, store.ErrNoDocuments) {
		count, err := L.counter.Count(ctx, nil)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			return 0, fmt.Errorf("%d id counters, but none could be updated", count)
		}
		first, err := L.firstFreeID(ctx)
		if err != nil {
			return 0, err
		}
		c = store.Doc{"next_fw_id": first + n, "next_launch_id": 1}
		if err := L.counter.Update(ctx, []store.Doc{c}, "next_launch_id"); err != nil {
			return 0, err
		}
		return first, nil
	} else if err != nil {
		return 0, err
	}
	first := toInt(c["next_fw_id"])
	if first < 1 {
		return 0, fmt.Errorf("invalid next_fw_id %v in the id counter", c["next_fw_id"])
	}
	return first, nil
}

//firstFreeID returns the id after the largest one stored, or 1.
func (L *LaunchPad) firstFreeID(ctx context.Context) (int, error) {
	ids, err := L.FWIDs(ctx, nil)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}

//copyWF returns a deep copy of W.
func copyWF(W *wf.Workflow) (*wf.Workflow, error) {
	b, err := json.Marshal(W)
	if err != nil {
		return nil, err
	}
	ret := new(wf.Workflow)
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

//AddWF stores W in the launchpad. The fireworks get new positive ids (W is updated
//with them once it is stored, and the mapping old -> new is returned). Fireworks
//without parents are READY and the rest WAITING. Ids already in use are never
//overwritten.
func (L *LaunchPad) AddWF(ctx context.Context, W *wf.Workflow) (map[int]int, error) {
	if err := W.Validate(); err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	order, err := W.TopoOrder()
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	first, err := L.nextIDs(ctx, len(order))
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	mapping := make(map[int]int, len(order))
	newIDs := make([]any, 0, len(order))
	for i, f := range order {
		mapping[f.ID] = first + i
		newIDs = append(newIDs, first+i)
	}
	used, err := L.fws.Count(ctx, store.Doc{"fw_id": map[string]any{"$in": newIDs}})
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	if used > 0 {
		return nil, fmt.Errorf("launchpad: %w: ids %d to %d", ErrIDInUse, first, first+len(order)-1)
	}
	S, err := copyWF(W)
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	S.Reassign(mapping)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	states := make(map[string]any, len(S.Fireworks))
	docs := make([]store.Doc, 0, len(S.Fireworks))
	for _, f := range S.Fireworks {
		d, err := fireworkDoc(f)
		if err != nil {
			return nil, fmt.Errorf("launchpad: %w", err)
		}
		state := Waiting
		if len(S.ParentsOf(f.ID)) == 0 {
			state = Ready
		}
		d["state"] = state
		d["created_on"] = now
		d["updated_on"] = now
		states[strconv.Itoa(f.ID)] = state
		docs = append(docs, d)
	}
	if err := L.fws.Update(ctx, docs, "fw_id"); err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	links := make(map[string]any, len(S.Links))
	parentLinks := map[string]any{}
	nodes := make([]any, 0, len(S.Fireworks))
	for _, f := range S.Fireworks {
		nodes = append(nodes, f.ID)
	}
	for p, children := range S.Links {
		c := make([]any, len(children))
		for i, ch := range children {
			c[i] = ch
			parentLinks[strconv.Itoa(ch)] = append(toList(parentLinks[strconv.Itoa(ch)]), p)
		}
		links[strconv.Itoa(p)] = c
	}
	wdoc := store.Doc{
		"name":         S.Name,
		"nodes":        nodes,
		"links":        links,
		"parent_links": parentLinks,
		"fw_states":    states,
		"metadata":     S.Metadata,
		"state":        wfState(states),
		"created_on":   now,
		"updated_on":   now,
	}
	if err := L.wfs.Update(ctx, []store.Doc{wdoc}, "nodes"); err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	W.Reassign(mapping)
	ctxlog.FromContext(ctx).Info("added workflow", "name", W.Name, "fireworks", len(nodes), "first_id", first)
	return mapping, nil
}

func fireworkDoc(f *wf.Firework) (store.Doc, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var d store.Doc
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	//dependencies live in the workflow document only.
	delete(d, "parents")
	return d, nil
}

//wfState summarizes the states of the fireworks of a workflow.
func wfState(states map[string]any) string {
	count := map[string]int{}
	for _, s := range states {
		str, _ := s.(string)
		count[str]++
	}
	switch {
	case count[Fizzled] > 0:
		return Fizzled
	case count[Defused] > 0:
		return Defused
	case count[Completed] == len(states):
		return Completed
	case count[Running] > 0:
		return Running
	case count[Ready] > 0:
		return Ready
	}
	return Waiting
}

//WorkflowOf returns the workflow document that contains the firework fwID.
func (L *LaunchPad) WorkflowOf(ctx context.Context, fwID int) (store.Doc, error) {
	d, err := L.wfs.QueryOne(ctx, store.Doc{"nodes": fwID})
	if errors.Is(err, store.ErrNoDocuments) {
		return nil, fmt.Errorf("launchpad: %w: workflow of firework %d", ErrNotFound, fwID)
	}
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	return d, nil
}

func nodesOf(wdoc store.Doc) []int {
	var ret []int
	for _, n := range toList(wdoc["nodes"]) {
		ret = append(ret, toInt(n))
	}
	sort.Ints(ret)
	return ret
}

//setStates writes the states of the given fireworks to their documents and to
//their workflow document.
func (L *LaunchPad) setStates(ctx context.Context, wdoc store.Doc, states map[int]string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	byState := map[string][]any{}
	for id, s := range states {
		byState[s] = append(byState[s], id)
	}
	for s, ids := range byState {
		_, err := L.fws.UpdateMany(ctx, store.Doc{"fw_id": map[string]any{"$in": ids}},
			store.Doc{"$set": map[string]any{"state": s, "updated_on": now}})
		if err != nil {
			return fmt.Errorf("launchpad: %w", err)
		}
	}
	fwStates, _ := store.Normalize(wdoc["fw_states"]).(map[string]any)
	if fwStates == nil {
		fwStates = map[string]any{}
	}
	for id, s := range states {
		fwStates[strconv.Itoa(id)] = s
	}
	nodes := nodesOf(wdoc)
	if len(nodes) == 0 {
		return nil
	}
	_, err := L.wfs.UpdateMany(ctx, store.Doc{"nodes": nodes[0]}, store.Doc{"$set": map[string]any{
		"fw_states":  fwStates,
		"state":      wfState(fwStates),
		"updated_on": now,
	}})
	if err != nil {
		return fmt.Errorf("launchpad: %w", err)
	}
	return nil
}

//DefuseWF defuses every firework of the workflow that contains fwID, except the
//completed ones.
func (L *LaunchPad) DefuseWF(ctx context.Context, fwID int) error {
	wdoc, err := L.WorkflowOf(ctx, fwID)
	if err != nil {
		return err
	}
	ids := make([]any, 0)
	for _, n := range nodesOf(wdoc) {
		ids = append(ids, n)
	}
	docs, err := L.fws.Query(ctx, store.Doc{"fw_id": map[string]any{"$in": ids}, "state": map[string]any{"$ne": Completed}}, "fw_id")
	if err != nil {
		return fmt.Errorf("launchpad: %w", err)
	}
	states := make(map[int]string, len(docs))
	for _, d := range docs {
		states[toInt(d["fw_id"])] = Defused
	}
	if err := L.setStates(ctx, wdoc, states); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("defused workflow", "fw_id", fwID, "fireworks", len(states))
	return nil
}

//ReigniteWF undoes DefuseWF: each defused firework of the workflow that contains
//fwID becomes READY if all its parents are completed, and WAITING otherwise.
//Parents are taken from the links of the workflow document.
func (L *LaunchPad) ReigniteWF(ctx context.Context, fwID int) error {
	wdoc, err := L.WorkflowOf(ctx, fwID)
	if err != nil {
		return err
	}
	ids := make([]any, 0)
	for _, n := range nodesOf(wdoc) {
		ids = append(ids, n)
	}
	docs, err := L.fws.Query(ctx, store.Doc{"fw_id": map[string]any{"$in": ids}}, "fw_id", "state")
	if err != nil {
		return fmt.Errorf("launchpad: %w", err)
	}
	current := make(map[int]string, len(docs))
	for _, d := range docs {
		s, _ := d["state"].(string)
		current[toInt(d["fw_id"])] = s
	}
	parents := parentsOf(wdoc)
	states := map[int]string{}
	for id, cur := range current {
		if cur != Defused {
			continue
		}
		s := Ready
		for _, p := range parents[id] {
			if current[p] != Completed {
				s = Waiting
				break
			}
		}
		states[id] = s
	}
	return L.setStates(ctx, wdoc, states)
}

//parentsOf returns the parents of each firework of a workflow document, from its
//links (parent -> children), which every FireWorks workflow document has.
func parentsOf(wdoc store.Doc) map[int][]int {
	ret := map[int][]int{}
	links, _ := store.Normalize(wdoc["links"]).(map[string]any)
	for p, children := range links {
		pid, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		for _, c := range toList(children) {
			ret[toInt(c)] = append(ret[toInt(c)], pid)
		}
	}
	return ret
}

//FWIDs returns the ids of the fireworks that match criteria, sorted.
func (L *LaunchPad) FWIDs(ctx context.Context, criteria store.Doc) ([]int, error) {
	docs, err := L.fws.Query(ctx, criteria, "fw_id")
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	ret := make([]int, 0, len(docs))
	for _, d := range docs {
		ret = append(ret, toInt(d["fw_id"]))
	}
	sort.Ints(ret)
	return ret, nil
}

//FindOne returns the first firework document matching criteria.
func (L *LaunchPad) FindOne(ctx context.Context, criteria store.Doc, props ...string) (store.Doc, error) {
	d, err := L.fws.QueryOne(ctx, criteria, props...)
	if errors.Is(err, store.ErrNoDocuments) {
		return nil, fmt.Errorf("launchpad: %w", ErrNotFound)
	}
	return d, err
}

//UpdateMany applies update to the firework documents matching criteria.
func (L *LaunchPad) UpdateMany(ctx context.Context, criteria, update store.Doc) (int, error) {
	return L.fws.UpdateMany(ctx, criteria, update)
}

//DistinctTags returns the tags used in the fireworks' specs.
func (L *LaunchPad) DistinctTags(ctx context.Context) ([]string, error) {
	vals, err := L.fws.Distinct(ctx, "spec.tags", nil)
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	ret := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			ret = append(ret, s)
		}
	}
	sort.Strings(ret)
	return ret, nil
}

func toInt(v any) int {
	switch t := store.Normalize(v).(type) {
	case float64:
		return int(t)
	case string:
		i, _ := strconv.Atoi(t)
		return i
	}
	return 0
}

func toList(v any) []any {
	l, _ := store.Normalize(v).([]any)
	return l
}
