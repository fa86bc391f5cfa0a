/*
 * run.go, part of matflow.
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
	"sort"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/enum"
	"github.com/rmera/matflow/launchpad"
	"github.com/rmera/matflow/metrics"
	"github.com/rmera/matflow/store"
	"github.com/rmera/matflow/wf"
)

//Item is an enumerated structure and the material id of its template.
type Item struct {
	MaterialID string
	Structure  *matflow.Structure
}

//Plan enumerates the templates of the campaign, fetching their structures with
//f when no local file is given, and returns the structures to calculate in the
//order of the template blocks.
func Plan(ctx context.Context, C *Campaign, f enum.Fetcher) ([]Item, error) {
	templates := make([]enum.Template, 0, len(C.Templates))
	for _, t := range C.Templates {
		et, err := C.EnumTemplate(t)
		if err != nil {
			return nil, err
		}
		templates = append(templates, et)
	}
	structs, err := enum.AllByMaterialID(ctx, f, templates, C.Options(), C.Workers)
	if err != nil {
		return nil, fmt.Errorf("campaign: %w", err)
	}
	var ret []Item
	for _, t := range C.Templates {
		ss := structs[t.ID]
		if keep := C.keep(t); keep != nil {
			var kept []*matflow.Structure
			for _, c := range keep {
				kept = append(kept, enum.FilterByReducedComposition(ss, c)...)
			}
			ss = kept
		}
		metrics.StructuresEnumerated.WithLabelValues(t.ID).Add(float64(len(ss)))
		for _, s := range ss {
			ret = append(ret, Item{MaterialID: t.ID, Structure: s})
		}
	}
	ctxlog.FromContext(ctx).Info("planned campaign", "tag", C.Tag, "templates", len(C.Templates), "structures", len(ret))
	return ret, nil
}

//Submit builds an optimization and static workflow for each item, tagged with
//the campaign tag and the material id. The workflows are added to lpad if the
//campaign says so (lpad can be nil otherwise) and dumped to the campaign dump
//file if one is given.
func Submit(ctx context.Context, C *Campaign, items []Item, lpad *launchpad.LaunchPad) ([]*wf.Workflow, error) {
	log := ctxlog.FromContext(ctx)
	wfs, err := wf.GenerateAll(ctx, items, func(it Item) (*wf.Workflow, error) {
		return wf.OptStatic(it.Structure, C.Tag, it.MaterialID)
	}, C.Workers)
	if err != nil {
		return nil, fmt.Errorf("campaign: %w", err)
	}
	metrics.WorkflowsBuilt.Add(float64(len(wfs)))
	if C.Dump != "" {
		if err := wf.DumpFile(C.Path(C.Dump), wfs); err != nil {
			return wfs, fmt.Errorf("campaign: %w", err)
		}
		log.Info("dumped workflows", "file", C.Path(C.Dump), "workflows", len(wfs))
	}
	if !C.Launch {
		return wfs, nil
	}
	if lpad == nil {
		return wfs, fmt.Errorf("campaign: launch requested without a launchpad")
	}
	for i, W := range wfs {
		if _, err := lpad.AddWF(ctx, W); err != nil {
			return wfs, fmt.Errorf("campaign: adding workflow %d (%s): %w", i, W.Name, err)
		}
		metrics.WorkflowsSubmitted.Inc()
	}
	log.Info("submitted workflows", "tag", C.Tag, "workflows", len(wfs))
	return wfs, nil
}

//StaticTasks returns the final structures and tags of the static calculations
//tagged with tag and not yet repeated with a dense grid, sorted by task_id.
func StaticTasks(ctx context.Context, tasks store.Store, tag string) ([]*matflow.Structure, [][]string, error) {
	criteria := store.Doc{"task_label": "static"}
	criteria["$and"] = []any{
		map[string]any{"tags": tag},
		map[string]any{"tags": map[string]any{"$ne": wf.DenseGridTag}},
	}
	docs, err := tasks.Query(ctx, criteria, "task_id", "output.structure", "tags")
	if err != nil {
		return nil, nil, fmt.Errorf("campaign: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool {
		return fmt.Sprint(docs[i]["task_id"]) < fmt.Sprint(docs[j]["task_id"])
	})
	var structs []*matflow.Structure
	var tags [][]string
	for _, d := range docs {
		d = store.NormalizeDoc(d)
		sd, ok := store.GetMongolike(d, "output.structure")
		sm, isMap := sd.(map[string]any)
		if !ok || !isMap {
			return nil, nil, fmt.Errorf("campaign: task %v has no output structure", d["task_id"])
		}
		S, err := matflow.StructureFromDict(sm)
		if err != nil {
			return nil, nil, fmt.Errorf("campaign: task %v: %w", d["task_id"], err)
		}
		var t []string
		if l, ok := d["tags"].([]any); ok {
			for _, x := range l {
				if s, ok := x.(string); ok {
					t = append(t, s)
				}
			}
		}
		structs = append(structs, S)
		tags = append(tags, t)
	}
	return structs, tags, nil
}

//HighFFT builds the dense grid static workflows for the static calculations
//tagged with tag in tasks, keeping the tags of each calculation, and adds them
//to lpad if it isn't nil.
func HighFFT(ctx context.Context, tasks store.Store, tag string, lpad *launchpad.LaunchPad, workers int) ([]*wf.Workflow, error) {
	structs, tags, err := StaticTasks(ctx, tasks, tag)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(structs))
	for i := range idx {
		idx[i] = i
	}
	wfs, err := wf.GenerateAll(ctx, idx, func(i int) (*wf.Workflow, error) {
		return wf.HighFFTStatic(structs[i], tags[i]...)
	}, workers)
	if err != nil {
		return nil, fmt.Errorf("campaign: %w", err)
	}
	metrics.WorkflowsBuilt.Add(float64(len(wfs)))
	if lpad == nil {
		return wfs, nil
	}
	for _, W := range wfs {
		if _, err := lpad.AddWF(ctx, W); err != nil {
			return wfs, fmt.Errorf("campaign: %w", err)
		}
		metrics.WorkflowsSubmitted.Inc()
	}
	ctxlog.FromContext(ctx).Info("submitted dense grid statics", "tag", tag, "workflows", len(wfs))
	return wfs, nil
}
