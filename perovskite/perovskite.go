/*
 * perovskite.go, part of matflow.
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

//Package perovskite prepares the cubic perovskite calculations shared with
//collaborators: it generates the ABO3 structures still to compute from an ASE
//database, and turns the finished task documents into simplified entries for
//an external database.
package perovskite

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/archive"
	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/metrics"
	"github.com/rmera/matflow/store"
)

//Tag is the tag of the perovskite workflows in the launchpad and the task database.
const Tag = "peroxide_catalysts_2"

//ReadScreened returns the formulas in the Formula column of a screened CSV file.
func ReadScreened(r io.Reader) (map[string]bool, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("perovskite: screened CSV: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "Formula" {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("perovskite: screened CSV has no Formula column")
	}
	ret := map[string]bool{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("perovskite: screened CSV: %w", err)
		}
		if col < len(rec) {
			ret[strings.TrimSpace(rec[col])] = true
		}
	}
	return ret, nil
}

//Candidate is a structure to calculate.
type Candidate struct {
	Formula   string
	Structure *matflow.Structure
}

//GenerateStructures returns, sorted by formula, the ABO3 perovskites of the ASE
//database at dbPath that are not in the screened CSV file at csvPath (those
//were already computed).
func GenerateStructures(ctx context.Context, dbPath, csvPath string) ([]Candidate, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("perovskite: %w", err)
	}
	screened, err := ReadScreened(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	rows, err := ReadASEDB(ctx, dbPath, map[string]any{"combination": "ABO3"})
	if err != nil {
		return nil, err
	}
	m, formulas := byFormula(rows)
	var ret []Candidate
	for _, formula := range formulas {
		if screened[formula] {
			continue
		}
		ret = append(ret, Candidate{Formula: formula, Structure: m[formula].Structure})
	}
	ctxlog.FromContext(ctx).Info("generated perovskites", "in_db", len(formulas), "screened", len(screened), "new", len(ret))
	return ret, nil
}

//SimplifiedDoc turns a task document into the document shared with collaborators:
//task_id, dir_name, the ABO3 formula and a computed entry with the final
//structure, energy and calculation parameters.
func SimplifiedDoc(d store.Doc) (store.Doc, error) {
	d = store.NormalizeDoc(d)
	sd, ok := store.GetMongolike(d, "output.structure")
	if !ok {
		return nil, fmt.Errorf("perovskite: task %v has no output structure", d["task_id"])
	}
	sm, ok := sd.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("perovskite: task %v: malformed output structure", d["task_id"])
	}
	S, err := matflow.StructureFromDict(sm)
	if err != nil {
		return nil, fmt.Errorf("perovskite: task %v: %w", d["task_id"], err)
	}
	if S.Len() < 2 {
		return nil, fmt.Errorf("perovskite: task %v: structure with %d sites", d["task_id"], S.Len())
	}
	energy, ok := store.GetMongolike(d, "output.energy")
	if !ok {
		return nil, fmt.Errorf("perovskite: task %v has no output energy", d["task_id"])
	}
	params := map[string]any{}
	for _, k := range []string{"pseudo_potential", "is_hubbard", "hubbards"} {
		v, _ := store.GetMongolike(d, "input."+k)
		params[k] = v
	}
	functional, _ := store.GetMongolike(d, "input.pseudo_potential.functional")
	labels, _ := store.GetMongolike(d, "input.pseudo_potential.labels")
	var symbols []any
	if l, ok := labels.([]any); ok {
		for _, x := range l {
			symbols = append(symbols, fmt.Sprintf("%v %v", functional, x))
		}
	}
	params["potcar_symbols"] = symbols
	ot, _ := matflow.OxideType(S)
	params["oxide_type"] = ot
	entry, err := computedEntry(S, energy, params)
	if err != nil {
		return nil, fmt.Errorf("perovskite: task %v: %w", d["task_id"], err)
	}
	ret := store.Doc{}
	for k, v := range d {
		switch k {
		case "_id", "output", "input":
			continue
		}
		ret[k] = v
	}
	ret["formula"] = fmt.Sprintf("%s%sO3", S.Species(0), S.Species(1))
	ret["entry"] = entry
	return ret, nil
}

//computedEntry returns the dictionary of a ComputedStructureEntry.
func computedEntry(S *matflow.Structure, energy any, params map[string]any) (map[string]any, error) {
	sd, err := S.AsDict()
	if err != nil {
		return nil, err
	}
	comp := map[string]any{}
	for el, a := range S.Composition() {
		comp[el] = a
	}
	return map[string]any{
		"@module":     "pymatgen.entries.computed_entries",
		"@class":      "ComputedStructureEntry",
		"energy":      energy,
		"composition": comp,
		"correction":  0.0,
		"parameters":  params,
		"data":        map[string]any{},
		"entry_id":    nil,
		"structure":   sd,
	}, nil
}

//SimplifiedDocs returns the simplified documents of the tasks in tasks that match criteria.
func SimplifiedDocs(ctx context.Context, tasks store.Store, criteria store.Doc) ([]store.Doc, error) {
	docs, err := tasks.Query(ctx, criteria, "dir_name", "output", "task_id", "input")
	if err != nil {
		return nil, fmt.Errorf("perovskite: %w", err)
	}
	ret := make([]store.Doc, 0, len(docs))
	for _, d := range docs {
		s, err := SimplifiedDoc(d)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

//Publish replaces the contents of target with docs, keyed by task_id.
func Publish(ctx context.Context, docs []store.Doc, target store.Store) error {
	if err := target.Drop(ctx); err != nil {
		return fmt.Errorf("perovskite: %w", err)
	}
	if err := target.Update(ctx, docs, "task_id"); err != nil {
		return fmt.Errorf("perovskite: %w", err)
	}
	metrics.DocumentsPublished.WithLabelValues(target.Name()).Add(float64(len(docs)))
	ctxlog.FromContext(ctx).Info("published documents", "target", target.Name(), "docs", len(docs))
	return nil
}

//Export writes docs to the file name as JSON, compressed according to the
//extension, for collaborators without access to the database.
func Export(name string, docs []store.Doc) error {
	return archive.DumpJSON(name, docs)
}
