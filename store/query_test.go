/*
 * query_test.go, part of matflow.
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

package store

import (
	"testing"
)

func taskDoc() Doc {
	return NormalizeDoc(Doc{
		"task_id":    "mp-1",
		"task_label": "static",
		"tags":       []any{"mn_sb_calcs_4", "mp-2657"},
		"output": map[string]any{
			"energy":    -45.3,
			"structure": map[string]any{"sites": []any{map[string]any{"label": "Mn"}}},
		},
		"nsites":   6,
		"dir_name": "node1:/scratch/run1",
	})
}

func TestGetMongolike(Te *testing.T) {
	d := taskDoc()
	if v, ok := GetMongolike(d, "output.energy"); !ok || v != -45.3 {
		Te.Errorf("output.energy = %v %v", v, ok)
	}
	if v, ok := GetMongolike(d, "output.structure.sites.0.label"); !ok || v != "Mn" {
		Te.Errorf("list index path = %v %v", v, ok)
	}
	if _, ok := GetMongolike(d, "output.nothing.here"); ok {
		Te.Error("missing path found")
	}
}

func TestMatches(Te *testing.T) {
	d := taskDoc()
	cases := []struct {
		c    Doc
		want bool
	}{
		{Doc{"tags": "mn_sb_calcs_4", "task_label": "static"}, true},
		{Doc{"tags": "other"}, false},
		{Doc{"bader": Doc{"$exists": false}}, true},
		{Doc{"bader": Doc{"$exists": true}}, false},
		{Doc{"bader": nil}, true},
		{Doc{"task_label": Doc{"$ne": "static"}}, false},
		{Doc{"task_label": Doc{"$in": []string{"optimize", "static"}}}, true},
		{Doc{"tags": Doc{"$nin": []any{"mp-2657"}}}, false},
		{Doc{"nsites": Doc{"$gte": 6, "$lt": 7}}, true},
		{Doc{"output.energy": Doc{"$gt": -40.0}}, false},
		{Doc{"dir_name": Doc{"$regex": "^NODE1", "$options": "i"}}, true},
		{Doc{"$or": []any{Doc{"nsites": 5}, Doc{"task_id": "mp-1"}}}, true},
		{Doc{"$and": []any{Doc{"nsites": 6}, Doc{"task_id": "mp-2"}}}, false},
		{Doc{"tags": Doc{"$size": 2}}, true},
		{Doc{"nsites": Doc{"$not": Doc{"$gt": 10}}}, true},
		{Doc{"tags": []any{"mn_sb_calcs_4", "mp-2657"}}, true},
	}
	for i, c := range cases {
		got, err := Matches(d, c.c)
		if err != nil {
			Te.Errorf("case %d: %v", i, err)
			continue
		}
		if got != c.want {
			Te.Errorf("case %d (%v): got %v", i, c.c, got)
		}
	}
	if _, err := Matches(d, Doc{"nsites": Doc{"$near": 3}}); err == nil {
		Te.Error("expected an error for an unsupported operator")
	}
}

func TestApplyUpdate(Te *testing.T) {
	d := taskDoc()
	err := ApplyUpdate(d, Doc{
		"$set":      Doc{"bader.min_dist": []float64{1, 2}, "task_label": "static_dense"},
		"$inc":      Doc{"spec._priority": 2000, "nsites": 1},
		"$unset":    Doc{"dir_name": ""},
		"$addToSet": Doc{"tags": "mn_sb_calcs_4"},
		"$push":     Doc{"history": "defused"},
	})
	if err != nil {
		Te.Fatal(err)
	}
	if v, _ := GetMongolike(d, "spec._priority"); v != 2000.0 {
		Te.Errorf("spec._priority = %v", v)
	}
	if v, _ := GetMongolike(d, "nsites"); v != 7.0 {
		Te.Errorf("nsites = %v", v)
	}
	if _, ok := d["dir_name"]; ok {
		Te.Error("dir_name not unset")
	}
	if tags := d["tags"].([]any); len(tags) != 2 {
		Te.Errorf("$addToSet duplicated a tag: %v", tags)
	}
	if h, _ := d["history"].([]any); len(h) != 1 {
		Te.Errorf("$push: %v", d["history"])
	}
	if err := ApplyUpdate(d, Doc{"$inc": Doc{"task_label": 1}}); err == nil {
		Te.Error("expected an error incrementing a string")
	}
}

func TestProject(Te *testing.T) {
	d := taskDoc()
	p := Project(d, "task_id", "output.energy")
	if len(p) != 2 {
		Te.Errorf("projection has %d fields", len(p))
	}
	if v, _ := GetMongolike(p, "output.energy"); v != -45.3 {
		Te.Errorf("projected output.energy = %v", v)
	}
	if _, ok := GetMongolike(p, "output.structure"); ok {
		Te.Error("output.structure shouldn't be projected")
	}
	p["task_id"] = "changed"
	if d["task_id"] != "mp-1" {
		Te.Error("Project didn't copy")
	}
}
