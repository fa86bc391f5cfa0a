/*
 * perovskite_test.go, part of matflow.
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

package perovskite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/archive"
	"github.com/rmera/matflow/store"
)

func int32Blob(v ...int32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
	}
	return b
}

func float64Blob(v ...float64) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return b
}

//aseDB writes a minimal ASE database with a few cubic perovskites.
func aseDB(Te *testing.T) string {
	Te.Helper()
	p := filepath.Join(Te.TempDir(), "cubic_perovskites.db")
	db, err := sql.Open("sqlite", p)
	if err != nil {
		Te.Fatal(err)
	}
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE systems (id INTEGER PRIMARY KEY AUTOINCREMENT, unique_id TEXT,
		numbers BLOB, positions BLOB, cell BLOB, pbc INTEGER, key_value_pairs TEXT)`)
	if err != nil {
		Te.Fatal(err)
	}
	type system struct {
		a, b int32
		la   float64
		kvp  string
	}
	systems := []system{
		{38, 22, 3.905, `{"A_ion": "Sr", "B_ion": "Ti", "combination": "ABO3"}`},
		{56, 22, 4.01, `{"A_ion": "Ba", "B_ion": "Ti", "combination": "ABO3"}`},
		{38, 22, 3.9, `{"A_ion": "Sr", "B_ion": "Ti", "combination": "ABO2N"}`},
		{20, 25, 3.73, `{"A_ion": "Ca", "B_ion": "Mn", "combination": "ABO3"}`},
	}
	for i, s := range systems {
		h := s.la / 2
		pos := float64Blob(0, 0, 0, h, h, h, h, h, 0, h, 0, h, 0, h, h)
		cell := float64Blob(s.la, 0, 0, 0, s.la, 0, 0, 0, s.la)
		_, err := db.Exec(`INSERT INTO systems (unique_id, numbers, positions, cell, pbc, key_value_pairs) VALUES (?, ?, ?, ?, 7, ?)`,
			strings.Repeat("x", i+1), int32Blob(s.a, s.b, 8, 8, 8), pos, cell, s.kvp)
		if err != nil {
			Te.Fatal(err)
		}
	}
	return p
}

func TestReadASEDB(Te *testing.T) {
	rows, err := ReadASEDB(context.Background(), aseDB(Te), map[string]any{"combination": "ABO3"})
	if err != nil {
		Te.Fatal(err)
	}
	if len(rows) != 3 {
		Te.Fatalf("expected 3 ABO3 systems, got %d", len(rows))
	}
	S := rows[0].Structure
	if rows[0].Formula() != "SrTiO3" || S.Formula() != "SrTiO3" {
		Te.Errorf("unexpected first row %s %s", rows[0].Formula(), S.Formula())
	}
	if math.Abs(S.Volume()-math.Pow(3.905, 3)) > 1e-6 {
		Te.Errorf("wrong volume %f", S.Volume())
	}
	if f := S.Sites[1].Frac; math.Abs(f[0]-0.5) > 1e-9 || math.Abs(f[2]-0.5) > 1e-9 {
		Te.Errorf("wrong fractional coordinates %v", f)
	}
	if _, err := ReadASEDB(context.Background(), filepath.Join(Te.TempDir(), "empty.db"), nil); err == nil {
		Te.Error("a database without systems table should fail")
	}
}

func TestGenerateStructures(Te *testing.T) {
	csvPath := filepath.Join(Te.TempDir(), "screened.csv")
	if err := os.WriteFile(csvPath, []byte("Formula,dG_OOH,dG_OH\nBaTiO3,4.1,1.2\nLaNiO3,3.9,0.8\n"), 0644); err != nil {
		Te.Fatal(err)
	}
	cands, err := GenerateStructures(context.Background(), aseDB(Te), csvPath)
	if err != nil {
		Te.Fatal(err)
	}
	if len(cands) != 2 || cands[0].Formula != "CaMnO3" || cands[1].Formula != "SrTiO3" {
		Te.Errorf("unexpected candidates %v", cands)
	}
	if _, err := ReadScreened(strings.NewReader("name,x\nfoo,1\n")); err == nil {
		Te.Error("a CSV without Formula column should fail")
	}
}

func taskDoc(Te *testing.T, id string, S *matflow.Structure, energy float64) store.Doc {
	Te.Helper()
	sd, err := S.AsDict()
	if err != nil {
		Te.Fatal(err)
	}
	return store.Doc{
		"task_id":  id,
		"dir_name": "node1:/scratch/" + id,
		"tags":     []any{Tag},
		"output":   map[string]any{"structure": sd, "energy": energy},
		"input": map[string]any{
			"pseudo_potential": map[string]any{"functional": "PBE", "labels": []any{"Sr_sv", "Ti_pv", "O"}},
			"is_hubbard":       false,
			"hubbards":         map[string]any{},
		},
	}
}

func TestSimplifiedDocsAndPublish(Te *testing.T) {
	ctx := context.Background()
	rows, err := ReadASEDB(ctx, aseDB(Te), map[string]any{"combination": "ABO3"})
	if err != nil {
		Te.Fatal(err)
	}
	tasks := store.NewMemory("tasks")
	target := store.NewMemory("perovskites")
	for _, s := range []store.Store{tasks, target} {
		if err := s.Connect(ctx); err != nil {
			Te.Fatal(err)
		}
		defer s.Close()
	}
	docs := []store.Doc{taskDoc(Te, "mp-1", rows[0].Structure, -40.1), taskDoc(Te, "mp-2", rows[1].Structure, -41.5)}
	other := taskDoc(Te, "mp-3", rows[2].Structure, -38)
	other["tags"] = []any{"other"}
	docs = append(docs, other)
	if err := tasks.Update(ctx, docs, "task_id"); err != nil {
		Te.Fatal(err)
	}
	simple, err := SimplifiedDocs(ctx, tasks, store.Doc{"tags": Tag})
	if err != nil {
		Te.Fatal(err)
	}
	if len(simple) != 2 {
		Te.Fatalf("expected 2 documents, got %d", len(simple))
	}
	d := simple[0]
	if d["formula"] != "SrTiO3" {
		Te.Errorf("unexpected formula %v", d["formula"])
	}
	for _, k := range []string{"output", "input", "_id"} {
		if _, ok := d[k]; ok {
			Te.Errorf("%s should be dropped", k)
		}
	}
	if v, _ := store.GetMongolike(d, "entry.parameters.oxide_type"); v != "oxide" {
		Te.Errorf("unexpected oxide type %v", v)
	}
	if v, _ := store.GetMongolike(d, "entry.parameters.potcar_symbols"); len(v.([]any)) != 3 || v.([]any)[0] != "PBE Sr_sv" {
		Te.Errorf("unexpected potcar symbols %v", v)
	}
	if v, _ := store.GetMongolike(d, "entry.energy"); v != -40.1 {
		Te.Errorf("unexpected energy %v", v)
	}
	if err := target.Update(ctx, []store.Doc{{"task_id": "stale"}}, "task_id"); err != nil {
		Te.Fatal(err)
	}
	if err := Publish(ctx, simple, target); err != nil {
		Te.Fatal(err)
	}
	if n, _ := target.Count(ctx, nil); n != 2 {
		Te.Errorf("the target should only have the published documents, has %d", n)
	}
	p := filepath.Join(Te.TempDir(), "perovskites.json.zst")
	if err := Export(p, simple); err != nil {
		Te.Fatal(err)
	}
	var back []store.Doc
	if err := archive.LoadJSON(p, &back); err != nil || len(back) != 2 {
		Te.Errorf("export round trip failed: %v", err)
	}
	bad := store.Doc{"task_id": "x"}
	if _, err := SimplifiedDoc(bad); err == nil {
		Te.Error("a task without output should fail")
	}
}
