/*
 * launchpad_test.go, part of matflow.
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

package launchpad

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmera/matflow/store"
	"github.com/rmera/matflow/wf"
)

//chain returns a workflow a -> b -> c with negative ids, tagged with tag.
func chain(Te *testing.T, name, tag string) *wf.Workflow {
	Te.Helper()
	fws := []*wf.Firework{
		{ID: -1, Name: name + "-opt", Spec: map[string]any{}},
		{ID: -2, Name: name + "-static", Spec: map[string]any{}, Parents: []int{-1}},
		{ID: -3, Name: name + "-bader", Spec: map[string]any{}, Parents: []int{-2}},
	}
	for _, f := range fws {
		f.Tasks = []wf.Task{{Name: "{{atomate.vasp.firetasks.parse_outputs.VaspToDb}}", Params: map[string]any{"db_file": ">>db_file<<"}}}
	}
	W, err := wf.NewWorkflow(name, fws, nil)
	if err != nil {
		Te.Fatal(err)
	}
	return wf.AddTags(W, tag)
}

func connected(Te *testing.T, L *LaunchPad) *LaunchPad {
	Te.Helper()
	if err := L.Connect(context.Background()); err != nil {
		Te.Fatal(err)
	}
	Te.Cleanup(func() { L.Close() })
	return L
}

func state(Te *testing.T, L *LaunchPad, id int) string {
	Te.Helper()
	d, err := L.FindOne(context.Background(), store.Doc{"fw_id": id}, "state")
	if err != nil {
		Te.Fatal(err)
	}
	s, _ := d["state"].(string)
	return s
}

func exercise(Te *testing.T, L *LaunchPad) {
	ctx := context.Background()
	W1 := chain(Te, "MnSbO4", "rutile")
	m, err := L.AddWF(ctx, W1)
	if err != nil {
		Te.Fatal(err)
	}
	if m[-1] != 1 || m[-2] != 2 || m[-3] != 3 {
		Te.Errorf("unexpected id mapping %v", m)
	}
	W2 := chain(Te, "Mn2SbO6", "trirutile")
	if _, err := L.AddWF(ctx, W2); err != nil {
		Te.Fatal(err)
	}
	if W2.Fireworks[0].ID != 4 || W2.Fireworks[2].Parents[0] != 5 {
		Te.Errorf("the second workflow should continue the ids: %d %v", W2.Fireworks[0].ID, W2.Fireworks[2].Parents)
	}
	if s := state(Te, L, 1); s != Ready {
		Te.Errorf("a root firework should be READY, got %s", s)
	}
	if s := state(Te, L, 3); s != Waiting {
		Te.Errorf("a child firework should be WAITING, got %s", s)
	}
	tags, err := L.DistinctTags(ctx)
	if err != nil {
		Te.Fatal(err)
	}
	if len(tags) != 2 || tags[0] != "rutile" || tags[1] != "trirutile" {
		Te.Errorf("unexpected tags %v", tags)
	}
	n, err := L.UpdateMany(ctx, store.Doc{"fw_id": 1}, store.Doc{"$set": map[string]any{"state": Completed}})
	if err != nil || n != 1 {
		Te.Fatalf("UpdateMany: %d %v", n, err)
	}
	if err := L.DefuseWF(ctx, 2); err != nil {
		Te.Fatal(err)
	}
	if state(Te, L, 1) != Completed || state(Te, L, 2) != Defused || state(Te, L, 3) != Defused {
		Te.Error("DefuseWF should defuse the fireworks that are not completed")
	}
	if state(Te, L, 4) != Ready {
		Te.Error("DefuseWF touched another workflow")
	}
	wdoc, err := L.WorkflowOf(ctx, 3)
	if err != nil {
		Te.Fatal(err)
	}
	fmt.Println(wdoc["fw_states"], wdoc["state"])
	if wdoc["state"] != Defused {
		Te.Errorf("the workflow should be DEFUSED, got %v", wdoc["state"])
	}
	if err := L.ReigniteWF(ctx, 1); err != nil {
		Te.Fatal(err)
	}
	if state(Te, L, 2) != Ready || state(Te, L, 3) != Waiting {
		Te.Errorf("after reigniting got %s %s", state(Te, L, 2), state(Te, L, 3))
	}
	ids, err := L.FWIDs(ctx, store.Doc{"spec.tags": "trirutile"})
	if err != nil || len(ids) != 3 || ids[0] != 4 {
		Te.Errorf("FWIDs = %v %v", ids, err)
	}
	if err := L.DefuseWF(ctx, 100); !errors.Is(err, ErrNotFound) {
		Te.Errorf("expected ErrNotFound, got %v", err)
	}
	f, err := L.FindOne(ctx, store.Doc{"fw_id": 5})
	if err != nil {
		Te.Fatal(err)
	}
	tasks, _ := store.Normalize(f["spec"]).(map[string]any)["_tasks"].([]any)
	if len(tasks) != 1 {
		Te.Errorf("the tasks should be stored in spec._tasks: %v", f["spec"])
	}
	if err := L.Reset(ctx); err != nil {
		Te.Fatal(err)
	}
	if c, _ := L.Fireworks().Count(ctx, nil); c != 0 {
		Te.Errorf("%d fireworks left after Reset", c)
	}
}

func TestMemoryLaunchPad(Te *testing.T) {
	exercise(Te, connected(Te, NewMemory()))
}

func TestSQLiteLaunchPad(Te *testing.T) {
	dir := Te.TempDir()
	p := filepath.Join(dir, "my_launchpad.yaml")
	if err := os.WriteFile(p, []byte("driver: sqlite\npath: lpad.db\nname: fw_test\n"), 0644); err != nil {
		Te.Fatal(err)
	}
	L, err := FromFile(p)
	if err != nil {
		Te.Fatal(err)
	}
	exercise(Te, connected(Te, L))
	if _, err := os.Stat(filepath.Join(dir, "lpad.db")); err != nil {
		Te.Errorf("the sqlite file should be next to the config: %v", err)
	}
}

func TestMongoLaunchPad(Te *testing.T) {
	uri := os.Getenv("MATFLOW_TEST_MONGO_URI")
	if uri == "" {
		Te.Skip("MATFLOW_TEST_MONGO_URI not set")
	}
	L, err := Open(Config{DSN: uri, Name: "matflow_lpad_test"})
	if err != nil {
		Te.Fatal(err)
	}
	L = connected(Te, L)
	if err := L.Reset(context.Background()); err != nil {
		Te.Fatal(err)
	}
	exercise(Te, L)
}

func TestAutoLoadAndFworker(Te *testing.T) {
	dir := Te.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			Te.Fatal(err)
		}
		return p
	}
	write("my_launchpad.yaml", "driver: memory\n")
	db := write("db.yaml", "driver: sqlite\npath: tasks.db\ncollection: tasks\n")
	write("my_fworker.yaml", "name: cluster\ncategory: ''\nquery: '{}'\nenv:\n  db_file: "+db+"\n  vasp_cmd: srun vasp_std\n")
	cfg := write("FW_config.yaml", "CONFIG_FILE_DIR: "+dir+"\n")
	Te.Setenv("FW_CONFIG_FILE", cfg)
	L, err := AutoLoad()
	if err != nil {
		Te.Fatal(err)
	}
	exercise(Te, connected(Te, L))
	F, err := AutoFworker()
	if err != nil {
		Te.Fatal(err)
	}
	if F.Name != "cluster" || F.Env["vasp_cmd"] != "srun vasp_std" {
		Te.Errorf("unexpected fworker %+v", F)
	}
	s, err := DBFromFworker("")
	if err != nil {
		Te.Fatal(err)
	}
	if err := s.Connect(context.Background()); err != nil {
		Te.Fatal(err)
	}
	defer s.Close()
	if err := s.Update(context.Background(), []store.Doc{{"task_id": "mp-1"}}, "task_id"); err != nil {
		Te.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks.db")); err != nil {
		Te.Error(err)
	}
	nofw := write("no_fworker.yaml", "name: x\n")
	if _, err := DBFromFworker(nofw); err == nil {
		Te.Error("expected an error for a worker without db_file")
	}
}

//seeded returns a memory launchpad holding what FireWorks leaves after running a
//three-firework workflow: the completed fireworks, their workflow document, and
//the id counter without any name field.
func seeded(Te *testing.T) *LaunchPad {
	Te.Helper()
	ctx := context.Background()
	L := connected(Te, NewMemory())
	var fws []store.Doc
	for id := 1; id <= 3; id++ {
		fws = append(fws, store.Doc{"fw_id": id, "name": fmt.Sprintf("old-%d", id), "state": Completed, "spec": map[string]any{}})
	}
	if err := L.Fireworks().Update(ctx, fws, "fw_id"); err != nil {
		Te.Fatal(err)
	}
	wdoc := store.Doc{
		"name":      "old",
		"nodes":     []any{1, 2, 3},
		"links":     map[string]any{"1": []any{2}, "2": []any{3}, "3": []any{}},
		"fw_states": map[string]any{"1": Completed, "2": Completed, "3": Completed},
		"state":     Completed,
	}
	if err := L.Workflows().Update(ctx, []store.Doc{wdoc}, "nodes"); err != nil {
		Te.Fatal(err)
	}
	if err := L.counter.Update(ctx, []store.Doc{{"next_fw_id": 4, "next_launch_id": 1}}, "next_launch_id"); err != nil {
		Te.Fatal(err)
	}
	return L
}

func TestAddToExistingLaunchPad(Te *testing.T) {
	ctx := context.Background()
	L := seeded(Te)
	W := chain(Te, "MnSbO4", "rutile")
	m, err := L.AddWF(ctx, W)
	if err != nil {
		Te.Fatal(err)
	}
	fmt.Println("mapping:", m)
	if m[-1] != 4 || m[-3] != 6 {
		Te.Errorf("the ids should continue the FireWorks counter, got %v", m)
	}
	for id := 1; id <= 3; id++ {
		if s := state(Te, L, id); s != Completed {
			Te.Errorf("firework %d was overwritten, state %s", id, s)
		}
	}
	n, err := L.counter.Count(ctx, nil)
	if err != nil || n != 1 {
		Te.Errorf("expected a single counter document, got %d %v", n, err)
	}
	c, err := L.counter.QueryOne(ctx, nil)
	if err != nil {
		Te.Fatal(err)
	}
	if toInt(c["next_fw_id"]) != 7 || toInt(c["next_launch_id"]) != 1 {
		Te.Errorf("unexpected counter %v", c)
	}
	//a counter behind the stored fireworks must not overwrite them.
	if _, err := L.counter.UpdateMany(ctx, nil, store.Doc{"$set": map[string]any{"next_fw_id": 2}}); err != nil {
		Te.Fatal(err)
	}
	W2 := chain(Te, "Mn2SbO6", "trirutile")
	if _, err := L.AddWF(ctx, W2); !errors.Is(err, ErrIDInUse) {
		Te.Errorf("expected ErrIDInUse, got %v", err)
	}
	if state(Te, L, 2) != Completed || W2.Fireworks[0].ID != -1 {
		Te.Error("a failed AddWF changed the stored fireworks or the workflow")
	}
}

func TestCounterFromStoredFireworks(Te *testing.T) {
	ctx := context.Background()
	L := seeded(Te)
	if err := L.counter.Drop(ctx); err != nil {
		Te.Fatal(err)
	}
	m, err := L.AddWF(ctx, chain(Te, "MnSbO4", "rutile"))
	if err != nil {
		Te.Fatal(err)
	}
	if m[-1] != 4 {
		Te.Errorf("a new counter should start after the stored fireworks, got %v", m)
	}
}

func TestReigniteFromLinks(Te *testing.T) {
	ctx := context.Background()
	L := seeded(Te)
	//fireworks 1 and 2 defused, 3 completed; no firework has a parents field.
	if _, err := L.UpdateMany(ctx, store.Doc{"fw_id": map[string]any{"$in": []any{1, 2}}}, store.Doc{"$set": map[string]any{"state": Defused}}); err != nil {
		Te.Fatal(err)
	}
	if err := L.ReigniteWF(ctx, 1); err != nil {
		Te.Fatal(err)
	}
	fmt.Println("states after reignite:", state(Te, L, 1), state(Te, L, 2))
	if state(Te, L, 1) != Ready || state(Te, L, 2) != Waiting || state(Te, L, 3) != Completed {
		Te.Errorf("got %s %s %s", state(Te, L, 1), state(Te, L, 2), state(Te, L, 3))
	}
}

//failingStore refuses every Update.
type failingStore struct {
	store.Store
}

func (f failingStore) Update(ctx context.Context, docs []store.Doc, key string) error {
	return errors.New("disk full")
}

func TestFailedAddKeepsWorkflow(Te *testing.T) {
	ctx := context.Background()
	L := connected(Te, New(store.NewMemory("fireworks"), failingStore{store.NewMemory("workflows")}, store.NewMemory(counterName)))
	W := chain(Te, "MnSbO4", "rutile")
	if _, err := L.AddWF(ctx, W); err == nil {
		Te.Fatal("expected an error")
	}
	if W.Fireworks[0].ID != -1 || W.Fireworks[1].Parents[0] != -1 || len(W.Links[-1]) != 1 {
		Te.Errorf("the workflow was changed by a failed AddWF: %d %v", W.Fireworks[0].ID, W.Links)
	}
}
