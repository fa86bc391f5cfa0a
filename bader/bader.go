/*
 * bader.go, part of matflow.
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

//Package bader reads the results of a Bader charge analysis (the ACF.dat file
//written by the bader program) of a VASP calculation, and stores their summary
//in the task documents of a calculation database.
package bader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/archive"
	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/metrics"
	"github.com/rmera/matflow/store"
	"github.com/rmera/matflow/vasp"
)

//ErrMissingFile is returned when a calculation directory lacks one of the files needed.
var ErrMissingFile = errors.New("file not found")

//Atom is one line of an ACF.dat file.
type Atom struct {
	Cart         [3]float64
	Charge       float64
	MinDist      float64
	AtomicVolume float64
}

//Analysis is the Bader analysis of one calculation.
type Analysis struct {
	Atoms        []Atom
	VacuumCharge float64
	VacuumVolume float64
	NElectrons   float64
	Version      float64   //-1 if unknown
	ZVALs        []float64 //per site
	Structure    *matflow.Structure
}

//ReadACF parses an ACF.dat file.
func ReadACF(r io.Reader) (*Analysis, error) {
	A := &Analysis{Version: -1}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("bader: ACF %q: %w", line, err)
			}
			switch strings.ToUpper(strings.TrimSpace(k)) {
			case "VACUUM CHARGE":
				A.VacuumCharge = f
			case "VACUUM VOLUME":
				A.VacuumVolume = f
			case "NUMBER OF ELECTRONS":
				A.NElectrons = f
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return nil, fmt.Errorf("bader: malformed ACF line %q", line)
		}
		var vals [6]float64
		for i := range vals {
			var err error
			vals[i], err = strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bader: ACF line %q: %w", line, err)
			}
		}
		A.Atoms = append(A.Atoms, Atom{
			Cart:         [3]float64{vals[0], vals[1], vals[2]},
			Charge:       vals[3],
			MinDist:      vals[4],
			AtomicVolume: vals[5],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("bader: %w", err)
	}
	if len(A.Atoms) == 0 {
		return nil, fmt.Errorf("bader: no atoms in ACF file")
	}
	return A, nil
}

//findFile returns the path of name in dir, also trying the compressed versions
//left by the job manager.
func findFile(dir string, names ...string) (string, error) {
	for _, n := range names {
		for _, ext := range []string{"", ".gz", ".zst"} {
			p := filepath.Join(dir, n+ext)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("bader: %w: %s in %s", ErrMissingFile, strings.Join(names, " or "), dir)
}

//readVersion takes the program version from the header of its output,
//"GRID BASED BADER ANALYSIS  (Version 1.04 11/05/23)", or returns -1.
func readVersion(p string) float64 {
	r, err := archive.Open(p)
	if err != nil {
		return -1
	}
	defer r.Close()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		_, after, ok := strings.Cut(sc.Text(), "(Version")
		if !ok {
			continue
		}
		fields := strings.Fields(after)
		if len(fields) > 0 {
			if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
				return v
			}
		}
	}
	return -1
}

//FromPath reads the analysis of the calculation in dir: ACF.dat, the POTCAR for
//the valence charges and the CONTCAR (or the POSCAR) for the structure. Any of
//them may be compressed. The version of the program is read from bader.out
//if present.
func FromPath(dir string) (*Analysis, error) {
	acf, err := findFile(dir, "ACF.dat")
	if err != nil {
		return nil, err
	}
	r, err := archive.Open(acf)
	if err != nil {
		return nil, fmt.Errorf("bader: %w", err)
	}
	A, err := ReadACF(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	sp, err := findFile(dir, "CONTCAR", "POSCAR")
	if err != nil {
		return nil, err
	}
	sr, err := archive.Open(sp)
	if err != nil {
		return nil, fmt.Errorf("bader: %w", err)
	}
	A.Structure, err = matflow.ReadPoscar(sr)
	sr.Close()
	if err != nil {
		return nil, fmt.Errorf("bader: %s: %w", sp, err)
	}
	pp, err := findFile(dir, "POTCAR")
	if err != nil {
		return nil, err
	}
	entries, err := vasp.ReadZVALs(pp)
	if err != nil {
		return nil, fmt.Errorf("bader: %w", err)
	}
	if err := A.setZVALs(entries); err != nil {
		return nil, err
	}
	if vp, err := findFile(dir, "bader.out"); err == nil {
		A.Version = readVersion(vp)
	}
	return A, nil
}

//setZVALs assigns to each site the ZVAL of its element.
func (A *Analysis) setZVALs(entries []vasp.PotcarEntry) error {
	if A.Structure.Len() != len(A.Atoms) {
		return fmt.Errorf("bader: %d atoms in ACF.dat, %d in the structure", len(A.Atoms), A.Structure.Len())
	}
	zval := make(map[string]float64, len(entries))
	for _, e := range entries {
		zval[e.Element] = e.ZVAL
	}
	A.ZVALs = make([]float64, A.Structure.Len())
	for i := range A.ZVALs {
		z, ok := zval[A.Structure.Species(i)]
		if !ok {
			return fmt.Errorf("bader: no POTCAR entry for %s", A.Structure.Species(i))
		}
		A.ZVALs[i] = z
	}
	return nil
}

//ChargeTransfer returns the Bader charge of site i minus its valence charge.
//A negative value means that the atom lost electrons.
func (A *Analysis) ChargeTransfer(i int) float64 {
	return A.Atoms[i].Charge - A.ZVALs[i]
}

//Summary returns the analysis as a document.
func (A *Analysis) Summary() map[string]any {
	n := len(A.Atoms)
	charge, dist, vol := make([]float64, n), make([]float64, n), make([]float64, n)
	var transfer []float64
	for i, a := range A.Atoms {
		charge[i], dist[i], vol[i] = a.Charge, a.MinDist, a.AtomicVolume
	}
	if A.ZVALs != nil {
		transfer = make([]float64, n)
		for i := range transfer {
			transfer[i] = A.ChargeTransfer(i)
		}
	}
	ret := map[string]any{
		"min_dist":        dist,
		"charge":          charge,
		"atomic_volume":   vol,
		"vacuum_charge":   A.VacuumCharge,
		"vacuum_volume":   A.VacuumVolume,
		"reference_used":  false,
		"bader_version":   A.Version,
		"charge_transfer": transfer,
	}
	return ret
}

//OxidationDecorated returns a copy of the structure with the oxidation state
//(the opposite of the charge transfer) of each site in its oxi_state property,
//and the Bader charge in bader_charge.
func (A *Analysis) OxidationDecorated() (*matflow.Structure, error) {
	if A.Structure == nil || A.ZVALs == nil {
		return nil, fmt.Errorf("bader: the analysis has no structure or valence charges")
	}
	S := A.Structure.Copy()
	for i, s := range S.Sites {
		if s.Properties == nil {
			s.Properties = map[string]any{}
		}
		s.Properties["oxi_state"] = -A.ChargeTransfer(i)
		s.Properties["bader_charge"] = A.Atoms[i].Charge
	}
	return S, nil
}

//RunDir returns the local path of a calculation from the dir_name of its task
//document, which is prefixed with the host name ("node12:/scratch/...").
func RunDir(dirName string) string {
	if i := strings.LastIndex(dirName, ":"); i >= 0 {
		return dirName[i+1:]
	}
	return dirName
}

//AddBader runs the analysis for every task matching criteria that doesn't have
//one yet, and sets the summary, with the decorated structure under oxi_structure,
//in the bader field of the task. It returns the number of tasks updated. Tasks
//whose directory can't be analyzed are logged and skipped, and the first such
//error is returned at the end.
func AddBader(ctx context.Context, tasks store.Store, criteria store.Doc) (int, error) {
	log := ctxlog.FromContext(ctx)
	c := store.Doc{"bader": map[string]any{"$exists": false}}
	for k, v := range criteria {
		c[k] = v
	}
	docs, err := tasks.Query(ctx, c, "dir_name", "task_id")
	if err != nil {
		return 0, fmt.Errorf("bader: %w", err)
	}
	var first error
	n := 0
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		dir, _ := d["dir_name"].(string)
		A, err := FromPath(RunDir(dir))
		if err == nil {
			err = set(ctx, tasks, d["task_id"], A)
		}
		if err != nil {
			log.Warn("bader analysis failed", "task_id", d["task_id"], "dir", dir, "error", err)
			metrics.BaderAnalyses.WithLabelValues("failed").Inc()
			if first == nil {
				first = err
			}
			continue
		}
		log.Debug("bader analysis stored", "task_id", d["task_id"])
		metrics.BaderAnalyses.WithLabelValues("stored").Inc()
		n++
	}
	return n, first
}

func set(ctx context.Context, tasks store.Store, taskID any, A *Analysis) error {
	S, err := A.OxidationDecorated()
	if err != nil {
		return err
	}
	sd, err := S.AsDict()
	if err != nil {
		return err
	}
	summary := A.Summary()
	summary["oxi_structure"] = sd
	_, err = tasks.UpdateMany(ctx, store.Doc{"task_id": taskID}, store.Doc{"$set": map[string]any{"bader": summary}})
	return err
}
