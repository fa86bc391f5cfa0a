/*
 * files.go, part of matflow.
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

package matflow

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

//PoscarRead reads a VASP5 POSCAR/CONTCAR file.
func PoscarRead(filename string) (*Structure, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, wrapError(err, filename, "PoscarRead")
	}
	defer f.Close()
	S, err := ReadPoscar(f)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.filename = filename
		}
		return nil, errDecorate(err, "PoscarRead")
	}
	return S, nil
}

//ReadPoscar reads a VASP5 POSCAR from r. The species line is required.
func ReadPoscar(r io.Reader) (*Structure, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, wrapError(err, "", "ReadPoscar")
	}
	if len(lines) < 8 {
		return nil, NewError("POSCAR too short", "", "ReadPoscar")
	}
	comment := strings.TrimSpace(lines[0])
	scale, err := strconv.ParseFloat(strings.Fields(lines[1])[0], 64)
	if err != nil {
		return nil, wrapError(fmt.Errorf("scale factor: %w", err), "", "ReadPoscar")
	}
	var m [3][3]float64
	for i := 0; i < 3; i++ {
		v, err := parseFloats(lines[2+i], 3)
		if err != nil {
			return nil, wrapError(fmt.Errorf("lattice vector %d: %w", i, err), "", "ReadPoscar")
		}
		copy(m[i][:], v)
	}
	species := strings.Fields(lines[5])
	if len(species) == 0 || !IsElement(species[0]) {
		return nil, NewError("missing species line (VASP4 POSCARs are not supported)", "", "ReadPoscar")
	}
	countsStr := strings.Fields(lines[6])
	if len(countsStr) != len(species) {
		return nil, NewError("species and counts lines don't match", "", "ReadPoscar")
	}
	counts := make([]int, len(countsStr))
	total := 0
	for i, c := range countsStr {
		counts[i], err = strconv.Atoi(c)
		if err != nil {
			return nil, wrapError(fmt.Errorf("atom counts: %w", err), "", "ReadPoscar")
		}
		total += counts[i]
	}
	next := 7
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[next])), "s") {
		next++ //selective dynamics
	}
	mode := strings.ToLower(strings.TrimSpace(lines[next]))
	cartesian := strings.HasPrefix(mode, "c") || strings.HasPrefix(mode, "k")
	next++
	if len(lines) < next+total {
		return nil, NewError(fmt.Sprintf("expected %d coordinates", total), "", "ReadPoscar")
	}
	//a negative scale is the target volume.
	if scale < 0 {
		L, err := NewLattice(m)
		if err != nil {
			return nil, errDecorate(err, "ReadPoscar")
		}
		scale = math.Cbrt(-scale / L.Volume())
	}
	for i := range m {
		for j := range m[i] {
			m[i][j] *= scale
		}
	}
	L, err := NewLattice(m)
	if err != nil {
		return nil, errDecorate(err, "ReadPoscar")
	}
	spList := make([]string, 0, total)
	frac := make([][3]float64, 0, total)
	idx := 0
	for i, sp := range species {
		for j := 0; j < counts[i]; j++ {
			v, err := parseFloats(lines[next+idx], 3)
			if err != nil {
				return nil, wrapError(fmt.Errorf("coordinate %d: %w", idx, err), "", "ReadPoscar")
			}
			c := [3]float64{v[0], v[1], v[2]}
			if cartesian {
				for k := range c {
					c[k] *= scale
				}
				c = L.CartToFrac(c)
			}
			spList = append(spList, sp)
			frac = append(frac, c)
			idx++
		}
	}
	S, err := NewStructure(L, spList, frac)
	if err != nil {
		return nil, errDecorate(err, "ReadPoscar")
	}
	if comment != "" {
		S.Properties = map[string]any{"comment": comment}
	}
	return S, nil
}

//PoscarWrite writes S to filename in VASP5 POSCAR format.
func PoscarWrite(filename string, S *Structure, comment string) error {
	f, err := os.Create(filename)
	if err != nil {
		return wrapError(err, filename, "PoscarWrite")
	}
	defer f.Close()
	if err := WritePoscar(f, S, comment); err != nil {
		return errDecorate(err, "PoscarWrite")
	}
	return nil
}

//WritePoscar writes S to w in VASP5 POSCAR format. Sites are grouped by species,
//in order of first appearance, as VASP requires.
func WritePoscar(w io.Writer, S *Structure, comment string) error {
	if comment == "" {
		comment = S.Composition().Formula()
	}
	species, groups := poscarGroups(S)
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, comment)
	fmt.Fprintln(bw, "1.0")
	for _, v := range S.Lattice.Matrix() {
		fmt.Fprintf(bw, "  %14.8f %14.8f %14.8f\n", v[0], v[1], v[2])
	}
	fmt.Fprintln(bw, strings.Join(species, " "))
	counts := make([]string, len(species))
	for i, g := range groups {
		counts[i] = strconv.Itoa(len(g))
	}
	fmt.Fprintln(bw, strings.Join(counts, " "))
	fmt.Fprintln(bw, "direct")
	for i, g := range groups {
		for _, idx := range g {
			f := S.Sites[idx].Frac
			fmt.Fprintf(bw, "  %12.8f %12.8f %12.8f %s\n", f[0], f[1], f[2], species[i])
		}
	}
	if err := bw.Flush(); err != nil {
		return wrapError(err, "", "WritePoscar")
	}
	return nil
}

//PoscarSpecies returns the species in the order they are written to a POSCAR.
//The POTCAR has to follow the same order.
func PoscarSpecies(S *Structure) []string {
	sp, _ := poscarGroups(S)
	return sp
}

func poscarGroups(S *Structure) ([]string, [][]int) {
	var species []string
	index := make(map[string]int)
	var groups [][]int
	for i, s := range S.Sites {
		k, ok := index[s.Species]
		if !ok {
			k = len(species)
			index[s.Species] = k
			species = append(species, s.Species)
			groups = append(groups, nil)
		}
		groups[k] = append(groups[k], i)
	}
	return species, groups
}

//XYZWrite writes the cartesian coordinates of S in XYZ format, which is enough
//to take a quick look at a structure with most molecular viewers.
func XYZWrite(w io.Writer, S *Structure, comment string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%s\n", S.Len(), strings.ReplaceAll(comment, "\n", " "))
	for i, s := range S.Sites {
		c := S.CartCoord(i)
		fmt.Fprintf(bw, "%-2s %12.6f %12.6f %12.6f\n", s.Species, c[0], c[1], c[2])
	}
	if err := bw.Flush(); err != nil {
		return wrapError(err, "", "XYZWrite")
	}
	return nil
}

func parseFloats(line string, n int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d numbers in %q", n, line)
	}
	ret := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}
