/*
 * match.go, part of matflow.
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

//Package match compares crystal structures through pair-distance fingerprints.
//
//A fingerprint is a matrix of histograms, one per (ordered) pair of elements, of the
//distances from each site of the first element to the images of the second within a
//cutoff. Distances are measured in units of the cube root of the volume per atom,
//so a structure and its slightly compressed counterpart produce the same fingerprint,
//and histograms are divided by the number of sites of the first element, so
//supercells do too. This is not a full symmetry analysis, but it is enough to
//deduplicate substitution enumerations, where the candidates share a lattice.
package match

import (
	"math"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/histo"
)

//Matcher compares structures. The zero value uses the defaults.
type Matcher struct {
	LTol   float64 //maximum relative difference in volume per atom
	STol   float64 //maximum difference of any pair histogram, between 0 and 1
	Bins   int     //bins per pair histogram
	Cutoff float64 //in units of the cube root of the volume per atom
}

//Default values for Matcher fields
const (
	DefaultLTol   = 0.2
	DefaultSTol   = 0.05
	DefaultBins   = 60
	DefaultCutoff = 2.5
)

func (M Matcher) params() (ltol, stol float64, bins int, cutoff float64) {
	ltol, stol, bins, cutoff = M.LTol, M.STol, M.Bins, M.Cutoff
	if ltol <= 0 {
		ltol = DefaultLTol
	}
	if stol <= 0 {
		stol = DefaultSTol
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return
}

//Fingerprint holds what Matcher needs to compare a structure.
type Fingerprint struct {
	Reduced    matflow.Composition
	Elements   []string
	VolPerAtom float64
	Hist       *histo.Matrix
}

//Fingerprint computes the fingerprint of S with the parameters of M.
func (M Matcher) Fingerprint(S *matflow.Structure) *Fingerprint {
	_, _, bins, cutoff := M.params()
	comp := S.Composition()
	red, _ := comp.Reduced()
	els := comp.Elements()
	index := make(map[string]int, len(els))
	for i, v := range els {
		index[v] = i
	}
	vpa := S.Volume() / float64(S.Len())
	unit := math.Cbrt(vpa)
	H := histo.NewMatrix(len(els), len(els), histo.Dividers(0, cutoff, bins))
	for i := range S.Sites {
		a := index[S.Species(i)]
		for _, n := range S.Neighbors(i, cutoff*unit) {
			H.AddData(a, index[S.Species(n.Index)], n.Distance/unit)
		}
	}
	//per-site, so supercells give the same numbers.
	for r := range els {
		H.ScaleRow(r, 1/comp.Amount(els[r]))
	}
	return &Fingerprint{Reduced: red, Elements: els, VolPerAtom: vpa, Hist: H}
}

//Compare returns the difference between two fingerprints, between 0 (identical)
//and 1, and whether their compositions and volumes are compatible at all.
//Each element pair is normalized on its own, and the largest pair difference
//is returned, so the few pairs involving a dopant weigh as much as the host's.
func (M Matcher) Compare(a, b *Fingerprint) (float64, bool) {
	ltol, _, _, _ := M.params()
	if !a.Reduced.Equal(b.Reduced) || len(a.Elements) != len(b.Elements) {
		return 1, false
	}
	for i := range a.Elements {
		if a.Elements[i] != b.Elements[i] {
			return 1, false
		}
	}
	if math.Abs(a.VolPerAtom-b.VolPerAtom)/math.Max(a.VolPerAtom, b.VolPerAtom) > ltol {
		return 1, false
	}
	diff, err := histo.AbsDiff(a.Hist, b.Hist)
	if err != nil {
		return 1, false
	}
	var worst float64
	r, c := diff.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total := a.Hist.View(i, j).Sum() + b.Hist.View(i, j).Sum()
			if total == 0 {
				continue
			}
			worst = math.Max(worst, diff.View(i, j).Sum()/total)
		}
	}
	return worst, true
}

//Fit returns true if a and b are the same structure, within the tolerances of M.
func (M Matcher) Fit(a, b *matflow.Structure) bool {
	return M.fitPrints(M.Fingerprint(a), M.Fingerprint(b))
}

func (M Matcher) fitPrints(a, b *Fingerprint) bool {
	_, stol, _, _ := M.params()
	d, ok := M.Compare(a, b)
	return ok && d <= stol
}

//Group returns the indexes of structs grouped so each group contains
//structures that fit the first member of the group. Groups, and
//the members of each group, keep the order of structs.
func (M Matcher) Group(structs []*matflow.Structure) [][]int {
	prints := make([]*Fingerprint, len(structs))
	for i, s := range structs {
		prints[i] = M.Fingerprint(s)
	}
	var groups [][]int
	for i := range structs {
		placed := false
		for g, members := range groups {
			if M.fitPrints(prints[members[0]], prints[i]) {
				groups[g] = append(groups[g], i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}
	return groups
}

//Unique returns the first structure of each group, in the original order.
func (M Matcher) Unique(structs []*matflow.Structure) []*matflow.Structure {
	groups := M.Group(structs)
	ret := make([]*matflow.Structure, 0, len(groups))
	for _, g := range groups {
		ret = append(ret, structs[g[0]])
	}
	return ret
}
