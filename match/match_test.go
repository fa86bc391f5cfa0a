/*
 * match_test.go, part of matflow.
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

package match

import (
	"fmt"
	"math"
	"testing"

	"github.com/rmera/matflow"
)

func rutile(Te *testing.T, x, scale float64) *matflow.Structure {
	Te.Helper()
	L, err := matflow.LatticeFromParameters(4.594*scale, 4.594*scale, 2.959*scale, 90, 90, 90)
	if err != nil {
		Te.Fatal(err)
	}
	S, err := matflow.NewStructure(L, []string{"Ti", "Ti", "O", "O", "O", "O"}, [][3]float64{
		{0, 0, 0}, {0.5, 0.5, 0.5},
		{x, x, 0}, {1 - x, 1 - x, 0}, {0.5 - x, 0.5 + x, 0.5}, {0.5 + x, 0.5 - x, 0.5},
	})
	if err != nil {
		Te.Fatal(err)
	}
	return S
}

func TestFitSupercellAndScaling(Te *testing.T) {
	var M Matcher
	S := rutile(Te, 0.305, 1)
	big, err := S.MakeSupercell([3]int{2, 2, 2})
	if err != nil {
		Te.Fatal(err)
	}
	if !M.Fit(S, big) {
		a, b := M.Fingerprint(S), M.Fingerprint(big)
		d, _ := M.Compare(a, b)
		Te.Errorf("a supercell should fit its cell, difference %f", d)
	}
	compressed := rutile(Te, 0.305, math.Cbrt(0.95))
	if !M.Fit(S, compressed) {
		Te.Error("a 5% volume change should fit")
	}
	squashed := rutile(Te, 0.305, math.Cbrt(0.5))
	if M.Fit(S, squashed) {
		Te.Error("a 50% volume change shouldn't fit")
	}
	distorted := rutile(Te, 0.25, 1)
	if M.Fit(S, distorted) {
		d, _ := M.Compare(M.Fingerprint(S), M.Fingerprint(distorted))
		Te.Errorf("the distorted structure shouldn't fit, difference %f", d)
	}
}

func TestEquivalentSubstitutions(Te *testing.T) {
	var M Matcher
	a := rutile(Te, 0.305, 1)
	b := a.Copy()
	a.Replace(0, "Mn")
	b.Replace(1, "Mn")
	if !M.Fit(a, b) {
		Te.Error("substitutions on equivalent sites should fit")
	}
	c := rutile(Te, 0.305, 1)
	if M.Fit(a, c) {
		Te.Error("different compositions shouldn't fit")
	}
}

func TestUniqueAndGroup(Te *testing.T) {
	M := Matcher{STol: 0.01}
	base := rutile(Te, 0.305, 1)
	a := base.Copy()
	a.Replace(0, "Mn")
	b := base.Copy()
	b.Replace(1, "Mn")
	d := rutile(Te, 0.25, 1)
	structs := []*matflow.Structure{base, a, d, b, base.Copy()}
	groups := M.Group(structs)
	fmt.Println("groups:", groups)
	if len(groups) != 3 {
		Te.Fatalf("expected 3 groups, got %v", groups)
	}
	if len(groups[0]) != 2 || groups[0][1] != 4 || len(groups[1]) != 2 || groups[1][1] != 3 {
		Te.Errorf("unexpected grouping %v", groups)
	}
	u := M.Unique(structs)
	if len(u) != 3 || u[0] != base || u[1] != a || u[2] != d {
		Te.Errorf("Unique should keep the first structure of each group in order")
	}
}

//cscl returns a 2x2x2 supercell of CsCl-type MnO with a = 3 Å, and the index of
//the Mn site at each fractional position.
func cscl(Te *testing.T) (*matflow.Structure, map[[3]float64]int) {
	Te.Helper()
	L, err := matflow.CubicLattice(6)
	if err != nil {
		Te.Fatal(err)
	}
	var species []string
	var frac [][3]float64
	mn := map[[3]float64]int{}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				f := [3]float64{float64(i) / 2, float64(j) / 2, float64(k) / 2}
				mn[f] = len(species)
				species = append(species, "Mn", "O")
				frac = append(frac, f, [3]float64{f[0] + 0.25, f[1] + 0.25, f[2] + 0.25})
			}
		}
	}
	S, err := matflow.NewStructure(L, species, frac)
	if err != nil {
		Te.Fatal(err)
	}
	return S, mn
}

func TestDopantOrderings(Te *testing.T) {
	var M Matcher
	S, mn := cscl(Te)
	pair := func(f [3]float64) *matflow.Structure {
		s := S.Copy()
		s.Replace(mn[[3]float64{0, 0, 0}], "Sb")
		s.Replace(mn[f], "Sb")
		return s
	}
	edge := pair([3]float64{0.5, 0, 0})
	face := pair([3]float64{0.5, 0.5, 0})
	body := pair([3]float64{0.5, 0.5, 0.5})
	otherEdge := pair([3]float64{0, 0, 0.5})
	otherFace := pair([3]float64{0, 0.5, 0.5})
	d, _ := M.Compare(M.Fingerprint(edge), M.Fingerprint(face))
	fmt.Printf("edge/face difference %.4f\n", d)
	groups := M.Group([]*matflow.Structure{edge, face, body, otherEdge, otherFace})
	fmt.Println("groups:", groups)
	if len(groups) != 3 {
		Te.Fatalf("edge, face and body diagonal Sb pairs should be 3 groups, got %v", groups)
	}
	if len(groups[0]) != 2 || groups[0][1] != 3 || len(groups[1]) != 2 || groups[1][1] != 4 || len(groups[2]) != 1 {
		Te.Errorf("unexpected grouping %v", groups)
	}
}
