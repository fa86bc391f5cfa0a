/*
 * kpoints.go, part of matflow.
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

package vasp

import (
	"fmt"
	"math"
	"strings"

	"github.com/rmera/matflow"
)

//Kpoints is an automatic KPOINTS mesh.
type Kpoints struct {
	Comment string
	Gamma   bool //Gamma-centered if true, Monkhorst-Pack otherwise
	Grid    [3]int
	Shift   [3]float64
}

//String returns the KPOINTS file contents.
func (K *Kpoints) String() string {
	style := "Monkhorst"
	if K.Gamma {
		style = "Gamma"
	}
	comment := K.Comment
	if comment == "" {
		comment = "Automatic kpoint scheme"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n0\n%s\n%d %d %d\n", comment, style, K.Grid[0], K.Grid[1], K.Grid[2])
	if K.Shift != [3]float64{} {
		fmt.Fprintf(&b, "%g %g %g\n", K.Shift[0], K.Shift[1], K.Shift[2])
	}
	return b.String()
}

//AutomaticDensity returns a mesh with about kppa k-points per reciprocal atom.
//Hexagonal cells, and all cells if forceGamma is true, get Gamma-centered meshes.
func AutomaticDensity(S *matflow.Structure, kppa float64, forceGamma bool) *Kpoints {
	abc := S.Lattice.Abc()
	ngrid := kppa / float64(S.Len())
	mult := math.Cbrt(ngrid * abc[0] * abc[1] * abc[2])
	K := &Kpoints{Comment: fmt.Sprintf("kppa=%g", kppa)}
	for i, l := range abc {
		K.Grid[i] = int(math.Floor(math.Max(mult/l, 1)))
	}
	K.Gamma = forceGamma || S.Lattice.IsHexagonal(5, 0.01)
	return K
}

//AutomaticDensityByVolume returns a mesh with about kppvol k-points per reciprocal
//Angstrom cubed (the "reciprocal density" of the input sets).
func AutomaticDensityByVolume(S *matflow.Structure, kppvol float64, forceGamma bool) *Kpoints {
	kppa := kppvol * S.Lattice.ReciprocalVolume() * float64(S.Len())
	K := AutomaticDensity(S, kppa, forceGamma)
	K.Comment = fmt.Sprintf("reciprocal density %g", kppvol)
	return K
}
