/*
 * structure.go, part of matflow.
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
	"fmt"
	"math"
	"sort"
	"strings"

	v3 "github.com/rmera/matflow/v3"
)

/**Note: as in the rest of the library, functions that only fail on programming
 * errors (nil receivers, out of range indexes given by the caller's own loops) panic;
 * functions that can fail on user data return errors.**/

//Lattice is a periodic lattice. The rows of the underlying matrix are the
//lattice vectors a, b and c, in Angstrom.
type Lattice struct {
	m   *v3.Matrix
	inv *v3.Matrix
}

//NewLattice returns a lattice with the given row vectors.
func NewLattice(rows [3][3]float64) (*Lattice, error) {
	data := make([]float64, 0, 9)
	for _, r := range rows {
		data = append(data, r[:]...)
	}
	m, err := v3.NewMatrix(data)
	if err != nil {
		return nil, errDecorate(err, "NewLattice")
	}
	inv, err := m.Inverse()
	if err != nil {
		return nil, &Error{message: ErrBadLattice.Error(), deco: []string{"NewLattice"}, critical: true, err: ErrBadLattice}
	}
	return &Lattice{m: m, inv: inv}, nil
}

//CubicLattice returns a cubic lattice with parameter a.
func CubicLattice(a float64) (*Lattice, error) {
	return NewLattice([3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}})
}

//LatticeFromParameters builds a lattice from lengths (Angstrom) and angles (degrees),
//with a along x and b in the xy plane.
func LatticeFromParameters(a, b, c, alpha, beta, gamma float64) (*Lattice, error) {
	ra, rb, rg := alpha*math.Pi/180, beta*math.Pi/180, gamma*math.Pi/180
	cx := c * math.Cos(rb)
	cy := c * (math.Cos(ra) - math.Cos(rb)*math.Cos(rg)) / math.Sin(rg)
	cz2 := c*c - cx*cx - cy*cy
	if cz2 <= 0 {
		return nil, NewError("impossible lattice angles", "", "LatticeFromParameters")
	}
	return NewLattice([3][3]float64{
		{a, 0, 0},
		{b * math.Cos(rg), b * math.Sin(rg), 0},
		{cx, cy, math.Sqrt(cz2)},
	})
}

//Matrix returns the lattice vectors as rows.
func (L *Lattice) Matrix() [3][3]float64 {
	return [3][3]float64{L.m.Vec(0), L.m.Vec(1), L.m.Vec(2)}
}

//Abc returns the lengths of the lattice vectors.
func (L *Lattice) Abc() [3]float64 {
	return [3]float64{L.m.VecNorm(0), L.m.VecNorm(1), L.m.VecNorm(2)}
}

//Angles returns alpha, beta and gamma in degrees.
func (L *Lattice) Angles() [3]float64 {
	a, b, c := L.m.Vec(0), L.m.Vec(1), L.m.Vec(2)
	angle := func(x, y [3]float64) float64 {
		cos := v3.Dot(x, y) / (v3.Norm(x) * v3.Norm(y))
		cos = math.Max(-1, math.Min(1, cos))
		return math.Acos(cos) * 180 / math.Pi
	}
	return [3]float64{angle(b, c), angle(a, c), angle(a, b)}
}

//Volume returns the volume of the cell in cubic Angstrom.
func (L *Lattice) Volume() float64 {
	return math.Abs(L.m.Det())
}

//ReciprocalVolume returns the volume of the reciprocal cell, including the 2pi factor.
func (L *Lattice) ReciprocalVolume() float64 {
	return math.Pow(2*math.Pi, 3) / L.Volume()
}

//ReciprocalLengths returns the lengths of the reciprocal lattice vectors, including the 2pi factor.
func (L *Lattice) ReciprocalLengths() [3]float64 {
	sp := L.planeSpacings()
	return [3]float64{2 * math.Pi / sp[0], 2 * math.Pi / sp[1], 2 * math.Pi / sp[2]}
}

//FracToCart converts fractional to cartesian coordinates.
func (L *Lattice) FracToCart(f [3]float64) [3]float64 {
	var ret [3]float64
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			ret[j] += f[i] * L.m.At(i, j)
		}
	}
	return ret
}

//CartToFrac converts cartesian to fractional coordinates.
func (L *Lattice) CartToFrac(c [3]float64) [3]float64 {
	var ret [3]float64
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			ret[j] += c[i] * L.inv.At(i, j)
		}
	}
	return ret
}

//planeSpacings returns the distances between lattice planes
//perpendicular to each reciprocal vector.
func (L *Lattice) planeSpacings() [3]float64 {
	v := L.Volume()
	a, b, c := L.m.Vec(0), L.m.Vec(1), L.m.Vec(2)
	return [3]float64{
		v / v3.Norm(v3.Cross(b, c)),
		v / v3.Norm(v3.Cross(a, c)),
		v / v3.Norm(v3.Cross(a, b)),
	}
}

//IsHexagonal returns true if two lattice parameters are equal with a 120 degree angle
//between them and the remaining angles are 90 degrees.
func (L *Lattice) IsHexagonal(hexTol, lengthTol float64) bool {
	abc := L.Abc()
	ang := L.Angles()
	right := 0
	hex := 0
	for _, a := range ang {
		if math.Abs(a-90) < hexTol {
			right++
		}
		if math.Abs(a-120) < hexTol {
			hex++
		}
	}
	if right != 2 || hex != 1 {
		return false
	}
	return math.Abs(abc[0]-abc[1]) < lengthTol || math.Abs(abc[0]-abc[2]) < lengthTol || math.Abs(abc[1]-abc[2]) < lengthTol
}

//Copy returns a deep copy of the lattice.
func (L *Lattice) Copy() *Lattice {
	return &Lattice{m: L.m.Copy(), inv: L.inv.Copy()}
}

//Site is a single atomic site, with its coordinates in fractional units.
type Site struct {
	Species    string
	Frac       [3]float64
	Label      string
	Properties map[string]any
}

//Copy returns a copy of the site. Property values are copied shallowly.
func (S *Site) Copy() *Site {
	ret := &Site{Species: S.Species, Frac: S.Frac, Label: S.Label}
	if S.Properties != nil {
		ret.Properties = make(map[string]any, len(S.Properties))
		for k, v := range S.Properties {
			ret.Properties[k] = v
		}
	}
	return ret
}

//Structure is a periodic crystal structure: a lattice and an ordered set of sites.
type Structure struct {
	Lattice    *Lattice
	Sites      []*Site
	Properties map[string]any
}

//NewStructure builds a structure from a lattice, a slice of species and the
//corresponding fractional coordinates.
func NewStructure(L *Lattice, species []string, frac [][3]float64) (*Structure, error) {
	if L == nil {
		return nil, NewError("nil lattice", "", "NewStructure")
	}
	if len(species) != len(frac) {
		return nil, NewError(fmt.Sprintf("%d species but %d coordinates", len(species), len(frac)), "", "NewStructure")
	}
	S := &Structure{Lattice: L, Sites: make([]*Site, 0, len(species))}
	for i, sp := range species {
		if !IsElement(sp) {
			return nil, wrapError(fmt.Errorf("%w: %q at site %d", ErrUnknownElem, sp, i), "", "NewStructure")
		}
		S.Sites = append(S.Sites, &Site{Species: sp, Frac: frac[i], Label: sp})
	}
	return S, nil
}

//Len returns the number of sites in the structure.
func (S *Structure) Len() int {
	return len(S.Sites)
}

//Copy returns a deep copy of the structure.
func (S *Structure) Copy() *Structure {
	ret := &Structure{Lattice: S.Lattice.Copy(), Sites: make([]*Site, len(S.Sites))}
	for i, s := range S.Sites {
		ret.Sites[i] = s.Copy()
	}
	if S.Properties != nil {
		ret.Properties = make(map[string]any, len(S.Properties))
		for k, v := range S.Properties {
			ret.Properties[k] = v
		}
	}
	return ret
}

//Species returns the species of the ith site. It panics if i is out of range.
func (S *Structure) Species(i int) string {
	return S.Sites[i].Species
}

//SpeciesList returns the species of all sites, in order.
func (S *Structure) SpeciesList() []string {
	ret := make([]string, len(S.Sites))
	for i, s := range S.Sites {
		ret[i] = s.Species
	}
	return ret
}

//IndicesOf returns the indexes of all sites occupied by species.
func (S *Structure) IndicesOf(species string) []int {
	var ret []int
	for i, s := range S.Sites {
		if s.Species == species {
			ret = append(ret, i)
		}
	}
	return ret
}

//Replace sets the species of the ith site, keeping its coordinates.
func (S *Structure) Replace(i int, species string) error {
	if i < 0 || i >= len(S.Sites) {
		return wrapError(fmt.Errorf("%w: %d (%d sites)", ErrOutOfRange, i, len(S.Sites)), "", "Replace")
	}
	if !IsElement(species) {
		return wrapError(fmt.Errorf("%w: %q", ErrUnknownElem, species), "", "Replace")
	}
	S.Sites[i].Species = species
	S.Sites[i].Label = species
	return nil
}

//ReplaceSpecies replaces every occurrence of each key of mapping by its value.
func (S *Structure) ReplaceSpecies(mapping map[string]string) error {
	for from, to := range mapping {
		if !IsElement(to) {
			return wrapError(fmt.Errorf("%w: %q (replacing %s)", ErrUnknownElem, to, from), "", "ReplaceSpecies")
		}
	}
	for _, s := range S.Sites {
		if to, ok := mapping[s.Species]; ok {
			s.Species = to
			s.Label = to
		}
	}
	return nil
}

//MakeSupercell returns a new structure, scaled by scale along each lattice vector.
func (S *Structure) MakeSupercell(scale [3]int) (*Structure, error) {
	for _, v := range scale {
		if v < 1 {
			return nil, NewError(fmt.Sprintf("invalid supercell scaling %v", scale), "", "MakeSupercell")
		}
	}
	m := S.Lattice.Matrix()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= float64(scale[i])
		}
	}
	L, err := NewLattice(m)
	if err != nil {
		return nil, errDecorate(err, "MakeSupercell")
	}
	ret := &Structure{Lattice: L, Sites: make([]*Site, 0, S.Len()*scale[0]*scale[1]*scale[2])}
	for _, s := range S.Sites {
		for i := 0; i < scale[0]; i++ {
			for j := 0; j < scale[1]; j++ {
				for k := 0; k < scale[2]; k++ {
					n := s.Copy()
					n.Frac = [3]float64{
						(s.Frac[0] + float64(i)) / float64(scale[0]),
						(s.Frac[1] + float64(j)) / float64(scale[1]),
						(s.Frac[2] + float64(k)) / float64(scale[2]),
					}
					ret.Sites = append(ret.Sites, n)
				}
			}
		}
	}
	return ret, nil
}

//Composition returns the composition of the structure.
func (S *Structure) Composition() Composition {
	ret := make(Composition)
	for _, s := range S.Sites {
		ret[s.Species]++
	}
	return ret
}

//Formula returns the reduced formula of the structure.
func (S *Structure) Formula() string {
	return S.Composition().ReducedFormula()
}

//Volume returns the volume of the cell.
func (S *Structure) Volume() float64 {
	return S.Lattice.Volume()
}

//CartCoord returns the cartesian coordinates of the ith site.
func (S *Structure) CartCoord(i int) [3]float64 {
	return S.Lattice.FracToCart(S.Sites[i].Frac)
}

//CartCoords returns the cartesian coordinates of all sites.
func (S *Structure) CartCoords() *v3.Matrix {
	ret := v3.Zeros(S.Len())
	for i := range S.Sites {
		ret.SetVec(i, S.CartCoord(i))
	}
	return ret
}

//Distance returns the minimum-image distance between sites i and j.
func (S *Structure) Distance(i, j int) float64 {
	d := [3]float64{}
	for k := 0; k < 3; k++ {
		d[k] = S.Sites[j].Frac[k] - S.Sites[i].Frac[k]
		d[k] -= math.Round(d[k])
	}
	best := math.Inf(1)
	//rounding is not enough for skewed cells, so the neighbouring images are checked too.
	for a := -1; a <= 1; a++ {
		for b := -1; b <= 1; b++ {
			for c := -1; c <= 1; c++ {
				f := [3]float64{d[0] + float64(a), d[1] + float64(b), d[2] + float64(c)}
				if n := v3.Norm(S.Lattice.FracToCart(f)); n < best {
					best = n
				}
			}
		}
	}
	return best
}

//Neighbor is a periodic image of a site within some cutoff of another site.
type Neighbor struct {
	Index    int
	Distance float64
}

//Neighbors returns all the site images (other than site i itself) within cutoff of site i,
//sorted by distance.
func (S *Structure) Neighbors(i int, cutoff float64) []Neighbor {
	sp := S.Lattice.planeSpacings()
	var n [3]int
	for k := 0; k < 3; k++ {
		n[k] = int(math.Ceil(cutoff/sp[k])) + 1
	}
	var ret []Neighbor
	fi := S.Sites[i].Frac
	for j, s := range S.Sites {
		d := [3]float64{}
		for k := 0; k < 3; k++ {
			d[k] = s.Frac[k] - fi[k]
			d[k] -= math.Round(d[k])
		}
		for a := -n[0]; a <= n[0]; a++ {
			for b := -n[1]; b <= n[1]; b++ {
				for c := -n[2]; c <= n[2]; c++ {
					f := [3]float64{d[0] + float64(a), d[1] + float64(b), d[2] + float64(c)}
					dist := v3.Norm(S.Lattice.FracToCart(f))
					if dist > cutoff || dist < 1e-8 {
						continue
					}
					ret = append(ret, Neighbor{Index: j, Distance: dist})
				}
			}
		}
	}
	sort.Slice(ret, func(a, b int) bool { return ret[a].Distance < ret[b].Distance })
	return ret
}

//String returns a short, human-readable description of the structure.
func (S *Structure) String() string {
	var b strings.Builder
	abc := S.Lattice.Abc()
	ang := S.Lattice.Angles()
	fmt.Fprintf(&b, "Full Formula (%s)\nReduced Formula: %s\n", S.Composition().Formula(), S.Formula())
	fmt.Fprintf(&b, "abc   : %10.6f %10.6f %10.6f\nangles: %10.6f %10.6f %10.6f\n", abc[0], abc[1], abc[2], ang[0], ang[1], ang[2])
	fmt.Fprintf(&b, "Sites (%d)\n", S.Len())
	for i, s := range S.Sites {
		fmt.Fprintf(&b, "%3d %-2s %10.6f %10.6f %10.6f\n", i, s.Species, s.Frac[0], s.Frac[1], s.Frac[2])
	}
	return b.String()
}
