/*
 * atomicdata.go, part of matflow.
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
	"sort"
)

//Element holds the per-element data used across matflow.
//Covalent radii are from Cordero et al., 2008 (DOI:10.1039/B801115J), high-spin
//values for Mn, Fe and Co. Electronegativities are Pauling's, 0 when undefined.
//Colors follow the Jmol scheme.
type Element struct {
	Symbol            string
	Z                 int
	Mass              float64
	CovRad            float64
	Electronegativity float64
	Jmol              [3]uint8
}

var elements = []Element{
	{"H", 1, 1.008, 0.31, 2.20, [3]uint8{0xFF, 0xFF, 0xFF}},
	{"He", 2, 4.0026, 0.28, 0, [3]uint8{0xD9, 0xFF, 0xFF}},
	{"Li", 3, 6.94, 1.28, 0.98, [3]uint8{0xCC, 0x80, 0xFF}},
	{"Be", 4, 9.0122, 0.96, 1.57, [3]uint8{0xC2, 0xFF, 0x00}},
	{"B", 5, 10.81, 0.84, 2.04, [3]uint8{0xFF, 0xB5, 0xB5}},
	{"C", 6, 12.011, 0.76, 2.55, [3]uint8{0x90, 0x90, 0x90}},
	{"N", 7, 14.007, 0.71, 3.04, [3]uint8{0x30, 0x50, 0xF8}},
	{"O", 8, 15.999, 0.66, 3.44, [3]uint8{0xFF, 0x0D, 0x0D}},
	{"F", 9, 18.998, 0.57, 3.98, [3]uint8{0x90, 0xE0, 0x50}},
	{"Ne", 10, 20.180, 0.58, 0, [3]uint8{0xB3, 0xE3, 0xF5}},
	{"Na", 11, 22.990, 1.66, 0.93, [3]uint8{0xAB, 0x5C, 0xF2}},
	{"Mg", 12, 24.305, 1.41, 1.31, [3]uint8{0x8A, 0xFF, 0x00}},
	{"Al", 13, 26.982, 1.21, 1.61, [3]uint8{0xBF, 0xA6, 0xA6}},
	{"Si", 14, 28.085, 1.11, 1.90, [3]uint8{0xF0, 0xC8, 0xA0}},
	{"P", 15, 30.974, 1.07, 2.19, [3]uint8{0xFF, 0x80, 0x00}},
	{"S", 16, 32.06, 1.05, 2.58, [3]uint8{0xFF, 0xFF, 0x30}},
	{"Cl", 17, 35.45, 1.02, 3.16, [3]uint8{0x1F, 0xF0, 0x1F}},
	{"Ar", 18, 39.948, 1.06, 0, [3]uint8{0x80, 0xD1, 0xE3}},
	{"K", 19, 39.098, 2.03, 0.82, [3]uint8{0x8F, 0x40, 0xD4}},
	{"Ca", 20, 40.078, 1.76, 1.00, [3]uint8{0x3D, 0xFF, 0x00}},
	{"Sc", 21, 44.956, 1.70, 1.36, [3]uint8{0xE6, 0xE6, 0xE6}},
	{"Ti", 22, 47.867, 1.60, 1.54, [3]uint8{0xBF, 0xC2, 0xC7}},
	{"V", 23, 50.942, 1.53, 1.63, [3]uint8{0xA6, 0xA6, 0xAB}},
	{"Cr", 24, 51.996, 1.39, 1.66, [3]uint8{0x8A, 0x99, 0xC7}},
	{"Mn", 25, 54.938, 1.61, 1.55, [3]uint8{0x9C, 0x7A, 0xC7}},
	{"Fe", 26, 55.845, 1.52, 1.83, [3]uint8{0xE0, 0x66, 0x33}},
	{"Co", 27, 58.933, 1.50, 1.88, [3]uint8{0xF0, 0x90, 0xA0}},
	{"Ni", 28, 58.693, 1.24, 1.91, [3]uint8{0x50, 0xD0, 0x50}},
	{"Cu", 29, 63.546, 1.32, 1.90, [3]uint8{0xC8, 0x80, 0x33}},
	{"Zn", 30, 65.38, 1.22, 1.65, [3]uint8{0x7D, 0x80, 0xB0}},
	{"Ga", 31, 69.723, 1.22, 1.81, [3]uint8{0xC2, 0x8F, 0x8F}},
	{"Ge", 32, 72.630, 1.20, 2.01, [3]uint8{0x66, 0x8F, 0x8F}},
	{"As", 33, 74.922, 1.19, 2.18, [3]uint8{0xBD, 0x80, 0xE3}},
	{"Se", 34, 78.971, 1.20, 2.55, [3]uint8{0xFF, 0xA1, 0x00}},
	{"Br", 35, 79.904, 1.20, 2.96, [3]uint8{0xA6, 0x29, 0x29}},
	{"Kr", 36, 83.798, 1.16, 3.00, [3]uint8{0x5C, 0xB8, 0xD1}},
	{"Rb", 37, 85.468, 2.20, 0.82, [3]uint8{0x70, 0x2E, 0xB0}},
	{"Sr", 38, 87.62, 1.95, 0.95, [3]uint8{0x00, 0xFF, 0x00}},
	{"Y", 39, 88.906, 1.90, 1.22, [3]uint8{0x94, 0xFF, 0xFF}},
	{"Zr", 40, 91.224, 1.75, 1.33, [3]uint8{0x94, 0xE0, 0xE0}},
	{"Nb", 41, 92.906, 1.64, 1.60, [3]uint8{0x73, 0xC2, 0xC9}},
	{"Mo", 42, 95.95, 1.54, 2.16, [3]uint8{0x54, 0xB5, 0xB5}},
	{"Tc", 43, 98.0, 1.47, 1.90, [3]uint8{0x3B, 0x9E, 0x9E}},
	{"Ru", 44, 101.07, 1.46, 2.20, [3]uint8{0x24, 0x8F, 0x8F}},
	{"Rh", 45, 102.91, 1.42, 2.28, [3]uint8{0x0A, 0x7D, 0x8C}},
	{"Pd", 46, 106.42, 1.39, 2.20, [3]uint8{0x00, 0x69, 0x85}},
	{"Ag", 47, 107.87, 1.45, 1.93, [3]uint8{0xC0, 0xC0, 0xC0}},
	{"Cd", 48, 112.41, 1.44, 1.69, [3]uint8{0xFF, 0xD9, 0x8F}},
	{"In", 49, 114.82, 1.42, 1.78, [3]uint8{0xA6, 0x75, 0x73}},
	{"Sn", 50, 118.71, 1.39, 1.96, [3]uint8{0x66, 0x80, 0x80}},
	{"Sb", 51, 121.76, 1.39, 2.05, [3]uint8{0x9E, 0x63, 0xB5}},
	{"Te", 52, 127.60, 1.38, 2.10, [3]uint8{0xD4, 0x7A, 0x00}},
	{"I", 53, 126.90, 1.39, 2.66, [3]uint8{0x94, 0x00, 0x94}},
	{"Xe", 54, 131.29, 1.40, 2.60, [3]uint8{0x42, 0x9E, 0xB0}},
	{"Cs", 55, 132.91, 2.44, 0.79, [3]uint8{0x57, 0x17, 0x8F}},
	{"Ba", 56, 137.33, 2.15, 0.89, [3]uint8{0x00, 0xC9, 0x00}},
	{"La", 57, 138.91, 2.07, 1.10, [3]uint8{0x70, 0xD4, 0xFF}},
	{"Ce", 58, 140.12, 2.04, 1.12, [3]uint8{0xFF, 0xFF, 0xC7}},
	{"Pr", 59, 140.91, 2.03, 1.13, [3]uint8{0xD9, 0xFF, 0xC7}},
	{"Nd", 60, 144.24, 2.01, 1.14, [3]uint8{0xC7, 0xFF, 0xC7}},
	{"Pm", 61, 145.0, 1.99, 1.13, [3]uint8{0xA3, 0xFF, 0xC7}},
	{"Sm", 62, 150.36, 1.98, 1.17, [3]uint8{0x8F, 0xFF, 0xC7}},
	{"Eu", 63, 151.96, 1.98, 1.20, [3]uint8{0x61, 0xFF, 0xC7}},
	{"Gd", 64, 157.25, 1.96, 1.20, [3]uint8{0x45, 0xFF, 0xC7}},
	{"Tb", 65, 158.93, 1.94, 1.10, [3]uint8{0x30, 0xFF, 0xC7}},
	{"Dy", 66, 162.50, 1.92, 1.22, [3]uint8{0x1F, 0xFF, 0xC7}},
	{"Ho", 67, 164.93, 1.92, 1.23, [3]uint8{0x00, 0xFF, 0x9C}},
	{"Er", 68, 167.26, 1.89, 1.24, [3]uint8{0x00, 0xE6, 0x75}},
	{"Tm", 69, 168.93, 1.90, 1.25, [3]uint8{0x00, 0xD4, 0x52}},
	{"Yb", 70, 173.05, 1.87, 1.10, [3]uint8{0x00, 0xBF, 0x38}},
	{"Lu", 71, 174.97, 1.87, 1.27, [3]uint8{0x00, 0xAB, 0x24}},
	{"Hf", 72, 178.49, 1.75, 1.30, [3]uint8{0x4D, 0xC2, 0xFF}},
	{"Ta", 73, 180.95, 1.70, 1.50, [3]uint8{0x4D, 0xA6, 0xFF}},
	{"W", 74, 183.84, 1.62, 2.36, [3]uint8{0x21, 0x94, 0xD6}},
	{"Re", 75, 186.21, 1.51, 1.90, [3]uint8{0x26, 0x7D, 0xAB}},
	{"Os", 76, 190.23, 1.44, 2.20, [3]uint8{0x26, 0x66, 0x96}},
	{"Ir", 77, 192.22, 1.41, 2.20, [3]uint8{0x17, 0x54, 0x87}},
	{"Pt", 78, 195.08, 1.36, 2.28, [3]uint8{0xD0, 0xD0, 0xE0}},
	{"Au", 79, 196.97, 1.36, 2.54, [3]uint8{0xFF, 0xD1, 0x23}},
	{"Hg", 80, 200.59, 1.32, 2.00, [3]uint8{0xB8, 0xB8, 0xD0}},
	{"Tl", 81, 204.38, 1.45, 1.62, [3]uint8{0xA6, 0x54, 0x4D}},
	{"Pb", 82, 207.2, 1.46, 2.33, [3]uint8{0x57, 0x59, 0x61}},
	{"Bi", 83, 208.98, 1.48, 2.02, [3]uint8{0x9E, 0x4F, 0xB5}},
	{"Po", 84, 209.0, 1.40, 2.00, [3]uint8{0xAB, 0x5C, 0x00}},
	{"At", 85, 210.0, 1.50, 2.20, [3]uint8{0x75, 0x4F, 0x45}},
	{"Rn", 86, 222.0, 1.50, 2.20, [3]uint8{0x42, 0x82, 0x96}},
	{"Fr", 87, 223.0, 2.60, 0.70, [3]uint8{0x42, 0x00, 0x66}},
	{"Ra", 88, 226.0, 2.21, 0.90, [3]uint8{0x00, 0x7D, 0x00}},
	{"Ac", 89, 227.0, 2.15, 1.10, [3]uint8{0x70, 0xAB, 0xFA}},
	{"Th", 90, 232.04, 2.06, 1.30, [3]uint8{0x00, 0xBA, 0xFF}},
	{"Pa", 91, 231.04, 2.00, 1.50, [3]uint8{0x00, 0xA1, 0xFF}},
	{"U", 92, 238.03, 1.96, 1.38, [3]uint8{0x00, 0x8F, 0xFF}},
	{"Np", 93, 237.0, 1.90, 1.36, [3]uint8{0x00, 0x80, 0xFF}},
	{"Pu", 94, 244.0, 1.87, 1.28, [3]uint8{0x00, 0x6B, 0xFF}},
}

var symbolElement map[string]*Element

func init() {
	symbolElement = make(map[string]*Element, len(elements))
	for i := range elements {
		symbolElement[elements[i].Symbol] = &elements[i]
	}
}

//ElementBySymbol returns the data for the element with the given symbol.
func ElementBySymbol(symbol string) (*Element, error) {
	e, ok := symbolElement[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownElem, symbol)
	}
	return e, nil
}

//ElementByZ returns the data for the element with atomic number z.
func ElementByZ(z int) (*Element, error) {
	if z < 1 || z > len(elements) {
		return nil, fmt.Errorf("%w: Z=%d", ErrUnknownElem, z)
	}
	return &elements[z-1], nil
}

//IsElement returns true if symbol is a known element symbol.
func IsElement(symbol string) bool {
	_, ok := symbolElement[symbol]
	return ok
}

//ElementColors returns a map from element symbol to RGB color, with each channel in [0,1).
//Only the "Jmol" scheme is available.
func ElementColors(scheme string) (map[string][3]float64, error) {
	if scheme != "" && scheme != "Jmol" {
		return nil, fmt.Errorf("color scheme %q not available", scheme)
	}
	ret := make(map[string][3]float64, len(elements))
	for _, e := range elements {
		ret[e.Symbol] = [3]float64{float64(e.Jmol[0]) / 256, float64(e.Jmol[1]) / 256, float64(e.Jmol[2]) / 256}
	}
	return ret, nil
}

//sortByElectronegativity sorts the symbols in place, less electronegative first.
//Ties (and elements without electronegativity) go by atomic number.
func sortByElectronegativity(symbols []string) {
	sort.SliceStable(symbols, func(i, j int) bool {
		a, b := symbolElement[symbols[i]], symbolElement[symbols[j]]
		if a == nil || b == nil {
			return symbols[i] < symbols[j]
		}
		if a.Electronegativity != b.Electronegativity {
			return a.Electronegativity < b.Electronegativity
		}
		return a.Z < b.Z
	})
}
