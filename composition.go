/*
 * composition.go, part of matflow.
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
	"strconv"
	"strings"
)

const amountTol = 1e-8

//Composition maps element symbols to amounts.
type Composition map[string]float64

//Amount returns the amount of el in the composition, 0 if absent.
func (C Composition) Amount(el string) float64 {
	return C[el]
}

//Total returns the total number of atoms in the composition.
func (C Composition) Total() float64 {
	var t float64
	for _, v := range C {
		t += v
	}
	return t
}

//Elements returns the element symbols with non-zero amounts, less electronegative first.
func (C Composition) Elements() []string {
	ret := make([]string, 0, len(C))
	for k, v := range C {
		if math.Abs(v) > amountTol {
			ret = append(ret, k)
		}
	}
	sort.Strings(ret)
	sortByElectronegativity(ret)
	return ret
}

//Copy returns a copy of the composition.
func (C Composition) Copy() Composition {
	ret := make(Composition, len(C))
	for k, v := range C {
		ret[k] = v
	}
	return ret
}

//Equal returns true if both compositions have the same amounts for all elements.
func (C Composition) Equal(D Composition) bool {
	for k, v := range C {
		if math.Abs(v-D[k]) > amountTol {
			return false
		}
	}
	for k, v := range D {
		if math.Abs(v-C[k]) > amountTol {
			return false
		}
	}
	return true
}

//Reduced returns the reduced composition and the factor by which
//the receiver was divided. Non-integer compositions are returned unchanged
//with a factor of 1.
func (C Composition) Reduced() (Composition, int) {
	g := 0
	for _, v := range C {
		r := math.Round(v)
		if math.Abs(v-r) > amountTol {
			return C.Copy(), 1
		}
		if r == 0 {
			continue
		}
		g = gcd(g, int(r))
	}
	if g <= 1 {
		return C.Copy(), 1
	}
	ret := make(Composition, len(C))
	for k, v := range C {
		ret[k] = math.Round(v) / float64(g)
	}
	return ret, g
}

//ReducedFormula returns the formula of the reduced composition, i.e. "Mn2SbO6".
func (C Composition) ReducedFormula() string {
	red, _ := C.Reduced()
	var b strings.Builder
	for _, el := range red.Elements() {
		b.WriteString(el)
		if a := red[el]; math.Abs(a-1) > amountTol {
			b.WriteString(formatAmount(a))
		}
	}
	return b.String()
}

//Formula returns the full formula, with explicit amounts, i.e. "Mn4 Sb2 O12".
func (C Composition) Formula() string {
	els := C.Elements()
	parts := make([]string, 0, len(els))
	for _, el := range els {
		parts = append(parts, el+formatAmount(C[el]))
	}
	return strings.Join(parts, " ")
}

//String implements fmt.Stringer.
func (C Composition) String() string {
	return C.Formula()
}

//AnionRatio returns the number of non-anion atoms per anion atom, the quantity
//that has to be preserved by cation substitutions. It returns an error if
//the anion is absent.
func (C Composition) AnionRatio(anion string) (float64, error) {
	a := C[anion]
	if a <= amountTol {
		return 0, fmt.Errorf("composition %s has no %s", C.Formula(), anion)
	}
	return (C.Total() - a) / a, nil
}

//ParseFormula parses a simple formula like "SrTiO3" or "Mn2 Sb1 O6" into a Composition.
//Parentheses are not supported.
func ParseFormula(formula string) (Composition, error) {
	ret := make(Composition)
	f := strings.ReplaceAll(formula, " ", "")
	i := 0
	for i < len(f) {
		if f[i] < 'A' || f[i] > 'Z' {
			return nil, fmt.Errorf("malformed formula %q at position %d", formula, i)
		}
		j := i + 1
		for j < len(f) && f[j] >= 'a' && f[j] <= 'z' {
			j++
		}
		sym := f[i:j]
		if !IsElement(sym) {
			return nil, fmt.Errorf("%w: %q in formula %q", ErrUnknownElem, sym, formula)
		}
		k := j
		for k < len(f) && (f[k] == '.' || (f[k] >= '0' && f[k] <= '9')) {
			k++
		}
		amt := 1.0
		if k > j {
			var err error
			amt, err = strconv.ParseFloat(f[j:k], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed amount in formula %q: %w", formula, err)
			}
		}
		ret[sym] += amt
		i = k
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("empty formula")
	}
	return ret, nil
}

func formatAmount(a float64) string {
	if math.Abs(a-math.Round(a)) < amountTol {
		return strconv.Itoa(int(math.Round(a)))
	}
	return strconv.FormatFloat(a, 'g', 6, 64)
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
