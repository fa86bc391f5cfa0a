/*
 * oxide.go, part of matflow.
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

//Bond length thresholds used by OxideType, in Å.
const (
	SuperoxideCutoff = 1.35 //O-O
	PeroxideCutoff   = 1.49 //O-O
	HydroxideCutoff  = 1.02 //O-H
)

//OxideType classifies the oxygen in S as "oxide", "peroxide", "superoxide", "ozonide"
//or "hydroxide" from the O-O (and O-H) distances. Structures without oxygen, and
//elemental oxygen, are "None". The second value is the number of oxygen atoms involved
//in O-O bonds, or the total amount of O for plain oxides.
func OxideType(S *Structure) (string, int) {
	comp := S.Composition()
	if comp["O"] == 0 || len(comp.Elements()) == 1 {
		return "None", 0
	}
	o := S.IndicesOf("O")
	h := S.IndicesOf("H")
	for _, i := range o {
		for _, j := range h {
			if S.Distance(i, j) < HydroxideCutoff {
				return "hydroxide", len(h)
			}
		}
	}
	superCount := make(map[int]int)
	perCount := make(map[int]int)
	for a, i := range o {
		for b, j := range o {
			if a == b {
				continue
			}
			d := S.Distance(i, j)
			if d < SuperoxideCutoff {
				superCount[i]++
			}
			if d < PeroxideCutoff {
				perCount[i]++
			}
		}
	}
	if len(superCount) > 0 {
		for _, c := range superCount {
			if c > 1 {
				return "ozonide", len(superCount)
			}
		}
		return "superoxide", len(superCount)
	}
	if len(perCount) > 0 {
		return "peroxide", len(perCount)
	}
	return "oxide", int(comp["O"])
}
