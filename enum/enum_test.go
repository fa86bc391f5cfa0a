/*
 * enum_test.go, part of matflow.
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

package enum

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rmera/matflow"
)

func mnSbRutile(Te *testing.T) *matflow.Structure {
	Te.Helper()
	L, err := matflow.LatticeFromParameters(4.594, 4.594, 2.959, 90, 90, 90)
	if err != nil {
		Te.Fatal(err)
	}
	x := 0.305
	S, err := matflow.NewStructure(L, []string{"Ti", "Ti", "O", "O", "O", "O"}, [][3]float64{
		{0, 0, 0}, {0.5, 0.5, 0.5},
		{x, x, 0}, {1 - x, 1 - x, 0}, {0.5 - x, 0.5 + x, 0.5}, {0.5 + x, 0.5 - x, 0.5},
	})
	if err != nil {
		Te.Fatal(err)
	}
	if err := ReplaceSites("Ti", "Mn", "Sb")(S); err != nil {
		Te.Fatal(err)
	}
	return S
}

func TestCombinations(Te *testing.T) {
	var got [][]int
	combinations(4, 2, func(c []int) error {
		got = append(got, append([]int(nil), c...))
		return nil
	})
	if len(got) != 6 || got[0][0] != 0 || got[0][1] != 1 || got[5][0] != 2 || got[5][1] != 3 {
		Te.Errorf("combinations(4,2) = %v", got)
	}
	n := 0
	combinations(3, 0, func([]int) error { n++; return nil })
	if n != 1 {
		Te.Errorf("there is exactly one empty combination, got %d", n)
	}
	if c := countCombinations(8, 2); c != 1+8+28 {
		Te.Errorf("countCombinations(8,2) = %d", c)
	}
}

func TestByTemplate(Te *testing.T) {
	T := mnSbRutile(Te)
	structs, err := ByTemplate(T, 1, nil)
	if err != nil {
		Te.Fatal(err)
	}
	for _, s := range structs {
		fmt.Println(s.Composition().Formula())
	}
	if len(structs) != 3 {
		Te.Fatalf("expected the template plus one structure per substitution, got %d", len(structs))
	}
	if structs[0] != T {
		Te.Error("the template should be the first structure")
	}
	want := map[string]bool{"MnSbO4": true, "Mn7Sb9O32": true, "Mn9Sb7O32": true}
	for _, s := range structs {
		if !want[s.Formula()] {
			Te.Errorf("unexpected structure %s", s.Formula())
		}
	}
	if T.Len() != 6 {
		Te.Error("the template was modified")
	}
}

func TestByTemplateOrderings(Te *testing.T) {
	L, _ := matflow.CubicLattice(3)
	mno, _ := matflow.NewStructure(L, []string{"Mn", "O"}, [][3]float64{{0, 0, 0}, {0.5, 0.5, 0.5}})
	structs, err := ByTemplate(mno, 2, &Options{Substitutions: [][2]string{{"Mn", "Sb"}}})
	if err != nil {
		Te.Fatal(err)
	}
	count := map[string]int{}
	for _, s := range structs {
		count[s.Formula()]++
	}
	fmt.Println(count)
	//the template, one single substitution and the edge, face and body diagonal pairs.
	if len(structs) != 5 || count["Mn3SbO4"] != 3 || count["Mn7SbO8"] != 1 {
		Te.Errorf("unexpected enumeration %v", count)
	}
}

func TestByTemplateErrors(Te *testing.T) {
	L, _ := matflow.CubicLattice(3.6)
	cu, _ := matflow.NewStructure(L, []string{"Cu"}, [][3]float64{{0, 0, 0}})
	if _, err := ByTemplate(cu, 1, nil); !errors.Is(err, ErrNoAnion) {
		Te.Errorf("expected ErrNoAnion, got %v", err)
	}
	T := mnSbRutile(Te)
	if _, err := ByTemplate(T, 3, &Options{MaxCombinations: 10}); !errors.Is(err, ErrTooMany) {
		Te.Errorf("expected ErrTooMany, got %v", err)
	}
	//an anion ratio check with a 'wrong' anion.
	wrong := &Options{Substitutions: [][2]string{{"Mn", "O"}}}
	if _, err := ByTemplate(T, 1, wrong); !errors.Is(err, ErrInvariant) {
		Te.Errorf("replacing a cation by the anion should break the invariants, got %v", err)
	}
}

type fakeFetcher map[string]*matflow.Structure

func (f fakeFetcher) StructureByMaterialID(ctx context.Context, id string) (*matflow.Structure, error) {
	s, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("no such material %s", id)
	}
	return s.Copy(), nil
}

func TestAllByMaterialID(Te *testing.T) {
	L, _ := matflow.LatticeFromParameters(4.594, 4.594, 2.959, 90, 90, 90)
	x := 0.305
	rutile, _ := matflow.NewStructure(L, []string{"Ti", "Ti", "O", "O", "O", "O"}, [][3]float64{
		{0, 0, 0}, {0.5, 0.5, 0.5},
		{x, x, 0}, {1 - x, 1 - x, 0}, {0.5 - x, 0.5 + x, 0.5}, {0.5 + x, 0.5 - x, 0.5},
	})
	f := fakeFetcher{"mp-2657": rutile}
	templates := []Template{
		{ID: "mp-2657", Perturbations: 1, Edit: ReplaceSites("Ti", "Mn", "Sb")},
		{ID: "local", Structure: mnSbRutile(Te), Perturbations: 0},
	}
	res, err := AllByMaterialID(context.Background(), f, templates, nil, 2)
	if err != nil {
		Te.Fatal(err)
	}
	if len(res["mp-2657"]) != 3 || len(res["local"]) != 1 {
		Te.Errorf("unexpected enumeration sizes %d %d", len(res["mp-2657"]), len(res["local"]))
	}
	if rutile.Formula() != "TiO2" {
		Te.Error("the fetched structure was modified")
	}
	_, err = AllByMaterialID(context.Background(), f, []Template{{ID: "mp-1"}}, nil, 0)
	if err == nil {
		Te.Error("expected an error for a missing material")
	}
	comp, _ := matflow.ParseFormula("Mn9Sb7O32")
	if got := FilterByReducedComposition(res["mp-2657"], comp); len(got) != 1 {
		Te.Errorf("FilterByReducedComposition returned %d structures", len(got))
	}
}
