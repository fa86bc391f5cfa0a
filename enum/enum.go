/*
 * enum.go, part of matflow.
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

//Package enum enumerates substitutions on template structures. Starting from a
//template, it produces every structure obtained by replacing up to n atoms of one
//element with another, and keeps only the symmetrically distinct ones.
package enum

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/match"
)

var (
	//ErrInvariant is wrapped by the errors returned when an enumeration breaks
	//one of the stoichiometry checks.
	ErrInvariant = errors.New("enumeration invariant violated")
	//ErrNoAnion is returned for templates that don't contain the anion.
	ErrNoAnion = errors.New("template has no anion")
	//ErrTooMany is returned when an enumeration would produce more than MaxCombinations structures.
	ErrTooMany = errors.New("too many combinations")
)

//DefaultSubstitutions are the Mn/Sb swaps used for the Mn-Sb-O system.
var DefaultSubstitutions = [][2]string{{"Mn", "Sb"}, {"Sb", "Mn"}}

//Templates with fewer sites than this are expanded to a 2x2x2 supercell before enumerating.
const MinTemplateSites = 7

//Options control an enumeration. The zero value (or nil) uses the defaults.
type Options struct {
	Matcher         match.Matcher
	Substitutions   [][2]string //(from, to) pairs. DefaultSubstitutions if nil.
	Anion           string      //"O" if empty.
	MaxCombinations int         //100000 if zero.
}

func (o *Options) defaults() Options {
	var r Options
	if o != nil {
		r = *o
	}
	if r.Substitutions == nil {
		r.Substitutions = DefaultSubstitutions
	}
	if r.Anion == "" {
		r.Anion = "O"
	}
	if r.MaxCombinations <= 0 {
		r.MaxCombinations = 100000
	}
	return r
}

//ByTemplate returns the distinct structures with up to perturbations atoms of each
//substitution pair replaced in template. The template itself is always the first
//element of the result.
func ByTemplate(template *matflow.Structure, perturbations int, opts *Options) ([]*matflow.Structure, error) {
	o := opts.defaults()
	if perturbations < 0 {
		return nil, fmt.Errorf("enum: negative perturbations %d", perturbations)
	}
	comp := template.Composition()
	ratio, err := comp.AnionRatio(o.Anion)
	if err != nil {
		return nil, fmt.Errorf("enum: %w: %s", ErrNoAnion, o.Anion)
	}
	subs := template.Copy()
	if subs.Len() < MinTemplateSites {
		subs, err = subs.MakeSupercell([3]int{2, 2, 2})
		if err != nil {
			return nil, fmt.Errorf("enum: %w", err)
		}
	}
	all := []*matflow.Structure{template}
	present := 0
	for _, pair := range o.Substitutions {
		if comp.Amount(pair[0]) == 0 {
			continue
		}
		present++
		indices := subs.IndicesOf(pair[0])
		if c := countCombinations(len(indices), perturbations); c+len(all) > o.MaxCombinations {
			return nil, fmt.Errorf("enum: %w: %d structures for %s->%s", ErrTooMany, c, pair[0], pair[1])
		}
		for n := 0; n <= perturbations && n <= len(indices); n++ {
			err := combinations(len(indices), n, func(combo []int) error {
				s := subs.Copy()
				for _, c := range combo {
					if err := s.Replace(indices[c], pair[1]); err != nil {
						return err
					}
				}
				all = append(all, s)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("enum: %w", err)
			}
		}
	}
	unique := o.Matcher.Unique(all)
	if err := checkInvariants(unique, present*perturbations+1, ratio, o.Anion); err != nil {
		return nil, err
	}
	return unique, nil
}

//checkInvariants verifies that there are at most maxComps distinct reduced compositions
//and that the cation/anion ratio is that of the template for every structure.
func checkInvariants(structs []*matflow.Structure, maxComps int, ratio float64, anion string) error {
	var comps []matflow.Composition
	for _, s := range structs {
		red, _ := s.Composition().Reduced()
		seen := false
		for _, c := range comps {
			if c.Equal(red) {
				seen = true
				break
			}
		}
		if !seen {
			comps = append(comps, red)
		}
		r, err := red.AnionRatio(anion)
		if err != nil {
			return fmt.Errorf("enum: %w: %s lost the anion", ErrInvariant, red.ReducedFormula())
		}
		if math.Abs(r-ratio) > 1e-8 {
			return fmt.Errorf("enum: %w: %s has a cation/anion ratio of %f, expected %f", ErrInvariant, red.ReducedFormula(), r, ratio)
		}
	}
	if len(comps) > maxComps {
		return fmt.Errorf("enum: %w: %d compositions, at most %d expected", ErrInvariant, len(comps), maxComps)
	}
	return nil
}

//countCombinations returns sum_{k=0}^{n} C(m,k), saturating at math.MaxInt32.
func countCombinations(m, n int) int {
	total := 0
	c := 1
	for k := 0; k <= n && k <= m; k++ {
		total += c
		if total > math.MaxInt32 {
			return math.MaxInt32
		}
		c = c * (m - k) / (k + 1)
	}
	return total
}

//combinations calls f with every combination of k indexes from 0..n-1, in
//lexicographic order. The slice passed to f is reused between calls.
func combinations(n, k int, f func([]int) error) error {
	if k > n {
		return nil
	}
	c := make([]int, k)
	for i := range c {
		c[i] = i
	}
	for {
		if err := f(c); err != nil {
			return err
		}
		i := k - 1
		for i >= 0 && c[i] == n-k+i {
			i--
		}
		if i < 0 {
			return nil
		}
		c[i]++
		for j := i + 1; j < k; j++ {
			c[j] = c[j-1] + 1
		}
	}
}

//Template is a structure from the materials database to be enumerated.
type Template struct {
	ID            string
	Structure     *matflow.Structure //fetched from ID if nil
	Perturbations int
	Substitutions [][2]string //overrides Options.Substitutions if not nil
	Edit          func(*matflow.Structure) error
}

//Fetcher retrieves structures by material id.
type Fetcher interface {
	StructureByMaterialID(ctx context.Context, id string) (*matflow.Structure, error)
}

//AllByMaterialID fetches (when needed) and enumerates every template, at most
//workers at a time (4 if workers < 1). The result maps template ids to structures.
func AllByMaterialID(ctx context.Context, f Fetcher, templates []Template, opts *Options, workers int) (map[string][]*matflow.Structure, error) {
	log := ctxlog.FromContext(ctx)
	if workers < 1 {
		workers = 4
	}
	ret := make(map[string][]*matflow.Structure, len(templates))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range templates {
		t := t
		g.Go(func() error {
			s := t.Structure
			if s == nil {
				if f == nil {
					return fmt.Errorf("enum: template %s has no structure and there is no fetcher", t.ID)
				}
				var err error
				s, err = f.StructureByMaterialID(ctx, t.ID)
				if err != nil {
					return fmt.Errorf("enum: fetching %s: %w", t.ID, err)
				}
			}
			s = s.Copy()
			if t.Edit != nil {
				if err := t.Edit(s); err != nil {
					return fmt.Errorf("enum: editing %s: %w", t.ID, err)
				}
			}
			o := opts.defaults()
			if t.Substitutions != nil {
				o.Substitutions = t.Substitutions
			}
			structs, err := ByTemplate(s, t.Perturbations, &o)
			if err != nil {
				return fmt.Errorf("enum: template %s: %w", t.ID, err)
			}
			log.Info("enumerated template", "id", t.ID, "formula", s.Formula(), "unique", len(structs))
			mu.Lock()
			ret[t.ID] = structs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

//FilterByReducedComposition returns the structures whose reduced composition is comp.
func FilterByReducedComposition(structs []*matflow.Structure, comp matflow.Composition) []*matflow.Structure {
	red, _ := comp.Reduced()
	var ret []*matflow.Structure
	for _, s := range structs {
		if r, _ := s.Composition().Reduced(); r.Equal(red) {
			ret = append(ret, s)
		}
	}
	return ret
}

//ReplaceSites returns a function that replaces the sites of element from, in
//the order they appear in the structure, with the species in to. An empty string
//leaves the corresponding site alone. It is meant for Template.Edit, e.g. to turn
//the two Ti of rutile into Mn and Sb with ReplaceSites("Ti", "Mn", "Sb").
func ReplaceSites(from string, to ...string) func(*matflow.Structure) error {
	return func(S *matflow.Structure) error {
		idx := S.IndicesOf(from)
		if len(to) > len(idx) {
			return fmt.Errorf("enum: structure %s has %d sites of %s, %d replacements requested", S.Formula(), len(idx), from, len(to))
		}
		for k, sp := range to {
			if sp == "" {
				continue
			}
			if err := S.Replace(idx[k], sp); err != nil {
				return err
			}
		}
		return nil
	}
}

//ReplaceSpecies returns a function that applies mapping to every site, for Template.Edit.
func ReplaceSpecies(mapping map[string]string) func(*matflow.Structure) error {
	return func(S *matflow.Structure) error {
		return S.ReplaceSpecies(mapping)
	}
}

//Chain applies the edits in order.
func Chain(edits ...func(*matflow.Structure) error) func(*matflow.Structure) error {
	return func(S *matflow.Structure) error {
		for _, e := range edits {
			if err := e(S); err != nil {
				return err
			}
		}
		return nil
	}
}
