/*
 * json.go, part of matflow.
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
	"encoding/json"
	"fmt"
	"math"
)

//Structures are serialized with the same layout as pymatgen's Structure.as_dict,
//so the documents written by matflow can be read back by the collaborators' tools
//and the documents in existing task collections can be read by matflow.

type jsonSpecies struct {
	Element string   `json:"element"`
	Occu    float64  `json:"occu"`
	OxState *float64 `json:"oxidation_state,omitempty"`
}

type jsonSite struct {
	Species    []jsonSpecies  `json:"species"`
	Abc        [3]float64     `json:"abc"`
	Xyz        [3]float64     `json:"xyz"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

type jsonLattice struct {
	Matrix [3][3]float64 `json:"matrix"`
	A      float64       `json:"a"`
	B      float64       `json:"b"`
	C      float64       `json:"c"`
	Alpha  float64       `json:"alpha"`
	Beta   float64       `json:"beta"`
	Gamma  float64       `json:"gamma"`
	Volume float64       `json:"volume"`
	PBC    [3]bool       `json:"pbc"`
}

type jsonStructure struct {
	Module     string         `json:"@module"`
	Class      string         `json:"@class"`
	Charge     float64        `json:"charge"`
	Lattice    jsonLattice    `json:"lattice"`
	Sites      []jsonSite     `json:"sites"`
	Properties map[string]any `json:"properties,omitempty"`
}

//MarshalJSON implements json.Marshaler.
func (S *Structure) MarshalJSON() ([]byte, error) {
	abc := S.Lattice.Abc()
	ang := S.Lattice.Angles()
	js := jsonStructure{
		Module: "pymatgen.core.structure",
		Class:  "Structure",
		Lattice: jsonLattice{
			Matrix: S.Lattice.Matrix(),
			A:      abc[0], B: abc[1], C: abc[2],
			Alpha: ang[0], Beta: ang[1], Gamma: ang[2],
			Volume: S.Volume(),
			PBC:    [3]bool{true, true, true},
		},
		Sites:      make([]jsonSite, 0, S.Len()),
		Properties: S.Properties,
	}
	for i, s := range S.Sites {
		sp := jsonSpecies{Element: s.Species, Occu: 1}
		if ox, ok := s.Properties["oxi_state"].(float64); ok {
			sp.OxState = &ox
		}
		props := s.Properties
		if props == nil {
			props = map[string]any{}
		}
		label := s.Label
		if label == "" {
			label = s.Species
		}
		js.Sites = append(js.Sites, jsonSite{
			Species:    []jsonSpecies{sp},
			Abc:        s.Frac,
			Xyz:        S.CartCoord(i),
			Label:      label,
			Properties: props,
		})
	}
	return json.Marshal(js)
}

//UnmarshalJSON implements json.Unmarshaler. Partially occupied sites are
//not supported; the majority species of a site is kept.
func (S *Structure) UnmarshalJSON(b []byte) error {
	var js jsonStructure
	if err := json.Unmarshal(b, &js); err != nil {
		return wrapError(err, "", "Structure.UnmarshalJSON")
	}
	L, err := NewLattice(js.Lattice.Matrix)
	if err != nil {
		return errDecorate(err, "Structure.UnmarshalJSON")
	}
	S.Lattice = L
	S.Properties = js.Properties
	S.Sites = make([]*Site, 0, len(js.Sites))
	for i, s := range js.Sites {
		if len(s.Species) == 0 {
			return wrapError(fmt.Errorf("%w: site %d has no species", ErrMalformedDoc, i), "", "Structure.UnmarshalJSON")
		}
		best := s.Species[0]
		for _, sp := range s.Species[1:] {
			if sp.Occu > best.Occu {
				best = sp
			}
		}
		if !IsElement(best.Element) {
			return wrapError(fmt.Errorf("%w: %q at site %d", ErrUnknownElem, best.Element, i), "", "Structure.UnmarshalJSON")
		}
		site := &Site{Species: best.Element, Frac: s.Abc, Label: s.Label}
		if len(s.Properties) > 0 {
			site.Properties = s.Properties
		}
		if best.OxState != nil && !math.IsNaN(*best.OxState) {
			if site.Properties == nil {
				site.Properties = map[string]any{}
			}
			site.Properties["oxi_state"] = *best.OxState
		}
		S.Sites = append(S.Sites, site)
	}
	return nil
}

//AsDict returns the structure as a generic document, ready to be stored.
func (S *Structure) AsDict() (map[string]any, error) {
	b, err := json.Marshal(S)
	if err != nil {
		return nil, errDecorate(err, "AsDict")
	}
	var ret map[string]any
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, wrapError(err, "", "AsDict")
	}
	return ret, nil
}

//StructureFromDict builds a structure from a generic document, as returned by a Store.
func StructureFromDict(d map[string]any) (*Structure, error) {
	if d == nil {
		return nil, wrapError(ErrMalformedDoc, "", "StructureFromDict")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, wrapError(err, "", "StructureFromDict")
	}
	S := new(Structure)
	if err := json.Unmarshal(b, S); err != nil {
		return nil, errDecorate(err, "StructureFromDict")
	}
	return S, nil
}
