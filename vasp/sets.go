/*
 * sets.go, part of matflow.
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
	"os"
	"path/filepath"
	"strings"

	"github.com/rmera/matflow"
)

//InputSet builds the inputs of a VASP calculation for a structure. It plays the
//role the Handle plays for molecular QM programs, without the running part.
type InputSet interface {
	//Name is the label of the calculation, e.g. "optimize" or "static".
	Name() string
	Incar(S *matflow.Structure) (*Incar, error)
	Kpoints(S *matflow.Structure) (*Kpoints, error)
	//PotcarSymbols returns the POTCAR symbol of each species, in POSCAR order.
	PotcarSymbols(S *matflow.Structure) []string
}

//Potcar symbols used by the Materials Project, for the elements where they differ
//from the element symbol.
var mpPotcar = map[string]string{
	"Li": "Li_sv", "Na": "Na_pv", "K": "K_sv", "Rb": "Rb_sv", "Cs": "Cs_sv",
	"Be": "Be_sv", "Mg": "Mg_pv", "Ca": "Ca_sv", "Sr": "Sr_sv", "Ba": "Ba_sv",
	"Sc": "Sc_sv", "Ti": "Ti_pv", "V": "V_pv", "Cr": "Cr_pv", "Mn": "Mn_pv",
	"Fe": "Fe_pv", "Ni": "Ni_pv", "Cu": "Cu_pv", "Y": "Y_sv", "Zr": "Zr_sv",
	"Nb": "Nb_pv", "Mo": "Mo_pv", "Tc": "Tc_pv", "Ru": "Ru_pv", "Rh": "Rh_pv",
	"Hf": "Hf_pv", "Ta": "Ta_pv", "W": "W_pv", "Re": "Re_pv", "Os": "Os_pv",
	"Ga": "Ga_d", "Ge": "Ge_d", "In": "In_d", "Sn": "Sn_d", "Tl": "Tl_d", "Pb": "Pb_d",
	"Nd": "Nd_3", "Sm": "Sm_3", "Eu": "Eu", "Gd": "Gd",
}

//initial magnetic moments, 0.6 for everything else.
var mpMagmom = map[string]float64{
	"Ce": 5, "Co": 0.6, "Cr": 5, "Eu": 10, "Fe": 5, "Mn": 5, "Mo": 5, "Ni": 5, "V": 5, "W": 5,
}

//Hubbard U values applied to oxides and fluorides.
var mpU = map[string]float64{
	"Co": 3.32, "Cr": 3.7, "Fe": 5.3, "Mn": 3.9, "Mo": 4.38, "Ni": 6.2, "V": 3.25, "W": 6.2,
}

//MPPotcar returns the POTCAR symbol the Materials Project uses for element.
func MPPotcar(element string) string {
	if s, ok := mpPotcar[element]; ok {
		return s
	}
	return element
}

//HubbardU returns the U value for each species of S, in POSCAR order,
//and whether any is non-zero. U is only applied to oxides and fluorides.
func HubbardU(S *matflow.Structure) ([]float64, bool) {
	sp := matflow.PoscarSpecies(S)
	comp := S.Composition()
	anion := ""
	switch {
	case comp.Amount("F") > 0:
		anion = "F"
	case comp.Amount("O") > 0:
		anion = "O"
	}
	u := make([]float64, len(sp))
	any_ := false
	if anion == "" {
		return u, false
	}
	for i, s := range sp {
		if v, ok := mpU[s]; ok {
			u[i] = v
			any_ = true
		}
	}
	return u, any_
}

//baseSet holds what the relax and static sets share.
type baseSet struct {
	UserIncar         map[string]any //applied last, nil values remove tags
	ReciprocalDensity float64
	ForceGamma        bool
}

func (B baseSet) incar(S *matflow.Structure, tags map[string]any) *Incar {
	I := NewIncar(map[string]any{
		"ALGO":   "Fast",
		"EDIFF":  5e-5 * float64(S.Len()),
		"ENCUT":  520,
		"IBRION": 2,
		"ISIF":   3,
		"ISMEAR": -5,
		"ISPIN":  2,
		"LASPH":  true,
		"LORBIT": 11,
		"LREAL":  "Auto",
		"LWAVE":  false,
		"NELM":   100,
		"NSW":    99,
		"PREC":   "Accurate",
		"SIGMA":  0.05,
	})
	sp := matflow.PoscarSpecies(S)
	magmom := make([]float64, 0, S.Len())
	for _, s := range S.Sites {
		m, ok := mpMagmom[s.Species]
		if !ok {
			m = 0.6
		}
		magmom = append(magmom, m)
	}
	//MAGMOM follows the POSCAR order, which groups sites by species.
	grouped := make([]float64, 0, len(magmom))
	for _, sym := range sp {
		for i, s := range S.Sites {
			if s.Species == sym {
				grouped = append(grouped, magmom[i])
			}
		}
	}
	I.Set("MAGMOM", grouped)
	if u, ok := HubbardU(S); ok {
		l := make([]int, len(u))
		j := make([]float64, len(u))
		for i, v := range u {
			if v != 0 {
				l[i] = 2
			}
		}
		I.Set("LDAU", true)
		I.Set("LDAUTYPE", 2)
		I.Set("LDAUL", l)
		I.Set("LDAUU", u)
		I.Set("LDAUJ", j)
		I.Set("LDAUPRINT", 1)
		I.Set("LMAXMIX", 4)
	}
	I.Update(tags)
	I.Update(B.UserIncar)
	return I
}

func (B baseSet) kpoints(S *matflow.Structure, def float64) *Kpoints {
	d := B.ReciprocalDensity
	if d <= 0 {
		d = def
	}
	return AutomaticDensityByVolume(S, d, B.ForceGamma)
}

func (B baseSet) potcar(S *matflow.Structure) []string {
	sp := matflow.PoscarSpecies(S)
	ret := make([]string, len(sp))
	for i, s := range sp {
		ret[i] = MPPotcar(s)
	}
	return ret
}

//RelaxSet is a full (cell and ions) relaxation with Materials Project settings.
type RelaxSet struct {
	UserIncar         map[string]any
	ReciprocalDensity float64 //64 if zero
	ForceGamma        bool
}

func (R RelaxSet) base() baseSet {
	return baseSet{UserIncar: R.UserIncar, ReciprocalDensity: R.ReciprocalDensity, ForceGamma: R.ForceGamma}
}

func (R RelaxSet) Name() string { return "optimize" }

func (R RelaxSet) Incar(S *matflow.Structure) (*Incar, error) {
	return R.base().incar(S, nil), nil
}

func (R RelaxSet) Kpoints(S *matflow.Structure) (*Kpoints, error) {
	return R.base().kpoints(S, 64), nil
}

func (R RelaxSet) PotcarSymbols(S *matflow.Structure) []string {
	return R.base().potcar(S)
}

//StaticSet is a single point calculation that writes the charge densities needed
//for Bader analysis.
type StaticSet struct {
	UserIncar         map[string]any
	ReciprocalDensity float64 //100 if zero
	ForceGamma        bool
}

func (T StaticSet) base() baseSet {
	return baseSet{UserIncar: T.UserIncar, ReciprocalDensity: T.ReciprocalDensity, ForceGamma: T.ForceGamma}
}

func (T StaticSet) Name() string { return "static" }

func (T StaticSet) Incar(S *matflow.Structure) (*Incar, error) {
	return T.base().incar(S, map[string]any{
		"ALGO":   "Normal",
		"IBRION": -1,
		"ISIF":   nil,
		"LAECHG": true,
		"LCHARG": true,
		"LVHAR":  true,
		"NSW":    0,
	}), nil
}

func (T StaticSet) Kpoints(S *matflow.Structure) (*Kpoints, error) {
	return T.base().kpoints(S, 100), nil
}

func (T StaticSet) PotcarSymbols(S *matflow.Structure) []string {
	return T.base().potcar(S)
}

//SetByName returns the input set with the given name ("optimize"/"relax" or "static").
func SetByName(name string, userIncar map[string]any, reciprocalDensity float64) (InputSet, error) {
	switch strings.ToLower(name) {
	case "optimize", "relax":
		return RelaxSet{UserIncar: userIncar, ReciprocalDensity: reciprocalDensity}, nil
	case "static":
		return StaticSet{UserIncar: userIncar, ReciprocalDensity: reciprocalDensity}, nil
	}
	return nil, fmt.Errorf("vasp: unknown input set %q", name)
}

//Write writes INCAR, POSCAR, KPOINTS and POTCAR.spec for S to dir, which is created if needed.
//The POTCAR itself is not distributable, so only the symbols are written.
func Write(dir string, S *matflow.Structure, set InputSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vasp: %w", err)
	}
	I, err := set.Incar(S)
	if err != nil {
		return fmt.Errorf("vasp: %s INCAR: %w", set.Name(), err)
	}
	K, err := set.Kpoints(S)
	if err != nil {
		return fmt.Errorf("vasp: %s KPOINTS: %w", set.Name(), err)
	}
	files := map[string]string{
		"INCAR":       I.String(),
		"KPOINTS":     K.String(),
		"POTCAR.spec": strings.Join(set.PotcarSymbols(S), "\n") + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("vasp: %w", err)
		}
	}
	if err := matflow.PoscarWrite(filepath.Join(dir, "POSCAR"), S, ""); err != nil {
		return fmt.Errorf("vasp: %w", err)
	}
	return nil
}
