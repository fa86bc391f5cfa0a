/*
 * outputs.go, part of matflow.
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
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rmera/matflow/archive"
)

//ErrProbableProblem is returned, together with a valid result, when an output file
//contains what was asked for but the calculation didn't finish normally.
var ErrProbableProblem = errors.New("probable problem in calculation")

//FinalEnergy returns the last free energy (TOTEN, in eV) in the OUTCAR file,
//which may be gzip or zstd compressed.
//If the OUTCAR doesn't have the final timing section, the energy is returned with
//ErrProbableProblem.
func FinalEnergy(outcar string) (float64, error) {
	f, err := archive.Open(outcar)
	if err != nil {
		return 0, fmt.Errorf("vasp: %w", err)
	}
	defer f.Close()
	var energy float64
	var found, finished bool
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "free  energy   TOTEN") {
			fields := strings.Fields(line)
			for i, v := range fields {
				if v == "=" && i+1 < len(fields) {
					energy, err = strconv.ParseFloat(fields[i+1], 64)
					if err != nil {
						return 0, fmt.Errorf("vasp: %s: %w", outcar, err)
					}
					found = true
				}
			}
		}
		if strings.Contains(line, "General timing and accounting") {
			finished = true
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("vasp: %s: %w", outcar, err)
	}
	if !found {
		return 0, fmt.Errorf("vasp: %s does not contain an energy", outcar)
	}
	if !finished {
		return energy, ErrProbableProblem
	}
	return energy, nil
}

//PotcarEntry is the header information of one element in a POTCAR.
type PotcarEntry struct {
	Symbol  string //e.g. Mn_pv
	Element string
	ZVAL    float64
}

//ReadZVALs returns the valence electron count of each element in the POTCAR file,
//in file order.
func ReadZVALs(potcar string) ([]PotcarEntry, error) {
	f, err := archive.Open(potcar)
	if err != nil {
		return nil, fmt.Errorf("vasp: %w", err)
	}
	defer f.Close()
	var ret []PotcarEntry
	var cur *PotcarEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "TITEL"):
			//TITEL  = PAW_PBE Mn_pv 02Aug2007
			_, v, _ := strings.Cut(line, "=")
			fields := strings.Fields(v)
			if len(fields) < 2 {
				return nil, fmt.Errorf("vasp: %s: malformed TITEL line %q", potcar, line)
			}
			el, _, _ := strings.Cut(fields[1], "_")
			ret = append(ret, PotcarEntry{Symbol: fields[1], Element: el})
			cur = &ret[len(ret)-1]
		case strings.Contains(line, "ZVAL") && cur != nil:
			//POMASS =   54.938; ZVAL   =   13.000    mass and valenz
			_, after, _ := strings.Cut(line, "ZVAL")
			_, after, _ = strings.Cut(after, "=")
			fields := strings.Fields(after)
			if len(fields) == 0 {
				return nil, fmt.Errorf("vasp: %s: malformed ZVAL line %q", potcar, line)
			}
			z, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], ";"), 64)
			if err != nil {
				return nil, fmt.Errorf("vasp: %s: %w", potcar, err)
			}
			cur.ZVAL = z
			cur = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vasp: %s: %w", potcar, err)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("vasp: %s has no POTCAR entries", potcar)
	}
	return ret, nil
}
