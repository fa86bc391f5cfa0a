/*
 * asedb.go, part of matflow.
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

package perovskite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite" //registers the "sqlite" database/sql driver

	"github.com/rmera/matflow"
)

//Row is a system from an ASE database.
type Row struct {
	ID        int64
	KeyValues map[string]any
	Structure *matflow.Structure
}

//Ion returns the string value of the key (e.g. "A_ion") of the row.
func (R Row) Ion(key string) string {
	s, _ := R.KeyValues[key].(string)
	return s
}

//ReadASEDB reads the systems of the ASE SQLite database at path whose key-value
//pairs contain every pair in filter (e.g. {"combination": "ABO3"}).
func ReadASEDB(ctx context.Context, path string, filter map[string]any) ([]Row, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("perovskite: %w", err)
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT id, numbers, positions, cell, key_value_pairs FROM systems ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("perovskite: %s: %w", path, err)
	}
	defer rows.Close()
	var ret []Row
	for rows.Next() {
		var id int64
		var numbers, positions, cell []byte
		var kvp sql.NullString
		if err := rows.Scan(&id, &numbers, &positions, &cell, &kvp); err != nil {
			return nil, fmt.Errorf("perovskite: %s: %w", path, err)
		}
		R := Row{ID: id, KeyValues: map[string]any{}}
		if kvp.Valid && kvp.String != "" {
			if err := json.Unmarshal([]byte(kvp.String), &R.KeyValues); err != nil {
				return nil, fmt.Errorf("perovskite: %s: system %d: %w", path, id, err)
			}
		}
		if !matchesFilter(R.KeyValues, filter) {
			continue
		}
		R.Structure, err = atomsToStructure(numbers, positions, cell)
		if err != nil {
			return nil, fmt.Errorf("perovskite: %s: system %d: %w", path, id, err)
		}
		ret = append(ret, R)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("perovskite: %s: %w", path, err)
	}
	return ret, nil
}

func matchesFilter(kv, filter map[string]any) bool {
	for k, v := range filter {
		got, ok := kv[k]
		if !ok {
			return false
		}
		//numbers come from JSON as float64
		if fmt.Sprint(got) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

//The arrays in an ASE database are stored as little-endian raw buffers:
//numbers as int32, positions and cell as float64.
func int32s(b []byte) ([]int32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("int32 blob of %d bytes", len(b))
	}
	ret := make([]int32, len(b)/4)
	for i := range ret {
		ret[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return ret, nil
}

func float64s(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("float64 blob of %d bytes", len(b))
	}
	ret := make([]float64, len(b)/8)
	for i := range ret {
		ret[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return ret, nil
}

func atomsToStructure(numbers, positions, cell []byte) (*matflow.Structure, error) {
	nums, err := int32s(numbers)
	if err != nil {
		return nil, err
	}
	pos, err := float64s(positions)
	if err != nil {
		return nil, err
	}
	c, err := float64s(cell)
	if err != nil {
		return nil, err
	}
	if len(c) != 9 || len(pos) != 3*len(nums) {
		return nil, fmt.Errorf("inconsistent arrays: %d numbers, %d positions, %d cell values", len(nums), len(pos), len(c))
	}
	L, err := matflow.NewLattice([3][3]float64{{c[0], c[1], c[2]}, {c[3], c[4], c[5]}, {c[6], c[7], c[8]}})
	if err != nil {
		return nil, err
	}
	species := make([]string, len(nums))
	frac := make([][3]float64, len(nums))
	for i, z := range nums {
		el, err := matflow.ElementByZ(int(z))
		if err != nil {
			return nil, err
		}
		species[i] = el.Symbol
		frac[i] = L.CartToFrac([3]float64{pos[3*i], pos[3*i+1], pos[3*i+2]})
	}
	return matflow.NewStructure(L, species, frac)
}

//Formula returns the ABO3 label of a row, from its A_ion and B_ion keys.
func (R Row) Formula() string {
	return fmt.Sprintf("%s%sO3", R.Ion("A_ion"), R.Ion("B_ion"))
}

//byFormula indexes rows by their ABO3 label. Later rows replace earlier ones.
func byFormula(rows []Row) (map[string]Row, []string) {
	m := make(map[string]Row, len(rows))
	for _, r := range rows {
		m[r.Formula()] = r
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return m, keys
}
