/*
 * incar.go, part of matflow.
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
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

//Incar is an ordered set of INCAR tags. Tags are upper case.
type Incar struct {
	keys []string
	vals map[string]any
}

//NewIncar returns an Incar with the tags in m, sorted alphabetically.
func NewIncar(m map[string]any) *Incar {
	I := &Incar{vals: map[string]any{}}
	I.Update(m)
	return I
}

//Set sets the tag key to val, keeping its position if it was already present.
func (I *Incar) Set(key string, val any) {
	key = strings.ToUpper(key)
	if I.vals == nil {
		I.vals = map[string]any{}
	}
	if _, ok := I.vals[key]; !ok {
		I.keys = append(I.keys, key)
	}
	I.vals[key] = val
}

//Get returns the value of the tag key.
func (I *Incar) Get(key string) (any, bool) {
	v, ok := I.vals[strings.ToUpper(key)]
	return v, ok
}

//Delete removes the tag key.
func (I *Incar) Delete(key string) {
	key = strings.ToUpper(key)
	if _, ok := I.vals[key]; !ok {
		return
	}
	delete(I.vals, key)
	for i, k := range I.keys {
		if k == key {
			I.keys = append(I.keys[:i], I.keys[i+1:]...)
			break
		}
	}
}

//Update sets every tag in m. New tags are added in alphabetical order. A nil value removes the tag.
func (I *Incar) Update(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m[k] == nil {
			I.Delete(k)
			continue
		}
		I.Set(k, m[k])
	}
}

//Keys returns the tags in order.
func (I *Incar) Keys() []string {
	return append([]string(nil), I.keys...)
}

//Map returns the tags as a map.
func (I *Incar) Map() map[string]any {
	ret := make(map[string]any, len(I.vals))
	for k, v := range I.vals {
		ret[k] = v
	}
	return ret
}

//String returns the INCAR file contents.
func (I *Incar) String() string {
	var b strings.Builder
	for _, k := range I.keys {
		fmt.Fprintf(&b, "%s = %s\n", k, formatValue(k, I.vals[k]))
	}
	return b.String()
}

func formatValue(key string, v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return ".TRUE."
		}
		return ".FALSE."
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case []float64:
		return compressList(t)
	case []int:
		f := make([]float64, len(t))
		for i, x := range t {
			f[i] = float64(x)
		}
		return compressList(f)
	case []any:
		s := make([]string, len(t))
		for i, x := range t {
			s[i] = formatValue(key, x)
		}
		return strings.Join(s, " ")
	case []string:
		return strings.Join(t, " ")
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

//compressList writes runs of equal values the VASP way, e.g. "4*0.6 2*5".
func compressList(l []float64) string {
	var parts []string
	for i := 0; i < len(l); {
		j := i
		for j < len(l) && l[j] == l[i] {
			j++
		}
		if j-i > 1 {
			parts = append(parts, fmt.Sprintf("%d*%s", j-i, formatFloat(l[i])))
		} else {
			parts = append(parts, formatFloat(l[i]))
		}
		i = j
	}
	return strings.Join(parts, " ")
}

//ReadIncar parses an INCAR. Numbers become float64 (int for integral values), .TRUE./.FALSE.
//become bools, lists of numbers (with N*x expanded) become []float64 and the rest stays as strings.
func ReadIncar(r io.Reader) (*Incar, error) {
	I := &Incar{vals: map[string]any{}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexAny(line, "#!"); i >= 0 {
			line = line[:i]
		}
		for _, stmt := range strings.Split(line, ";") {
			key, val, found := strings.Cut(stmt, "=")
			if !found {
				continue
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("vasp: INCAR line without tag: %q", line)
			}
			I.Set(key, parseValue(strings.TrimSpace(val)))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vasp: reading INCAR: %w", err)
	}
	return I, nil
}

func parseValue(s string) any {
	switch strings.ToUpper(strings.Trim(s, ".")) {
	case "TRUE", "T":
		return true
	case "FALSE", "F":
		return false
	}
	fields := strings.Fields(s)
	nums := make([]float64, 0, len(fields))
	for _, f := range fields {
		n := 1
		if a, b, ok := strings.Cut(f, "*"); ok {
			var err error
			n, err = strconv.Atoi(a)
			if err != nil {
				return s
			}
			f = b
		}
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return s
		}
		for i := 0; i < n; i++ {
			nums = append(nums, x)
		}
	}
	if len(nums) == 1 && len(fields) == 1 {
		if nums[0] == math.Trunc(nums[0]) && !strings.ContainsAny(s, ".eE") {
			return int(nums[0])
		}
		return nums[0]
	}
	if len(nums) == 0 {
		return s
	}
	return nums
}
