/*
 * query.go, part of matflow.
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

package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//GetMongolike returns the value at the dotted path in d. Numeric path components
//index into lists, e.g. "output.structure.sites.0".
func GetMongolike(d Doc, path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, k := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[k]
			if !ok {
				return nil, false
			}
			cur = v
		case Doc:
			v, ok := c[k]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

//SetMongolike sets the value at the dotted path in d, creating intermediate documents
//as needed.
func SetMongolike(d Doc, path string, value any) error {
	keys := strings.Split(path, ".")
	cur := map[string]any(d)
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k]
		if !ok || next == nil {
			m := map[string]any{}
			cur[k] = m
			cur = m
			continue
		}
		switch n := next.(type) {
		case map[string]any:
			cur = n
		case Doc:
			cur = n
		default:
			return fmt.Errorf("store: can't set %s: %s is not a document", path, k)
		}
	}
	cur[keys[len(keys)-1]] = value
	return nil
}

//UnsetMongolike removes the value at the dotted path in d, if present.
func UnsetMongolike(d Doc, path string) {
	keys := strings.Split(path, ".")
	cur := map[string]any(d)
	for _, k := range keys[:len(keys)-1] {
		switch n := cur[k].(type) {
		case map[string]any:
			cur = n
		case Doc:
			cur = n
		default:
			return
		}
	}
	delete(cur, keys[len(keys)-1])
}

//Normalize returns a copy of v where every number is a float64 and every document
//a map[string]any, which is what comparisons expect. Documents decoded from JSON
//are already normalized.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		r := make(map[string]any, len(t))
		for k, x := range t {
			r[k] = Normalize(x)
		}
		return r
	case Doc:
		return Normalize(map[string]any(t))
	case []any:
		r := make([]any, len(t))
		for i, x := range t {
			r[i] = Normalize(x)
		}
		return r
	case []string:
		r := make([]any, len(t))
		for i, x := range t {
			r[i] = x
		}
		return r
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	}
	rv := reflect.ValueOf(v)
	if v != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		r := make([]any, rv.Len())
		for i := range r {
			r[i] = Normalize(rv.Index(i).Interface())
		}
		return r
	}
	if v != nil && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		r := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			r[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return r
	}
	return v
}

//NormalizeDoc normalizes every value of d.
func NormalizeDoc(d Doc) Doc {
	if d == nil {
		return nil
	}
	return Doc(Normalize(map[string]any(d)).(map[string]any))
}

func equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

//compare returns -1, 0 or 1, and false if a and b can't be ordered.
func compare(a, b any) (int, bool) {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

//Matches returns true if d satisfies the Mongo-like criteria. Supported are
//equality (with array membership), $and, $or, $nor, $not, $exists, $eq, $ne, $in, $nin,
//$lt, $lte, $gt, $gte, $regex (with $options) and $size.
func Matches(d Doc, criteria Doc) (bool, error) {
	for k, v := range criteria {
		var ok bool
		var err error
		switch k {
		case "$and", "$or", "$nor":
			ok, err = logical(d, k, v)
		default:
			if strings.HasPrefix(k, "$") {
				return false, fmt.Errorf("store: unsupported top-level operator %s", k)
			}
			ok, err = fieldMatches(d, k, v)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func logical(d Doc, op string, v any) (bool, error) {
	list, ok := Normalize(v).([]any)
	if !ok {
		return false, fmt.Errorf("store: %s needs a list", op)
	}
	any_ := false
	for _, c := range list {
		cm, ok := c.(map[string]any)
		if !ok {
			return false, fmt.Errorf("store: %s needs a list of documents", op)
		}
		m, err := Matches(d, Doc(cm))
		if err != nil {
			return false, err
		}
		switch op {
		case "$and":
			if !m {
				return false, nil
			}
		default:
			if m {
				any_ = true
			}
		}
	}
	switch op {
	case "$and":
		return true, nil
	case "$or":
		return any_, nil
	}
	return !any_, nil
}

func isOperatorDoc(v any) (map[string]any, bool) {
	m, ok := Normalize(v).(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func fieldMatches(d Doc, path string, cond any) (bool, error) {
	val, exists := GetMongolike(d, path)
	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return valueEquals(val, exists, cond), nil
	}
	for op, arg := range ops {
		ok, err := applyOperator(val, exists, op, arg, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

//valueEquals implements Mongo equality: a field that holds a list matches
//a value equal to the list or to any of its elements. A missing field
//matches null.
func valueEquals(val any, exists bool, cond any) bool {
	if !exists {
		return cond == nil
	}
	if equal(val, cond) {
		return true
	}
	if list, ok := Normalize(val).([]any); ok {
		for _, e := range list {
			if equal(e, cond) {
				return true
			}
		}
	}
	return false
}

func applyOperator(val any, exists bool, op string, arg any, all map[string]any) (bool, error) {
	switch op {
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			want = arg != nil && !equal(arg, 0)
		}
		return exists == want, nil
	case "$eq":
		return valueEquals(val, exists, arg), nil
	case "$ne":
		return !valueEquals(val, exists, arg), nil
	case "$in", "$nin":
		list, ok := Normalize(arg).([]any)
		if !ok {
			return false, fmt.Errorf("store: %s needs a list", op)
		}
		in := false
		for _, c := range list {
			if valueEquals(val, exists, c) {
				in = true
				break
			}
		}
		if op == "$in" {
			return in, nil
		}
		return !in, nil
	case "$lt", "$lte", "$gt", "$gte":
		if !exists {
			return false, nil
		}
		cands := []any{val}
		if list, ok := Normalize(val).([]any); ok {
			cands = list
		}
		for _, c := range cands {
			r, ok := compare(c, arg)
			if !ok {
				continue
			}
			if (op == "$lt" && r < 0) || (op == "$lte" && r <= 0) || (op == "$gt" && r > 0) || (op == "$gte" && r >= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		pat, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("store: $regex needs a string")
		}
		if o, ok := all["$options"].(string); ok && strings.Contains(o, "i") {
			pat = "(?i)" + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return false, fmt.Errorf("store: $regex: %w", err)
		}
		if !exists {
			return false, nil
		}
		cands := []any{val}
		if list, ok := Normalize(val).([]any); ok {
			cands = list
		}
		for _, c := range cands {
			if s, ok := c.(string); ok && re.MatchString(s) {
				return true, nil
			}
		}
		return false, nil
	case "$options":
		return true, nil
	case "$size":
		list, ok := Normalize(val).([]any)
		return ok && equal(len(list), arg), nil
	case "$not":
		sub, ok := isOperatorDoc(arg)
		if !ok {
			return false, fmt.Errorf("store: $not needs an operator document")
		}
		for o, a := range sub {
			m, err := applyOperator(val, exists, o, a, sub)
			if err != nil {
				return false, err
			}
			if !m {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("store: unsupported operator %s", op)
}

//ApplyUpdate modifies d in place with a Mongo-like update document. $set, $unset,
//$inc, $push and $addToSet are supported.
func ApplyUpdate(d Doc, update Doc) error {
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fields, ok := Normalize(update[op]).(map[string]any)
		if !ok {
			return fmt.Errorf("store: %s needs a document", op)
		}
		for path, v := range fields {
			switch op {
			case "$set":
				if err := SetMongolike(d, path, v); err != nil {
					return err
				}
			case "$unset":
				UnsetMongolike(d, path)
			case "$inc":
				inc, ok := v.(float64)
				if !ok {
					return fmt.Errorf("store: $inc %s: not a number", path)
				}
				cur, exists := GetMongolike(d, path)
				if !exists || cur == nil {
					cur = 0.0
				}
				f, ok := Normalize(cur).(float64)
				if !ok {
					return fmt.Errorf("store: $inc %s: field is not a number", path)
				}
				if err := SetMongolike(d, path, f+inc); err != nil {
					return err
				}
			case "$push", "$addToSet":
				cur, _ := GetMongolike(d, path)
				list, _ := Normalize(cur).([]any)
				if cur != nil && list == nil {
					return fmt.Errorf("store: %s %s: field is not a list", op, path)
				}
				items := []any{v}
				if m, ok := v.(map[string]any); ok {
					if each, ok := m["$each"].([]any); ok {
						items = each
					}
				}
				for _, it := range items {
					if op == "$addToSet" && valueEquals(list, true, it) {
						continue
					}
					list = append(list, it)
				}
				if err := SetMongolike(d, path, list); err != nil {
					return err
				}
			default:
				return fmt.Errorf("store: unsupported update operator %s", op)
			}
		}
	}
	return nil
}

//Project returns a copy of d with only the given dotted paths. With no paths,
//a copy of the whole document is returned.
func Project(d Doc, props ...string) Doc {
	if len(props) == 0 {
		return copyDoc(d)
	}
	ret := Doc{}
	for _, p := range props {
		if v, ok := GetMongolike(d, p); ok {
			//can only fail when a path is a prefix of another one, in which
			//case the longer path is already included.
			_ = SetMongolike(ret, p, deepCopy(v))
		}
	}
	return ret
}

func copyDoc(d Doc) Doc {
	if d == nil {
		return nil
	}
	return Doc(deepCopy(map[string]any(d)).(map[string]any))
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		r := make(map[string]any, len(t))
		for k, x := range t {
			r[k] = deepCopy(x)
		}
		return r
	case Doc:
		return deepCopy(map[string]any(t))
	case []any:
		r := make([]any, len(t))
		for i, x := range t {
			r[i] = deepCopy(x)
		}
		return r
	}
	return v
}
