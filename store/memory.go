/*
 * memory.go, part of matflow.
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
	"context"
	"fmt"
	"sync"
)

type memRows struct {
	mu   sync.Mutex
	rows []row
	next int64
}

//NewMemory returns an in-memory store. It is mostly useful for tests
//and dry runs.
func NewMemory(name string) Store {
	return &evalStore{name: "memory://" + name, b: &memRows{}}
}

func (m *memRows) connect(ctx context.Context) error { return nil }
func (m *memRows) close() error                      { return nil }

func (m *memRows) load(ctx context.Context) ([]row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]row, len(m.rows))
	copy(ret, m.rows)
	return ret, nil
}

func (m *memRows) insert(ctx context.Context, d Doc) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.rows = append(m.rows, row{id: m.next, doc: d})
	return m.next, nil
}

func (m *memRows) replace(ctx context.Context, id int64, d Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.id == id {
			m.rows[i].doc = d
			return nil
		}
	}
	return fmt.Errorf("no row %d", id)
}

func (m *memRows) drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	return nil
}
