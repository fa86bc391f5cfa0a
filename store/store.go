/*
 * store.go, part of matflow.
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

//Package store provides a document store with Mongo-like queries, and several
//backends for it: MongoDB itself, Postgres (JSONB), SQLite and memory.
//
//The non-Mongo backends evaluate the queries in Go (see Matches and ApplyUpdate),
//which is fine for the task collections of a single research project, but would
//not scale to a production database.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

//Doc is a generic document.
type Doc map[string]any

var (
	//ErrNotConnected is returned when an operation is attempted before Connect.
	ErrNotConnected = errors.New("store not connected")
	//ErrNoDocuments is returned by QueryOne when nothing matches.
	ErrNoDocuments = errors.New("no documents match the criteria")
	//ErrMissingKey is returned by Update for documents that lack the key field.
	ErrMissingKey = errors.New("document has no key field")
)

//Store is a collection of documents.
type Store interface {
	//Name identifies the store in logs, e.g. "mongo://host/db/tasks".
	Name() string
	Connect(ctx context.Context) error
	Close() error
	//Query returns the documents matching criteria, with only the props (dotted
	//paths) given, or whole documents if none is given.
	Query(ctx context.Context, criteria Doc, props ...string) ([]Doc, error)
	QueryOne(ctx context.Context, criteria Doc, props ...string) (Doc, error)
	Count(ctx context.Context, criteria Doc) (int, error)
	Distinct(ctx context.Context, field string, criteria Doc) ([]any, error)
	//Update inserts docs, replacing the stored documents with the same value for the key field.
	Update(ctx context.Context, docs []Doc, key string) error
	//UpdateMany applies a Mongo-like update ($set, $inc, $unset...) to every document
	//matching criteria and returns the number of documents modified.
	UpdateMany(ctx context.Context, criteria Doc, update Doc) (int, error)
	//FindOneAndUpdate applies update to the first document matching criteria, in a
	//single step, and returns the document as it was before the update.
	FindOneAndUpdate(ctx context.Context, criteria Doc, update Doc) (Doc, error)
	//Drop removes every document.
	Drop(ctx context.Context) error
}

//row is a document with its backend-assigned identifier.
type row struct {
	id  int64
	doc Doc
}

//rowBackend is the storage under an evalStore. Documents are handed to it
//already normalized.
type rowBackend interface {
	connect(ctx context.Context) error
	close() error
	load(ctx context.Context) ([]row, error)
	insert(ctx context.Context, d Doc) (int64, error)
	replace(ctx context.Context, id int64, d Doc) error
	drop(ctx context.Context) error
}

//evalStore implements Store on top of a rowBackend, evaluating the queries in Go.
type evalStore struct {
	name      string
	b         rowBackend
	mu        sync.Mutex //serializes writes, so concurrent upserts don't duplicate keys
	connected atomic.Bool
}

func (s *evalStore) Name() string { return s.name }

func (s *evalStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected.Load() {
		return nil
	}
	if err := s.b.connect(ctx); err != nil {
		return fmt.Errorf("store %s: %w", s.name, err)
	}
	s.connected.Store(true)
	return nil
}

func (s *evalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected.Load() {
		return nil
	}
	s.connected.Store(false)
	return s.b.close()
}

func (s *evalStore) matching(ctx context.Context, criteria Doc) ([]row, error) {
	if !s.connected.Load() {
		return nil, fmt.Errorf("store %s: %w", s.name, ErrNotConnected)
	}
	rows, err := s.b.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", s.name, err)
	}
	var ret []row
	for _, r := range rows {
		ok, err := Matches(r.doc, criteria)
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, r)
		}
	}
	return ret, nil
}

func (s *evalStore) Query(ctx context.Context, criteria Doc, props ...string) ([]Doc, error) {
	rows, err := s.matching(ctx, criteria)
	if err != nil {
		return nil, err
	}
	ret := make([]Doc, 0, len(rows))
	for _, r := range rows {
		ret = append(ret, Project(r.doc, props...))
	}
	return ret, nil
}

func (s *evalStore) QueryOne(ctx context.Context, criteria Doc, props ...string) (Doc, error) {
	docs, err := s.Query(ctx, criteria, props...)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs[0], nil
}

func (s *evalStore) Count(ctx context.Context, criteria Doc) (int, error) {
	rows, err := s.matching(ctx, criteria)
	return len(rows), err
}

func (s *evalStore) Distinct(ctx context.Context, field string, criteria Doc) ([]any, error) {
	rows, err := s.matching(ctx, criteria)
	if err != nil {
		return nil, err
	}
	var ret []any
	add := func(v any) {
		for _, x := range ret {
			if equal(x, v) {
				return
			}
		}
		ret = append(ret, v)
	}
	for _, r := range rows {
		v, ok := GetMongolike(r.doc, field)
		if !ok {
			continue
		}
		//as in Mongo, the elements of list fields are the distinct values.
		if list, ok := v.([]any); ok {
			for _, e := range list {
				add(e)
			}
			continue
		}
		add(v)
	}
	return ret, nil
}

func (s *evalStore) Update(ctx context.Context, docs []Doc, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected.Load() {
		return fmt.Errorf("store %s: %w", s.name, ErrNotConnected)
	}
	rows, err := s.b.load(ctx)
	if err != nil {
		return fmt.Errorf("store %s: %w", s.name, err)
	}
	for _, d := range docs {
		d = NormalizeDoc(copyDoc(d))
		k, ok := GetMongolike(d, key)
		if !ok {
			return fmt.Errorf("store %s: %w: %s", s.name, ErrMissingKey, key)
		}
		found := false
		for i, r := range rows {
			if v, ok := GetMongolike(r.doc, key); ok && equal(v, k) {
				if err := s.b.replace(ctx, r.id, d); err != nil {
					return fmt.Errorf("store %s: %w", s.name, err)
				}
				rows[i].doc = d
				found = true
				break
			}
		}
		if !found {
			id, err := s.b.insert(ctx, d)
			if err != nil {
				return fmt.Errorf("store %s: %w", s.name, err)
			}
			rows = append(rows, row{id: id, doc: d})
		}
	}
	return nil
}

func (s *evalStore) UpdateMany(ctx context.Context, criteria Doc, update Doc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.matching(ctx, criteria)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		d := copyDoc(r.doc)
		if err := ApplyUpdate(d, update); err != nil {
			return 0, err
		}
		if err := s.b.replace(ctx, r.id, NormalizeDoc(d)); err != nil {
			return 0, fmt.Errorf("store %s: %w", s.name, err)
		}
	}
	return len(rows), nil
}

func (s *evalStore) FindOneAndUpdate(ctx context.Context, criteria Doc, update Doc) (Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.matching(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoDocuments
	}
	d := copyDoc(rows[0].doc)
	if err := ApplyUpdate(d, update); err != nil {
		return nil, err
	}
	if err := s.b.replace(ctx, rows[0].id, NormalizeDoc(d)); err != nil {
		return nil, fmt.Errorf("store %s: %w", s.name, err)
	}
	return copyDoc(rows[0].doc), nil
}

func (s *evalStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected.Load() {
		return fmt.Errorf("store %s: %w", s.name, ErrNotConnected)
	}
	if err := s.b.drop(ctx); err != nil {
		return fmt.Errorf("store %s: %w", s.name, err)
	}
	return nil
}
