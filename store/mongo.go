/*
 * mongo.go, part of matflow.
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
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

//Mongo is a store on a MongoDB collection. Queries are passed to the server as they are.
type Mongo struct {
	uri        string
	database   string
	collection string
	client     *mongo.Client
	coll       *mongo.Collection
}

//NewMongo returns a store on the given collection. uri is a standard
//mongodb:// connection string.
func NewMongo(uri, database, collection string) *Mongo {
	return &Mongo{uri: uri, database: database, collection: collection}
}

func (m *Mongo) Name() string {
	return fmt.Sprintf("mongo://%s/%s", m.database, m.collection)
}

func (m *Mongo) Connect(ctx context.Context) error {
	if m.client != nil {
		return nil
	}
	opts := options.Client().
		ApplyURI(m.uri).
		SetServerSelectionTimeout(20 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("store %s: %w", m.Name(), err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(ctx)
		return fmt.Errorf("store %s: %w", m.Name(), err)
	}
	m.client = c
	m.coll = c.Database(m.database).Collection(m.collection)
	return nil
}

func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := m.client.Disconnect(ctx)
	m.client, m.coll = nil, nil
	return err
}

func (m *Mongo) check() error {
	if m.coll == nil {
		return fmt.Errorf("store %s: %w", m.Name(), ErrNotConnected)
	}
	return nil
}

func filter(criteria Doc) bson.M {
	if criteria == nil {
		return bson.M{}
	}
	return bson.M(criteria)
}

func projection(props []string) bson.M {
	if len(props) == 0 {
		return nil
	}
	p := bson.M{}
	for _, v := range props {
		p[v] = 1
	}
	return p
}

func (m *Mongo) Query(ctx context.Context, criteria Doc, props ...string) ([]Doc, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	opts := options.Find()
	if p := projection(props); p != nil {
		opts.SetProjection(p)
	}
	cur, err := m.coll.Find(ctx, filter(criteria), opts)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	ret := make([]Doc, 0, len(raw))
	for _, r := range raw {
		ret = append(ret, fromBSON(r))
	}
	return ret, nil
}

func (m *Mongo) QueryOne(ctx context.Context, criteria Doc, props ...string) (Doc, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if p := projection(props); p != nil {
		opts.SetProjection(p)
	}
	var raw bson.M
	err := m.coll.FindOne(ctx, filter(criteria), opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	return fromBSON(raw), nil
}

func (m *Mongo) Count(ctx context.Context, criteria Doc) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	n, err := m.coll.CountDocuments(ctx, filter(criteria))
	if err != nil {
		return 0, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	return int(n), nil
}

func (m *Mongo) Distinct(ctx context.Context, field string, criteria Doc) ([]any, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	vals, err := m.coll.Distinct(ctx, field, filter(criteria))
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	ret := make([]any, len(vals))
	for i, v := range vals {
		ret[i] = convertBSON(v)
	}
	return ret, nil
}

func (m *Mongo) Update(ctx context.Context, docs []Doc, key string) error {
	if err := m.check(); err != nil {
		return err
	}
	for _, d := range docs {
		k, ok := GetMongolike(d, key)
		if !ok {
			return fmt.Errorf("store %s: %w: %s", m.Name(), ErrMissingKey, key)
		}
		doc := bson.M(copyDoc(d))
		delete(doc, "_id")
		_, err := m.coll.ReplaceOne(ctx, bson.M{key: k}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("store %s: %w", m.Name(), err)
		}
	}
	return nil
}

func (m *Mongo) UpdateMany(ctx context.Context, criteria Doc, update Doc) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	res, err := m.coll.UpdateMany(ctx, filter(criteria), bson.M(update))
	if err != nil {
		return 0, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	return int(res.ModifiedCount), nil
}

func (m *Mongo) FindOneAndUpdate(ctx context.Context, criteria Doc, update Doc) (Doc, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	var raw bson.M
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	err := m.coll.FindOneAndUpdate(ctx, filter(criteria), bson.M(update), opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", m.Name(), err)
	}
	return fromBSON(raw), nil
}

func (m *Mongo) Drop(ctx context.Context) error {
	if err := m.check(); err != nil {
		return err
	}
	if err := m.coll.Drop(ctx); err != nil {
		return fmt.Errorf("store %s: %w", m.Name(), err)
	}
	return nil
}

//fromBSON turns a decoded document into a plain, normalized Doc.
func fromBSON(m bson.M) Doc {
	return Doc(convertBSON(m).(map[string]any))
}

func convertBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		r := make(map[string]any, len(t))
		for k, x := range t {
			r[k] = convertBSON(x)
		}
		return r
	case bson.D:
		r := make(map[string]any, len(t))
		for _, e := range t {
			r[e.Key] = convertBSON(e.Value)
		}
		return r
	case bson.A:
		r := make([]any, len(t))
		for i, x := range t {
			r[i] = convertBSON(x)
		}
		return r
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	}
	return Normalize(v)
}
