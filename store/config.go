/*
 * config.go, part of matflow.
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
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//Config describes a store. It is read from the same db.json/db.yaml files used
//by the calculation workflows, so the fields have the names used there, and
//admin_user/admin_password are accepted as synonyms of username/password.
type Config struct {
	Driver        string            `yaml:"driver" json:"driver"` //mongo (default), postgres, sqlite or memory
	Host          string            `yaml:"host" json:"host"`
	Port          int               `yaml:"port" json:"port"`
	Database      string            `yaml:"database" json:"database"`
	Collection    string            `yaml:"collection" json:"collection"`
	Username      string            `yaml:"username" json:"username"`
	Password      string            `yaml:"password" json:"password"`
	AdminUser     string            `yaml:"admin_user" json:"admin_user"`
	AdminPassword string            `yaml:"admin_password" json:"admin_password"`
	AuthSource    string            `yaml:"authsource" json:"authsource"`
	Path          string            `yaml:"path" json:"path"` //sqlite file
	DSN           string            `yaml:"dsn" json:"dsn"`   //postgres DSN or mongodb URI, overrides host and friends
	Aliases       map[string]string `yaml:"aliases" json:"aliases"`
}

//FromDBFile reads a store configuration (YAML or JSON, which yaml.v3 also reads)
//from path and returns the store it describes. The store is not connected.
func FromDBFile(path string) (Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	var C Config
	if err := yaml.Unmarshal(b, &C); err != nil {
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	//relative sqlite paths are relative to the db file.
	if C.Path != "" && !filepath.IsAbs(C.Path) {
		C.Path = filepath.Join(filepath.Dir(path), C.Path)
	}
	return Open(C)
}

//Open returns the store described by C.
func Open(C Config) (Store, error) {
	if C.Collection == "" {
		C.Collection = "tasks"
	}
	var s Store
	var err error
	switch strings.ToLower(C.Driver) {
	case "", "mongo", "mongodb":
		s = NewMongo(C.MongoURI(), C.Database, C.Collection)
	case "postgres", "postgresql", "pgx":
		s, err = NewPostgres(C.PostgresDSN(), C.Collection)
	case "sqlite":
		if C.Path == "" {
			return nil, fmt.Errorf("store: the sqlite driver needs a path")
		}
		s, err = NewSQLite(C.Path, C.Collection)
	case "memory":
		s = NewMemory(C.Collection)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", C.Driver)
	}
	if err != nil {
		return nil, err
	}
	if len(C.Aliases) > 0 {
		s = WithAliases(s, C.Aliases)
	}
	return s, nil
}

func (C Config) credentials() (string, string) {
	if C.Username != "" {
		return C.Username, C.Password
	}
	return C.AdminUser, C.AdminPassword
}

//MongoURI returns the connection string for C.
func (C Config) MongoURI() string {
	if C.DSN != "" {
		return C.DSN
	}
	host := C.Host
	if host == "" {
		host = "localhost"
	}
	if C.Port != 0 {
		host = host + ":" + strconv.Itoa(C.Port)
	}
	u := url.URL{Scheme: "mongodb", Host: host, Path: "/" + C.Database}
	if user, pass := C.credentials(); user != "" {
		u.User = url.UserPassword(user, pass)
		src := C.AuthSource
		if src == "" {
			src = C.Database
		}
		u.RawQuery = url.Values{"authSource": {src}}.Encode()
	}
	return u.String()
}

//PostgresDSN returns the connection string for C.
func (C Config) PostgresDSN() string {
	if C.DSN != "" {
		return C.DSN
	}
	host := C.Host
	if host == "" {
		host = "localhost"
	}
	if C.Port != 0 {
		host = host + ":" + strconv.Itoa(C.Port)
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + C.Database, RawQuery: "sslmode=disable"}
	if user, pass := C.credentials(); user != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u.String()
}

//aliased renames fields on the way in and out of a store, so code can use
//stable names for fields that are stored elsewhere (e.g. "formula" for
//"formula_pretty").
type aliased struct {
	Store
	aliases map[string]string //alias -> stored path
}

//WithAliases wraps s so that the top-level names in aliases are translated to the
//stored paths in criteria, projections and updates, and back in results.
func WithAliases(s Store, aliases map[string]string) Store {
	return &aliased{Store: s, aliases: aliases}
}

func (a *aliased) path(p string) string {
	head, rest, found := strings.Cut(p, ".")
	if stored, ok := a.aliases[head]; ok {
		if found {
			return stored + "." + rest
		}
		return stored
	}
	return p
}

func (a *aliased) criteria(c Doc) Doc {
	if c == nil {
		return nil
	}
	r := make(Doc, len(c))
	for k, v := range c {
		switch k {
		case "$and", "$or", "$nor":
			if list, ok := Normalize(v).([]any); ok {
				sub := make([]any, len(list))
				for i, x := range list {
					if m, ok := x.(map[string]any); ok {
						sub[i] = map[string]any(a.criteria(Doc(m)))
					} else {
						sub[i] = x
					}
				}
				r[k] = sub
				continue
			}
		}
		r[a.path(k)] = v
	}
	return r
}

func (a *aliased) props(p []string) []string {
	r := make([]string, len(p))
	for i, v := range p {
		r[i] = a.path(v)
	}
	return r
}

func (a *aliased) back(d Doc) Doc {
	for alias, stored := range a.aliases {
		if v, ok := GetMongolike(d, stored); ok {
			UnsetMongolike(d, stored)
			_ = SetMongolike(d, alias, v)
		}
	}
	return d
}

func (a *aliased) forth(d Doc) Doc {
	d = copyDoc(d)
	for alias, stored := range a.aliases {
		if v, ok := d[alias]; ok {
			delete(d, alias)
			_ = SetMongolike(d, stored, v)
		}
	}
	return d
}

func (a *aliased) Query(ctx context.Context, criteria Doc, props ...string) ([]Doc, error) {
	docs, err := a.Store.Query(ctx, a.criteria(criteria), a.props(props)...)
	for i := range docs {
		docs[i] = a.back(docs[i])
	}
	return docs, err
}

func (a *aliased) QueryOne(ctx context.Context, criteria Doc, props ...string) (Doc, error) {
	d, err := a.Store.QueryOne(ctx, a.criteria(criteria), a.props(props)...)
	if err != nil {
		return nil, err
	}
	return a.back(d), nil
}

func (a *aliased) Count(ctx context.Context, criteria Doc) (int, error) {
	return a.Store.Count(ctx, a.criteria(criteria))
}

func (a *aliased) Distinct(ctx context.Context, field string, criteria Doc) ([]any, error) {
	return a.Store.Distinct(ctx, a.path(field), a.criteria(criteria))
}

func (a *aliased) Update(ctx context.Context, docs []Doc, key string) error {
	f := make([]Doc, len(docs))
	for i, d := range docs {
		f[i] = a.forth(d)
	}
	return a.Store.Update(ctx, f, a.path(key))
}

func (a *aliased) UpdateMany(ctx context.Context, criteria Doc, update Doc) (int, error) {
	return a.Store.UpdateMany(ctx, a.criteria(criteria), a.update(update))
}

func (a *aliased) FindOneAndUpdate(ctx context.Context, criteria Doc, update Doc) (Doc, error) {
	d, err := a.Store.FindOneAndUpdate(ctx, a.criteria(criteria), a.update(update))
	if err != nil {
		return nil, err
	}
	return a.back(d), nil
}

func (a *aliased) update(update Doc) Doc {
	u := make(Doc, len(update))
	for op, fields := range update {
		m, ok := Normalize(fields).(map[string]any)
		if !ok {
			u[op] = fields
			continue
		}
		r := make(map[string]any, len(m))
		for k, v := range m {
			r[a.path(k)] = v
		}
		u[op] = r
	}
	return u
}
