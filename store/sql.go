/*
 * sql.go, part of matflow.
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
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib" //registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             //registers the "sqlite" database/sql driver
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

//sqlDialect holds what differs between the SQL backends.
type sqlDialect struct {
	driver  string
	create  string //%s is the table name
	insert  string
	replace string
}

var sqliteDialect = sqlDialect{
	driver:  "sqlite",
	create:  `CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, doc TEXT NOT NULL)`,
	insert:  `INSERT INTO %s (doc) VALUES (?) RETURNING id`,
	replace: `UPDATE %s SET doc = ? WHERE id = ?`,
}

var postgresDialect = sqlDialect{
	driver:  "pgx",
	create:  `CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, doc JSONB NOT NULL)`,
	insert:  `INSERT INTO %s (doc) VALUES ($1::jsonb) RETURNING id`,
	replace: `UPDATE %s SET doc = $1::jsonb WHERE id = $2`,
}

//sqlRows keeps each document as a JSON value in a single table.
type sqlRows struct {
	dialect sqlDialect
	dsn     string
	table   string
	db      *sql.DB
}

//NewSQLite returns a store that keeps the documents in table of the SQLite
//database at path.
func NewSQLite(path, table string) (Store, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}
	b := &sqlRows{dialect: sqliteDialect, dsn: path, table: table}
	return &evalStore{name: fmt.Sprintf("sqlite://%s/%s", path, table), b: b}, nil
}

//NewPostgres returns a store that keeps the documents, as JSONB, in table of
//the Postgres database given by dsn.
func NewPostgres(dsn, table string) (Store, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}
	b := &sqlRows{dialect: postgresDialect, dsn: dsn, table: table}
	return &evalStore{name: "postgres/" + table, b: b}, nil
}

func (s *sqlRows) connect(ctx context.Context) error {
	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dialect.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping %s: %w", s.dialect.driver, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(s.dialect.create, s.table)); err != nil {
		db.Close()
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	s.db = db
	return nil
}

func (s *sqlRows) close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqlRows) load(ctx context.Context) ([]row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, doc FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ret []row
	for rows.Next() {
		var r row
		var raw []byte
		if err := rows.Scan(&r.id, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(raw, &r.doc); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", r.id, err)
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

func (s *sqlRows) insert(ctx context.Context, d Doc) (int64, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(s.dialect.insert, s.table), string(b)).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return id, nil
}

func (s *sqlRows) replace(ctx context.Context, id int64, d Doc) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.replace, s.table), string(b), id); err != nil {
		return fmt.Errorf("update row %d: %w", id, err)
	}
	return nil
}

func (s *sqlRows) drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
