/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package storage provides the sqlite handles shared by the state view and the reader state,
// and a small key-value table on top of them.
//
// The go-sqlite3 driver only guarantees the safety of concurrent readers, so every write goes
// through the single-connection writer handle.
package storage

import (
	"context"
	"database/sql"

	sqlite3 "github.com/CovenantSQL/go-sqlite3-encrypt"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/utils/log"
)

const driverName = "sqlite3-drive"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) (err error) {
			_, err = c.Exec("PRAGMA busy_timeout=5000", nil)
			return
		},
	})
}

// SQLite3 holds a read handle and a serialized write handle on one database file.
type SQLite3 struct {
	filename string
	reader   *sql.DB
	writer   *sql.DB
}

// NewSqlite returns a new SQLite3 instance attached to filename.
func NewSqlite(filename string) (s *SQLite3, err error) {
	var (
		instance = &SQLite3{filename: filename}
		dsn      *DSN
	)

	if dsn, err = NewDSN(filename); err != nil {
		return
	}

	dsnRW := dsn.With("_journal_mode", "WAL")
	dsnRO := dsnRW.With("_query_only", "on")

	// Open the writer first so the file and WAL exist before a query-only connection.
	if instance.writer, err = sql.Open(driverName, dsnRW.Format()); err != nil {
		err = errors.Wrap(err, "open sqlite writer failed")
		return
	}
	instance.writer.SetMaxOpenConns(1)
	if err = instance.writer.Ping(); err != nil {
		instance.writer.Close()
		err = errors.Wrap(err, "ping sqlite writer failed")
		return
	}
	if instance.reader, err = sql.Open(driverName, dsnRO.Format()); err != nil {
		instance.writer.Close()
		err = errors.Wrap(err, "open sqlite reader failed")
		return
	}

	log.WithField("file", dsn.FileName()).Debug("sqlite storage opened")
	s = instance
	return
}

// Reader returns the read-only handle.
func (s *SQLite3) Reader() *sql.DB {
	return s.reader
}

// Writer returns the single-connection write handle.
func (s *SQLite3) Writer() *sql.DB {
	return s.writer
}

// Tx runs fn inside one write transaction, committing only if fn succeeds.
func (s *SQLite3) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction failed")
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				log.WithError(rerr).Warning("rollback transaction failed")
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = errors.Wrap(err, "commit transaction failed")
		}
	}()
	err = fn(tx)
	return
}

// Close closes both handles.
func (s *SQLite3) Close() (err error) {
	if err = s.reader.Close(); err != nil {
		return
	}
	return s.writer.Close()
}
