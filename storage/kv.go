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

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// KV represents a key-value table.
type KV struct {
	db    *SQLite3
	table string
}

// OpenKV ensures that table exists and returns a key-value view over it.
func OpenKV(ctx context.Context, db *SQLite3, table string) (kv *KV, err error) {
	if !tableNamePattern.MatchString(table) {
		err = errors.Wrap(ErrInvalidTableName, table)
		return
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (`key` TEXT PRIMARY KEY, `value` BLOB)", table)
	if _, err = db.Writer().ExecContext(ctx, stmt); err != nil {
		err = errors.Wrapf(err, "create table %s failed", table)
		return
	}
	kv = &KV{db: db, table: table}
	return
}

// Get fetches the value of key. A missing key yields a nil value and no error.
func (kv *KV) Get(ctx context.Context, key string) (value []byte, err error) {
	stmt := fmt.Sprintf("SELECT `value` FROM `%s` WHERE `key` = ?", kv.table)
	if err = kv.db.Reader().QueryRowContext(ctx, stmt, key).Scan(&value); err == sql.ErrNoRows {
		err = nil
	}
	return
}

// Set sets or replaces the value of key.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	return kv.db.Tx(ctx, func(tx *sql.Tx) error {
		return kv.SetTx(ctx, tx, key, value)
	})
}

// SetTx sets or replaces the value of key inside tx.
func (kv *KV) SetTx(ctx context.Context, tx *sql.Tx, key string, value []byte) (err error) {
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO `%s` (`key`, `value`) VALUES (?, ?)", kv.table)
	_, err = tx.ExecContext(ctx, stmt, key, value)
	return
}

// Delete deletes the value of key.
func (kv *KV) Delete(ctx context.Context, key string) error {
	stmt := fmt.Sprintf("DELETE FROM `%s` WHERE `key` = ?", kv.table)
	return kv.db.Tx(ctx, func(tx *sql.Tx) (err error) {
		_, err = tx.ExecContext(ctx, stmt, key)
		return
	})
}
