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

package stateview

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/storage"
	"github.com/dashevo/drive/utils/log"
)

var recordsDDL = []string{
	`CREATE TABLE IF NOT EXISTS "records" (
		"container_id" TEXT NOT NULL,
		"entity_type" TEXT NOT NULL,
		"entity_id" TEXT NOT NULL,
		"is_deleted" INTEGER NOT NULL DEFAULT 0,
		"transition_hash" TEXT NOT NULL,
		"deleted_transition_hash" TEXT,
		"record" BLOB NOT NULL,
		PRIMARY KEY ("container_id", "entity_type", "entity_id")
	)`,
	`CREATE INDEX IF NOT EXISTS "records_transition" ON "records" ("transition_hash")`,
	`CREATE INDEX IF NOT EXISTS "records_deleted_transition" ON "records" ("deleted_transition_hash")`,
}

// Repository stores records in a sqlite table, one row per record.
type Repository struct {
	db *storage.SQLite3
}

// NewRepository creates the records table when missing.
func NewRepository(ctx context.Context, db *storage.SQLite3) (r *Repository, err error) {
	for _, stmt := range recordsDDL {
		if _, err = db.Writer().ExecContext(ctx, stmt); err != nil {
			err = errors.Wrap(err, "create records table failed")
			return
		}
	}
	r = &Repository{db: db}
	return
}

// Tx runs fn inside one write transaction.
func (r *Repository) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return r.db.Tx(ctx, fn)
}

// Get returns the record of key including deleted ones, or nil when there is none.
func (r *Repository) Get(ctx context.Context, key RecordKey) (*Record, error) {
	return getRecord(ctx, r.db.Reader(), key)
}

// GetTx is Get inside tx.
func (r *Repository) GetTx(ctx context.Context, tx *sql.Tx, key RecordKey) (*Record, error) {
	return getRecord(ctx, tx, key)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getRecord(ctx context.Context, q queryer, key RecordKey) (rec *Record, err error) {
	var blob []byte
	err = q.QueryRowContext(ctx,
		`SELECT "record" FROM "records" WHERE "container_id" = ? AND "entity_type" = ? AND "entity_id" = ?`,
		key.ContainerID, key.Type, key.ID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load record %s/%s/%s failed", key.ContainerID, key.Type, key.ID)
	}
	return DecodeRecord(blob)
}

// StoreTx inserts or replaces rec inside tx.
func (r *Repository) StoreTx(ctx context.Context, tx *sql.Tx, rec *Record) (err error) {
	blob, err := rec.Encode()
	if err != nil {
		return
	}
	var deleted sql.NullString
	if rec.DeletedReference != nil {
		deleted = sql.NullString{String: rec.DeletedReference.TransitionHash.String(), Valid: true}
	}
	key := rec.Key()
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO "records" ("container_id", "entity_type", "entity_id", "is_deleted",
			"transition_hash", "deleted_transition_hash", "record") VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ContainerID, key.Type, key.ID, rec.IsDeleted,
		rec.Reference.TransitionHash.String(), deleted, blob)
	if err != nil {
		err = errors.Wrapf(err, "store record %s/%s/%s failed", key.ContainerID, key.Type, key.ID)
	}
	return
}

// DeleteTx removes the record of key inside tx.
func (r *Repository) DeleteTx(ctx context.Context, tx *sql.Tx, key RecordKey) (err error) {
	_, err = tx.ExecContext(ctx,
		`DELETE FROM "records" WHERE "container_id" = ? AND "entity_type" = ? AND "entity_id" = ?`,
		key.ContainerID, key.Type, key.ID)
	return errors.Wrap(err, "delete record failed")
}

// DeleteAllTx removes every record inside tx.
func (r *Repository) DeleteAllTx(ctx context.Context, tx *sql.Tx) (n int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM "records"`)
	if err != nil {
		return 0, errors.Wrap(err, "delete records failed")
	}
	return res.RowsAffected()
}

// FindByTransitionTx returns the records whose current version came from transition h.
func (r *Repository) FindByTransitionTx(ctx context.Context, tx *sql.Tx, h hash.Hash) ([]*Record, error) {
	return findRecords(ctx, tx,
		`SELECT "record" FROM "records" WHERE "transition_hash" = ? ORDER BY "rowid"`, h.String())
}

// FindByDeletedTransitionTx returns the records deleted by transition h.
func (r *Repository) FindByDeletedTransitionTx(ctx context.Context, tx *sql.Tx, h hash.Hash) ([]*Record, error) {
	return findRecords(ctx, tx,
		`SELECT "record" FROM "records" WHERE "deleted_transition_hash" = ? ORDER BY "rowid"`, h.String())
}

// Fetch returns the live records of one container and type selected by q.
func (r *Repository) Fetch(ctx context.Context, containerID, entityType string, q *Query) (out []*Record, err error) {
	if q == nil {
		q = &Query{}
	}
	if err = q.Validate(); err != nil {
		return
	}
	records, err := findRecords(ctx, r.db.Reader(),
		`SELECT "record" FROM "records" WHERE "container_id" = ? AND "entity_type" = ? AND "is_deleted" = 0
			ORDER BY "entity_id"`, containerID, entityType)
	if err != nil {
		return
	}
	out = q.apply(records)

	log.WithFields(log.Fields{
		"container": containerID,
		"type":      entityType,
		"scanned":   len(records),
		"returned":  len(out),
	}).Debug("stateview: fetched records")
	return
}

func findRecords(ctx context.Context, q queryer, stmt string, args ...interface{}) (out []*Record, err error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query records failed")
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		if err = rows.Scan(&blob); err != nil {
			return nil, errors.Wrap(err, "scan record failed")
		}
		var rec *Record
		if rec, err = DecodeRecord(blob); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate records failed")
	}
	return
}
