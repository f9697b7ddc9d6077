// CLAUDE:SUMMARY SQLite store of every taxonomy version seen, keyed by version id, with upsert on re-sighting.
// Package snapshot records the taxonomies a controller has served so that an
// x_cat_app_id found in historical data can be resolved back to its tables.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/unifistat/dbopen"
	"github.com/hazyhaar/unifistat/idgen"
	"github.com/hazyhaar/unifistat/taxonomy"
)

// ErrNotFound is returned when no recorded version matches.
var ErrNotFound = errors.New("snapshot: version not found")

// Version is one recorded taxonomy. Categories and Applications are only
// filled by Get and Latest.
type Version struct {
	ID                string                      `json:"id"`
	VersionID         string                      `json:"version_id"`
	CategoryDigest    string                      `json:"category_digest"`
	ApplicationDigest string                      `json:"app_digest"`
	Controller        string                      `json:"controller,omitempty"`
	FirstSeen         int64                       `json:"first_seen"`
	LastSeen          int64                       `json:"last_seen"`
	Categories        []taxonomy.CategoryEntry    `json:"categories,omitempty"`
	Applications      []taxonomy.ApplicationEntry `json:"applications,omitempty"`
}

// Taxonomy rebuilds the recorded tables. The result carries the same
// version id as when it was recorded.
func (v *Version) Taxonomy() (*taxonomy.Taxonomy, error) {
	return taxonomy.Build(&taxonomy.RawMaterial{
		Kind:         taxonomy.KindTables,
		Origin:       "snapshot:" + v.ID,
		Categories:   v.Categories,
		Applications: v.Applications,
	})
}

// Store wraps the snapshot database.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the row id generator. Default: "tax_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option { return func(s *Store) { s.newID = gen } }

// WithClock sets the time source for first_seen/last_seen.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore creates a Store on an already-opened database that has Schema
// applied.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, newID: idgen.Prefixed("tax_", idgen.Default), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return NewStore(db, opts...), nil
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

// Record stores tax, or refreshes last_seen and controller when its version
// id is already known. It returns the stored row.
func (s *Store) Record(ctx context.Context, tax *taxonomy.Taxonomy, controller string) (*Version, error) {
	if tax == nil {
		return nil, fmt.Errorf("snapshot: record: nil taxonomy")
	}
	cats, err := json.Marshal(tax.CategoryList())
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode categories: %w", err)
	}
	apps, err := json.Marshal(tax.ApplicationList())
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode applications: %w", err)
	}
	now := s.now().UnixMilli()

	var v *Version
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO taxonomy_versions
			(id, version_id, category_digest, app_digest, categories_json, applications_json, controller, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(version_id) DO UPDATE SET
				last_seen = excluded.last_seen,
				controller = CASE WHEN excluded.controller = '' THEN controller ELSE excluded.controller END`,
			s.newID(), tax.VersionID, tax.CategoryDigest, tax.ApplicationDigest,
			string(cats), string(apps), controller, now, now)
		if err != nil {
			return err
		}
		v, err = scanFull(tx.QueryRowContext(ctx, selectFull+` WHERE version_id = ?`, tax.VersionID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: record %s: %w", tax.VersionID, err)
	}
	return v, nil
}

const selectFull = `SELECT id, version_id, category_digest, app_digest, controller, first_seen, last_seen,
		categories_json, applications_json
		FROM taxonomy_versions`

// Get returns the version with the given version id, tables included.
func (s *Store) Get(ctx context.Context, versionID string) (*Version, error) {
	return scanFull(s.DB.QueryRowContext(ctx, selectFull+` WHERE version_id = ?`, versionID))
}

// Latest returns the most recently seen version, restricted to controller
// unless it is empty.
func (s *Store) Latest(ctx context.Context, controller string) (*Version, error) {
	return scanFull(s.DB.QueryRowContext(ctx, selectFull+`
		WHERE ? = '' OR controller = ?
		ORDER BY last_seen DESC, id DESC LIMIT 1`, controller, controller))
}

// List returns every recorded version without tables, newest first.
func (s *Store) List(ctx context.Context) ([]*Version, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, version_id, category_digest, app_digest, controller, first_seen, last_seen
		FROM taxonomy_versions ORDER BY last_seen DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		v := &Version{}
		if err := rows.Scan(&v.ID, &v.VersionID, &v.CategoryDigest, &v.ApplicationDigest,
			&v.Controller, &v.FirstSeen, &v.LastSeen); err != nil {
			return nil, fmt.Errorf("snapshot: list: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanFull(row *sql.Row) (*Version, error) {
	v := &Version{}
	var cats, apps string
	err := row.Scan(&v.ID, &v.VersionID, &v.CategoryDigest, &v.ApplicationDigest,
		&v.Controller, &v.FirstSeen, &v.LastSeen, &cats, &apps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(cats), &v.Categories); err != nil {
		return nil, fmt.Errorf("snapshot: decode categories of %s: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(apps), &v.Applications); err != nil {
		return nil, fmt.Errorf("snapshot: decode applications of %s: %w", v.ID, err)
	}
	return v, nil
}
