package snapshot

import _ "modernc.org/sqlite"

// Schema creates the taxonomy version table. Applied by Open and by tests
// through dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS taxonomy_versions (
	id                TEXT PRIMARY KEY,
	version_id        TEXT NOT NULL UNIQUE,
	category_digest   TEXT NOT NULL,
	app_digest        TEXT NOT NULL,
	categories_json   TEXT NOT NULL,
	applications_json TEXT NOT NULL,
	controller        TEXT NOT NULL DEFAULT '',
	first_seen        INTEGER NOT NULL,
	last_seen         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_taxonomy_versions_controller ON taxonomy_versions(controller, last_seen);
`
