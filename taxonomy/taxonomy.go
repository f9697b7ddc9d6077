// CLAUDE:SUMMARY Taxonomy tables (category and category-scoped application names) with content-derived version id.
// Package taxonomy maps the numeric DPI category and application identifiers
// reported by a UniFi controller to human-readable names.
//
// The controller never documented this mapping. It ships it inside the web UI
// bundle, so acquisition is isolated behind Source (fetch) and Build (parse),
// and the result is memoized per session by Cache.
package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CategoryEntry is one DPI category.
type CategoryEntry struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ApplicationEntry is one DPI application. Application ids are only unique
// within their category.
type ApplicationEntry struct {
	ID         int    `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	CategoryID int    `json:"category_id" yaml:"category_id"`
}

// AppKey scopes an application id by its owning category.
type AppKey struct {
	Category int
	App      int
}

// CombinedID encodes (cat, app) the way the controller keys its application
// table: the category id shifted two bytes plus the application id.
func CombinedID(cat, app int) int {
	return cat<<16 + app
}

// SplitCombinedID is the inverse of CombinedID.
func SplitCombinedID(id int) (cat, app int) {
	return id >> 16, id & 0xffff
}

// Taxonomy is an immutable pair of lookup tables plus its version identifier.
type Taxonomy struct {
	Categories        map[int]CategoryEntry
	Applications      map[AppKey]ApplicationEntry
	CategoryDigest    string
	ApplicationDigest string
	// VersionID is CategoryDigest + ":" + ApplicationDigest.
	VersionID string
}

// New validates and indexes both tables and computes their digests.
// Empty tables, blank names and duplicate ids are ErrParse.
func New(categories []CategoryEntry, applications []ApplicationEntry) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: empty category table", ErrParse)
	}
	if len(applications) == 0 {
		return nil, fmt.Errorf("%w: empty application table", ErrParse)
	}

	t := &Taxonomy{
		Categories:   make(map[int]CategoryEntry, len(categories)),
		Applications: make(map[AppKey]ApplicationEntry, len(applications)),
	}
	for _, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: category %d has no name", ErrParse, c.ID)
		}
		if _, dup := t.Categories[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category %d", ErrParse, c.ID)
		}
		t.Categories[c.ID] = c
	}
	for _, a := range applications {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: application %d/%d has no name", ErrParse, a.CategoryID, a.ID)
		}
		k := AppKey{Category: a.CategoryID, App: a.ID}
		if _, dup := t.Applications[k]; dup {
			return nil, fmt.Errorf("%w: duplicate application %d/%d", ErrParse, a.CategoryID, a.ID)
		}
		t.Applications[k] = a
	}

	var err error
	if t.CategoryDigest, err = digest(t.CategoryList()); err != nil {
		return nil, err
	}
	if t.ApplicationDigest, err = digest(t.ApplicationList()); err != nil {
		return nil, err
	}
	t.VersionID = t.CategoryDigest + ":" + t.ApplicationDigest
	return t, nil
}

// Lookup resolves a (category, application) pair. ok is false unless both
// the category and the category-scoped application are known.
func (t *Taxonomy) Lookup(cat, app int) (catName, appName string, ok bool) {
	if t == nil {
		return "", "", false
	}
	c, ok := t.Categories[cat]
	if !ok {
		return "", "", false
	}
	a, ok := t.Applications[AppKey{Category: cat, App: app}]
	if !ok {
		return "", "", false
	}
	return c.Name, a.Name, true
}

// CategoryList returns the categories sorted by id.
func (t *Taxonomy) CategoryList() []CategoryEntry {
	out := make([]CategoryEntry, 0, len(t.Categories))
	for _, c := range t.Categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplicationList returns the applications sorted by (category, id).
func (t *Taxonomy) ApplicationList() []ApplicationEntry {
	out := make([]ApplicationEntry, 0, len(t.Applications))
	for _, a := range t.Applications {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryID != out[j].CategoryID {
			return out[i].CategoryID < out[j].CategoryID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// digest hashes the canonical encoding of a sorted table. Struct field order
// is fixed, so the JSON form of a sorted slice is byte-stable.
func digest(sorted any) (string, error) {
	data, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("taxonomy: canonical encoding: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
