// CLAUDE:SUMMARY Builds a Taxonomy from raw material: script literal extraction, YAML fixtures, structured tables.
package taxonomy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind tells Build how to decode RawMaterial.
type Kind int

const (
	// KindScript is a JavaScript bundle embedding the tables as object literals.
	KindScript Kind = iota
	// KindYAML is a fixture document with categories and applications lists.
	KindYAML
	// KindTables is material that is already structured.
	KindTables
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindYAML:
		return "yaml"
	case KindTables:
		return "tables"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// RawMaterial is whatever a Source retrieved, before parsing.
type RawMaterial struct {
	Kind   Kind
	Origin string // URL, file path or snapshot id, for logs
	Body   []byte // KindScript, KindYAML

	Categories   []CategoryEntry    // KindTables
	Applications []ApplicationEntry // KindTables
}

// Build decodes raw material into a Taxonomy. Every failure is ErrParse.
//
// The script extraction is a workaround for an undocumented bundle layout;
// it is only reachable through this function so it can be replaced alone.
func Build(raw *RawMaterial) (*Taxonomy, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no material", ErrParse)
	}
	var (
		cats []CategoryEntry
		apps []ApplicationEntry
		err  error
	)
	switch raw.Kind {
	case KindScript:
		cats, apps, err = extractScriptTables(raw.Body)
	case KindYAML:
		cats, apps, err = decodeFixture(raw.Body)
	case KindTables:
		cats, apps = raw.Categories, raw.Applications
	default:
		err = fmt.Errorf("%w: unknown material kind %s", ErrParse, raw.Kind)
	}
	if err != nil {
		return nil, err
	}
	return New(cats, apps)
}

// tableStart matches the property that opens an embedded table, e.g.
// `categories:{` or `"applications" : {`. The match ends on the brace.
var tableStart = regexp.MustCompile(`(?:^|[\s,{(])["']?(categories|applications)["']?\s*:\s*\{`)

// extractScriptTables finds the first categories and applications literals
// that decode into non-empty tables.
func extractScriptTables(script []byte) ([]CategoryEntry, []ApplicationEntry, error) {
	if len(script) == 0 {
		return nil, nil, fmt.Errorf("%w: empty script", ErrParse)
	}

	var (
		cats    []CategoryEntry
		apps    []ApplicationEntry
		lastErr error
	)
	for _, m := range tableStart.FindAllSubmatchIndex(script, -1) {
		name := string(script[m[2]:m[3]])
		if (name == "categories" && cats != nil) || (name == "applications" && apps != nil) {
			continue
		}
		v, _, err := parseJSLiteral(script[m[1]-1:])
		if err != nil {
			lastErr = err
			continue
		}
		switch name {
		case "categories":
			if c, err := normalizeCategories(v); err == nil && len(c) > 0 {
				cats = c
			} else if err != nil {
				lastErr = err
			}
		case "applications":
			if a, err := normalizeApplications(v); err == nil && len(a) > 0 {
				apps = a
			} else if err != nil {
				lastErr = err
			}
		}
		if cats != nil && apps != nil {
			return cats, apps, nil
		}
	}

	missing := "categories"
	if cats != nil {
		missing = "applications"
	}
	if lastErr != nil {
		return nil, nil, fmt.Errorf("%w: no usable %s table: %v", ErrParse, missing, lastErr)
	}
	return nil, nil, fmt.Errorf("%w: no %s table found", ErrParse, missing)
}

// normalizeCategories accepts {"<id>": {name: ...}}, {"<id>": "name"} or
// [{id, name}].
func normalizeCategories(v any) ([]CategoryEntry, error) {
	var out []CategoryEntry
	add := func(id int, entry any) error {
		name, err := entryName(entry)
		if err != nil {
			return fmt.Errorf("category %d: %w", id, err)
		}
		out = append(out, CategoryEntry{ID: id, Name: name})
		return nil
	}

	switch t := v.(type) {
	case map[string]any:
		for k, entry := range t {
			id, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("category key %q is not numeric", k)
			}
			if err := add(id, entry); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, entry := range t {
			obj, _ := entry.(map[string]any)
			id, ok := asInt(obj["id"])
			if !ok {
				return nil, fmt.Errorf("category #%d has no numeric id", i)
			}
			if err := add(id, entry); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("categories: unexpected %T", v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// normalizeApplications accepts the controller layout, keyed by
// CombinedID(cat, app), as well as entries carrying an explicit category.
func normalizeApplications(v any) ([]ApplicationEntry, error) {
	var out []ApplicationEntry
	add := func(key int, entry any) error {
		name, err := entryName(entry)
		if err != nil {
			return fmt.Errorf("application %d: %w", key, err)
		}
		cat, app := SplitCombinedID(key)
		if obj, ok := entry.(map[string]any); ok {
			if c, ok := explicitCategory(obj); ok {
				cat, app = c, key
				if key>>16 == c && key > 0xffff {
					app = key & 0xffff
				}
			}
		}
		out = append(out, ApplicationEntry{ID: app, Name: name, CategoryID: cat})
		return nil
	}

	switch t := v.(type) {
	case map[string]any:
		for k, entry := range t {
			key, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("application key %q is not numeric", k)
			}
			if err := add(key, entry); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, entry := range t {
			obj, _ := entry.(map[string]any)
			key, ok := asInt(obj["id"])
			if !ok {
				return nil, fmt.Errorf("application #%d has no numeric id", i)
			}
			if err := add(key, entry); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("applications: unexpected %T", v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryID != out[j].CategoryID {
			return out[i].CategoryID < out[j].CategoryID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func explicitCategory(obj map[string]any) (int, bool) {
	for _, k := range []string{"category", "cat", "category_id"} {
		if c, ok := asInt(obj[k]); ok {
			return c, true
		}
	}
	return 0, false
}

func entryName(entry any) (string, error) {
	switch t := entry.(type) {
	case string:
		if t != "" {
			return t, nil
		}
	case map[string]any:
		if s, ok := t["name"].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", errors.New("missing name")
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	}
	return 0, false
}

type fixtureFile struct {
	Categories   []CategoryEntry    `yaml:"categories"`
	Applications []ApplicationEntry `yaml:"applications"`
}

func decodeFixture(data []byte) ([]CategoryEntry, []ApplicationEntry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f fixtureFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: fixture: %v", ErrParse, err)
	}
	return f.Categories, f.Applications, nil
}

// MarshalFixture renders a taxonomy in the fixture format read by
// FixtureSource.
func MarshalFixture(t *Taxonomy) ([]byte, error) {
	return yaml.Marshal(fixtureFile{
		Categories:   t.CategoryList(),
		Applications: t.ApplicationList(),
	})
}
