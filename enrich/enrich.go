// CLAUDE:SUMMARY Enrichment engine: walks untyped controller JSON and labels app/cat records from the session taxonomy.
// Package enrich attaches human-readable DPI names to controller traffic
// records.
//
// Records are the untyped trees encoding/json produces. Any object carrying
// both "app" and "cat" is a candidate; when the session taxonomy resolves the
// pair, a copy of the object gains x_cat, x_app and x_cat_app_id. Nothing
// else changes and the input is never mutated.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/hazyhaar/unifistat/taxonomy"
)

// Field names read and written on traffic records.
const (
	FieldApp       = "app"
	FieldCat       = "cat"
	FieldXApp      = "x_app"
	FieldXCat      = "x_cat"
	FieldVersionID = "x_cat_app_id"
)

// ErrMalformedRecord is returned when a record carries app and cat but one of
// them is not an integer. It is never swallowed.
var ErrMalformedRecord = errors.New("enrich: malformed record")

// StateSource yields the session taxonomy state. *taxonomy.Cache satisfies it.
type StateSource interface {
	State(ctx context.Context) taxonomy.State
}

// Enricher applies the taxonomy held by a StateSource.
type Enricher struct {
	states StateSource
}

// New returns an Enricher backed by states.
func New(states StateSource) *Enricher {
	return &Enricher{states: states}
}

// Enrich returns v with every resolvable app/cat record labelled. The
// taxonomy is only requested once a candidate record is found, so trees
// without DPI records never trigger a build.
func (e *Enricher) Enrich(ctx context.Context, v any) (any, error) {
	w := &walker{resolve: func() *taxonomy.Taxonomy {
		if e.states == nil {
			return nil
		}
		st := e.states.State(ctx)
		if st.Status != taxonomy.Available {
			return nil
		}
		return st.Taxonomy
	}}
	out, _, err := w.visit(v)
	return out, err
}

// Apply labels v with a fixed taxonomy. A nil taxonomy leaves every record
// untouched but still rejects malformed ones.
func Apply(tax *taxonomy.Taxonomy, v any) (any, error) {
	w := &walker{resolve: func() *taxonomy.Taxonomy { return tax }}
	out, _, err := w.visit(v)
	return out, err
}

type walker struct {
	resolve  func() *taxonomy.Taxonomy
	resolved bool
	tax      *taxonomy.Taxonomy
}

func (w *walker) taxonomy() *taxonomy.Taxonomy {
	if !w.resolved {
		w.tax = w.resolve()
		w.resolved = true
	}
	return w.tax
}

// visit returns the possibly rewritten value and whether it differs from v.
// Unchanged subtrees are returned as-is; changed containers are copies.
func (w *walker) visit(v any) (any, bool, error) {
	switch t := v.(type) {
	case map[string]any:
		return w.visitObject(t)
	case []any:
		var out []any
		for i, item := range t {
			nv, changed, err := w.visit(item)
			if err != nil {
				return nil, false, fmt.Errorf("[%d]: %w", i, err)
			}
			if changed {
				if out == nil {
					out = append([]any(nil), t...)
				}
				out[i] = nv
			}
		}
		if out == nil {
			return t, false, nil
		}
		return out, true, nil
	default:
		return v, false, nil
	}
}

func (w *walker) visitObject(obj map[string]any) (any, bool, error) {
	var out map[string]any
	clone := func() {
		if out == nil {
			out = make(map[string]any, len(obj)+3)
			for k, v := range obj {
				out[k] = v
			}
		}
	}

	for k, v := range obj {
		nv, changed, err := w.visit(v)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", k, err)
		}
		if changed {
			clone()
			out[k] = nv
		}
	}

	rawApp, hasApp := obj[FieldApp]
	rawCat, hasCat := obj[FieldCat]
	if hasApp && hasCat {
		app, err := intField(FieldApp, rawApp)
		if err != nil {
			return nil, false, err
		}
		cat, err := intField(FieldCat, rawCat)
		if err != nil {
			return nil, false, err
		}

		tax := w.taxonomy()
		switch catName, appName, ok := tax.Lookup(cat, app); {
		case tax == nil:
			recordsTotal.WithLabelValues("unavailable").Inc()
		case !ok:
			recordsTotal.WithLabelValues("unmatched").Inc()
		default:
			recordsTotal.WithLabelValues("enriched").Inc()
			clone()
			out[FieldXCat] = catName
			out[FieldXApp] = appName
			out[FieldVersionID] = tax.VersionID
		}
	}

	if out == nil {
		return obj, false, nil
	}
	return out, true, nil
}

// intField accepts any numeric encoding a decoded answer can hold, under one
// rule: the value must be integral and fit in int32.
func intField(name string, v any) (int, error) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return checkInt32(name, n)
		}
		var err error
		if f, err = strconv.ParseFloat(string(t), 64); err != nil {
			return 0, fmt.Errorf("%w: %s=%s is not a number", ErrMalformedRecord, name, t)
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return checkInt32(name, rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt32 {
				return 0, fmt.Errorf("%w: %s=%d overflows int32", ErrMalformedRecord, name, rv.Uint())
			}
			return int(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		default:
			return 0, fmt.Errorf("%w: %s has type %T", ErrMalformedRecord, name, v)
		}
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrMalformedRecord, name, f)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s=%v overflows int32", ErrMalformedRecord, name, f)
	}
	return int(f), nil
}

func checkInt32(name string, n int64) (int, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s=%d overflows int32", ErrMalformedRecord, name, n)
	}
	return int(n), nil
}
