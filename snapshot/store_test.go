package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/unifistat/dbopen"
	"github.com/hazyhaar/unifistat/idgen"
	"github.com/hazyhaar/unifistat/taxonomy"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func setupStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	return NewStore(db, WithIDGenerator(idgen.Sequence("tax")), WithClock(clock.now)), clock
}

func sample(t *testing.T, httpName string) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New(
		[]taxonomy.CategoryEntry{{ID: 0, Name: "Instant messaging"}, {ID: 19, Name: "Network protocols"}},
		[]taxonomy.ApplicationEntry{
			{ID: 1, CategoryID: 0, Name: "MSN"},
			{ID: 94, CategoryID: 19, Name: httpName},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

func TestRecord_Upsert(t *testing.T) {
	// WHAT: Recording the same taxonomy twice keeps one row and moves last_seen.
	// WHY: Every session records its taxonomy; the table holds versions, not sightings.
	s, clock := setupStore(t)
	ctx := context.Background()
	tax := sample(t, "HTTP Protocol over TLS SSL")

	first, err := s.Record(ctx, tax, "https://ctl:8443")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	clock.t = clock.t.Add(time.Hour)
	second, err := s.Record(ctx, tax, "")
	if err != nil {
		t.Fatalf("re-record: %v", err)
	}

	if first.ID != "tax-0001" || second.ID != first.ID {
		t.Fatalf("ids: %q then %q", first.ID, second.ID)
	}
	if second.FirstSeen != first.FirstSeen || second.LastSeen != first.LastSeen+time.Hour.Milliseconds() {
		t.Fatalf("timestamps: %+v", second)
	}
	if second.Controller != "https://ctl:8443" {
		t.Fatalf("empty controller should not overwrite: %q", second.Controller)
	}

	list, err := s.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
	if list[0].Categories != nil {
		t.Fatal("List should not load tables")
	}
}

func TestGet_RebuildsSameVersion(t *testing.T) {
	// WHAT: The recorded tables rebuild to the same version id.
	// WHY: A stored x_cat_app_id must resolve to the exact labels it was built from.
	s, _ := setupStore(t)
	ctx := context.Background()
	tax := sample(t, "HTTP Protocol over TLS SSL")
	if _, err := s.Record(ctx, tax, ""); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(ctx, tax.VersionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rebuilt, err := v.Taxonomy()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if rebuilt.VersionID != tax.VersionID {
		t.Fatalf("version drift: %s != %s", rebuilt.VersionID, tax.VersionID)
	}
	if _, app, ok := rebuilt.Lookup(19, 94); !ok || app != "HTTP Protocol over TLS SSL" {
		t.Fatalf("lookup after rebuild: %q %v", app, ok)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: got %v", err)
	}
}

func TestLatest(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()
	old := sample(t, "HTTPS")
	cur := sample(t, "HTTP Protocol over TLS SSL")

	s.Record(ctx, old, "a")
	clock.t = clock.t.Add(time.Minute)
	s.Record(ctx, cur, "b")

	v, err := s.Latest(ctx, "")
	if err != nil || v.VersionID != cur.VersionID {
		t.Fatalf("latest any: %+v %v", v, err)
	}
	v, err = s.Latest(ctx, "a")
	if err != nil || v.VersionID != old.VersionID {
		t.Fatalf("latest a: %+v %v", v, err)
	}
	if _, err := s.Latest(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest c: %v", err)
	}
}

func TestSource(t *testing.T) {
	// WHAT: A snapshot source feeds the cache the recorded tables.
	// WHY: Offline runs label data with the taxonomy seen last time.
	s, _ := setupStore(t)
	ctx := context.Background()
	tax := sample(t, "HTTP Protocol over TLS SSL")
	s.Record(ctx, tax, "ctl")

	st := taxonomy.NewCache(&Source{Store: s, Controller: "ctl"}, nil).State(ctx)
	if st.Status != taxonomy.Available || st.Taxonomy.VersionID != tax.VersionID {
		t.Fatalf("state: %+v", st)
	}

	pinned := &Source{Store: s, VersionID: "missing"}
	if _, err := pinned.Fetch(ctx); !errors.Is(err, taxonomy.ErrSourceUnavailable) {
		t.Fatalf("pinned missing: %v", err)
	}
	if _, err := (&Source{}).Fetch(ctx); !errors.Is(err, taxonomy.ErrSourceUnavailable) {
		t.Fatalf("no store: %v", err)
	}
}
