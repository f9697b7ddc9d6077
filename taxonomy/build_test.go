package taxonomy

import (
	"errors"
	"os"
	"testing"
)

func loadScript(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/dynamic.dpi.js")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestBuild_Script(t *testing.T) {
	// WHAT: Tables are extracted from a minified bundle.
	// WHY: This is the live path against a real controller.
	tax, err := Build(&RawMaterial{Kind: KindScript, Body: loadScript(t)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tax.Categories) != 3 {
		t.Errorf("categories: got %d, want 3", len(tax.Categories))
	}
	if len(tax.Applications) != 4 {
		t.Errorf("applications: got %d, want 4", len(tax.Applications))
	}

	cat, app, ok := tax.Lookup(19, 94)
	if !ok || cat != "Network protocols" || app != "HTTP Protocol over TLS SSL" {
		t.Errorf("(19,94): %q/%q ok=%v", cat, app, ok)
	}
	if _, app, _ := tax.Lookup(19, 95); app != `Some "quoted" app` {
		t.Errorf("(19,95): %q", app)
	}
	if cat, app, _ := tax.Lookup(24, 1); cat != "Private protocols" || app != "Café VPN" {
		t.Errorf("(24,1): %q/%q", cat, app)
	}
	if _, app, _ := tax.Lookup(0, 1); app != "MSN" {
		t.Errorf("(0,1): %q", app)
	}
}

func TestBuild_ScriptDeterministic(t *testing.T) {
	// WHAT: Byte-identical material yields identical VersionID.
	// WHY: Version ids are compared across sessions and over time.
	script := loadScript(t)
	a, err := Build(&RawMaterial{Kind: KindScript, Body: script})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(&RawMaterial{Kind: KindScript, Body: append([]byte(nil), script...)})
	if err != nil {
		t.Fatal(err)
	}
	if a.VersionID != b.VersionID {
		t.Fatalf("%s != %s", a.VersionID, b.VersionID)
	}
}

func TestBuild_ExplicitCategory(t *testing.T) {
	// WHAT: Applications carrying their own category field are scoped by it.
	// WHY: Newer bundles may stop packing the category into the key.
	script := []byte(`x={categories:{3:{name:"Games"}},applications:{7:{name:"Chess",category:3},196616:{name:"Go",cat:3}}}`)
	tax, err := Build(&RawMaterial{Kind: KindScript, Body: script})
	if err != nil {
		t.Fatal(err)
	}
	if _, app, ok := tax.Lookup(3, 7); !ok || app != "Chess" {
		t.Errorf("(3,7): %q ok=%v", app, ok)
	}
	if _, app, ok := tax.Lookup(3, 8); !ok || app != "Go" {
		t.Errorf("(3,8): %q ok=%v", app, ok)
	}
}

func TestBuild_ScriptFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"empty", ``},
		{"no tables", `var a = 1;`},
		{"categories only", `x={categories:{1:{name:"a"}}}`},
		{"empty tables", `x={categories:{},applications:{}}`},
		{"unnamed entries", `x={categories:{1:{}},applications:{1:{name:"a"}}}`},
		{"broken literal", `x={categories:{1:{name:"a"},applications:{1:`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&RawMaterial{Kind: KindScript, Body: []byte(tt.script)})
			if !errors.Is(err, ErrParse) {
				t.Fatalf("got %v, want ErrParse", err)
			}
		})
	}
}

func TestBuild_YAML(t *testing.T) {
	data, err := os.ReadFile("testdata/fixture.yaml")
	if err != nil {
		t.Fatal(err)
	}
	tax, err := Build(&RawMaterial{Kind: KindYAML, Body: data})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, app, ok := tax.Lookup(19, 94); !ok || app != "HTTP Protocol over TLS SSL" {
		t.Errorf("(19,94): %q ok=%v", app, ok)
	}
}

func TestBuild_YAMLUnknownField(t *testing.T) {
	// WHAT: Typos in fixture keys are rejected.
	// WHY: A misspelled category_id would silently scope apps under category 0.
	_, err := Build(&RawMaterial{Kind: KindYAML, Body: []byte("categories:\n  - id: 1\n    name: a\napplications:\n  - id: 1\n    categroy_id: 1\n    name: b\n")})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("got %v, want ErrParse", err)
	}
}

func TestBuild_Tables(t *testing.T) {
	cats, apps := sampleTables()
	tax, err := Build(&RawMaterial{Kind: KindTables, Categories: cats, Applications: apps})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := New(cats, apps)
	if tax.VersionID != want.VersionID {
		t.Error("tables material should match New")
	}
}

func TestBuild_Nil(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, ErrParse) {
		t.Fatalf("got %v", err)
	}
	if _, err := Build(&RawMaterial{Kind: Kind(42)}); !errors.Is(err, ErrParse) {
		t.Fatalf("got %v", err)
	}
}
