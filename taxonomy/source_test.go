package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

// fakePages serves fixed bodies by path and records requests.
type fakePages struct {
	mu    sync.Mutex
	pages map[string][]byte
	calls []string
}

func (f *fakePages) GetPage(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	body, ok := f.pages[path]
	if !ok {
		return nil, fmt.Errorf("http 404")
	}
	return body, nil
}

const loginPage = `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="angular/g9c8f4ab88/css/app.css">
<script src="angular/g9c8f4ab88/js/app.js"></script>
<script src="angular/a1b2c3.d4/js/vendor.js"></script>
</head><body><div ng-app></div></body></html>`

func TestBuildStrings(t *testing.T) {
	// WHAT: Build strings come from script/link URLs, deduplicated, in order.
	// WHY: The bundle directory is versioned per controller release.
	got := BuildStrings([]byte(loginPage))
	want := []string{"g9c8f4ab88", "a1b2c3.d4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildStrings_InlineFallback(t *testing.T) {
	page := `<html><script>window.base = "/manage/angular/zz99/js/";</script></html>`
	got := BuildStrings([]byte(page))
	if !reflect.DeepEqual(got, []string{"zz99"}) {
		t.Fatalf("got %v", got)
	}
	if got := BuildStrings([]byte("<html></html>")); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestLiveSource_Fetch(t *testing.T) {
	// WHAT: The live source skips a missing bundle and returns the next one.
	// WHY: Pages can list several build directories; only one holds the bundle.
	script := loadScript(t)
	pages := &fakePages{pages: map[string][]byte{
		LoginPagePath: []byte(loginPage),
		"/manage/angular/a1b2c3.d4/js/dynamic.dpi.js": script,
	}}
	src := NewLiveSource(pages, nil)

	raw, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if raw.Kind != KindScript || string(raw.Body) != string(script) {
		t.Fatalf("unexpected material: kind=%s origin=%s", raw.Kind, raw.Origin)
	}
	wantCalls := []string{
		LoginPagePath,
		"/manage/angular/g9c8f4ab88/js/dynamic.dpi.js",
		"/manage/angular/a1b2c3.d4/js/dynamic.dpi.js",
	}
	if !reflect.DeepEqual(pages.calls, wantCalls) {
		t.Fatalf("calls: %v", pages.calls)
	}
}

func TestLiveSource_PinnedBuilds(t *testing.T) {
	pages := &fakePages{pages: map[string][]byte{
		"/manage/angular/pinned/js/dynamic.dpi.js": loadScript(t),
	}}
	src := NewLiveSource(pages, nil, "pinned")
	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(pages.calls) != 1 {
		t.Fatalf("login page should be skipped, calls: %v", pages.calls)
	}
}

func TestLiveSource_Unavailable(t *testing.T) {
	tests := []struct {
		name  string
		pages map[string][]byte
	}{
		{"no login page", map[string][]byte{}},
		{"no build string", map[string][]byte{LoginPagePath: []byte("<html></html>")}},
		{"no bundle", map[string][]byte{LoginPagePath: []byte(loginPage)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewLiveSource(&fakePages{pages: tt.pages}, nil)
			if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("got %v, want ErrSourceUnavailable", err)
			}
		})
	}
}

func TestFixtureSource(t *testing.T) {
	src := &FixtureSource{Path: filepath.Join("testdata", "fixture.yaml")}
	raw, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if raw.Kind != KindYAML {
		t.Fatalf("kind: %s", raw.Kind)
	}

	inline := &FixtureSource{Data: []byte("categories: []\n")}
	if raw, err := inline.Fetch(context.Background()); err != nil || raw.Origin != "inline" {
		t.Fatalf("inline: %v %+v", err, raw)
	}

	missing := &FixtureSource{Path: filepath.Join(t.TempDir(), "nope.yaml")}
	if _, err := missing.Fetch(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("missing: got %v", err)
	}
	if _, err := os.Stat(missing.Path); err == nil {
		t.Fatal("fixture should not be created")
	}
}
