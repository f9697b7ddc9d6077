// CLAUDE:SUMMARY Taxonomy sources: live extraction from the controller UI bundle and YAML fixtures.
package taxonomy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"golang.org/x/net/html"
)

// Source retrieves raw taxonomy material. Implementations perform no
// retries; every failure wraps ErrSourceUnavailable.
type Source interface {
	Fetch(ctx context.Context) (*RawMaterial, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*RawMaterial, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) (*RawMaterial, error) { return f(ctx) }

// PageFetcher is the part of the controller transport LiveSource needs:
// a GET returning the body of a 200 answer, or an error for anything else.
type PageFetcher interface {
	GetPage(ctx context.Context, path string) ([]byte, error)
}

const (
	// LoginPagePath is served without authentication and references the
	// versioned UI bundle directory.
	LoginPagePath = "/manage/account/login"
	dpiBundlePath = "/manage/angular/%s/js/dynamic.dpi.js"
)

var buildString = regexp.MustCompile(`angular/([a-zA-Z0-9.]+)/js/`)

// LiveSource extracts the taxonomy from the controller's own UI bundle:
// the login page names the angular build directory, which holds
// dynamic.dpi.js with the category and application tables.
type LiveSource struct {
	Pages PageFetcher
	// Builds pins candidate build strings and skips the login page scan.
	Builds []string
	Logger *slog.Logger
}

// NewLiveSource returns a LiveSource reading through pages.
func NewLiveSource(pages PageFetcher, logger *slog.Logger, builds ...string) *LiveSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSource{Pages: pages, Builds: builds, Logger: logger}
}

// Fetch implements Source.
func (s *LiveSource) Fetch(ctx context.Context) (*RawMaterial, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	builds := s.Builds
	if len(builds) == 0 {
		page, err := s.Pages.GetPage(ctx, LoginPagePath)
		if err != nil {
			return nil, fmt.Errorf("%w: login page: %v", ErrSourceUnavailable, err)
		}
		builds = BuildStrings(page)
		if len(builds) == 0 {
			return nil, fmt.Errorf("%w: no angular build string on %s", ErrSourceUnavailable, LoginPagePath)
		}
	}

	for _, b := range builds {
		path := fmt.Sprintf(dpiBundlePath, b)
		body, err := s.Pages.GetPage(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
			}
			logger.DebugContext(ctx, "taxonomy: dpi bundle miss", "path", path, "error", err)
			continue
		}
		logger.DebugContext(ctx, "taxonomy: dpi bundle found", "path", path, "bytes", len(body))
		return &RawMaterial{Kind: KindScript, Origin: path, Body: body}, nil
	}
	return nil, fmt.Errorf("%w: no dpi bundle among %d build(s)", ErrSourceUnavailable, len(builds))
}

// BuildStrings returns the distinct angular build strings referenced by a
// login page, in document order. Script and stylesheet URLs are checked
// first; the raw text is scanned only when they reference none.
func BuildStrings(page []byte) []string {
	var found []string
	seen := make(map[string]bool)
	add := func(s string) {
		for _, m := range buildString.FindAllStringSubmatch(s, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				found = append(found, m[1])
			}
		}
	}

	if doc, err := html.Parse(bytes.NewReader(page)); err == nil {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode {
				for _, a := range n.Attr {
					if a.Key == "src" || a.Key == "href" {
						add(a.Val)
					}
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(doc)
	}
	if len(found) == 0 {
		add(string(page))
	}
	return found
}

// FixtureSource reads a YAML fixture, from Data when set, else from Path.
type FixtureSource struct {
	Path string
	Data []byte
}

// Fetch implements Source.
func (s *FixtureSource) Fetch(_ context.Context) (*RawMaterial, error) {
	if s.Data != nil {
		return &RawMaterial{Kind: KindYAML, Origin: "inline", Body: s.Data}, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: fixture: %v", ErrSourceUnavailable, err)
	}
	return &RawMaterial{Kind: KindYAML, Origin: s.Path, Body: data}, nil
}
