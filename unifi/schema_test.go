package unifi_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/unifistat/unifi"
	"github.com/hazyhaar/unifistat/unifi/unifitest"
)

func TestSchema_ReportElements(t *testing.T) {
	// WHAT: Each report element is checked against its own record shape.
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })
	for _, el := range unifi.Elements {
		if _, err := c.Report(context.Background(), "", unifi.Daily, el, unifi.ReportRequest{}); err != nil {
			t.Errorf("%s: %v", el, err)
		}
	}

	ctl.SetData("/api/s/default/stat/report/daily.ap", []any{map[string]any{"time": 1, "ap": "not-a-mac"}})
	if _, err := c.DailyAPStats(context.Background(), "", 0, 0); !errors.Is(err, unifi.ErrSchema) {
		t.Fatalf("bad ap mac: got %v, want ErrSchema", err)
	}
}

func TestSchema_RejectsUnexpectedShape(t *testing.T) {
	// WHAT: A device without a mac, or a category id given as text, is ErrSchema.
	// WHY: Callers index records by these fields; a controller upgrade that
	// changes them must fail loudly instead of yielding half-empty output.
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })
	ctx := context.Background()

	ctl.SetData("/api/s/default/stat/device", []any{map[string]any{"type": "uap"}})
	if _, err := c.Devices(ctx, ""); !errors.Is(err, unifi.ErrSchema) {
		t.Fatalf("device without mac: got %v, want ErrSchema", err)
	}

	ctl.SetData("/api/s/default/stat/sitedpi", []any{map[string]any{"by_cat": []any{map[string]any{"cat": "19"}}}})
	if _, err := c.SiteDPIByCategory(ctx, ""); !errors.Is(err, unifi.ErrSchema) {
		t.Fatalf("text category: got %v, want ErrSchema", err)
	}

	ctl.SetData("/api/self", []any{"admin"})
	if _, err := c.Self(ctx); !errors.Is(err, unifi.ErrSchema) {
		t.Fatalf("scalar record: got %v, want ErrSchema", err)
	}
}

func TestSchema_SkipValidation(t *testing.T) {
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) {
		cfg.Taxonomy.Source = unifi.SourceOff
		cfg.SkipValidation = true
	})
	ctl.SetData("/api/s/default/stat/device", []any{map[string]any{"type": "uap"}})
	resp, err := c.Devices(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("data: %v", resp.Data)
	}
}

func TestSchema_DPICheckedAfterEnrichment(t *testing.T) {
	// WHAT: by_app answers are checked once labels are attached. A stale
	// x_cat_app_id on a known record is replaced before the check; on an
	// unknown record it stays and fails the check.
	// WHY: The labelled answer is what callers receive, so that is the shape
	// that must hold.
	ctl := unifitest.New(t)
	c := newClient(t, ctl, nil)
	ctx := context.Background()

	ctl.SetData("/api/s/default/stat/stadpi", []any{map[string]any{"mac": "aa:bb:cc:00:00:01", "by_app": []any{
		map[string]any{"app": 94, "cat": 19, "x_cat_app_id": "stale"},
	}}})
	resp, err := c.ClientDPIByApp(ctx, "", nil, nil)
	if err != nil {
		t.Fatalf("known record: %v", err)
	}
	rec := resp.Data[0].(map[string]any)["by_app"].([]any)[0].(map[string]any)
	if id, _ := rec["x_cat_app_id"].(string); len(id) != versionLen {
		t.Fatalf("x_cat_app_id not replaced: %v", rec)
	}

	ctl.SetData("/api/s/default/stat/stadpi", []any{map[string]any{"mac": "aa:bb:cc:00:00:01", "by_app": []any{
		map[string]any{"app": 7, "cat": 3, "x_cat_app_id": "stale"},
	}}})
	if _, err := c.ClientDPIByApp(ctx, "", nil, nil); !errors.Is(err, unifi.ErrSchema) {
		t.Fatalf("unknown record: got %v, want ErrSchema", err)
	}
}
