package unifi_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/hazyhaar/unifistat/unifi"
	"github.com/hazyhaar/unifistat/unifi/unifitest"
)

func TestQueries_Endpoints(t *testing.T) {
	// WHAT: Each query hits its controller path and returns the data array.
	// WHY: The paths are the controller's undocumented API surface.
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		call func() (*unifi.Response, error)
	}{
		{"self", "/api/self", func() (*unifi.Response, error) { return c.Self(ctx) }},
		{"sites", "/api/self/sites", func() (*unifi.Response, error) { return c.Sites(ctx) }},
		{"site stats", "/api/stat/sites", func() (*unifi.Response, error) { return c.SiteStats(ctx) }},
		{"devices", "/api/s/default/stat/device", func() (*unifi.Response, error) { return c.Devices(ctx, "default") }},
		{"active clients", "/api/s/default/stat/sta", func() (*unifi.Response, error) { return c.ActiveClients(ctx, "") }},
		{"known clients", "/api/s/default/rest/user", func() (*unifi.Response, error) { return c.KnownClients(ctx, "") }},
		{"ddns", "/api/s/default/stat/dynamicdns", func() (*unifi.Response, error) { return c.DynamicDNS(ctx, "") }},
		{"events", "/api/s/default/stat/event", func() (*unifi.Response, error) { return c.Events(ctx, "") }},
		{"site dpi by cat", "/api/s/default/stat/sitedpi", func() (*unifi.Response, error) { return c.SiteDPIByCategory(ctx, "") }},
		{"client dpi by cat", "/api/s/default/stat/stadpi", func() (*unifi.Response, error) { return c.ClientDPIByCategory(ctx, "", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := ctl.Count(tt.path)
			resp, err := tt.call()
			if err != nil {
				t.Fatal(err)
			}
			if len(resp.Data) == 0 || resp.Meta["rc"] != "ok" {
				t.Fatalf("response: %+v", resp)
			}
			if ctl.Count(tt.path) != before+1 {
				t.Fatalf("%s not requested", tt.path)
			}
		})
	}
}

func TestQueries_LargeCountersKeepPrecision(t *testing.T) {
	ctl := unifitest.New(t)
	c := newClient(t, ctl, nil)
	resp, err := c.Devices(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Data[0].(map[string]any)["bytes"]; got != json.Number("12345678901234") {
		t.Fatalf("bytes: %#v", got)
	}
}

func TestDPIRequestBodies(t *testing.T) {
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })
	ctx := context.Background()

	c.ClientDPIByApp(ctx, "", []string{"aa:bb:cc:00:00:01"}, []int{19})
	got := ctl.LastBody("/api/s/default/stat/stadpi")
	want := map[string]any{"type": "by_app", "macs": []any{"aa:bb:cc:00:00:01"}, "cats": []any{float64(19)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stadpi body: %v", got)
	}

	c.SiteDPIByApp(ctx, "", nil)
	if got := ctl.LastBody("/api/s/default/stat/sitedpi"); !reflect.DeepEqual(got, map[string]any{"type": "by_app"}) {
		t.Fatalf("empty filters should be omitted: %v", got)
	}
}

func TestReport(t *testing.T) {
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })
	ctx := context.Background()

	if _, err := c.HourlyAPStats(ctx, "", 1000, 2000); err != nil {
		t.Fatal(err)
	}
	body := ctl.LastBody("/api/s/default/stat/report/hourly.ap")
	if body["start"] != float64(1000) || body["end"] != float64(2000) {
		t.Fatalf("window: %v", body)
	}
	if attrs, _ := body["attrs"].([]any); len(attrs) != len(unifi.StatAttributes) {
		t.Fatalf("attrs: %v", body["attrs"])
	}
	if _, ok := body["macs"]; ok {
		t.Fatal("macs should be omitted")
	}

	_, err := c.Report(ctx, "", unifi.FiveMinutes, unifi.ElementUser,
		unifi.ReportRequest{Attrs: []string{"rx_bytes"}, Macs: []string{"aa:bb:cc:00:00:01"}})
	if err != nil {
		t.Fatal(err)
	}
	body = ctl.LastBody("/api/s/default/stat/report/5minutes.user")
	if !reflect.DeepEqual(body["macs"], []any{"aa:bb:cc:00:00:01"}) {
		t.Fatalf("macs: %v", body)
	}
}

func TestReport_InvalidInput(t *testing.T) {
	// WHAT: Bad interval, element, attribute or site fail before any request.
	// WHY: The controller answers garbage for unknown values.
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })
	ctx := context.Background()

	cases := []func() error{
		func() error {
			_, err := c.Report(ctx, "", "weekly", unifi.ElementSite, unifi.ReportRequest{})
			return err
		},
		func() error { _, err := c.Report(ctx, "", unifi.Daily, "switch", unifi.ReportRequest{}); return err },
		func() error {
			_, err := c.Report(ctx, "", unifi.Daily, unifi.ElementSite, unifi.ReportRequest{Attrs: []string{"cpu"}})
			return err
		},
		func() error { _, err := c.Devices(ctx, "../self"); return err },
		func() error { _, err := c.SiteDPIByApp(ctx, "a/b", nil); return err },
	}
	for i, call := range cases {
		if err := call(); !errors.Is(err, unifi.ErrInvalidInput) {
			t.Errorf("case %d: got %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestQueries_ControllerErrors(t *testing.T) {
	ctl := unifitest.New(t)
	c := newClient(t, ctl, func(cfg *unifi.Config) { cfg.Taxonomy.Source = unifi.SourceOff })

	_, err := c.Devices(context.Background(), "other")
	var se *unifi.StatusError
	if !errors.As(err, &se) || se.StatusCode != 400 || se.Msg != "api.err.NoSiteContext" {
		t.Fatalf("got %v", err)
	}
}
