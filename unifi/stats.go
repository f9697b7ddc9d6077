// CLAUDE:SUMMARY Read-only controller queries: inventory, reports, clients, DDNS, events and the enriched DPI endpoints.
package unifi

import (
	"context"
	"fmt"
	"slices"

	"github.com/hazyhaar/unifistat/horosafe"
)

// Response is the controller envelope. Data holds the decoded records with
// numbers as json.Number.
type Response struct {
	Meta map[string]any `json:"meta"`
	Data []any          `json:"data"`
}

// Interval is a report granularity.
type Interval string

const (
	FiveMinutes Interval = "5minutes"
	Hourly      Interval = "hourly"
	Daily       Interval = "daily"
)

// Element is the entity a report is broken down by.
type Element string

const (
	ElementSite Element = "site"
	ElementUser Element = "user"
	ElementAP   Element = "ap"
)

// Intervals and Elements list the values Report accepts.
var (
	Intervals = []Interval{FiveMinutes, Hourly, Daily}
	Elements  = []Element{ElementSite, ElementUser, ElementAP}
)

// StatAttributes are the report attributes the controller knows.
var StatAttributes = []string{
	"bytes",
	"wan-tx_bytes",
	"wan-rx_bytes",
	"wlan_bytes",
	"num_sta",
	"lan-num_sta",
	"wlan-num_sta",
	"time",
	"rx_bytes",
	"tx_bytes",
}

// ReportRequest is the body of stat/report. Zero Start/End are omitted and
// the controller picks its default window.
type ReportRequest struct {
	Attrs []string `json:"attrs"`
	Start int64    `json:"start,omitempty"`
	End   int64    `json:"end,omitempty"`
	Macs  []string `json:"macs,omitempty"`
}

type dpiRequest struct {
	Type string   `json:"type"`
	Macs []string `json:"macs,omitempty"`
	Cats []int    `json:"cats,omitempty"`
}

// Self returns the logged-in admin.
func (c *Client) Self(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/api/self", schemaSelf)
}

// Sites returns the sites visible to the admin.
func (c *Client) Sites(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/api/self/sites", schemaSites)
}

// SiteStats returns the health summary of every site.
func (c *Client) SiteStats(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/api/stat/sites", schemaSiteStats)
}

// Devices returns the adopted devices of site.
func (c *Client) Devices(ctx context.Context, site string) (*Response, error) {
	return c.siteGet(ctx, site, "stat/device", schemaDevice)
}

// Report returns interval statistics broken down by element. Every
// attribute must be in StatAttributes; nil attrs requests them all.
func (c *Client) Report(ctx context.Context, site string, interval Interval, element Element, req ReportRequest) (*Response, error) {
	if !slices.Contains(Intervals, interval) {
		return nil, fmt.Errorf("%w: interval %q, want one of %v", ErrInvalidInput, interval, Intervals)
	}
	if !slices.Contains(Elements, element) {
		return nil, fmt.Errorf("%w: element %q, want one of %v", ErrInvalidInput, element, Elements)
	}
	if req.Attrs == nil {
		req.Attrs = StatAttributes
	}
	for _, a := range req.Attrs {
		if !slices.Contains(StatAttributes, a) {
			return nil, fmt.Errorf("%w: stat attribute %q", ErrInvalidInput, a)
		}
	}
	return c.sitePost(ctx, site, fmt.Sprintf("stat/report/%s.%s", interval, element), reportSchema(element), req)
}

func (c *Client) allStats(ctx context.Context, site string, interval Interval, element Element, start, end int64) (*Response, error) {
	return c.Report(ctx, site, interval, element, ReportRequest{Attrs: StatAttributes, Start: start, End: end})
}

// FiveMinuteSiteStats returns every attribute per 5 minutes for the site.
func (c *Client) FiveMinuteSiteStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, FiveMinutes, ElementSite, start, end)
}

// FiveMinuteAPStats returns every attribute per 5 minutes per access point.
func (c *Client) FiveMinuteAPStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, FiveMinutes, ElementAP, start, end)
}

// FiveMinuteUserStats returns every attribute per 5 minutes per client.
func (c *Client) FiveMinuteUserStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, FiveMinutes, ElementUser, start, end)
}

// HourlySiteStats returns every attribute per hour for the site.
func (c *Client) HourlySiteStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, Hourly, ElementSite, start, end)
}

// HourlyAPStats returns every attribute per hour per access point.
func (c *Client) HourlyAPStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, Hourly, ElementAP, start, end)
}

// HourlyUserStats returns every attribute per hour per client.
func (c *Client) HourlyUserStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, Hourly, ElementUser, start, end)
}

// DailySiteStats returns every attribute per day for the site.
func (c *Client) DailySiteStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, Daily, ElementSite, start, end)
}

// DailyAPStats returns every attribute per day per access point.
func (c *Client) DailyAPStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, Daily, ElementAP, start, end)
}

// DailyUserStats returns every attribute per day per client.
func (c *Client) DailyUserStats(ctx context.Context, site string, start, end int64) (*Response, error) {
	return c.allStats(ctx, site, Daily, ElementUser, start, end)
}

// ActiveClients returns the clients currently connected to site.
func (c *Client) ActiveClients(ctx context.Context, site string) (*Response, error) {
	return c.siteGet(ctx, site, "stat/sta", schemaSta)
}

// KnownClients returns every client site has ever seen.
func (c *Client) KnownClients(ctx context.Context, site string) (*Response, error) {
	return c.siteGet(ctx, site, "rest/user", schemaUser)
}

// DynamicDNS returns the dynamic DNS status of site.
func (c *Client) DynamicDNS(ctx context.Context, site string) (*Response, error) {
	return c.siteGet(ctx, site, "stat/dynamicdns", schemaDynamicDNS)
}

// SiteDPIByApp returns site-wide traffic per application, optionally
// restricted to cats, with names attached.
func (c *Client) SiteDPIByApp(ctx context.Context, site string, cats []int) (*Response, error) {
	return c.dpiByApp(ctx, site, "stat/sitedpi", schemaSiteDPIByApp, dpiRequest{Type: "by_app", Cats: cats})
}

// SiteDPIByCategory returns site-wide traffic per category.
func (c *Client) SiteDPIByCategory(ctx context.Context, site string) (*Response, error) {
	return c.sitePost(ctx, site, "stat/sitedpi", schemaSiteDPIByCat, dpiRequest{Type: "by_cat"})
}

// ClientDPIByApp returns per-client traffic per application, optionally
// restricted to macs and cats, with names attached. The controller may
// ignore the category filter.
func (c *Client) ClientDPIByApp(ctx context.Context, site string, macs []string, cats []int) (*Response, error) {
	return c.dpiByApp(ctx, site, "stat/stadpi", schemaStaDPIByApp, dpiRequest{Type: "by_app", Macs: macs, Cats: cats})
}

// ClientDPIByCategory returns per-client traffic per category.
func (c *Client) ClientDPIByCategory(ctx context.Context, site string, macs []string) (*Response, error) {
	return c.sitePost(ctx, site, "stat/stadpi", schemaStaDPIByCat, dpiRequest{Type: "by_cat", Macs: macs})
}

// Events returns the recent events of site.
func (c *Client) Events(ctx context.Context, site string) (*Response, error) {
	return c.sitePost(ctx, site, "stat/event", schemaNone, nil)
}

// dpiByApp labels a by_app answer, then checks it against schema so the
// check covers the fields the enricher wrote.
func (c *Client) dpiByApp(ctx context.Context, site, suffix, schema string, body dpiRequest) (*Response, error) {
	path, err := c.sitePath(site, suffix)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, path, schemaNone, body)
	if err != nil {
		return nil, err
	}
	data, err := c.enricher.Enrich(ctx, resp.Data)
	if err != nil {
		return nil, fmt.Errorf("unifi: enrich: %w", err)
	}
	resp.Data, _ = data.([]any)
	if err := c.validate(schema, path, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) sitePath(site, suffix string) (string, error) {
	if site == "" {
		site = c.DefaultSite()
	}
	if err := horosafe.ValidateIdentifier(site); err != nil {
		return "", fmt.Errorf("%w: site: %v", ErrInvalidInput, err)
	}
	return "/api/s/" + site + "/" + suffix, nil
}

func (c *Client) siteGet(ctx context.Context, site, suffix, schema string) (*Response, error) {
	path, err := c.sitePath(site, suffix)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, path, schema)
}

func (c *Client) sitePost(ctx context.Context, site, suffix, schema string, body any) (*Response, error) {
	path, err := c.sitePath(site, suffix)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, path, schema, body)
}

func (c *Client) post(ctx context.Context, path, schema string, body any) (*Response, error) {
	var resp Response
	if err := c.tr.PostJSON(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	return c.checked(path, schema, &resp)
}

func (c *Client) get(ctx context.Context, path, schema string) (*Response, error) {
	var resp Response
	if err := c.tr.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return c.checked(path, schema, &resp)
}

func (c *Client) checked(path, schema string, resp *Response) (*Response, error) {
	if _, err := checkRC(path, resp); err != nil {
		return nil, err
	}
	if err := c.validate(schema, path, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func checkRC(path string, resp *Response) (*Response, error) {
	if rc, _ := resp.Meta["rc"].(string); rc == "error" {
		msg, _ := resp.Meta["msg"].(string)
		return nil, fmt.Errorf("%w: %s: %s", ErrController, path, msg)
	}
	return resp, nil
}
