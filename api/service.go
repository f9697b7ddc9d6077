// CLAUDE:SUMMARY Transport-agnostic endpoints over a controller session, shared by the HTTP API and the MCP tools.
// Package api exposes a controller session to other programs: a chi HTTP
// API and MCP tools, both calling the same kit endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/unifistat/kit"
	"github.com/hazyhaar/unifistat/snapshot"
	"github.com/hazyhaar/unifistat/taxonomy"
	"github.com/hazyhaar/unifistat/unifi"
)

// Controller is the part of *unifi.Client the API uses.
type Controller interface {
	Sites(ctx context.Context) (*unifi.Response, error)
	Devices(ctx context.Context, site string) (*unifi.Response, error)
	ActiveClients(ctx context.Context, site string) (*unifi.Response, error)
	SiteDPIByApp(ctx context.Context, site string, cats []int) (*unifi.Response, error)
	ClientDPIByApp(ctx context.Context, site string, macs []string, cats []int) (*unifi.Response, error)
	Report(ctx context.Context, site string, interval unifi.Interval, element unifi.Element, req unifi.ReportRequest) (*unifi.Response, error)
	Taxonomy(ctx context.Context) taxonomy.State
	Snapshots() *snapshot.Store
}

// ErrNoSnapshots is returned by the version endpoints without a store.
var ErrNoSnapshots = errors.New("api: no snapshot store configured")

// Service holds the endpoints.
type Service struct {
	ctl    Controller
	logger *slog.Logger

	listSites     kit.Endpoint
	devices       kit.Endpoint
	activeClients kit.Endpoint
	dpiByApp      kit.Endpoint
	siteDPIByApp  kit.Endpoint
	report        kit.Endpoint
	taxonomyInfo  kit.Endpoint
	listVersions  kit.Endpoint
	getVersion    kit.Endpoint
}

// New builds the service. Every endpoint is logged through kit.Logging.
func New(ctl Controller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{ctl: ctl, logger: logger}
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(logger, name))(ep)
	}
	s.listSites = wrap("list_sites", s.doListSites)
	s.devices = wrap("devices", s.doDevices)
	s.activeClients = wrap("active_clients", s.doActiveClients)
	s.dpiByApp = wrap("dpi_by_app", s.doDPIByApp)
	s.siteDPIByApp = wrap("site_dpi_by_app", s.doSiteDPIByApp)
	s.report = wrap("report", s.doReport)
	s.taxonomyInfo = wrap("taxonomy", s.doTaxonomy)
	s.listVersions = wrap("list_versions", s.doListVersions)
	s.getVersion = wrap("get_version", s.doGetVersion)
	return s
}

// SiteRequest names a site; empty means the session default.
type SiteRequest struct {
	Site string `json:"site"`
}

// DPIRequest filters a DPI query.
type DPIRequest struct {
	Site string   `json:"site"`
	Macs []string `json:"macs,omitempty"`
	Cats []int    `json:"cats,omitempty"`
}

// ReportRequest selects a report. With WindowMinutes set and no explicit
// Start, the window ends now.
type ReportRequest struct {
	Site          string   `json:"site"`
	Interval      string   `json:"interval"`
	Element       string   `json:"element"`
	Attrs         []string `json:"attrs,omitempty"`
	Start         int64    `json:"start,omitempty"`
	End           int64    `json:"end,omitempty"`
	WindowMinutes int      `json:"window_minutes,omitempty"`
	Macs          []string `json:"macs,omitempty"`
}

// TaxonomyRequest asks for the session taxonomy, with tables when Full.
type TaxonomyRequest struct {
	Full bool `json:"full"`
}

// TaxonomyInfo describes the session taxonomy.
type TaxonomyInfo struct {
	Status            string                      `json:"status"`
	VersionID         string                      `json:"version_id,omitempty"`
	CategoryDigest    string                      `json:"category_digest,omitempty"`
	ApplicationDigest string                      `json:"app_digest,omitempty"`
	CategoryCount     int                         `json:"category_count"`
	ApplicationCount  int                         `json:"application_count"`
	Error             string                      `json:"error,omitempty"`
	Categories        []taxonomy.CategoryEntry    `json:"categories,omitempty"`
	Applications      []taxonomy.ApplicationEntry `json:"applications,omitempty"`
}

// VersionRequest names a recorded taxonomy version.
type VersionRequest struct {
	VersionID string `json:"version_id"`
}

func (s *Service) doListSites(ctx context.Context, _ any) (any, error) {
	return s.ctl.Sites(ctx)
}

func (s *Service) doDevices(ctx context.Context, req any) (any, error) {
	return s.ctl.Devices(ctx, req.(*SiteRequest).Site)
}

func (s *Service) doActiveClients(ctx context.Context, req any) (any, error) {
	return s.ctl.ActiveClients(ctx, req.(*SiteRequest).Site)
}

func (s *Service) doDPIByApp(ctx context.Context, req any) (any, error) {
	p := req.(*DPIRequest)
	return s.ctl.ClientDPIByApp(ctx, p.Site, p.Macs, p.Cats)
}

func (s *Service) doSiteDPIByApp(ctx context.Context, req any) (any, error) {
	p := req.(*DPIRequest)
	return s.ctl.SiteDPIByApp(ctx, p.Site, p.Cats)
}

func (s *Service) doReport(ctx context.Context, req any) (any, error) {
	p := req.(*ReportRequest)
	start, end := p.Start, p.End
	if p.WindowMinutes < 0 {
		return nil, fmt.Errorf("%w: window_minutes must be positive", unifi.ErrInvalidInput)
	}
	if p.WindowMinutes > 0 && start == 0 {
		start, end = unifi.LastWindow(time.Duration(p.WindowMinutes) * time.Minute)
	}
	return s.ctl.Report(ctx, p.Site, unifi.Interval(p.Interval), unifi.Element(p.Element), unifi.ReportRequest{
		Attrs: p.Attrs,
		Start: start,
		End:   end,
		Macs:  p.Macs,
	})
}

func (s *Service) doTaxonomy(ctx context.Context, req any) (any, error) {
	full := false
	if p, ok := req.(*TaxonomyRequest); ok && p != nil {
		full = p.Full
	}
	st := s.ctl.Taxonomy(ctx)
	info := &TaxonomyInfo{Status: st.Status.String()}
	if st.Err != nil {
		info.Error = st.Err.Error()
	}
	if tax := st.Taxonomy; tax != nil {
		info.VersionID = tax.VersionID
		info.CategoryDigest = tax.CategoryDigest
		info.ApplicationDigest = tax.ApplicationDigest
		info.CategoryCount = len(tax.Categories)
		info.ApplicationCount = len(tax.Applications)
		if full {
			info.Categories = tax.CategoryList()
			info.Applications = tax.ApplicationList()
		}
	}
	return info, nil
}

func (s *Service) doListVersions(ctx context.Context, _ any) (any, error) {
	store := s.ctl.Snapshots()
	if store == nil {
		return nil, ErrNoSnapshots
	}
	versions, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []*snapshot.Version{}
	}
	return versions, nil
}

func (s *Service) doGetVersion(ctx context.Context, req any) (any, error) {
	store := s.ctl.Snapshots()
	if store == nil {
		return nil, ErrNoSnapshots
	}
	return store.Get(ctx, req.(*VersionRequest).VersionID)
}
