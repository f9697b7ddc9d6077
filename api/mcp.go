package api

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/unifistat/kit"
)

// RegisterMCP registers the unifi_* tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	site := map[string]any{"type": "string", "description": "Site name (default: the session site)"}
	macs := map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Client MAC addresses to keep"}
	cats := map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "description": "DPI category ids to keep"}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_list_sites",
		Description: "List the sites visible to the controller session",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, s.listSites, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_devices",
		Description: "List the adopted devices of a site",
		InputSchema: kit.InputSchema(map[string]any{"site": site}, nil),
	}, s.devices, kit.DecodeJSON[SiteRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_active_clients",
		Description: "List the clients currently connected to a site",
		InputSchema: kit.InputSchema(map[string]any{"site": site}, nil),
	}, s.activeClients, kit.DecodeJSON[SiteRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_dpi_by_app",
		Description: "Per-client traffic by application, labelled with x_cat, x_app and x_cat_app_id",
		InputSchema: kit.InputSchema(map[string]any{"site": site, "macs": macs, "cats": cats}, nil),
	}, s.dpiByApp, kit.DecodeJSON[DPIRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_site_dpi_by_app",
		Description: "Site-wide traffic by application, labelled with x_cat, x_app and x_cat_app_id",
		InputSchema: kit.InputSchema(map[string]any{"site": site, "cats": cats}, nil),
	}, s.siteDPIByApp, kit.DecodeJSON[DPIRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_report",
		Description: "Interval statistics report (5minutes, hourly or daily) broken down by site, ap or user",
		InputSchema: kit.InputSchema(map[string]any{
			"site":           site,
			"interval":       map[string]any{"type": "string", "enum": []string{"5minutes", "hourly", "daily"}},
			"element":        map[string]any{"type": "string", "enum": []string{"site", "ap", "user"}},
			"attrs":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Attributes (default: all)"},
			"start":          map[string]any{"type": "integer", "description": "Window start, epoch ms"},
			"end":            map[string]any{"type": "integer", "description": "Window end, epoch ms"},
			"window_minutes": map[string]any{"type": "integer", "description": "Window ending now, used when start is not set"},
			"macs":           macs,
		}, []string{"interval", "element"}),
	}, s.report, kit.DecodeJSON[ReportRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_taxonomy",
		Description: "Status and version id of the session DPI taxonomy, with the tables when full is true",
		InputSchema: kit.InputSchema(map[string]any{
			"full": map[string]any{"type": "boolean", "description": "Include category and application tables"},
		}, nil),
	}, s.taxonomyInfo, kit.DecodeJSON[TaxonomyRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unifi_taxonomy_version",
		Description: "Resolve a recorded x_cat_app_id to its category and application tables",
		InputSchema: kit.InputSchema(map[string]any{
			"version_id": map[string]any{"type": "string", "description": "x_cat_app_id value"},
		}, []string{"version_id"}),
	}, s.getVersion, kit.DecodeJSON[VersionRequest]())
}
