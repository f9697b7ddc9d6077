// CLAUDE:SUMMARY Embedded per-endpoint JSON schemas; every controller answer is checked against its shape before it is returned.
package unifi

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names, one per answer shape. Events are not checked.
const (
	schemaSelf         = "self"
	schemaSites        = "sites"
	schemaSiteStats    = "site_stats"
	schemaDevice       = "device"
	schemaSta          = "sta"
	schemaUser         = "user"
	schemaDynamicDNS   = "dynamicdns"
	schemaSiteDPIByApp = "sitedpi_by_app"
	schemaSiteDPIByCat = "sitedpi_by_cat"
	schemaStaDPIByApp  = "stadpi_by_app"
	schemaStaDPIByCat  = "stadpi_by_cat"
	schemaNone         = ""
)

func reportSchema(element Element) string { return "report_" + string(element) }

var loadSchemas = sync.OnceValues(func() (map[string]*jsonschema.Resolved, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*jsonschema.Resolved, len(entries))
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		var s jsonschema.Schema
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unifi: schema %s: %w", e.Name(), err)
		}
		rs, err := s.Resolve(&jsonschema.ResolveOptions{})
		if err != nil {
			return nil, fmt.Errorf("unifi: schema %s: %w", e.Name(), err)
		}
		out[strings.TrimSuffix(e.Name(), ".json")] = rs
	}
	return out, nil
})

// validate checks resp against the named schema. The answer is re-decoded
// into plain JSON values first since Data holds json.Number.
func (c *Client) validate(name, urlPath string, resp *Response) error {
	if name == schemaNone || c.cfg.SkipValidation {
		return nil
	}
	schemas, err := loadSchemas()
	if err != nil {
		return err
	}
	rs, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unifi: no schema %q", name)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, urlPath, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, urlPath, err)
	}
	if err := rs.Validate(instance); err != nil {
		c.logger.Warn("answer does not match schema", "path", urlPath, "schema", name, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrSchema, urlPath, err)
	}
	return nil
}
