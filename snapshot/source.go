package snapshot

import (
	"context"
	"fmt"

	"github.com/hazyhaar/unifistat/taxonomy"
)

// Source replays a recorded taxonomy. With VersionID set that exact version
// is used; otherwise the latest one seen for Controller (any controller when
// empty).
type Source struct {
	Store      *Store
	Controller string
	VersionID  string
}

// Fetch implements taxonomy.Source.
func (s *Source) Fetch(ctx context.Context) (*taxonomy.RawMaterial, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("%w: no snapshot store", taxonomy.ErrSourceUnavailable)
	}
	var (
		v   *Version
		err error
	)
	if s.VersionID != "" {
		v, err = s.Store.Get(ctx, s.VersionID)
	} else {
		v, err = s.Store.Latest(ctx, s.Controller)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", taxonomy.ErrSourceUnavailable, err)
	}
	return &taxonomy.RawMaterial{
		Kind:         taxonomy.KindTables,
		Origin:       "snapshot:" + v.ID,
		Categories:   v.Categories,
		Applications: v.Applications,
	}, nil
}
