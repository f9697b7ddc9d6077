package taxonomy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// buildsTotal counts build attempts by outcome: available, source_unavailable,
// parse_error, disabled.
var buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "unifistat_taxonomy_builds_total",
	Help: "Taxonomy build attempts by outcome",
}, []string{"outcome"})
