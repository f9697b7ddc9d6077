package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// recordsTotal counts app/cat records seen, by result.
var recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "unifistat_enriched_records_total",
	Help: "DPI records visited by the enricher, by result (enriched, unmatched, unavailable)",
}, []string{"result"})
