package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "unifistat_controller_requests_total",
	Help: "Requests sent to the controller, by endpoint and HTTP status (or \"error\")",
}, []string{"endpoint", "code"})
