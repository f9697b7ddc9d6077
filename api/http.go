package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/unifistat/kit"
	"github.com/hazyhaar/unifistat/shield"
	"github.com/hazyhaar/unifistat/snapshot"
	"github.com/hazyhaar/unifistat/unifi"
)

// Router returns the HTTP API. /health and /metrics are public; /api/*
// requires Basic credentials from users (when non-empty) and is rate limited.
func (s *Service) Router(serve unifi.ServeConfig, rl *shield.RateLimiter) http.Handler {
	trusted, err := serve.ProxyPrefixes()
	if err != nil {
		s.logger.Warn("api: ignoring trusted proxies", "error", err)
		trusted = nil
	}
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.logger, trusted...) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if rl != nil {
			r.Use(rl.Middleware)
		}
		r.Use(shield.BasicAuth("unifistat", serve.Users))
		s.RegisterHTTP(r)
	})
	return r
}

// RegisterHTTP mounts the API routes on r, relative to /api.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/sites", s.serve(s.listSites, func(*http.Request) (any, error) { return nil, nil }))
	r.Get("/s/{site}/devices", s.serve(s.devices, siteReq))
	r.Get("/s/{site}/clients", s.serve(s.activeClients, siteReq))
	r.Get("/s/{site}/dpi", s.serve(s.dpiByApp, dpiReq))
	r.Get("/s/{site}/sitedpi", s.serve(s.siteDPIByApp, dpiReq))
	r.Get("/s/{site}/report/{interval}/{element}", s.serve(s.report, reportReq))
	r.Get("/taxonomy", s.serve(s.taxonomyInfo, func(r *http.Request) (any, error) {
		full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
		return &TaxonomyRequest{Full: full}, nil
	}))
	r.Get("/taxonomy/versions", s.serve(s.listVersions, func(*http.Request) (any, error) { return nil, nil }))
	r.Get("/taxonomy/versions/{id}", s.serve(s.getVersion, func(r *http.Request) (any, error) {
		return &VersionRequest{VersionID: chi.URLParam(r, "id")}, nil
	}))
}

func (s *Service) serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statusFor(err error) int {
	var se *unifi.StatusError
	switch {
	case errors.Is(err, unifi.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoSnapshots):
		return http.StatusNotImplemented
	case errors.As(err, &se), errors.Is(err, unifi.ErrController), errors.Is(err, unifi.ErrSchema):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func siteReq(r *http.Request) (any, error) {
	return &SiteRequest{Site: chi.URLParam(r, "site")}, nil
}

func dpiReq(r *http.Request) (any, error) {
	q := r.URL.Query()
	cats, err := intList(q["cat"])
	if err != nil {
		return nil, err
	}
	return &DPIRequest{Site: chi.URLParam(r, "site"), Macs: splitList(q["mac"]), Cats: cats}, nil
}

func reportReq(r *http.Request) (any, error) {
	q := r.URL.Query()
	req := &ReportRequest{
		Site:     chi.URLParam(r, "site"),
		Interval: chi.URLParam(r, "interval"),
		Element:  chi.URLParam(r, "element"),
		Attrs:    splitList(q["attr"]),
		Macs:     splitList(q["mac"]),
	}
	var err error
	if req.Start, err = queryInt64(q.Get("start")); err != nil {
		return nil, err
	}
	if req.End, err = queryInt64(q.Get("end")); err != nil {
		return nil, err
	}
	if w := q.Get("window"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d < time.Minute {
			return nil, errors.New("window must be a duration of at least 1m")
		}
		req.WindowMinutes = int(d / time.Minute)
	}
	return req, nil
}

// splitList accepts repeated and comma-separated query values.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func intList(vals []string) ([]int, error) {
	var out []int
	for _, s := range splitList(vals) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.New("cat must be an integer")
		}
		out = append(out, n)
	}
	return out, nil
}

func queryInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("start and end must be epoch milliseconds")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
