// CLAUDE:SUMMARY In-process fake UniFi controller for tests: session login, stats endpoints, login page and DPI bundle.
// Package unifitest serves a fake UniFi controller over httptest for the
// tests of the client, the HTTP API and the command.
package unifitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Credentials accepted by the fake controller.
const (
	Username = "admin"
	Password = "p@ss/w:rd"
	Build    = "g9c8f4ab88"
)

const sessionCookie = "unifises"

// DPIBundle is the dynamic.dpi.js served for Build.
const DPIBundle = `!function(e){var t={};e.m=t}({1:[function(e,t,n){"use strict";var r={settings:{categories:{}}};` +
	`t.exports={categories:{0:{name:"Instant messaging"},19:{name:"Network protocols"}},` +
	`applications:{1:{name:"MSN"},1245278:{name:"HTTP Protocol over TLS SSL"}}}},{}]});`

// LoginPage references Build the way the controller UI does.
const LoginPage = `<!DOCTYPE html><html><head>` +
	`<script src="angular/` + Build + `/js/app.js"></script></head><body></body></html>`

// Controller is a running fake controller.
type Controller struct {
	*httptest.Server

	mu        sync.Mutex
	counts    map[string]int
	bodies    map[string][]byte
	overrides map[string][]any

	// NoBundle makes the DPI bundle path answer 404.
	NoBundle bool
}

// URI returns the controller URI with the accepted credentials embedded.
func (c *Controller) URI() string {
	u, _ := url.Parse(c.URL)
	u.User = url.UserPassword(Username, Password)
	return u.String()
}

// Count returns how many requests path received.
func (c *Controller) Count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[path]
}

// LastBody returns the last request body sent to path, decoded.
func (c *Controller) LastBody(path string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var m map[string]any
	json.Unmarshal(c.bodies[path], &m)
	return m
}

// SetData makes path answer rc "ok" with data instead of its canned records.
func (c *Controller) SetData(path string, data []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[path] = data
}

// New starts a fake controller serving the "default" site. It is closed by
// t.Cleanup.
func New(t testing.TB) *Controller {
	t.Helper()
	c := &Controller{counts: map[string]int{}, bodies: map[string][]byte{}, overrides: map[string][]any{}}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Close)
	return c
}

func (c *Controller) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.counts[r.URL.Path]++
	c.bodies[r.URL.Path] = body
	noBundle := c.NoBundle
	override, overridden := c.overrides[r.URL.Path]
	c.mu.Unlock()

	switch r.URL.Path {
	case "/api/login":
		var creds map[string]string
		json.Unmarshal(body, &creds)
		if r.Method != http.MethodPost || creds["username"] != Username || creds["password"] != Password {
			envelope(w, http.StatusBadRequest, "error", "api.err.Invalid", nil)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "session-1", Path: "/"})
		envelope(w, http.StatusOK, "ok", "", nil)
		return
	case "/manage/account/login":
		io.WriteString(w, LoginPage)
		return
	case "/manage/angular/" + Build + "/js/dynamic.dpi.js":
		if noBundle {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, DPIBundle)
		return
	}

	if ck, err := r.Cookie(sessionCookie); err != nil || ck.Value != "session-1" {
		envelope(w, http.StatusUnauthorized, "error", "api.err.LoginRequired", nil)
		return
	}

	if overridden {
		envelope(w, http.StatusOK, "ok", "", override)
		return
	}

	var req map[string]any
	json.Unmarshal(body, &req)

	switch path := r.URL.Path; {
	case path == "/api/logout":
		envelope(w, http.StatusOK, "ok", "", nil)
	case path == "/api/self":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"name": Username, "is_super": true}})
	case path == "/api/self/sites":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"name": "default", "desc": "Default", "role": "admin"}})
	case path == "/api/stat/sites":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"name": "default", "health": []any{}}})
	case !strings.HasPrefix(path, "/api/s/default/"):
		envelope(w, http.StatusBadRequest, "error", "api.err.NoSiteContext", nil)
	default:
		c.serveSite(w, strings.TrimPrefix(path, "/api/s/default/"), req)
	}
}

func (c *Controller) serveSite(w http.ResponseWriter, rest string, req map[string]any) {
	switch {
	case rest == "stat/device":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"mac": "f0:9f:c2:00:00:01", "type": "uap", "bytes": 12345678901234}})
	case strings.HasPrefix(rest, "stat/report/"):
		element := rest[strings.LastIndexByte(rest, '.')+1:]
		id := "aa:bb:cc:00:00:01"
		switch element {
		case "site":
			id = "5f3c1a2b4e0c6d0012345678"
		case "ap":
			id = "f0:9f:c2:00:00:01"
		}
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{
			"time": 1700000000000, "bytes": 1024, "attrs": req["attrs"], "o": element, element: id,
		}})
	case rest == "stat/sta":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"mac": "aa:bb:cc:00:00:01", "hostname": "laptop"}})
	case rest == "rest/user":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"mac": "aa:bb:cc:00:00:01"}, map[string]any{"mac": "aa:bb:cc:00:00:02"}})
	case rest == "stat/dynamicdns":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"service": "dyndns", "status": "good"}})
	case rest == "stat/event":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"key": "EVT_WU_Connected"}})
	case rest == "stat/sitedpi" && req["type"] == "by_app":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"by_app": []any{
			map[string]any{"app": 94, "cat": 19, "rx_bytes": 376721275, "tx_bytes": 11429772},
			map[string]any{"app": 7, "cat": 3, "rx_bytes": 10, "tx_bytes": 20},
		}}})
	case rest == "stat/sitedpi" && req["type"] == "by_cat":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"by_cat": []any{
			map[string]any{"cat": 19, "apps": []any{94}, "rx_bytes": 376721275},
		}}})
	case rest == "stat/stadpi" && req["type"] == "by_app":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"mac": "aa:bb:cc:00:00:01", "by_app": []any{
			map[string]any{"app": 94, "cat": 19, "rx_bytes": 376721275, "tx_bytes": 11429772},
			map[string]any{"app": 1, "cat": 0, "rx_bytes": 5, "tx_bytes": 6},
		}}})
	case rest == "stat/stadpi" && req["type"] == "by_cat":
		envelope(w, http.StatusOK, "ok", "", []any{map[string]any{"mac": "aa:bb:cc:00:00:01", "by_cat": []any{
			map[string]any{"cat": 19, "rx_bytes": 376721275},
		}}})
	default:
		http.NotFound(w, nil)
	}
}

func envelope(w http.ResponseWriter, code int, rc, msg string, data []any) {
	if data == nil {
		data = []any{}
	}
	meta := map[string]any{"rc": rc}
	if msg != "" {
		meta["msg"] = msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"meta": meta, "data": data})
}
