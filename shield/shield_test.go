package shield

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/unifistat/idgen"
	"github.com/hazyhaar/unifistat/kit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestBasicAuth(t *testing.T) {
	// WHAT: Only a known user with the right password passes.
	// WHY: The API re-exposes controller data.
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := BasicAuth("unifistat", map[string]string{"ops": string(hash)})(okHandler())

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", "ops", "nope", true, http.StatusUnauthorized},
		{"unknown user", "root", "s3cret", true, http.StatusUnauthorized},
		{"valid", "ops", "s3cret", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/sites", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status: got %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing WWW-Authenticate")
			}
		})
	}
}

func TestBasicAuth_Disabled(t *testing.T) {
	w := httptest.NewRecorder()
	BasicAuth("x", nil)(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	var gotID, gotTransport, gotAddr string
	h := RequestID(nil, idgen.Sequence("req"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetRequestID(r.Context())
		gotTransport = kit.GetTransport(r.Context())
		gotAddr = kit.GetRemoteAddr(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if gotID != "req-0001" || w.Header().Get("X-Request-ID") != "req-0001" {
		t.Fatalf("request id: ctx=%q header=%q", gotID, w.Header().Get("X-Request-ID"))
	}
	if gotTransport != "http" {
		t.Fatalf("transport: %q", gotTransport)
	}
	if gotAddr != "192.0.2.1" {
		t.Fatalf("remote addr: %q", gotAddr)
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(DefaultHeaders())(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("headers: %v", w.Header())
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { method = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/health", nil))
	if method != "GET" {
		t.Fatalf("method: %s", method)
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: A client over the limit gets 429 until the window resets.
	// WHY: Each API call fans out to the controller.
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, time.Minute, "/health")
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	call := func(path, ip string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if call("/api/sites", "10.0.0.1") != 200 || call("/api/sites", "10.0.0.1") != 200 {
		t.Fatal("first two should pass")
	}
	if got := call("/api/sites", "10.0.0.1"); got != http.StatusTooManyRequests {
		t.Fatalf("third: %d", got)
	}
	if call("/api/sites", "10.0.0.2") != 200 {
		t.Fatal("other client limited")
	}
	if call("/health", "10.0.0.1") != 200 {
		t.Fatal("excluded path limited")
	}

	now = now.Add(2 * time.Minute)
	if call("/api/sites", "10.0.0.1") != 200 {
		t.Fatal("window did not reset")
	}
	rl.gc()
}

func TestClientIP(t *testing.T) {
	// WHAT: X-Forwarded-For counts only when the peer is a trusted proxy.
	// WHY: Otherwise any caller dodges the rate limit with a forged header.
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		peer    string
		xff     string
		trusted []netip.Prefix
		want    string
	}{
		{"no proxies configured", "198.51.100.4:5555", "203.0.113.7", nil, "198.51.100.4"},
		{"untrusted peer", "198.51.100.4:5555", "203.0.113.7", trusted, "198.51.100.4"},
		{"trusted peer", "10.0.0.1:5555", "203.0.113.7", trusted, "203.0.113.7"},
		{"forged leftmost hop", "10.0.0.1:5555", "1.2.3.4, 203.0.113.7, 10.0.0.2", trusted, "203.0.113.7"},
		{"all hops trusted", "10.0.0.1:5555", "10.0.0.3", trusted, "10.0.0.3"},
		{"trusted peer without header", "10.0.0.1:5555", "", trusted, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.peer
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_ForgedHeaderStillLimited(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := RequestID(nil, nil)(rl.Middleware(okHandler()))

	codes := make([]int, 0, 2)
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/api/sites", nil)
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes: %v", codes)
	}
}

func TestRateLimiter_ConcurrentGC(t *testing.T) {
	rl := NewRateLimiter(1000, time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				rl.allow(fmt.Sprintf("10.0.0.%d", i))
				if j%20 == 0 {
					rl.gc()
				}
			}
		}(i)
	}
	wg.Wait()
}
