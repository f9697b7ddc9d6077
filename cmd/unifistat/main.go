// CLAUDE:SUMMARY CLI entry point for unifistat: one-shot stats queries, concurrent dump, HTTP API and MCP stdio server.
// Command unifistat queries a UniFi controller and prints enriched statistics.
//
// Usage:
//
//	unifistat -config unifi.yaml sites
//	unifistat dpi -mac aa:bb:cc:dd:ee:ff      # per-client traffic by application
//	unifistat report hourly ap -window 24h
//	unifistat taxonomy                        # version id and table sizes
//	unifistat taxonomy -fixture tables.yaml   # save the tables for offline use
//	unifistat -out dump.json dump             # every read endpoint in one document
//	unifistat serve                           # HTTP API on serve.listen
//	unifistat mcp                             # MCP tools over stdio
//
// Without -config, the session is configured from UNIFI_* variables alone.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/unifistat/api"
	"github.com/hazyhaar/unifistat/shield"
	"github.com/hazyhaar/unifistat/taxonomy"
	"github.com/hazyhaar/unifistat/unifi"
)

const version = "1.0.0"

// options are the global flags.
type options struct {
	configPath string
	site       string
	out        string
}

// errUsage makes main print the usage text.
var errUsage = errors.New("usage")

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&opts.site, "site", "", "site name (overrides config)")
	flag.StringVar(&opts.out, "out", "", "write JSON output to this file instead of stdout")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = printUsage
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, logger, opts, flag.Args(), os.LookupEnv, os.Stdout)
	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("unifistat: fatal", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `unifistat: UniFi controller statistics with DPI names

usage:
  unifistat [-config file] [-site name] [-out file] [-log-level level] <command> [args]

commands:
  sites                          sites visible to the session
  devices                        adopted devices
  clients                        connected clients
  report <interval> <element>    interval report (5minutes|hourly|daily, site|ap|user)
                                 [-window 1h] [-attr a,b] [-mac m,...]
  dpi [-mac m,...] [-cat n,...]  per-client traffic by application
  sitedpi [-cat n,...]           site traffic by application
  taxonomy [-fixture file]       DPI taxonomy version and table sizes,
                                 optionally saved as a YAML fixture
  dump                           every read endpoint in one JSON document
  serve                          HTTP API
  mcp                            MCP server on stdio
`)
}

func loadConfig(opts options, lookup func(string) (string, bool)) (*unifi.Config, error) {
	cfg := unifi.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = unifi.LoadConfigFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if opts.site != "" {
		cfg.Site = opts.site
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, opts options, args []string, lookup func(string) (string, bool), stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "sites", "devices", "clients", "report", "dpi", "sitedpi", "taxonomy", "dump", "serve", "mcp":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg, err := loadConfig(opts, lookup)
	if err != nil {
		return err
	}
	client, err := unifi.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("unifistat: close session", "error", err)
		}
	}()

	switch cmd {
	case "serve":
		return runServe(ctx, logger, cfg.Serve, client)
	case "mcp":
		return runMCP(ctx, logger, client)
	}

	result, err := query(ctx, cmd, args, client)
	if err != nil {
		return err
	}
	return writeOutput(opts.out, stdout, result)
}

// query runs a one-shot command and returns the value to print.
func query(ctx context.Context, cmd string, args []string, client *unifi.Client) (any, error) {
	site := client.DefaultSite()
	switch cmd {
	case "sites":
		return client.Sites(ctx)
	case "devices":
		return client.Devices(ctx, site)
	case "clients":
		return client.ActiveClients(ctx, site)
	case "taxonomy":
		return runTaxonomy(ctx, args, client)
	case "dump":
		return dump(ctx, client)
	case "report":
		return runReport(ctx, args, client)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	macs := fs.String("mac", "", "comma-separated client MACs")
	catList := fs.String("cat", "", "comma-separated category ids")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	cats, err := parseInts(*catList)
	if err != nil {
		return nil, err
	}
	if cmd == "sitedpi" {
		return client.SiteDPIByApp(ctx, site, cats)
	}
	return client.ClientDPIByApp(ctx, site, splitList(*macs), cats)
}

func runReport(ctx context.Context, args []string, client *unifi.Client) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: report needs <interval> <element>", errUsage)
	}
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	window := fs.Duration("window", time.Hour, "period ending now")
	attrs := fs.String("attr", "", "comma-separated attributes (default: all)")
	macs := fs.String("mac", "", "comma-separated client MACs")
	if err := fs.Parse(args[2:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	start, end := unifi.LastWindow(*window)
	return client.Report(ctx, client.DefaultSite(), unifi.Interval(args[0]), unifi.Element(args[1]), unifi.ReportRequest{
		Attrs: splitList(*attrs),
		Start: start,
		End:   end,
		Macs:  splitList(*macs),
	})
}

// runTaxonomy reports the taxonomy status. With -fixture it also writes the
// tables as a YAML fixture that the fixture source can load offline.
func runTaxonomy(ctx context.Context, args []string, client *unifi.Client) (any, error) {
	fs := flag.NewFlagSet("taxonomy", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fixture := fs.String("fixture", "", "write the taxonomy as a YAML fixture to this path")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	info := taxonomyInfo(ctx, client)
	if *fixture == "" {
		return info, nil
	}
	st := client.Taxonomy(ctx)
	if st.Taxonomy == nil {
		return nil, fmt.Errorf("taxonomy %s: nothing to write", st.Status)
	}
	data, err := taxonomy.MarshalFixture(st.Taxonomy)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(*fixture, data, 0o644); err != nil {
		return nil, err
	}
	info["fixture"] = *fixture
	return info, nil
}

func taxonomyInfo(ctx context.Context, client *unifi.Client) map[string]any {
	st := client.Taxonomy(ctx)
	info := map[string]any{"status": st.Status.String()}
	if st.Err != nil {
		info["error"] = st.Err.Error()
	}
	if tax := st.Taxonomy; tax != nil {
		info["version_id"] = tax.VersionID
		info["categories"] = len(tax.Categories)
		info["applications"] = len(tax.Applications)
	}
	return info
}

// dump fetches every read endpoint concurrently. Any failure aborts the dump.
func dump(ctx context.Context, client *unifi.Client) (map[string]any, error) {
	site := client.DefaultSite()
	start, end := unifi.OneHourAgo()

	calls := map[string]func(context.Context) (*unifi.Response, error){
		"self":       client.Self,
		"sites":      client.Sites,
		"site_stats": client.SiteStats,
		"devices":    func(ctx context.Context) (*unifi.Response, error) { return client.Devices(ctx, site) },
		"clients":    func(ctx context.Context) (*unifi.Response, error) { return client.ActiveClients(ctx, site) },
		"users":      func(ctx context.Context) (*unifi.Response, error) { return client.KnownClients(ctx, site) },
		"dynamicdns": func(ctx context.Context) (*unifi.Response, error) { return client.DynamicDNS(ctx, site) },
		"events":     func(ctx context.Context) (*unifi.Response, error) { return client.Events(ctx, site) },
		"site_dpi_by_app": func(ctx context.Context) (*unifi.Response, error) {
			return client.SiteDPIByApp(ctx, site, nil)
		},
		"site_dpi_by_cat": func(ctx context.Context) (*unifi.Response, error) {
			return client.SiteDPIByCategory(ctx, site)
		},
		"client_dpi_by_app": func(ctx context.Context) (*unifi.Response, error) {
			return client.ClientDPIByApp(ctx, site, nil, nil)
		},
		"client_dpi_by_cat": func(ctx context.Context) (*unifi.Response, error) {
			return client.ClientDPIByCategory(ctx, site, nil)
		},
		"hourly_site": func(ctx context.Context) (*unifi.Response, error) {
			return client.HourlySiteStats(ctx, site, start, end)
		},
	}

	var mu sync.Mutex
	out := make(map[string]any, len(calls)+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for name, call := range calls {
		g.Go(func() error {
			resp, err := call(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			mu.Lock()
			out[name] = resp.Data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out["taxonomy"] = taxonomyInfo(ctx, client)
	return out, nil
}

func runServe(ctx context.Context, logger *slog.Logger, cfg unifi.ServeConfig, client *unifi.Client) error {
	rl := shield.NewRateLimiter(cfg.RateLimit, time.Minute)
	rl.StartGC(ctx.Done())

	svc := api.New(client, logger)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(cfg, rl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("unifistat: serving", "addr", cfg.Listen, "auth", len(cfg.Users) > 0)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context, logger *slog.Logger, client *unifi.Client) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "unifistat", Version: version}, nil)
	api.New(client, logger).RegisterMCP(srv)
	logger.Info("unifistat: MCP on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func writeOutput(path string, stdout io.Writer, v any) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: -cat %q is not an integer", unifi.ErrInvalidInput, p)
		}
		out = append(out, n)
	}
	return out, nil
}
