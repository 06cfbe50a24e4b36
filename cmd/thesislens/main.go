// Package main is the thesislens CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/cli"
	"github.com/hyperjump/thesislens/internal/config"
	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/search"
	"github.com/hyperjump/thesislens/internal/server"
	"github.com/hyperjump/thesislens/internal/vector"
	"github.com/hyperjump/thesislens/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/thesislens/config.yaml"
	defaultServerURL  = "http://localhost:5002"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "search":
		runSearch()
	case "recommend":
		runRecommend()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("thesislens version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// mustSetup loads config and creates the logger, exiting on failure.
func mustSetup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debugFlag {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config %s: %v\n", resolved, err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

// initializeEngine runs the load-or-build step. Only a dimension mismatch
// between the persisted index and the embedder terminates the process.
func initializeEngine(ctx context.Context, engine *search.Engine, logger *zap.Logger) {
	err := engine.Initialize(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, vector.ErrDimensionMismatch) {
		logger.Fatal("embedder and persisted index disagree; fix embedding.dimensions or rebuild", zap.Error(err))
	}
	logger.Error("index unavailable; queries will return 503 until restart", zap.Error(err))
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.String("store", cfg.Store.Driver),
		zap.String("warmup", cfg.Index.Warmup),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Index.Warmup == "async" {
		go initializeEngine(ctx, components.Engine, logger)
	} else {
		initializeEngine(ctx, components.Engine, logger)
	}

	srv := server.NewServer(components.Engine, components.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	stats, err := components.Engine.Rebuild(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	st := components.Engine.Status()
	fmt.Printf("Indexed %d of %d theses (%d skipped) in %s\n", stats.Indexed, stats.Total, stats.Skipped, stats.Duration.Round(time.Millisecond))
	fmt.Printf("Snapshot %s written to %s\n", st.Version, cfg.Index.Dir)
	if len(stats.SkippedIDs) > 0 {
		fmt.Printf("Skipped (no text): %s\n", strings.Join(stats.SkippedIDs, ", "))
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: thesislens search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Scores are squared L2 distances: lower means more similar.

Examples:
  thesislens search neural networks
  thesislens search --top-k 10 "graph neural networks"
  thesislens search --server "" --output json deep learning   # direct, no server
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(a, "-config="); ok {
			return v
		}
	}
	return defaultPath
}

// defaultTopKFromConfig loads config at path and returns its default top_k.
// On load failure, returns models.DefaultTopK.
func defaultTopKFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultTopK <= 0 {
		return models.DefaultTopK
	}
	return cfg.Search.DefaultTopK
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormatOrExit(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runSearch() {
	args := argsReorder(os.Args[2:])
	configPath := configPathFromArgs(args, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the snapshot directly)")
	topK := fs.Int("top-k", defaultTopKFromConfig(configPath), "number of results")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(args)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormatOrExit(*outputFormat)
	req := &models.SearchRequest{Query: queryStr, TopK: *topK}

	var response *models.SearchResponse
	if *serverURL != "" {
		var out models.SearchResponse
		if err := postJSON(*serverURL+"/api/v1/search", req, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		response = &out
	} else {
		response = searchDirect(*configPathFlag, req)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, req *models.SearchRequest) *models.SearchResponse {
	cfg, _, logger := mustSetup(configPath, false)
	defer logger.Sync()
	if err := req.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()
	initializeEngine(ctx, components.Engine, logger)

	start := time.Now()
	hits, err := components.Engine.Search(ctx, req.Query, req.TopK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	return &models.SearchResponse{Results: hits, Query: req.Query, QueryTime: time.Since(start).Milliseconds()}
}

func runRecommend() {
	args := argsReorder(os.Args[2:])
	configPath := configPathFromArgs(args, defaultConfigPath)

	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the snapshot directly)")
	topK := fs.Int("top-k", defaultTopKFromConfig(configPath), "number of recommendations")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: thesislens recommend [flags] <thesis-id>")
		os.Exit(1)
	}
	format := parseFormatOrExit(*outputFormat)
	req := &models.RecommendRequest{ThesisID: fs.Arg(0), TopK: *topK}

	var response *models.RecommendResponse
	if *serverURL != "" {
		var out models.RecommendResponse
		if err := postJSON(*serverURL+"/api/v1/recommend", req, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
			os.Exit(1)
		}
		response = &out
	} else {
		response = recommendDirect(*configPathFlag, req)
	}
	if err := cli.WriteRecommendations(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func recommendDirect(configPath string, req *models.RecommendRequest) *models.RecommendResponse {
	cfg, _, logger := mustSetup(configPath, false)
	defer logger.Sync()
	if err := req.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
		fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()
	initializeEngine(ctx, components.Engine, logger)

	start := time.Now()
	recs, err := components.Engine.Recommend(ctx, req.ThesisID, req.TopK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
		os.Exit(1)
	}
	return &models.RecommendResponse{Recommendations: recs, ThesisID: req.ThesisID, QueryTime: time.Since(start).Milliseconds()}
}

// postJSON posts body to url and decodes a 200 response into out.
func postJSON(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError turns a non-200 API response into an error carrying its message.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dbPath := fs.String("db", "", "SQLite database to import into (default: store.sqlite.path)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: thesislens import [flags] <theses.json|theses.yaml>")
		os.Exit(1)
	}
	cfg, _, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()
	if *dbPath != "" {
		cfg.Store.SQLite.Path = *dbPath
	}
	if cfg.Store.Driver != "sqlite" {
		fmt.Fprintf(os.Stderr, "Note: store.driver is %q; importing into the SQLite store at %s\n", cfg.Store.Driver, cfg.Store.SQLite.Path)
	}

	stats, err := importTheses(context.Background(), cfg.Store.SQLite.Path, fs.Arg(0), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed after %d theses: %v\n", stats.Imported, err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d theses into %s (%d full texts extracted, %d failed)\n",
		stats.Imported, cfg.Store.SQLite.Path, stats.Extracted, stats.ExtractFailed)
	fmt.Println("Run 'thesislens build' to refresh the index.")
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Index          search.Status          `json:"index"`
	Documents      *int64                 `json:"documents,omitempty"`
	StoreReachable *bool                  `json:"store_reachable,omitempty"`
	StoreError     string                 `json:"store_error,omitempty"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the snapshot directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	var err error
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		cfg, _, logger := mustSetup(*configPath, false)
		defer logger.Sync()
		status, err = statusDirect(context.Background(), cfg, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	idx := status.Index
	fmt.Fprintf(w, "state:              %s\n", idx.State)
	fmt.Fprintf(w, "index_size:         %d   # theses in the vector index\n", idx.Size)
	if status.Documents != nil {
		fmt.Fprintf(w, "documents:          %d   # theses in the document store\n", *status.Documents)
	}
	if status.StoreReachable != nil {
		fmt.Fprintf(w, "store_reachable:    %t\n", *status.StoreReachable)
	}
	if status.StoreError != "" {
		fmt.Fprintf(w, "store_error:        %s\n", status.StoreError)
	}
	if idx.Version != "" {
		fmt.Fprintf(w, "version:            %s\n", idx.Version)
		fmt.Fprintf(w, "model:              %s (%d dims)\n", idx.Model, idx.Dimensions)
		fmt.Fprintf(w, "index_type:         %s\n", idx.IndexType)
		fmt.Fprintf(w, "created_at:         %s\n", idx.CreatedAt.Format(time.RFC3339))
	}
	if idx.LastError != "" {
		fmt.Fprintf(w, "last_error:         %s\n", idx.LastError)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # snapshot files on disk\n", *status.DiskUsageBytes)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := httpClient.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Println(`thesislens - Semantic search and recommendations for a thesis repository

Usage:
  thesislens server [flags]                Start the HTTP server
  thesislens build [flags]                 Rebuild the index from the document store
  thesislens search [flags] <query>        Find theses similar to a free-text query
  thesislens recommend [flags] <thesis-id> Find theses similar to a stored thesis
  thesislens import [flags] <list-file>    Import a JSON/YAML thesis list into SQLite
  thesislens status [flags]                Show index and store status
  thesislens version                       Show version
  thesislens help                          Show this help

Server / Build Flags:
  --config string    Config file path (default: /usr/local/etc/thesislens/config.yaml)
  --debug            Enable debug logging

Search / Recommend Flags:
  --config string    Config file path (direct mode; also supplies the default top-k)
  --server string    Server URL (default: http://localhost:5002). Use --server "" to query the snapshot directly.
  --top-k int        Number of results (default from config, or 5)
  --output string    Output format: text, compact, or json (default: text)

Import Flags:
  --config string    Config file path
  --db string        SQLite database path (default: store.sqlite.path)

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL. Use --server "" to read the snapshot directly.
  --output string    Output format: text or json (default: text)

Examples:
  thesislens import theses.yaml
  thesislens build
  thesislens server
  thesislens search "graph neural networks"
  thesislens recommend --top-k 3 64b7f0c2e4b0a1d2c3e4f5a6
  thesislens status --output json`)
}
