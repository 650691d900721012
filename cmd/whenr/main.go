package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/internal/logging"
	"github.com/cwysong85/whenr-database/internal/mcp"
	"github.com/cwysong85/whenr-database/internal/searcher"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "whenr",
	Short:         "Event and venue search with incrementally maintained indexes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("whenr\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Schema Version: %s\n", storage.CurrentSchemaVersion)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if addr := a.cfg.Metrics.Addr; addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           metricsMux(a),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				a.logger.Info("metrics endpoint listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics endpoint failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		mcp.ServerVersion = version
		server := mcp.NewServer(a.store, a.writer, a.searcher,
			mcp.WithLogger(a.logger),
			mcp.WithReindexConfig(a.reindexConfig()),
		)

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Serve(ctx)
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			return nil
		case err := <-errChan:
			return err
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations, or roll back the latest one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		if rollback, _ := cmd.Flags().GetBool("rollback"); rollback {
			if err := storage.RollbackMigration(ctx, a.store.DB()); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
		}

		current, err := storage.SchemaVersion(ctx, a.store.DB())
		if err != nil {
			return err
		}
		fmt.Printf("Schema version: %s\n", current)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild every derived text and spatial entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		config := a.reindexConfig()
		if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
			config.Workers = workers
		}

		stats, err := a.writer.Reindex(cmd.Context(), &config)
		if err != nil {
			return err
		}

		fmt.Printf("Events indexed: %d\n", stats.EventsIndexed)
		fmt.Printf("Venues indexed: %d\n", stats.VenuesIndexed)
		fmt.Printf("Failed: %d\n", stats.Failed)
		fmt.Printf("Duration: %s\n", stats.Duration.Round(time.Millisecond))
		for _, msg := range stats.ErrorMessages {
			fmt.Printf("  %s\n", msg)
		}
		if stats.Failed > 0 {
			return fmt.Errorf("%d entities failed to reindex", stats.Failed)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search events from the command line",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := searchRequestFromFlags(cmd, args)
		if err != nil {
			return err
		}

		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		resp, err := a.searcher.Search(cmd.Context(), *req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func searchRequestFromFlags(cmd *cobra.Command, args []string) (*searcher.SearchRequest, error) {
	flags := cmd.Flags()
	req := &searcher.SearchRequest{}
	if len(args) == 1 {
		req.Filters.Text = args[0]
	}

	sort, _ := flags.GetString("sort")
	req.Sort = types.SortOrder(sort)
	req.Offset, _ = flags.GetInt("offset")
	req.Limit, _ = flags.GetInt("limit")

	if flags.Changed("lat") || flags.Changed("lon") || flags.Changed("radius-miles") {
		if !flags.Changed("lat") || !flags.Changed("lon") || !flags.Changed("radius-miles") {
			return nil, errors.New("--lat, --lon and --radius-miles must be given together")
		}
		lat, _ := flags.GetFloat64("lat")
		lon, _ := flags.GetFloat64("lon")
		miles, _ := flags.GetFloat64("radius-miles")
		req.Filters.Geo = searcher.NewGeoFilter(lat, lon, geoindex.MilesToMeters(miles))
	}

	var dr searcher.DateRange
	for name, dst := range map[string]**time.Time{"from": &dr.From, "to": &dr.To} {
		if !flags.Changed(name) {
			continue
		}
		raw, _ := flags.GetString(name)
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		*dst = &t
	}
	if dr.From != nil || dr.To != nil {
		req.Filters.DateRange = &dr
	}

	var pr searcher.PriceRange
	for name, dst := range map[string]**float64{"min-price": &pr.Min, "max-price": &pr.Max} {
		if !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetFloat64(name)
		*dst = &v
	}
	pr.Currency, _ = flags.GetString("currency")
	if pr.Min != nil || pr.Max != nil || pr.Currency != "" {
		req.Filters.Price = &pr
	}

	return req, nil
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("lat", 0, "latitude of the search center")
	cmd.Flags().Float64("lon", 0, "longitude of the search center")
	cmd.Flags().Float64("radius-miles", 0, "search radius in miles")
	cmd.Flags().String("from", "", "earliest start time, RFC 3339")
	cmd.Flags().String("to", "", "latest start time, RFC 3339")
	cmd.Flags().Float64("min-price", 0, "lowest offer price")
	cmd.Flags().Float64("max-price", 0, "highest offer price")
	cmd.Flags().String("currency", "", "offer currency, ISO 4217")
	cmd.Flags().String("sort", "DATE", "DATE, DISTANCE or RELEVANCE")
	cmd.Flags().Int("offset", 0, "hits to skip")
	cmd.Flags().Int("limit", 0, "hits to return (default from config)")
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, err := a.store.GetStatus(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.Health)
	})
	return mux
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml or /etc/whenr/config.yaml)")

	migrateCmd.Flags().Bool("rollback", false, "roll back the latest migration")
	reindexCmd.Flags().Int("workers", 0, "concurrent workers (default from config)")

	addSearchFlags(searchCmd)

	rootCmd.AddCommand(serveCmd, migrateCmd, reindexCmd, searchCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// config may not have loaded, so the configured logger is unavailable
		logging.Default("error").Error("command failed", "error", err)
		os.Exit(1)
	}
}
