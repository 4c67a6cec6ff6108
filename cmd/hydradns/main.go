// Command hydradns wires the answer cache and address database into a
// long-running process: it loads configuration, starts the shared
// worker-pool event loop, constructs the cache/ADB pair with an
// upstream-forwarding fetcher as their concrete Resolver, runs the
// periodic TTL/overmem maintenance ticks, and serves the optional
// operator dump/stats HTTP surface. Actually answering DNS queries is
// the out-of-scope resolver iterator's job; this binary only keeps the
// two caching subsystems this repo implements alive and observable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jroosing/hydradns/internal/adb"
	"github.com/jroosing/hydradns/internal/admin"
	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/config"
	"github.com/jroosing/hydradns/internal/fetch"
	"github.com/jroosing/hydradns/internal/logging"
	"github.com/jroosing/hydradns/internal/loop"
)

const maintenanceTick = time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	host       string
	port       int
	workers    int
	debug      bool
	jsonLogs   bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.host, "host", "", "Override admin surface bind host")
	flag.IntVar(&f.port, "port", 0, "Override admin surface bind port")
	flag.IntVar(&f.workers, "workers", -1, "Fixed event-loop worker count (-1 means auto)")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.Admin.Host = f.host
	}
	if f.port != 0 {
		cfg.Admin.Port = f.port
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("hydradns starting",
		"admin_addr", fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port),
		"upstreams", cfg.Upstream.Servers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	workers := loop.DefaultWorkers
	if flags.workers > 0 {
		workers = flags.workers
	}
	l := loop.New(workers, workers*4, logger)
	l.Run(ctx)
	defer l.Close()

	c := cache.New(logger)
	c.SetServeStaleTTL(cfg.Cache.ServeStaleTTL)
	c.SetServeStaleRefresh(cfg.Cache.ServeStaleRefresh)
	c.SetWaterMarks(uint64(cfg.Cache.HighWaterBytes), uint64(cfg.Cache.LowWaterBytes))

	upstreamUDPTimeout, err := time.ParseDuration(cfg.Upstream.UDPTimeout)
	if err != nil {
		upstreamUDPTimeout = 0
	}
	upstreamTCPTimeout, err := time.ParseDuration(cfg.Upstream.TCPTimeout)
	if err != nil {
		upstreamTCPTimeout = 0
	}
	upstreamFetcher := fetch.NewUpstreamFetcher(fetch.Config{
		Upstreams:   cfg.Upstream.Servers,
		UDPTimeout:  upstreamUDPTimeout,
		TCPTimeout:  upstreamTCPTimeout,
		MaxRetries:  cfg.Upstream.MaxRetries,
		TCPFallback: cfg.Server.TCPFallback,
	}, logger)

	quotaCfg := adb.QuotaConfig{
		Quota:          uint32(cfg.ADB.Quota),
		ATRFreq:        uint32(cfg.ADB.ATRFreq),
		ATRLow:         cfg.ADB.ATRLow,
		ATRHigh:        cfg.ADB.ATRHigh,
		ATRDiscount:    cfg.ADB.ATRDiscount,
		UDPSizeDefault: uint32(cfg.ADB.UDPSizeDefault),
	}
	db := adb.New(c, upstreamFetcher, l, quotaCfg, logger)

	go runMaintenance(ctx, c, logger)

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.New(cfg.Admin, c, db, logger)
		logger.Info("admin surface starting", "addr", adminSrv.Addr())
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", "err", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("hydradns shutting down")

	db.Shutdown()
	c.Shutdown()

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = adminSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return nil
}

// runMaintenance drives the cache's TTL expiry and overmem cleaning
// cycles on a fixed tick, mirroring the background sweep the teacher's
// server runner drove for rate-limit cleanup.
func runMaintenance(ctx context.Context, c *cache.Cache, logger *slog.Logger) {
	ticker := time.NewTicker(maintenanceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().Unix()
			if n := c.ExpireTick(now); n > 0 {
				logger.Debug("expired rrsets", "count", n)
			}
			c.OvermemClean(now)
			if n := c.Reclaim(); n > 0 {
				logger.Debug("reclaimed dead nodes", "count", n)
			}
		}
	}
}
