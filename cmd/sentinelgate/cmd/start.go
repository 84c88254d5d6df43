package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/adapter/inbound/http"
	"github.com/toolgate/toolgate/internal/adapter/inbound/stdio"
	"github.com/toolgate/toolgate/internal/adapter/inbound/tcp"
	"github.com/toolgate/toolgate/internal/adapter/inbound/ws"
	jsonaudit "github.com/toolgate/toolgate/internal/adapter/outbound/audit"
	"github.com/toolgate/toolgate/internal/adapter/outbound/cel"
	"github.com/toolgate/toolgate/internal/adapter/outbound/policystore"
	"github.com/toolgate/toolgate/internal/adapter/outbound/sqlite"
	"github.com/toolgate/toolgate/internal/builtin"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/domain/audit"
	"github.com/toolgate/toolgate/internal/domain/authz"
	"github.com/toolgate/toolgate/internal/domain/credential"
	"github.com/toolgate/toolgate/internal/domain/orchestrator"
	"github.com/toolgate/toolgate/internal/domain/permission"
	"github.com/toolgate/toolgate/internal/domain/quota"
	"github.com/toolgate/toolgate/internal/domain/rpc"
	"github.com/toolgate/toolgate/internal/domain/sandbox"
	"github.com/toolgate/toolgate/internal/domain/tool"
	"github.com/toolgate/toolgate/internal/domain/token"
	"github.com/toolgate/toolgate/internal/domain/validation"
	"github.com/toolgate/toolgate/internal/server"
	"github.com/toolgate/toolgate/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the Toolgate gateway server.

The server authenticates clients, authorizes and sandboxes their tool
calls, and records every call to the audit log, over whichever wire
transport is configured (stdio, tcp, or websocket).`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

// runStart implements the boot sequence: BOOT-01 through BOOT-09.
func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	// ===== BOOT-01: Load and validate configuration =====
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	// ===== BOOT-02: Credential and token registries =====
	credentials := credential.NewRegistry(filepath.Join(cfg.DataDir, "clients.json"), logger)
	tokenLog := token.NewRegistry(filepath.Join(cfg.DataDir, "tokens.json"), logger)

	signingSecret := []byte(cfg.SigningSecret)
	minter, err := token.NewMinter(
		signingSecret,
		cfg.Tokens.Issuer,
		time.Duration(cfg.Tokens.AccessLifetimeMinutes)*time.Minute,
		time.Duration(cfg.Tokens.RefreshLifetimeDays)*24*time.Hour,
		tokenLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create token minter: %w", err)
	}

	// ===== BOOT-03: Tool registry and built-in handlers =====
	tools := tool.NewRegistry()
	handlers, err := builtin.Register(tools)
	if err != nil {
		return fmt.Errorf("failed to register built-in tools: %w", err)
	}
	logger.Info("registered built-in tools", "count", len(tools.List(ctx)))

	// ===== BOOT-04: Permissions, sandbox, quota =====
	grants := permission.NewStore()

	dirs, err := sandbox.NewDirManager(filepath.Join(cfg.DataDir, "clients"))
	if err != nil {
		return fmt.Errorf("failed to create sandbox directory manager: %w", err)
	}
	state := sandbox.NewStateStore(dirs, logger)

	quotaMgr := quota.NewManager(quota.Limits{
		CPUMillis:    int64(cfg.Quota.CPUPercent) * 10, // CPUPercent treated as percent-of-one-second budget per call
		MemoryBytes:  int64(cfg.Quota.MemoryMB) * 1024 * 1024,
		DiskBytes:    int64(cfg.Quota.DiskGB) * 1024 * 1024 * 1024,
		MaxProcesses: cfg.Quota.MaxProcesses,
	})

	// ===== BOOT-05: Audit store (json or sqlite, per storage.driver) =====
	var auditStore audit.Store
	switch cfg.Storage.Driver {
	case "sqlite":
		sqlitePath := cfg.Storage.SQLitePath
		if sqlitePath == "" {
			sqlitePath = filepath.Join(cfg.DataDir, "toolgate.db")
		}
		auditStore, err = sqlite.NewAuditStore(sqlitePath, logger)
		if err != nil {
			return fmt.Errorf("failed to open sqlite audit store: %w", err)
		}
	default:
		auditStore = jsonaudit.New(filepath.Join(cfg.DataDir, "audit.json"), filepath.Join(cfg.DataDir, "compliance.json"), logger)
	}
	if closer, ok := auditStore.(io.Closer); ok {
		defer closer.Close()
	}

	// ===== BOOT-06: Policy engine (additive-only CEL layer on top of grants) =====
	policies := policystore.New(filepath.Join(cfg.DataDir, "policies.json"), logger)
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	policyEngine := cel.NewPolicyEngine(policies, evaluator, logger)
	authzEngine := authz.NewEngine(policyEngine)

	// ===== BOOT-07: Telemetry and orchestrator =====
	tel, err := telemetry.New(ctx, cfg.Telemetry.ServiceName, Version, cfg.Telemetry.Enabled, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	orch := orchestrator.New(tools, grants, authzEngine, quotaMgr, dirs, state, auditStore, logger, tel.Tracer("toolgate/orchestrator"))

	srv := &server.Server{
		Credentials:  credentials,
		Tokens:       minter,
		TokenLog:     tokenLog,
		Tools:        tools,
		Orchestrator: orch,
		Handlers:     handlers,
		Audit:        auditStore,
		Logger:       logger,
		Sanitizer:    validation.NewSanitizer(),
		ServerInfo:   rpc.ServerInfo{Name: "toolgate", Version: Version},
		Capabilities: map[string]interface{}{"tools": map[string]interface{}{}},
	}

	// ===== BOOT-08: Monitoring side-channel (health + metrics) =====
	var monitoringServer *stdhttp.Server
	if cfg.Monitoring.Enabled {
		reg := prometheus.NewRegistry()
		metrics := http.NewMetrics(reg)
		srv.Audit = &meteredAuditStore{Store: auditStore, metrics: metrics}
		orch.Audit = srv.Audit

		health := http.NewHealthChecker(Version)
		health.Register("data_dir", func() error {
			_, err := os.Stat(cfg.DataDir)
			return err
		})

		mux := stdhttp.NewServeMux()
		mux.Handle("/health", health.Handler())
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		monitoringServer = &stdhttp.Server{Addr: cfg.Monitoring.BindAddr, Handler: mux}

		go func() {
			logger.Info("monitoring endpoint listening", "addr", cfg.Monitoring.BindAddr)
			if err := monitoringServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				logger.Error("monitoring server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			monitoringServer.Shutdown(shutdownCtx)
		}()
	}

	// ===== BOOT-09: Start the configured wire transport =====
	printBanner(Version, cfg.Transport.Kind, cfg.Transport.BindAddr, len(tools.List(ctx)), cfg.Storage.Driver)

	readTimeout := time.Duration(cfg.Transport.ReadTimeoutSeconds) * time.Second
	writeTimeout := time.Duration(cfg.Transport.WriteTimeoutSeconds) * time.Second

	switch cfg.Transport.Kind {
	case "tcp":
		t := tcp.New(cfg.Transport.BindAddr, srv.NewMachine, logger, readTimeout, writeTimeout)
		return t.Run(ctx)
	case "websocket":
		t := ws.New(cfg.Transport.BindAddr, cfg.Transport.WebSocketPath, srv.NewMachine, logger, readTimeout, writeTimeout)
		return t.Run(ctx)
	default:
		t := stdio.New(os.Stdin, os.Stdout, srv.NewMachine("stdio"), logger)
		return t.Run(ctx)
	}
}

// meteredAuditStore wraps an audit.Store, incrementing the monitoring
// endpoint's AuditAppendsTotal counter on every successful append. It
// exists only when monitoring is enabled, so the orchestrator and server
// never need to know metrics are involved.
type meteredAuditStore struct {
	audit.Store
	metrics *http.Metrics
}

func (m *meteredAuditStore) Append(ctx context.Context, e audit.Entry) error {
	if err := m.Store.Append(ctx, e); err != nil {
		return err
	}
	m.metrics.AuditAppendsTotal.Inc()
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr. It never writes
// to stdout, which the stdio transport reserves for JSON-RPC traffic.
func printBanner(version, transportKind, bindAddr string, toolCount int, storageDriver string) {
	const (
		reset = "\033[0m"
		bold  = "\033[1m"
		cyan  = "\033[36m"
		dim   = "\033[2m"
	)

	transportStr := transportKind
	if bindAddr != "" && transportKind != "stdio" {
		transportStr = fmt.Sprintf("%s (%s)", transportKind, bindAddr)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%sToolgate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Transport:", transportStr)
	fmt.Fprintf(os.Stderr, "  %-14s %d registered\n", "Tools:", toolCount)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Storage:", storageDriver)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
