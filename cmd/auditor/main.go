package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"port-policy-auditor/internal/config"
	"port-policy-auditor/internal/engine"
	"port-policy-auditor/internal/model"
	"port-policy-auditor/internal/parser"
	"port-policy-auditor/internal/report"
	"port-policy-auditor/internal/resolver"
)

var version = "dev"

const progressInterval = 5 * time.Second

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "port-policy-auditor",
		Short: "Audit live TCP reachability of a server fleet against per-role port policies",
		Long: `port-policy-auditor reads an inventory of roles, their servers and the
	services each role should expose, connects to every declared port of every
	server and reports each port whose actual state differs from the policy.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	flags.String("inventory", "inventory.yml", "Inventory file (for 'yaml' provider)")
	flags.String("provider", config.ProviderYAML, "Inventory provider: 'yaml', 'mariadb' or 'sqlite'")
	flags.String("db", "", "Database DSN (for 'mariadb') or database file (for 'sqlite')")
	flags.StringSlice("role", nil, "Audit only the named role (repeatable)")
	flags.String("out", "", "Output CSV file for every verdict")
	flags.String("violations", "", "Output CSV file for violations only")
	flags.Duration("timeout", engine.DefaultProbeTimeout, "Connect timeout per probe")
	flags.Duration("lookup-timeout", resolver.DefaultLookupTimeout, "Name lookup timeout per server")
	flags.IntP("workers", "w", runtime.NumCPU(), "Number of servers checked concurrently")
	flags.Int64("max-sockets", engine.DefaultMaxSockets, "Maximum probe sockets open at once")
	flags.Uint64("max-hosts", parser.DefaultMaxHosts, "Maximum addresses a CIDR server entry may expand to")
	flags.Bool("fail-on-violation", false, "Exit non-zero when a violation or unresolved server is found")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-file", "", "Rotated log file path (default: stderr)")

	cobra.CheckErr(v.BindPFlags(flags))

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, cfg *config.Config) error {
	// --- 1. Setup Logging ---
	logger := setupLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	slog.Info("Starting Port Policy Auditor", "version", version)
	startTime := time.Now()

	// --- 2. Load Inventory ---
	slog.Info("Loading inventory...", "provider", cfg.Provider)
	roles, err := loadInventory(cfg.Provider, cfg.Inventory, cfg.DB)
	if err != nil {
		slog.Error("Failed to load inventory", "error", err)
		return err
	}
	roles, err = parser.SelectRoles(roles, cfg.Roles)
	if err != nil {
		slog.Error("Failed to select roles", "roles", cfg.Roles, "error", err)
		return err
	}
	roles, err = parser.ExpandServers(roles, cfg.MaxHosts)
	if err != nil {
		slog.Error("Failed to expand server blocks", "error", err)
		return err
	}
	slog.Info("Successfully loaded inventory", "roles", len(roles), "servers", countServers(roles))

	totalProbes := estimateTotalProbes(roles)
	slog.Info("Probe count estimated", "total_probes", totalProbes)

	// --- 3. Build Pipeline ---
	prober := engine.NewTCPProber(cfg.Timeout)
	coordinator := engine.NewCoordinator(engine.NewEvaluator(prober), cfg.MaxSockets)
	runner := engine.NewRunner(resolver.New(cfg.LookupTimeout), coordinator, cfg.Workers)

	progressDone := make(chan struct{})
	if totalProbes > 0 {
		go logProgress(runner.Completed, totalProbes, progressInterval, progressDone)
	}

	// --- 4. Audit ---
	slog.Info("Starting audit", "workers", cfg.Workers, "max_sockets", cfg.MaxSockets, "timeout", cfg.Timeout)
	fleet, err := runner.Run(ctx, roles)
	close(progressDone)
	if err != nil {
		slog.Error("Audit failed", "error", err)
		return err
	}

	// --- 5. Report ---
	configureStyling(stdout)
	if err := report.RenderConsole(stdout, fleet); err != nil {
		slog.Error("Failed to render report", "error", err)
		return err
	}
	if err := writeReports(cfg.Out, cfg.Violations, fleet); err != nil {
		slog.Error("Failed to write CSV reports", "error", err)
		return err
	}

	unresolved := len(fleet.Unresolved())
	slog.Info("Audit complete", "duration", time.Since(startTime), "violations", len(fleet.Violations), "unresolved", unresolved)

	if cfg.FailOnViolation && fleet.Failures() > 0 {
		return fmt.Errorf("audit failed: %d violation(s), %d unresolved server(s)", len(fleet.Violations), unresolved)
	}
	return nil
}

// logProgress logs the completed probe count every interval until done is
// closed or every probe has finished.
func logProgress(completed func() uint64, total uint64, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastLogged uint64
	for {
		select {
		case <-ticker.C:
			finished := completed()
			if finished == lastLogged {
				continue
			}
			remaining := uint64(0)
			if finished < total {
				remaining = total - finished
			}
			percent := float64(finished) / float64(total) * 100
			slog.Info("Progress", "total_probes", total, "completed_probes", finished, "remaining_probes", remaining, "percent", fmt.Sprintf("%.2f", percent))
			lastLogged = finished
			if finished >= total {
				return
			}
		case <-done:
			return
		}
	}
}

// estimateTotalProbes is an upper bound: unresolved servers are never probed.
func estimateTotalProbes(roles []model.Role) uint64 {
	var total uint64
	for _, role := range roles {
		total += uint64(len(role.Servers)) * uint64(len(role.Policy()))
	}
	return total
}

func countServers(roles []model.Role) int {
	n := 0
	for _, role := range roles {
		n += len(role.Servers)
	}
	return n
}

func setupLogger(level, logFilePath string) *slog.Logger {
	return newLogger(level, logWriter(logFilePath, os.Stderr))
}

// logWriter returns a rotating writer for path, or fallback when path is empty
// or the file cannot be created.
func logWriter(path string, fallback io.Writer) io.Writer {
	if path == "" {
		return fallback
	}
	// lumberjack opens lazily and slog drops write errors, so the file is
	// checked here. Nothing is logged on failure: the logger does not exist yet.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fallback
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fallback
	}
	_ = f.Close()

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// configureStyling turns colours off unless out is a terminal and NO_COLOR is
// unset.
func configureStyling(out io.Writer) {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == "" {
		return
	}
	pterm.DisableStyling()
}

func loadInventory(provider, inventoryPath, dsn string) ([]model.Role, error) {
	switch provider {
	case config.ProviderYAML:
		if inventoryPath == "" {
			return nil, fmt.Errorf("inventory file path must be provided for yaml provider")
		}
		file, err := os.Open(inventoryPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return parser.ParseInventory(file)
	case config.ProviderMariaDB, config.ProviderSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("database connection string must be provided for %s provider", provider)
		}
		var (
			p   *parser.SQLInventory
			err error
		)
		if provider == config.ProviderMariaDB {
			p, err = parser.NewMariaDBInventory(dsn)
		} else {
			p, err = parser.NewSQLiteInventory(dsn)
		}
		if err != nil {
			return nil, err
		}
		defer p.Close()
		if err := p.Parse(); err != nil {
			return nil, err
		}
		return p.Roles, nil
	default:
		return nil, fmt.Errorf("unknown inventory provider: %s", provider)
	}
}

func writeReports(outPath, violationsPath string, fleet *model.FleetReport) (err error) {
	if outPath == "" && violationsPath == "" {
		return nil
	}

	var all io.Writer = io.Discard
	if outPath != "" {
		f, createErr := os.Create(outPath)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer closeFile(f, &err)
		all = f
	}

	var violations io.Writer
	if violationsPath != "" {
		f, createErr := os.Create(violationsPath)
		if createErr != nil {
			return fmt.Errorf("create violations file: %w", createErr)
		}
		defer closeFile(f, &err)
		violations = f
	}

	return report.WriteCSV(all, violations, fleet)
}

// closeFile closes f and records the close error in err unless err is already set.
func closeFile(f *os.File, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("close %s: %w", f.Name(), cerr)
	}
}
