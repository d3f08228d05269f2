package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/artemis/fleetmigrate/internal/backup"
	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/migration"
	"github.com/artemis/fleetmigrate/internal/observability"
	"github.com/artemis/fleetmigrate/internal/server"
	"github.com/artemis/fleetmigrate/internal/sshpool"
	"github.com/artemis/fleetmigrate/internal/transfer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	logger  *observability.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docker-migrate",
	Short: "Fleet-wide Docker Compose stack migration tool",
	Long: `docker-migrate moves Docker Compose stacks between hosts over SSH:
inventory, backup, rsync/ZFS transfer, and port-conflict-aware redeploy.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		logger, err = observability.NewLogger("info")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
			os.Exit(1)
		}

		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			logger.Error("failed to load config", zap.Error(err))
			os.Exit(1)
		}

		if cfg.LogLevel != "" {
			if l, err := observability.NewLogger(cfg.LogLevel); err != nil {
				logger.Warn("failed to set log level, using default", zap.Error(err))
			} else {
				logger = l
			}
		}
	},
}

// buildOrchestrator wires the SSH pool, executor, backup manager, and
// transfer probe into a migration.Orchestrator, the same dependency graph
// both the serve and migrate subcommands run against.
func buildOrchestrator(hosts *config.HostRegistry, metrics *observability.Metrics) (*migration.Orchestrator, *executor.Executor, *sshpool.Pool, error) {
	creds, err := sshpool.NewFileCredentials("")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve ssh credentials: %w", err)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	auditLog, err := sshpool.NewAuditLog(filepath.Join(dataDir, "ssh-audit.log"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open ssh audit log: %w", err)
	}

	pool := sshpool.New(sshpool.PoolConfigFromConfig(cfg), creds, logger, auditLog)
	exec := executor.New(pool)

	gate := backup.NewSafetyGate()
	manifest := backup.NewDeletionManifest()
	backupMgr := backup.NewManager(exec, gate, manifest)

	store, err := backup.NewStore(filepath.Join(dataDir, "backups.jsonl"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open backup store: %w", err)
	}
	backupMgr.WithStore(store)

	probe := transfer.NewSSHProbe(exec)

	return migration.NewOrchestrator(hosts, exec, backupMgr, probe, logger, metrics), exec, pool, nil
}

func loadHosts() (*config.HostRegistry, error) {
	hosts, err := config.LoadHostRegistry(cfg.HostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load host registry %s: %w", cfg.HostsFile, err)
	}
	return hosts, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and web UI",
	Long:  "Start docker-migrate's HTTP server: migration API, status polling, and a WebSocket for finished-run events",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd, args); err != nil {
			logger.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hosts, err := loadHosts()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	healthChecker := observability.NewHealthChecker()
	healthChecker.RegisterCheck("ssh_fleet", observability.SSHFleetHealthCheck(func(ctx context.Context) error {
		if len(hosts.IDs()) == 0 {
			return fmt.Errorf("no hosts configured")
		}
		return nil
	}))
	go healthChecker.StartPeriodicChecks(ctx, 10*time.Second)

	orchestrator, exec, pool, err := buildOrchestrator(hosts, metrics)
	if err != nil {
		return err
	}
	defer pool.Close()

	httpServer := server.NewServer(cfg, hosts, orchestrator, exec, healthChecker, metrics, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
		httpServer.Stop()
	}()

	logger.Info("starting docker-migrate server",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("hosts", len(hosts.IDs())),
	)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

var listCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List fleet hosts",
	Long:  "List every host in the configured fleet registry",
	Run: func(cmd *cobra.Command, args []string) {
		hosts, err := loadHosts()
		if err != nil {
			logger.Error("failed to load hosts", zap.Error(err))
			os.Exit(1)
		}

		ids := hosts.IDs()
		fmt.Printf("Found %d hosts:\n", len(ids))
		for _, id := range ids {
			h, _ := hosts.Get(id)
			fmt.Printf("  - %s (%s) appdata=%s zfs=%v\n", h.ID, h.Hostname, h.AppdataPath, h.ZFSCapable)
		}
	},
}

var (
	migrateSource         string
	migrateTarget         string
	migrateStack          string
	migrateDryRun         bool
	migrateSkipStopSource bool
	migrateRemoveSource   bool
	migrateRecursive      bool
	migrateForceReceive   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a Compose stack to another host",
	Long:  "Run the full P1-P16 migration pipeline for one stack between two fleet hosts",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMigrate(cmd, args); err != nil {
			logger.Error("migration failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	hosts, err := loadHosts()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	orchestrator, _, pool, err := buildOrchestrator(hosts, metrics)
	if err != nil {
		return err
	}
	defer pool.Close()

	req := migration.Request{
		SourceHostID:   migrateSource,
		TargetHostID:   migrateTarget,
		StackName:      migrateStack,
		DryRun:         migrateDryRun,
		SkipStopSource: migrateSkipStopSource,
		RemoveSource:   migrateRemoveSource,
		Recursive:      migrateRecursive,
		ForceReceive:   migrateForceReceive,
	}

	logger.Info("starting migration",
		zap.String("source", req.SourceHostID),
		zap.String("target", req.TargetHostID),
		zap.String("stack", req.StackName),
		zap.Bool("dry_run", req.DryRun),
	)

	result, err := orchestrator.MigrateStack(ctx, req)
	if err != nil {
		return fmt.Errorf("migration dispatch failed: %w", err)
	}

	fmt.Printf("migration %s: status=%s risk=%d\n", result.MigrationID, result.Status, result.Risk)
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}

	if code := migration.ExitCodeFor(result); code != migration.ExitSuccess {
		os.Exit(int(code))
	}
	return nil
}

var (
	stackOpsHost string
	stackName    string
)

var getComposeCmd = &cobra.Command{
	Use:   "get-compose",
	Short: "Print a stack's docker-compose.yml from a fleet host",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGetCompose(cmd, args); err != nil {
			logger.Error("get-compose failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runGetCompose(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hosts, err := loadHosts()
	if err != nil {
		return err
	}
	host, ok := hosts.Get(stackOpsHost)
	if !ok {
		return fmt.Errorf("unknown host %q", stackOpsHost)
	}

	metrics := observability.NewMetrics()
	_, exec, pool, err := buildOrchestrator(hosts, metrics)
	if err != nil {
		return err
	}
	defer pool.Close()
	text, err := migration.GetCompose(ctx, exec, host, stackName)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

var listStacksCmd = &cobra.Command{
	Use:   "list-stacks",
	Short: "List deployed stacks on a fleet host",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runListStacks(cmd, args); err != nil {
			logger.Error("list-stacks failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runListStacks(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hosts, err := loadHosts()
	if err != nil {
		return err
	}
	host, ok := hosts.Get(stackOpsHost)
	if !ok {
		return fmt.Errorf("unknown host %q", stackOpsHost)
	}

	metrics := observability.NewMetrics()
	_, exec, pool, err := buildOrchestrator(hosts, metrics)
	if err != nil {
		return err
	}
	defer pool.Close()
	stacks, err := migration.ListStacks(ctx, exec, host)
	if err != nil {
		return err
	}
	for _, s := range stacks {
		fmt.Println(s)
	}
	return nil
}

var manageAction string

var manageStackCmd = &cobra.Command{
	Use:   "manage-stack",
	Short: "Run a docker-compose lifecycle action against a deployed stack",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runManageStack(cmd, args); err != nil {
			logger.Error("manage-stack failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runManageStack(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	hosts, err := loadHosts()
	if err != nil {
		return err
	}
	host, ok := hosts.Get(stackOpsHost)
	if !ok {
		return fmt.Errorf("unknown host %q", stackOpsHost)
	}

	metrics := observability.NewMetrics()
	_, exec, pool, err := buildOrchestrator(hosts, metrics)
	if err != nil {
		return err
	}
	defer pool.Close()
	out, err := migration.ManageStack(ctx, exec, host, stackName, migration.ManageAction(manageAction))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.fleetmigrate/config.json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(getComposeCmd)
	rootCmd.AddCommand(listStacksCmd)
	rootCmd.AddCommand(manageStackCmd)

	getComposeCmd.Flags().StringVar(&stackOpsHost, "host", "", "Host ID (required)")
	getComposeCmd.Flags().StringVar(&stackName, "stack", "", "Stack name (required)")
	getComposeCmd.MarkFlagRequired("host")
	getComposeCmd.MarkFlagRequired("stack")

	listStacksCmd.Flags().StringVar(&stackOpsHost, "host", "", "Host ID (required)")
	listStacksCmd.MarkFlagRequired("host")

	manageStackCmd.Flags().StringVar(&stackOpsHost, "host", "", "Host ID (required)")
	manageStackCmd.Flags().StringVar(&stackName, "stack", "", "Stack name (required)")
	manageStackCmd.Flags().StringVar(&manageAction, "action", "", "One of up, down, start, stop, restart, status (required)")
	manageStackCmd.MarkFlagRequired("host")
	manageStackCmd.MarkFlagRequired("stack")
	manageStackCmd.MarkFlagRequired("action")

	migrateCmd.Flags().StringVar(&migrateSource, "source", "", "Source host ID (required)")
	migrateCmd.Flags().StringVar(&migrateTarget, "target", "", "Target host ID (required)")
	migrateCmd.Flags().StringVar(&migrateStack, "stack", "", "Compose stack name (required)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Run preflight checks without transferring or restarting anything")
	migrateCmd.Flags().BoolVar(&migrateSkipStopSource, "skip-stop-source", false, "Do not stop the source stack; it must already be stopped or the migration fails")
	migrateCmd.Flags().BoolVar(&migrateRemoveSource, "remove-source", false, "Remove the source stack's compose file after a verified migration (its data is kept)")
	migrateCmd.Flags().BoolVar(&migrateRecursive, "recursive", false, "Snapshot and send ZFS child datasets recursively (ZFS transfers only)")
	migrateCmd.Flags().BoolVar(&migrateForceReceive, "force-receive", false, "Pass -F to zfs recv on the target, discarding newer target changes (ZFS transfers only)")
	migrateCmd.MarkFlagRequired("source")
	migrateCmd.MarkFlagRequired("target")
	migrateCmd.MarkFlagRequired("stack")
}
