package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pushchain/push-audit-node/auditNode/analyzer"
	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/compiler"
	"github.com/pushchain/push-audit-node/auditNode/config"
	"github.com/pushchain/push-audit-node/auditNode/constant"
	"github.com/pushchain/push-audit-node/auditNode/db"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/logger"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/node"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
	"github.com/pushchain/push-audit-node/auditNode/upload"
	"github.com/pushchain/push-audit-node/auditNode/workers"
)

const uploadsSubdir = "uploads"

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(decodeReportCmd())
	rootCmd.AddCommand(versionCmd())
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to <home>/config",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := filepath.Join(nodeHome, constant.ConfigSubdir, constant.ConfigFileName)
			if _, err := os.Stat(configFile); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", configFile)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = nodeHome
			if err := config.Save(cfg, nodeHome); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Config written to %s\n", configFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the audit node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nodeHome)
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, &cfg, log)
		},
	}
}

// run wires the node from cfg and blocks until ctx is cancelled or the node dies.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("home", cfg.NodeHome).Msg("🚀 Starting audit node...")

	ethClient, err := chain.Dial(ctx, cfg.EthRPCURL, cfg.ChainID)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = ethClient.ChainID(ctx); err != nil {
			return fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	key, err := chain.LoadKey(cfg.AccountKeystoreFile, cfg.AccountPassphrase, cfg.AccountPrivateKeyHex)
	if err != nil {
		return err
	}

	var initialGasPrice *big.Int
	if cfg.DefaultGasPriceWei > 0 {
		initialGasPrice = new(big.Int).SetUint64(cfg.DefaultGasPriceWei)
	}
	state := workers.NewState(initialGasPrice)

	client, err := chain.NewClient(
		ethClient,
		cfg.AuditContractAddress,
		key,
		chainID,
		txmanager.NewGate(cfg.RPCRateLimit),
		state.GasPrice,
		txmanager.Config{
			Attempts:       cfg.TxAttempts,
			GasLimit:       cfg.GasLimit,
			ReceiptTimeout: cfg.TxTimeout(),
			PollInterval:   cfg.BlockPollInterval(),
			Confirmations:  cfg.MinConfirmations,
		},
		log,
	)
	if err != nil {
		return err
	}

	registry, err := report.NewRegistry(cfg.AnalyzerRegistry, cfg.VulnerabilityRegistry)
	if err != nil {
		return fmt.Errorf("invalid report registry: %w", err)
	}

	database, err := db.OpenFileDB(filepath.Join(cfg.NodeHome, constant.DatabasesSubdir), constant.EventsDBName, true)
	if err != nil {
		return fmt.Errorf("failed to open event database: %w", err)
	}
	events := eventstore.NewStore(database, log)

	uploader, err := upload.New(ctx, cfg.Upload, filepath.Join(cfg.NodeHome, uploadsSubdir), log)
	if err != nil {
		_ = events.Close()
		return err
	}

	n, err := node.NewNode(node.Config{
		NodeConfig: cfg,
		Store:      events,
		Ledger:     client,
		State:      state,
		Runner:     analyzer.NewRunner(cfg.Analyzers, cfg.VulnerabilityRegistry, log),
		Compiler:   compiler.New(cfg.SolcPath, cfg.CompileTimeout(), log),
		Codec:      report.NewCodec(registry),
		Uploader:   uploader,
		HTTPClient: &http.Client{Timeout: time.Minute},
		Metrics:    metrics.New(),
		Logger:     log,
	})
	if err != nil {
		_ = uploader.Close()
		_ = events.Close()
		return err
	}

	if err := n.Start(ctx); err != nil {
		_ = n.Stop()
		return err
	}
	log.Info().Msg("✅ Initialization complete. Entering main loop...")

	select {
	case <-ctx.Done():
		log.Info().Msg("🛑 Shutting down audit node...")
	case <-n.Done():
		log.Error().Err(n.Err()).Msg("🛑 Audit node stopped unexpectedly")
	}
	return n.Stop()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pauditd version info",
		Run: func(cmd *cobra.Command, args []string) {
			commit := "unknown"
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" {
						commit = s.Value
					}
				}
			}
			fmt.Printf("Name:       %s\n", "pauditd")
			fmt.Printf("Version:    %s\n", constant.Version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Go:         %s\n", runtime.Version())
		},
	}
}
