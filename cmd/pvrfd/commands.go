package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pushchain/push-vrf-node/vrfClient/chains/svm"
	"github.com/pushchain/push-vrf-node/vrfClient/config"
	"github.com/pushchain/push-vrf-node/vrfClient/core"
	"github.com/pushchain/push-vrf-node/vrfClient/db"
	"github.com/pushchain/push-vrf-node/vrfClient/logger"
	"github.com/pushchain/push-vrf-node/vrfClient/txstore"
	"github.com/pushchain/push-vrf-node/vrfClient/vrf"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=...".
var (
	Version = "dev"
	Commit  = ""
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(versionCmd())
}

func loadValidated() (*config.VrfConfig, error) {
	raw, err := config.Load(homeDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := config.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file to the node home",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(homeDir, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "📝 Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing config file")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the VRF oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidated()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := db.Open(cfg.DatabaseURL, db.Options{
				MaxOpenConns:    cfg.DBMaxOpenConns,
				CheckoutTimeout: cfg.DBCheckoutTimeout,
				MigrateSchema:   true,
			})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}

			chain, err := svm.NewRPCClient(ctx, svm.Options{
				RPCURLs:             cfg.RPCURLs,
				WSURL:               cfg.WSURL,
				Commitment:          cfg.Commitment,
				NewBlockhashTimeout: cfg.NewBlockhashTimeout,
			}, log)
			if err != nil {
				_ = database.Close()
				return fmt.Errorf("failed to connect to cluster %s: %w", cfg.Cluster, err)
			}
			defer chain.Close()

			client, err := core.NewVrfClient(ctx, log, cfg, database, chain)
			if err != nil {
				_ = database.Close()
				return err
			}
			return client.Start()
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the number of stored transactions per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := config.Load(homeDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			database, err := db.Open(raw.DatabaseURL, db.Options{
				MaxOpenConns:    1,
				CheckoutTimeout: time.Duration(raw.DBCheckoutTimeoutSeconds) * time.Second,
				MigrateSchema:   true,
			})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			store := txstore.NewStore(database.Client(), database.CheckoutTimeout(), logger.New(5, "console", false))
			counts, err := store.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tCOUNT")
			for _, status := range txstore.Statuses {
				fmt.Fprintf(w, "%s\t%d\n", status, counts[status])
			}
			return w.Flush()
		},
	}
}

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Print the owner address and the VRF public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidated()
			if err != nil {
				return err
			}
			prover, err := vrf.NewProver(cfg.Secret)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Owner:          %s\n", cfg.Owner.PublicKey())
			fmt.Fprintf(out, "VRF Public Key: %s\n", hex.EncodeToString(prover.CompressedPublicKey()))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pvrfd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Name:       %s\n", "pvrfd")
			fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", Commit)
		},
	}
}
