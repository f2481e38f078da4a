package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/apiaryhq/swarm-vault-go/core"
	"github.com/apiaryhq/swarm-vault-go/crypto"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/vault"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func vaultCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "vault",
		Usage: "create, inspect and retire the wallet swarm",
		Subcommands: []*cli.Command{
			vaultCreateCommand(log),
			vaultStatusCommand(log),
			vaultRotateCommand(log),
			vaultDissolveCommand(log),
		},
	}
}

func vaultCreateCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "generate a new encrypted wallet swarm",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "wallets",
				Usage: "number of wallets to generate (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			walletCount := config.Vault.WalletCount
			if c.IsSet("wallets") {
				walletCount = c.Int("wallets")
			}

			password, err := newVaultPassword()
			if err != nil {
				return err
			}

			v, err := vault.Create(config.Vault.Path, model.SwarmConfig{
				WalletCount:       walletCount,
				RotationMode:      model.RotationMode(config.Vault.RotationMode),
				FundingAmount:     config.Funding.Amount,
				GasReserve:        config.Funding.GasReserve,
				MinNativeReserve:  config.Reclaim.Reserve,
				MinPasswordLength: config.Vault.MinPasswordLength,
				KDF: model.KDFParams{
					Algorithm:  crypto.AlgorithmPBKDF2SHA256,
					Iterations: config.Vault.KDFIterations,
				},
			}, password, log)
			if err != nil {
				return err
			}

			fmt.Printf("created vault %s with %d wallets\n", v.Path(), v.Count())
			for _, wallet := range v.List() {
				fmt.Printf("  [%d] %s\n", wallet.Index, wallet.Address)
			}
			return nil
		},
	}
}

func vaultStatusCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show live balances and usage counters for every wallet",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the status as json",
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine, cleanup, err := buildEngine(ctx, config, log)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := engine.CollectStatus(ctx)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				out, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			printStatus(status)
			return nil
		},
	}
}

func printStatus(status *model.SwarmStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tADDRESS\tNATIVE\tTRADES\tLAST USED")
	for _, wallet := range status.Wallets {
		lastUsed := "never"
		if wallet.LastUsedAt != nil {
			lastUsed = wallet.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			wallet.Index, wallet.Address, wallet.NativeBalance.String(), wallet.TradeCount, lastUsed)
	}
	w.Flush()

	fmt.Printf("\ntotal native: %s\n", status.TotalNative.String())
	for symbol, total := range status.TokenTotals {
		fmt.Printf("total %s: %s\n", symbol, total.String())
	}
}

func vaultRotateCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "rotate",
		Usage: "pick the next wallet under the configured rotation mode",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "mark-used",
				Usage: "record a trade against the selected wallet",
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine, cleanup, err := buildEngine(ctx, config, log)
			if err != nil {
				return err
			}
			defer cleanup()

			wallet, err := engine.SelectNextWallet(ctx)
			if err != nil {
				return err
			}

			if c.Bool("mark-used") {
				if err := engine.RecordUsage(wallet.Index); err != nil {
					return err
				}
			}

			fmt.Printf("[%d] %s\n", wallet.Index, wallet.Address)
			return nil
		},
	}
}

func vaultDissolveCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "dissolve",
		Usage: "archive a fully drained vault",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "skip the interactive confirmation",
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine, cleanup, err := buildEngine(ctx, config, log)
			if err != nil {
				return err
			}
			defer cleanup()

			if !c.Bool("force") {
				phrase := fmt.Sprintf("dissolve %d wallets", engine.Vault().Count())
				if err := confirmPhrase(phrase); err != nil {
					return err
				}
			}

			archivePath, err := engine.Dissolve(ctx)
			if err != nil {
				var violation *core.InvariantViolationError
				if errors.As(err, &violation) {
					return fmt.Errorf("wallets %v still hold funds, run 'swarmvault fund reclaim' first",
						violation.OffendingIndices)
				}
				return err
			}

			fmt.Printf("vault archived to %s\n", archivePath)
			return nil
		},
	}
}
