package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/apiaryhq/swarm-vault-go/core"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func fundCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "fund",
		Usage: "move funds between the queen wallet and the swarm",
		Subcommands: []*cli.Command{
			fundDistributeCommand(log),
			fundReclaimCommand(log),
		},
	}
}

func fundDistributeCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "distribute",
		Usage: "fund every swarm wallet from the queen wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "amount",
				Usage: "native amount per wallet (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "preview the plan without signing or broadcasting",
			},
			&cli.StringFlag{
				Name:    "queen-key",
				Usage:   "hex private key of the funding wallet",
				EnvVars: []string{"SWARM_QUEEN_KEY"},
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			queenKey := c.String("queen-key")
			if queenKey == "" {
				return errors.New("queen key not provided, set SWARM_QUEEN_KEY or pass --queen-key")
			}

			opts := core.DistributeOptions{
				QueenKeyHex: queenKey,
				DryRun:      c.Bool("dry-run"),
			}
			if c.IsSet("amount") {
				amount, err := decimal.NewFromString(c.String("amount"))
				if err != nil {
					return fmt.Errorf("cannot parse amount: %w", err)
				}
				opts.Amount = amount
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine, cleanup, err := buildEngine(ctx, config, log)
			if err != nil {
				return err
			}
			defer cleanup()

			result, runErr := engine.Distribute(ctx, opts)
			if result != nil {
				printDistribution(result)
			}
			return runErr
		},
	}
}

func printDistribution(result *model.DistributionResult) {
	if result.DryRun {
		fmt.Printf("dry run %s\n", result.OperationId)
	} else {
		fmt.Printf("distribution %s\n", result.OperationId)
	}
	printOutcomes(result.Outcomes)
	fmt.Printf("\nsucceeded: %d  failed: %d  unprocessed: %d\n",
		len(result.Succeeded), len(result.Failed), len(result.Unprocessed))
	fmt.Printf("total sent: %s  total gas: %s\n",
		result.TotalSent.String(), result.TotalGas.String())
}

func fundReclaimCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "reclaim",
		Usage: "drain every swarm wallet back to the treasury",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Usage: "destination address (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "include-tokens",
				Usage: "sweep configured token balances before the native drain",
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			password, err := vaultPassword()
			if err != nil {
				return err
			}

			includeTokens := config.Reclaim.IncludeTokens
			if c.IsSet("include-tokens") {
				includeTokens = c.Bool("include-tokens")
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine, cleanup, err := buildEngine(ctx, config, log)
			if err != nil {
				return err
			}
			defer cleanup()

			result, runErr := engine.Reclaim(ctx, core.ReclaimOptions{
				Password:      password,
				TargetAddress: c.String("target"),
				IncludeTokens: includeTokens,
			})
			if result != nil {
				printReclaim(result)
			}
			return runErr
		},
	}
}

func printReclaim(result *model.ReclaimResult) {
	fmt.Printf("reclaim %s\n", result.OperationId)
	printOutcomes(result.Outcomes)
	fmt.Printf("\nready: %d  residual: %d  unprocessed: %d\n",
		len(result.Ready), len(result.Residual), len(result.Unprocessed))
	fmt.Printf("total reclaimed: %s  total gas: %s\n",
		result.TotalReclaimed.String(), result.TotalGas.String())
}

func printOutcomes(outcomes []model.TransferOutcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WALLET\tACTION\tAMOUNT\tSTATUS\tDETAIL\tTX")
	for _, outcome := range outcomes {
		detail := outcome.Detail
		if outcome.Error != "" {
			detail = outcome.Error
		}
		asset := outcome.Amount.String()
		if outcome.TokenSymbol != "" {
			asset = fmt.Sprintf("%s %s", asset, outcome.TokenSymbol)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			outcome.WalletIndex, outcome.Action, asset, outcome.Status, detail, outcome.TxId)
	}
	w.Flush()
}
