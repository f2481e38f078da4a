package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/apiaryhq/swarm-vault-go/audit"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/urfave/cli/v2"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "inspect the append-only fund-movement trail",
		Subcommands: []*cli.Command{
			auditListCommand(),
		},
	}
}

func auditListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "print audit records, newest last",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "action",
				Usage: "filter by action (FUND, RECLAIM_NATIVE, RECLAIM_TOKEN, DISSOLVE)",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "filter by status (SUCCESS, FAILURE)",
			},
			&cli.StringFlag{
				Name:  "operation",
				Usage: "filter by operation id",
			},
			&cli.IntFlag{
				Name:  "wallet",
				Usage: "filter by wallet index",
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "only records after an RFC3339 time or within a duration like 24h",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "keep only the most recent N records",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print records as json lines",
			},
		},
		Action: func(c *cli.Context) error {
			config, err := loadConfig(c)
			if err != nil {
				return err
			}

			filter := audit.Filter{
				Action:      model.AuditAction(c.String("action")),
				Status:      model.TransferStatus(c.String("status")),
				OperationId: c.String("operation"),
				Limit:       c.Int("limit"),
			}
			if c.IsSet("wallet") {
				index := c.Int("wallet")
				filter.WalletIndex = &index
			}
			if since := c.String("since"); since != "" {
				filter.Since, err = parseSince(since)
				if err != nil {
					return err
				}
			}

			records, err := audit.QueryFile(config.Audit.Path, filter)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				for _, record := range records {
					line, err := json.Marshal(record)
					if err != nil {
						return err
					}
					fmt.Println(string(line))
				}
				return nil
			}

			printRecords(records)
			return nil
		},
	}
}

func parseSince(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse since %q as time or duration", value)
	}
	return time.Now().UTC().Add(-d), nil
}

func printRecords(records []model.AuditRecord) {
	if len(records) == 0 {
		fmt.Println("no records")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tWALLET\tAMOUNT\tSTATUS\tDETAIL\tTX\tOPERATION")
	for _, record := range records {
		detail := record.Detail
		if record.Error != "" {
			detail = record.Error
		}
		asset := record.Amount.String()
		if record.TokenSymbol != "" {
			asset = fmt.Sprintf("%s %s", asset, record.TokenSymbol)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			record.Timestamp.Format(time.RFC3339), record.Action, record.WalletIndex,
			asset, record.Status, detail, record.TxId, record.OperationId)
	}
	w.Flush()
}
