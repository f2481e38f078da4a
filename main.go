package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/apiaryhq/swarm-vault-go/agent"
	"github.com/apiaryhq/swarm-vault-go/audit"
	"github.com/apiaryhq/swarm-vault-go/chain"
	"github.com/apiaryhq/swarm-vault-go/core"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/utils"
	"github.com/apiaryhq/swarm-vault-go/vault"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic("cannot initialize logger: " + err.Error())
	}
	defer log.Sync()

	app := &cli.App{
		Name:  "swarmvault",
		Usage: "manage a swarm of rotating hot wallets and the funds moving through them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the yaml config file",
				Value:   "config.yaml",
				EnvVars: []string{"SWARM_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			vaultCommand(log),
			fundCommand(log),
			auditCommand(),
			agentCommand(log),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*model.Config, error) {
	return utils.ReadConfig(c.String("config"))
}

// signalContext cancels on SIGINT/SIGTERM so multi-wallet runs stop cleanly
// between wallets.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func buildEngine(ctx context.Context, config *model.Config, log *zap.Logger) (*core.Engine, func(), error) {
	v, err := vault.Load(config.Vault.Path, log)
	if err != nil {
		return nil, nil, err
	}

	auditLog, err := audit.Open(config.Audit.Path, log)
	if err != nil {
		return nil, nil, err
	}

	dialCtx, cancel := utils.GetContextWithTimeout(ctx, config)
	defer cancel()
	evm, err := chain.NewEVMClient(dialCtx, config.Chain.RpcUrl, config.Chain.ChainId,
		utils.RpcTimeout(config), log)
	if err != nil {
		auditLog.Close()
		return nil, nil, err
	}

	cleanup := func() {
		evm.Close()
		auditLog.Close()
	}
	return core.NewEngine(v, evm, auditLog, nil, config, log), cleanup, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("cannot read password: %w", err)
	}
	return string(password), nil
}

// vaultPassword reads the unlock password from the environment, falling back
// to an interactive prompt.
func vaultPassword() (string, error) {
	if password := os.Getenv(agent.VaultPasswordEnv); password != "" {
		return password, nil
	}
	return promptPassword("vault password: ")
}

// newVaultPassword collects and confirms the password for a fresh vault.
func newVaultPassword() (string, error) {
	if password := os.Getenv(agent.VaultPasswordEnv); password != "" {
		return password, nil
	}

	password, err := promptPassword("new vault password: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword("confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func confirmPhrase(expected string) error {
	fmt.Printf("type '%s' to continue: ", expected)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("cannot read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != expected {
		return errors.New("confirmation did not match, nothing done")
	}
	return nil
}
