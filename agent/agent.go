package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/apiaryhq/swarm-vault-go/audit"
	"github.com/apiaryhq/swarm-vault-go/chain"
	"github.com/apiaryhq/swarm-vault-go/core"
	"github.com/apiaryhq/swarm-vault-go/metrics"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/utils"
	"github.com/apiaryhq/swarm-vault-go/vault"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// VaultPasswordEnv must be set for scheduled reclaim sweeps; the agent never
// stores the password itself.
const VaultPasswordEnv = "SWARM_VAULT_PASSWORD"

type SwarmAgent struct {
	config *model.Config
	log    *zap.Logger
	cron   *cron.Cron

	engine   *core.Engine
	evm      *chain.EVMClient
	auditLog *audit.Log
	server   *http.Server

	ctx context.Context
}

func NewSwarmAgent(configPath string, log *zap.Logger) (*SwarmAgent, error) {
	config, err := utils.ReadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &SwarmAgent{
		config: config,
		log:    log,
		cron:   cron.New(cron.WithSeconds()),
	}, nil
}

func (a *SwarmAgent) Setup(ctx context.Context) error {
	v, err := vault.Load(a.config.Vault.Path, a.log)
	if err != nil {
		return fmt.Errorf("cannot load vault: %w", err)
	}

	auditLog, err := audit.Open(a.config.Audit.Path, a.log)
	if err != nil {
		return fmt.Errorf("cannot open audit log: %w", err)
	}

	dialCtx, cancel := utils.GetContextWithTimeout(ctx, a.config)
	defer cancel()
	evm, err := chain.NewEVMClient(dialCtx, a.config.Chain.RpcUrl, a.config.Chain.ChainId,
		utils.RpcTimeout(a.config), a.log)
	if err != nil {
		auditLog.Close()
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	m.SetSwarmWallets(v.Count())

	a.auditLog = auditLog
	a.evm = evm
	a.engine = core.NewEngine(v, evm, auditLog, m, a.config, a.log)

	if a.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		a.server = &http.Server{Addr: a.config.Metrics.ListenAddress, Handler: mux}
	}
	return nil
}

func (a *SwarmAgent) Run(ctx context.Context) error {
	a.ctx = ctx

	for _, rule := range a.config.Rules {
		rule := rule
		_, err := a.cron.AddFunc(rule.Schedule, func() {
			a.runRule(rule)
		})
		if err != nil {
			a.log.Error("failed to schedule cron job for rule", zap.String("rule_name", rule.Name), zap.Error(err))
			return err
		}
	}

	if a.server != nil {
		go func() {
			a.log.Info("metrics listening", zap.String("address", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	a.cron.Start()
	a.log.Info("swarm agent running", zap.Int("rule_count", len(a.config.Rules)))
	return nil
}

func (a *SwarmAgent) runRule(rule model.Rule) {
	switch rule.Operation {
	case model.OperationBalanceCheck:
		a.runBalanceCheck(rule)
	case model.OperationReclaimSweep:
		a.runReclaimSweep(rule)
	}
}

func (a *SwarmAgent) runBalanceCheck(rule model.Rule) {
	operationId := uuid.New().String()
	a.log.Info("checking swarm balances", zap.String("rule_name", rule.Name), zap.String("operation_id", operationId))

	status, err := a.engine.CollectStatus(a.ctx)
	if err != nil {
		a.log.Error("failed to collect swarm status", zap.String("rule_name", rule.Name), zap.String("operation_id", operationId), zap.Error(err))
		return
	}

	for _, wallet := range status.Wallets {
		a.log.Info("wallet balance",
			zap.Int("wallet_index", wallet.Index),
			zap.String("address", wallet.Address),
			zap.String("native_balance", wallet.NativeBalance.String()),
			zap.Uint64("trade_count", wallet.TradeCount),
			zap.String("operation_id", operationId))
	}

	a.log.Info("swarm totals",
		zap.Int("wallet_count", status.WalletCount),
		zap.String("total_native", status.TotalNative.String()),
		zap.Any("token_totals", status.TokenTotals),
		zap.String("operation_id", operationId))
}

func (a *SwarmAgent) runReclaimSweep(rule model.Rule) {
	password := os.Getenv(VaultPasswordEnv)
	if password == "" {
		a.log.Error("cannot run reclaim sweep without vault password",
			zap.String("rule_name", rule.Name),
			zap.String("env", VaultPasswordEnv))
		return
	}

	a.log.Info("starting scheduled reclaim sweep", zap.String("rule_name", rule.Name))

	result, err := a.engine.Reclaim(a.ctx, core.ReclaimOptions{
		Password:      password,
		IncludeTokens: a.config.Reclaim.IncludeTokens,
	})
	if err != nil {
		a.log.Error("reclaim sweep failed", zap.String("rule_name", rule.Name), zap.Error(err))
		return
	}

	a.log.Info("reclaim sweep finished",
		zap.String("rule_name", rule.Name),
		zap.String("operation_id", result.OperationId),
		zap.Int("ready", len(result.Ready)),
		zap.Int("residual", len(result.Residual)),
		zap.String("total_reclaimed", result.TotalReclaimed.String()))
}

func (a *SwarmAgent) Stop() {
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()
	a.log.Info("cron scheduler stopped, all jobs completed")

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Error("metrics server shutdown failed", zap.Error(err))
		}
	}

	if a.evm != nil {
		a.evm.Close()
	}
	if a.auditLog != nil {
		if err := a.auditLog.Close(); err != nil {
			a.log.Error("cannot close audit log", zap.Error(err))
		}
	}

	a.log.Info("swarm agent shut down")
}
