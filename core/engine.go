package core

import (
	"time"

	"github.com/apiaryhq/swarm-vault-go/audit"
	"github.com/apiaryhq/swarm-vault-go/chain"
	"github.com/apiaryhq/swarm-vault-go/metrics"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/utils"
	"github.com/apiaryhq/swarm-vault-go/vault"
	"go.uber.org/zap"
)

// Engine runs fund movement against one vault. Multi-wallet operations are
// strictly sequential in wallet index order; the vault's own mutex covers
// concurrent callers mutating vault state.
type Engine struct {
	vault    *vault.Vault
	chain    chain.Client
	auditLog *audit.Log
	metrics  *metrics.Metrics
	config   *model.Config
	log      *zap.Logger
}

func NewEngine(v *vault.Vault,
	client chain.Client,
	auditLog *audit.Log,
	m *metrics.Metrics,
	config *model.Config,
	log *zap.Logger,
) *Engine {
	return &Engine{
		vault:    v,
		chain:    client,
		auditLog: auditLog,
		metrics:  m,
		config:   config,
		log:      log,
	}
}

func (e *Engine) Vault() *vault.Vault {
	return e.vault
}

func (e *Engine) confirmationTimeout() time.Duration {
	return utils.ConfirmationTimeout(e.config)
}
