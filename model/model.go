package model

import (
	"github.com/shopspring/decimal"
	"time"
)

type RotationMode string

const (
	RotationRoundRobin   RotationMode = "round_robin"
	RotationRandom       RotationMode = "random"
	RotationLeastUsed    RotationMode = "least_used"
	RotationBalanceBased RotationMode = "balance_based"
)

func (m RotationMode) IsValid() bool {
	switch m {
	case RotationRoundRobin, RotationRandom, RotationLeastUsed, RotationBalanceBased:
		return true
	}
	return false
}

type AuditAction string

const (
	ActionFund          AuditAction = "FUND"
	ActionReclaimNative AuditAction = "RECLAIM_NATIVE"
	ActionReclaimToken  AuditAction = "RECLAIM_TOKEN"
	ActionDissolve      AuditAction = "DISSOLVE"
)

type TransferStatus string

const (
	StatusSuccess TransferStatus = "SUCCESS"
	StatusFailure TransferStatus = "FAILURE"
)

// Detail sub-status values carried on audit records alongside Status.
const (
	DetailPendingTimeout     = "pending_timeout"
	DetailSkippedZeroBalance = "skipped_zero_balance"
	DetailDryRun             = "dry_run"
)

type KDFParams struct {
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"iterations"`
}

type SwarmWallet struct {
	Index      int        `json:"index"`
	Address    string     `json:"address"`
	Ciphertext string     `json:"encrypted_key"`
	Salt       string     `json:"salt"`
	KDF        KDFParams  `json:"kdf"`
	CreatedAt  time.Time  `json:"created_at"`
	TradeCount uint64     `json:"trade_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// SwarmConfig holds the creation-time parameters for a new swarm.
type SwarmConfig struct {
	WalletCount       int
	RotationMode      RotationMode
	FundingAmount     decimal.Decimal
	GasReserve        decimal.Decimal
	MinNativeReserve  decimal.Decimal
	MinPasswordLength int
	KDF               KDFParams
}

// AuditRecord is one attempted fund movement. WalletIndex is -1 for
// vault-level records such as dissolution.
type AuditRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	Action      AuditAction     `json:"action"`
	WalletIndex int             `json:"wallet_index"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      decimal.Decimal `json:"amount"`
	TokenSymbol string          `json:"token_symbol,omitempty"`
	TxId        string          `json:"tx_id,omitempty"`
	Status      TransferStatus  `json:"status"`
	Detail      string          `json:"detail,omitempty"`
	Error       string          `json:"error,omitempty"`
	OperationId string          `json:"operation_id,omitempty"`
}

type TransferOutcome struct {
	WalletIndex int             `json:"wallet_index"`
	Address     string          `json:"address"`
	Action      AuditAction     `json:"action"`
	TokenSymbol string          `json:"token_symbol,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	TxId        string          `json:"tx_id,omitempty"`
	Status      TransferStatus  `json:"status"`
	Detail      string          `json:"detail,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type DistributionResult struct {
	OperationId string            `json:"operation_id"`
	DryRun      bool              `json:"dry_run"`
	Succeeded   []int             `json:"succeeded"`
	Failed      []int             `json:"failed"`
	Unprocessed []int             `json:"unprocessed"`
	TotalSent   decimal.Decimal   `json:"total_sent"`
	TotalGas    decimal.Decimal   `json:"total_gas"`
	Outcomes    []TransferOutcome `json:"outcomes"`
}

type ReclaimResult struct {
	OperationId    string            `json:"operation_id"`
	Ready          []int             `json:"ready"`
	Residual       []int             `json:"residual"`
	Unprocessed    []int             `json:"unprocessed"`
	TotalReclaimed decimal.Decimal   `json:"total_reclaimed"`
	TotalGas       decimal.Decimal   `json:"total_gas"`
	Outcomes       []TransferOutcome `json:"outcomes"`
}

type WalletStatus struct {
	Index         int                        `json:"index"`
	Address       string                     `json:"address"`
	NativeBalance decimal.Decimal            `json:"native_balance"`
	TokenBalances map[string]decimal.Decimal `json:"token_balances,omitempty"`
	TradeCount    uint64                     `json:"trade_count"`
	LastUsedAt    *time.Time                 `json:"last_used_at,omitempty"`
}

type SwarmStatus struct {
	WalletCount int                        `json:"wallet_count"`
	Wallets     []WalletStatus             `json:"wallets"`
	TotalNative decimal.Decimal            `json:"total_native"`
	TokenTotals map[string]decimal.Decimal `json:"token_totals,omitempty"`
}

type Token struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Address  string `yaml:"address" json:"address"`
	Decimals int32  `yaml:"decimals" json:"decimals"`
}

const (
	OperationBalanceCheck = "balance_check"
	OperationReclaimSweep = "reclaim_sweep"
)

type Rule struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"` // Optional
	Operation   string `yaml:"operation"`
	Schedule    string `yaml:"schedule"`
}

type Config struct {
	Vault   VaultConfig   `yaml:"vault"`
	Chain   ChainConfig   `yaml:"chain"`
	Funding FundingConfig `yaml:"funding"`
	Reclaim ReclaimConfig `yaml:"reclaim"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tokens  []Token       `yaml:"tokens"`
	Rules   []Rule        `yaml:"rules"`
}

type VaultConfig struct {
	Path              string `yaml:"path"`
	WalletCount       int    `yaml:"wallet_count"`
	RotationMode      string `yaml:"rotation_mode"`
	MinPasswordLength int    `yaml:"min_password_length"`
	KDFIterations     int    `yaml:"kdf_iterations"`
}

type ChainConfig struct {
	RpcUrl                     string `yaml:"rpc_url"`
	ChainId                    int64  `yaml:"chain_id"`
	RpcTimeoutSeconds          int    `yaml:"rpc_timeout_seconds"`
	ConfirmationTimeoutSeconds int    `yaml:"confirmation_timeout_seconds"`
}

type FundingConfig struct {
	AmountNative     string `yaml:"amount_native"`
	GasReserveNative string `yaml:"gas_reserve_native"`

	// Parsed during config validation.
	Amount     decimal.Decimal `yaml:"-"`
	GasReserve decimal.Decimal `yaml:"-"`
}

type ReclaimConfig struct {
	TargetAddress    string `yaml:"target_address"`
	MinNativeReserve string `yaml:"min_native_reserve"`
	TokenDustBalance string `yaml:"token_dust_balance"`
	IncludeTokens    bool   `yaml:"include_tokens"`

	// Parsed during config validation.
	Reserve   decimal.Decimal `yaml:"-"`
	TokenDust decimal.Decimal `yaml:"-"`
}

type AuditConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}
