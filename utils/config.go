package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apiaryhq/swarm-vault-go/crypto"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-yaml/yaml"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const (
	DefaultRpcTimeoutSeconds          = 15
	DefaultConfirmationTimeoutSeconds = 90
	DefaultMetricsListenAddress       = ":9109"
)

// scheduleParser accepts the same six-field expressions the agent's scheduler
// runs with.
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ReadConfig(filename string) (*model.Config, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := &model.Config{}

	if err = yaml.Unmarshal(bytes, config); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func validateConfig(config *model.Config) error {
	if err := validateVault(config); err != nil {
		return err
	}

	if err := validateChain(config); err != nil {
		return err
	}

	if err := validateAmounts(config); err != nil {
		return err
	}

	if err := validateTokens(config); err != nil {
		return err
	}

	if err := checkUniqueRuleNames(config); err != nil {
		return err
	}
	return validateRules(config)
}

func validateVault(config *model.Config) error {
	if config.Vault.Path == "" {
		return fmt.Errorf("vault path not specified")
	}

	if config.Vault.WalletCount != 0 &&
		(config.Vault.WalletCount < vault.MinWalletCount || config.Vault.WalletCount > vault.MaxWalletCount) {
		return fmt.Errorf("wallet_count must be between %d and %d, got %d",
			vault.MinWalletCount, vault.MaxWalletCount, config.Vault.WalletCount)
	}

	if config.Vault.RotationMode == "" {
		config.Vault.RotationMode = string(model.RotationRoundRobin)
	}
	if !model.RotationMode(config.Vault.RotationMode).IsValid() {
		return fmt.Errorf("unknown rotation mode: %s", config.Vault.RotationMode)
	}

	if config.Vault.MinPasswordLength == 0 {
		config.Vault.MinPasswordLength = vault.DefaultMinPasswordLength
	}
	if config.Vault.MinPasswordLength < vault.DefaultMinPasswordLength {
		return fmt.Errorf("min_password_length cannot be below %d", vault.DefaultMinPasswordLength)
	}

	if config.Vault.KDFIterations == 0 {
		config.Vault.KDFIterations = crypto.DefaultIterations
	}
	if config.Vault.KDFIterations < crypto.DefaultIterations {
		return fmt.Errorf("kdf_iterations cannot be below %d", crypto.DefaultIterations)
	}

	if config.Audit.Path == "" {
		config.Audit.Path = filepath.Join(filepath.Dir(config.Vault.Path), "audit.log")
	}
	return nil
}

func validateChain(config *model.Config) error {
	if config.Chain.RpcUrl == "" {
		return fmt.Errorf("rpc_url not specified")
	}
	if config.Chain.ChainId <= 0 {
		return fmt.Errorf("chain_id must be positive, got %d", config.Chain.ChainId)
	}

	if config.Chain.RpcTimeoutSeconds == 0 {
		config.Chain.RpcTimeoutSeconds = DefaultRpcTimeoutSeconds
	}
	if config.Chain.ConfirmationTimeoutSeconds == 0 {
		config.Chain.ConfirmationTimeoutSeconds = DefaultConfirmationTimeoutSeconds
	}

	if config.Metrics.Enabled && config.Metrics.ListenAddress == "" {
		config.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	return nil
}

func validateAmounts(config *model.Config) error {
	var err error

	if config.Funding.Amount, err = parseAmount("funding.amount_native", config.Funding.AmountNative); err != nil {
		return err
	}
	if config.Funding.GasReserve, err = parseAmount("funding.gas_reserve_native", config.Funding.GasReserveNative); err != nil {
		return err
	}
	if config.Reclaim.Reserve, err = parseAmount("reclaim.min_native_reserve", config.Reclaim.MinNativeReserve); err != nil {
		return err
	}
	if config.Reclaim.TokenDust, err = parseAmount("reclaim.token_dust_balance", config.Reclaim.TokenDustBalance); err != nil {
		return err
	}

	if config.Reclaim.TargetAddress != "" && !common.IsHexAddress(config.Reclaim.TargetAddress) {
		return fmt.Errorf("reclaim target '%s' is not a valid address", config.Reclaim.TargetAddress)
	}
	return nil
}

// parseAmount converts a yaml amount string into a decimal. Empty means zero;
// yaml floats never touch the amounts.
func parseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse %s: %w", field, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s cannot be negative", field)
	}
	return amount, nil
}

func validateTokens(config *model.Config) error {
	symbols := make(map[string]bool)
	for _, token := range config.Tokens {
		if token.Symbol == "" {
			return fmt.Errorf("token symbol not specified")
		}
		if symbols[token.Symbol] {
			return fmt.Errorf("duplicate token symbol: %s", token.Symbol)
		}
		symbols[token.Symbol] = true

		if !common.IsHexAddress(token.Address) {
			return fmt.Errorf("token '%s' address '%s' is not a valid address", token.Symbol, token.Address)
		}
		if token.Decimals <= 0 || token.Decimals > 36 {
			return fmt.Errorf("token '%s' decimals out of range: %d", token.Symbol, token.Decimals)
		}
	}
	return nil
}

func checkUniqueRuleNames(config *model.Config) error {
	ruleNames := make(map[string]bool)
	for _, rule := range config.Rules {
		if _, exists := ruleNames[rule.Name]; exists {
			return fmt.Errorf("duplicate rule name: %s", rule.Name)
		}
		ruleNames[rule.Name] = true
	}
	return nil
}

func validateRules(config *model.Config) error {
	for _, rule := range config.Rules {
		if rule.Schedule == "" {
			return fmt.Errorf("schedule not specified for rule: %s", rule.Name)
		}
		if _, err := scheduleParser.Parse(rule.Schedule); err != nil {
			return fmt.Errorf("invalid schedule for rule '%s': %w", rule.Name, err)
		}

		switch rule.Operation {
		case model.OperationBalanceCheck:
		case model.OperationReclaimSweep:
			if config.Reclaim.TargetAddress == "" {
				return fmt.Errorf("rule '%s' needs reclaim.target_address", rule.Name)
			}
		default:
			return fmt.Errorf("unknown operation '%s' in rule '%s'", rule.Operation, rule.Name)
		}
	}
	return nil
}
