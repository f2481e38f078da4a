package core

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/apiaryhq/swarm-vault-go/audit"
	"github.com/apiaryhq/swarm-vault-go/chain"
	"github.com/apiaryhq/swarm-vault-go/crypto"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/vault"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testPassword = "correct horse battery"
	queenKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	queenAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

var testUSDC = model.Token{
	Symbol:   "USDC",
	Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	Decimals: 6,
}

// fakeChain is an in-memory ledger implementing chain.Client. Broadcasts
// apply balance changes immediately so post-run re-queries see swept state.
type fakeChain struct {
	native map[string]decimal.Decimal
	tokens map[string]map[string]decimal.Decimal
	nonces map[string]uint64
	gas    decimal.Decimal

	builds     []*chain.SignedTransfer
	broadcasts []*chain.SignedTransfer
	nonceCalls []string

	nativeBalanceErr  error
	waitErr           error
	failBroadcastTo   map[string]error
	failBroadcastFrom map[string]error
	onBroadcast       func(*chain.SignedTransfer)
}

var _ chain.Client = (*fakeChain)(nil)

func newFakeChain() *fakeChain {
	return &fakeChain{
		native: make(map[string]decimal.Decimal),
		tokens: make(map[string]map[string]decimal.Decimal),
		nonces: make(map[string]uint64),
		gas:    decimal.RequireFromString("0.001"),
	}
}

func (f *fakeChain) creditToken(symbol, address string, amount decimal.Decimal) {
	if f.tokens[symbol] == nil {
		f.tokens[symbol] = make(map[string]decimal.Decimal)
	}
	f.tokens[symbol][address] = f.tokens[symbol][address].Add(amount)
}

func (f *fakeChain) NativeBalance(_ context.Context, address string) (decimal.Decimal, error) {
	if f.nativeBalanceErr != nil {
		return decimal.Zero, f.nativeBalanceErr
	}
	return f.native[address], nil
}

func (f *fakeChain) TokenBalance(_ context.Context, address string, token model.Token) (decimal.Decimal, error) {
	return f.tokens[token.Symbol][address], nil
}

func (f *fakeChain) PendingNonce(_ context.Context, address string) (uint64, error) {
	f.nonceCalls = append(f.nonceCalls, address)
	return f.nonces[address], nil
}

func (f *fakeChain) BuildAndSignTransfer(_ context.Context, privateKeyHex, to string, amount decimal.Decimal, nonce uint64) (*chain.SignedTransfer, error) {
	from, err := chain.AddressFromKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	transfer := &chain.SignedTransfer{From: from, To: to, Amount: amount, Nonce: nonce, GasLimit: 21000}
	f.builds = append(f.builds, transfer)
	return transfer, nil
}

func (f *fakeChain) BuildAndSignTokenTransfer(_ context.Context, privateKeyHex, to string, token model.Token, amount decimal.Decimal, nonce uint64) (*chain.SignedTransfer, error) {
	from, err := chain.AddressFromKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	tok := token
	transfer := &chain.SignedTransfer{From: from, To: to, Amount: amount, Token: &tok, Nonce: nonce, GasLimit: 100000}
	f.builds = append(f.builds, transfer)
	return transfer, nil
}

func (f *fakeChain) Broadcast(_ context.Context, transfer *chain.SignedTransfer) (string, error) {
	if err := f.failBroadcastTo[transfer.To]; err != nil {
		return "", err
	}
	if err := f.failBroadcastFrom[transfer.From]; err != nil {
		return "", err
	}

	txId := fmt.Sprintf("0xtx%04d", len(f.broadcasts))
	transfer.TxId = txId
	f.broadcasts = append(f.broadcasts, transfer)

	if transfer.Token != nil {
		f.creditToken(transfer.Token.Symbol, transfer.From, transfer.Amount.Neg())
		f.creditToken(transfer.Token.Symbol, transfer.To, transfer.Amount)
		f.native[transfer.From] = f.native[transfer.From].Sub(f.gas)
	} else {
		f.native[transfer.From] = f.native[transfer.From].Sub(transfer.Amount.Add(f.gas))
		f.native[transfer.To] = f.native[transfer.To].Add(transfer.Amount)
	}

	if f.onBroadcast != nil {
		f.onBroadcast(transfer)
	}
	return txId, nil
}

func (f *fakeChain) WaitForConfirmation(_ context.Context, txId string, _ time.Duration) (*chain.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &chain.Receipt{TxId: txId, Success: true, GasUsed: 21000, GasCost: f.gas}, nil
}

func (f *fakeChain) EstimateTransferCost(_ context.Context) (decimal.Decimal, error) {
	return f.gas, nil
}

func testConfig(vaultPath string, walletCount int) *model.Config {
	return &model.Config{
		Vault: model.VaultConfig{
			Path:         vaultPath,
			WalletCount:  walletCount,
			RotationMode: string(model.RotationRoundRobin),
		},
		Chain: model.ChainConfig{
			RpcUrl:                     "http://localhost:8545",
			ChainId:                    8453,
			RpcTimeoutSeconds:          5,
			ConfirmationTimeoutSeconds: 5,
		},
		Funding: model.FundingConfig{
			Amount:     decimal.RequireFromString("0.05"),
			GasReserve: decimal.RequireFromString("0.01"),
		},
		Reclaim: model.ReclaimConfig{
			TargetAddress: queenAddress,
			IncludeTokens: true,
			Reserve:       decimal.Zero,
			TokenDust:     decimal.Zero,
		},
		Tokens: []model.Token{testUSDC},
	}
}

func newTestEngine(t *testing.T, walletCount int, fake *fakeChain) *Engine {
	t.Helper()

	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "swarm.vault.json")

	v, err := vault.Create(vaultPath, model.SwarmConfig{
		WalletCount:  walletCount,
		RotationMode: model.RotationRoundRobin,
		KDF:          model.KDFParams{Algorithm: crypto.AlgorithmPBKDF2SHA256, Iterations: 4096},
	}, testPassword, zap.NewNop())
	require.NoError(t, err)

	auditLog, err := audit.Open(filepath.Join(dir, "audit.log"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })

	return NewEngine(v, fake, auditLog, nil, testConfig(vaultPath, walletCount), zap.NewNop())
}

func seedNative(fake *fakeChain, wallets []model.SwarmWallet, balance decimal.Decimal) {
	for _, w := range wallets {
		fake.native[w.Address] = balance
	}
}

func auditRecords(t *testing.T, e *Engine) []model.AuditRecord {
	t.Helper()
	records, err := audit.QueryFile(e.auditLog.Path(), audit.Filter{})
	require.NoError(t, err)
	return records
}
