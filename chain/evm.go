package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	NativeDecimals = 18

	nativeTransferGas   = 21000
	tokenTransferGas    = 100000
	defaultPollInterval = 5 * time.Second
)

// ERC-20 function selectors for balanceOf(address) and transfer(address,uint256).
var (
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selectorTransfer  = []byte{0xa9, 0x05, 0x9c, 0xbb}
)

type EVMClient struct {
	rpc          *ethclient.Client
	chainId      *big.Int
	rpcTimeout   time.Duration
	pollInterval time.Duration
	log          *zap.Logger
}

func NewEVMClient(ctx context.Context, rpcUrl string, chainId int64, rpcTimeout time.Duration, log *zap.Logger) (*EVMClient, error) {
	if chainId <= 0 {
		return nil, fmt.Errorf("chain id must be positive, got %d", chainId)
	}

	rpc, err := ethclient.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to rpc endpoint: %w", err)
	}

	return &EVMClient{
		rpc:          rpc,
		chainId:      big.NewInt(chainId),
		rpcTimeout:   rpcTimeout,
		pollInterval: defaultPollInterval,
		log:          log,
	}, nil
}

func (c *EVMClient) Close() {
	c.rpc.Close()
}

// callCtx bounds one RPC round trip. The caller's context still governs
// overall cancellation.
func (c *EVMClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.rpcTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.rpcTimeout)
}

func (c *EVMClient) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	wei, err := c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot query native balance for %s: %w", address, err)
	}
	return weiToDecimal(wei, NativeDecimals), nil
}

func (c *EVMClient) TokenBalance(ctx context.Context, address string, token model.Token) (decimal.Decimal, error) {
	tokenAddr := common.HexToAddress(token.Address)
	msg := ethereum.CallMsg{
		To:   &tokenAddr,
		Data: erc20BalanceOfData(common.HexToAddress(address)),
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot query %s balance for %s: %w", token.Symbol, address, err)
	}
	return weiToDecimal(new(big.Int).SetBytes(out), token.Decimals), nil
}

func (c *EVMClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	nonce, err := c.rpc.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("cannot query pending nonce for %s: %w", address, err)
	}
	return nonce, nil
}

func (c *EVMClient) BuildAndSignTransfer(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal, nonce uint64) (*SignedTransfer, error) {
	key, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      nativeTransferGas,
		To:       &toAddr,
		Value:    decimalToWei(amount, NativeDecimals),
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainId), key)
	if err != nil {
		return nil, fmt.Errorf("cannot sign transfer: %w", err)
	}

	return &SignedTransfer{
		From:     ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		To:       toAddr.Hex(),
		Amount:   amount,
		Nonce:    nonce,
		GasLimit: nativeTransferGas,
		TxId:     signed.Hash().Hex(),
		raw:      signed,
	}, nil
}

func (c *EVMClient) BuildAndSignTokenTransfer(ctx context.Context, privateKeyHex, to string, token model.Token, amount decimal.Decimal, nonce uint64) (*SignedTransfer, error) {
	key, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	toAddr := common.HexToAddress(to)
	tokenAddr := common.HexToAddress(token.Address)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      tokenTransferGas,
		To:       &tokenAddr,
		Value:    big.NewInt(0),
		Data:     erc20TransferData(toAddr, decimalToWei(amount, token.Decimals)),
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainId), key)
	if err != nil {
		return nil, fmt.Errorf("cannot sign token transfer: %w", err)
	}

	tok := token
	return &SignedTransfer{
		From:     ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		To:       toAddr.Hex(),
		Amount:   amount,
		Token:    &tok,
		Nonce:    nonce,
		GasLimit: tokenTransferGas,
		TxId:     signed.Hash().Hex(),
		raw:      signed,
	}, nil
}

func (c *EVMClient) Broadcast(ctx context.Context, transfer *SignedTransfer) (string, error) {
	if transfer == nil || transfer.raw == nil {
		return "", fmt.Errorf("transfer was not signed by this client")
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	if err := c.rpc.SendTransaction(ctx, transfer.raw); err != nil {
		return "", fmt.Errorf("broadcast rejected: %w", err)
	}

	txId := transfer.raw.Hash().Hex()
	c.log.Info("broadcast transfer",
		zap.String("tx_id", txId),
		zap.String("from", transfer.From),
		zap.String("to", transfer.To),
		zap.Uint64("nonce", transfer.Nonce))

	return txId, nil
}

func (c *EVMClient) WaitForConfirmation(ctx context.Context, txId string, timeout time.Duration) (*Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := common.HexToHash(txId)
	for {
		pollCtx, cancelPoll := c.callCtx(waitCtx)
		receipt, err := c.rpc.TransactionReceipt(pollCtx, hash)
		cancelPoll()
		if err == nil {
			gasCost := decimal.Zero
			if receipt.EffectiveGasPrice != nil {
				costWei := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
				gasCost = weiToDecimal(costWei, NativeDecimals)
			}
			return &Receipt{
				TxId:    txId,
				Success: receipt.Status == types.ReceiptStatusSuccessful,
				GasUsed: receipt.GasUsed,
				GasCost: gasCost,
			}, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, ErrConfirmationTimeout
			}
			return nil, fmt.Errorf("cannot query receipt for %s: %w", txId, err)
		}

		select {
		case <-waitCtx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, ErrConfirmationTimeout
			}
			return nil, waitCtx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *EVMClient) EstimateTransferCost(ctx context.Context) (decimal.Decimal, error) {
	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	costWei := new(big.Int).Mul(gasPrice, big.NewInt(nativeTransferGas))
	return weiToDecimal(costWei, NativeDecimals), nil
}

func (c *EVMClient) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot query gas price: %w", err)
	}
	return gasPrice, nil
}

func AddressFromKey(privateKeyHex string) (string, error) {
	key, err := parseKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func parseKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func weiToDecimal(wei *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -decimals)
}

func decimalToWei(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

func erc20BalanceOfData(holder common.Address) []byte {
	data := make([]byte, 0, 36)
	data = append(data, selectorBalanceOf...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)
	return data
}

func erc20TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, selectorTransfer...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
