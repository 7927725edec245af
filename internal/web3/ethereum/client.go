package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"AVA-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultReceiptTimeout = 2 * time.Minute
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name           string
	RPCURL         string
	PrivateKey     string
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// Client implements the web3.Client interface for EVM compatible chains.
// Transactions are signed locally with the configured key and nonces are
// serialized through a mutex, so one client equals one sending account.
type Client struct {
	name           string
	eth            *ethclient.Client
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	pollInterval   time.Duration
	receiptTimeout time.Duration
	mu             sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if keyHex == "" {
		return nil, errors.New("未配置交易签名私钥")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	receiptTimeout := cfg.ReceiptTimeout
	if receiptTimeout <= 0 {
		receiptTimeout = defaultReceiptTimeout
	}

	return &Client{
		name:           cfg.Name,
		eth:            eth,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		pollInterval:   pollInterval,
		receiptTimeout: receiptTimeout,
	}, nil
}

// From returns the sending account address.
func (c *Client) From() common.Address {
	return c.from
}

// ChainID returns the chain identifier discovered at dial time.
func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	if c == nil || c.chainID == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	return new(big.Int).Set(c.chainID), nil
}

// SendTransaction fills in nonce, gas price and gas limit, signs the
// transaction locally and broadcasts it. Returns the transaction hash.
func (c *Client) SendTransaction(ctx context.Context, req web3.TransactionRequest) (string, error) {
	if c == nil || c.eth == nil {
		return "", errors.New("未初始化的以太坊客户端")
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		return "", errors.New("交易目标地址不能为空")
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("交易目标地址不合法: %s", to)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	toAddr := common.HexToAddress(to)

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("查询 nonce 失败: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, gethcore.CallMsg{
		From:  c.from,
		To:    &toAddr,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return "", fmt.Errorf("估算 gas 失败: %w", err)
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("签名交易失败: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("广播交易失败: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls the node until the transaction is mined or
// the configured timeout expires.
func (c *Client) WaitForTransactionReceipt(ctx context.Context, txHash string) (*web3.Receipt, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}

	hash := common.HexToHash(txHash)
	deadline := time.Now().Add(c.receiptTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return &web3.Receipt{
				TxHash:      receipt.TxHash.Hex(),
				BlockNumber: fmt.Sprintf("0x%x", receipt.BlockNumber),
				GasUsed:     receipt.GasUsed,
				Success:     receipt.Status == coretypes.ReceiptStatusSuccessful,
			}, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("等待交易回执超时: %s", txHash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BalanceAt returns the latest balance of the given address in wei.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	addr := strings.TrimSpace(address)
	if addr == "" {
		addr = c.from.Hex()
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("查询地址不合法: %s", addr)
	}
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// Close releases the network connection held by the client.
func (c *Client) Close() {
	if c == nil || c.eth == nil {
		return
	}
	c.eth.Close()
	c.eth = nil
}

var _ web3.Client = (*Client)(nil)
