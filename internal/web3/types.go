package web3

import (
	"context"
	"math/big"
)

// TransactionRequest describes a single transaction to broadcast. Value is in
// wei; Data carries optional calldata.
type TransactionRequest struct {
	To    string
	Value *big.Int
	Data  []byte
}

// Receipt summarizes a mined transaction for the agent layer.
type Receipt struct {
	TxHash      string
	BlockNumber string
	GasUsed     uint64
	Success     bool
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can execute transactions uniformly.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, req TransactionRequest) (string, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
	Close()
}
