// Package web3 houses blockchain connectivity utilities: the chain client
// abstraction used by the executor agent, locally signed transaction
// broadcasting, receipt polling, and multi-chain configuration helpers.
package web3
