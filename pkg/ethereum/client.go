// Package ethereum wraps the subset of go-ethereum's RPC client the
// Ethereum witness needs to sign and send a self-transfer transaction:
// nonce and gas price lookups, the chain ID for EIP-155 signing, and
// the underlying client for SendTransaction itself.
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client holds a connection to one Ethereum JSON-RPC endpoint.
type Client struct {
	client  *ethclient.Client
	chainID *big.Int
}

// NewClient dials url and pins chainID for transaction signing.
func NewClient(url string, chainID int64) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ethereum: connect: %w", err)
	}
	return &Client{client: client, chainID: big.NewInt(chainID)}, nil
}

// GetNonce returns address's next pending transaction nonce.
func (c *Client) GetNonce(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("ethereum: get nonce: %w", err)
	}
	return nonce, nil
}

// GetGasPrice returns the network's currently suggested gas price.
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethereum: get gas price: %w", err)
	}
	return gasPrice, nil
}

// GetChainID returns the chain ID transactions are signed against.
func (c *Client) GetChainID() *big.Int {
	return c.chainID
}

// GetClient returns the underlying ethclient, for sending a signed
// transaction.
func (c *Client) GetClient() *ethclient.Client {
	return c.client
}
