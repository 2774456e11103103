package anchor

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/accountabilityme/ledger/pkg/ethereum"
)

// EthereumWitness anchors a Merkle root by embedding its raw 32 bytes in
// the data field of a zero-value self-send transaction, using the intact
// pkg/ethereum client for RPC access.
//
// This is the lightest possible on-chain witness: it needs no deployed
// contract, only an externally-owned account with enough balance to pay
// gas. The transaction hash itself is the externalRef a verifier checks
// the root against later, by re-deriving the data field from a public
// explorer and comparing it to the anchor batch's Merkle root.
type EthereumWitness struct {
	client     *ethereum.Client
	privateKey *ecdsa.PrivateKey
	gasLimit   uint64
}

// NewEthereumWitness builds a witness that publishes to the chain client
// is connected to, signing with privateKey.
func NewEthereumWitness(client *ethereum.Client, privateKey *ecdsa.PrivateKey) *EthereumWitness {
	return &EthereumWitness{client: client, privateKey: privateKey, gasLimit: 30000}
}

// Publish sends a self-transfer transaction carrying merkleRoot as its
// data payload and returns the transaction hash.
func (w *EthereumWitness) Publish(ctx context.Context, merkleRoot string) (string, error) {
	rootBytes, err := hex.DecodeString(merkleRoot)
	if err != nil {
		return "", fmt.Errorf("ethereum witness: decode root: %w", err)
	}

	from := crypto.PubkeyToAddress(w.privateKey.PublicKey)
	nonce, err := w.client.GetNonce(ctx, from)
	if err != nil {
		return "", fmt.Errorf("ethereum witness: nonce: %w", err)
	}
	gasPrice, err := w.client.GetGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("ethereum witness: gas price: %w", err)
	}

	tx := gethtypes.NewTransaction(nonce, from, big.NewInt(0), w.gasLimit, gasPrice, rootBytes)
	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(w.client.GetChainID()), w.privateKey)
	if err != nil {
		return "", fmt.Errorf("ethereum witness: sign: %w", err)
	}

	if err := w.client.GetClient().SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("ethereum witness: send: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}
