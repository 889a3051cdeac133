// Package eth provides Ethereum accounts and unit conversions for betchain.
package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// devSeed derives the deterministic keys of the local dev accounts.
const devSeed = "betchain dev account"

// Wallet wraps an ECDSA private key for an account.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewWallet creates a wallet from a hex-encoded private key.
func NewWallet(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Wallet{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// DevWallet returns the index-th deterministic dev account. The same index
// always yields the same address, so tests and the daemon agree on signers.
func DevWallet(index int) (*Wallet, error) {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("%s %d", devSeed, index)))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("derive dev key %d: %w", index, err)
	}
	return &Wallet{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// DevWallets returns the first n dev accounts.
func DevWallets(n int) ([]*Wallet, error) {
	wallets := make([]*Wallet, 0, n)
	for i := 0; i < n; i++ {
		w, err := DevWallet(i)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// Address returns the wallet's address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// AddressHex returns the wallet address as a checksummed hex string.
func (w *Wallet) AddressHex() string {
	return w.address.Hex()
}

// PrivateKeyHex returns the hex-encoded private key, without 0x prefix.
func (w *Wallet) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(w.privateKey))
}
