package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"votechain/models"
)

// Backend is the chain access a signer needs: calls, transactions and receipts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Provider is the narrow capability a wallet exposes to the application.
type Provider interface {
	// RequestAccounts asks the wallet for access. The active account comes first.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Signer(ctx context.Context, account common.Address) (*Signer, error)
	// SubscribeAccountsChanged delivers the new account list on every change.
	// An empty list means the wallet no longer exposes any account.
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
}

// Signer binds an account to the backend it transacts through.
type Signer struct {
	Address common.Address
	Backend Backend
	sign    bind.SignerFn
}

func NewSigner(address common.Address, backend Backend, sign bind.SignerFn) *Signer {
	return &Signer{Address: address, Backend: backend, sign: sign}
}

func (s *Signer) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{From: s.Address, Context: ctx}
}

func (s *Signer) TransactOpts(ctx context.Context) *bind.TransactOpts {
	return &bind.TransactOpts{From: s.Address, Signer: s.sign, Context: ctx}
}

// KeyProvider is a wallet backed by locally held private keys.
type KeyProvider struct {
	backend Backend
	chainID *big.Int

	mu     sync.RWMutex
	keys   map[common.Address]*ecdsa.PrivateKey
	order  []common.Address
	active common.Address
	locked bool

	feed event.Feed
}

// NewKeyProvider parses hex private keys (with or without 0x). The first key
// becomes the active account.
func NewKeyProvider(backend Backend, chainID *big.Int, hexKeys []string) (*KeyProvider, error) {
	if len(hexKeys) == 0 {
		return nil, models.ErrWalletUnavailable
	}
	p := &KeyProvider{
		backend: backend,
		chainID: chainID,
		keys:    make(map[common.Address]*ecdsa.PrivateKey),
	}
	for i, h := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(h), "0x"))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse wallet key %d", i)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := p.keys[addr]; dup {
			continue
		}
		p.keys[addr] = key
		p.order = append(p.order, addr)
	}
	p.active = p.order[0]
	return p, nil
}

// Dial connects the provider to a JSON-RPC node.
func Dial(ctx context.Context, rawurl string, chainID *big.Int, hexKeys []string) (*KeyProvider, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", rawurl)
	}
	p, err := NewKeyProvider(client, chainID, hexKeys)
	if err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.locked {
		return nil, models.ErrUserRejected
	}
	return p.accountsLocked(), nil
}

func (p *KeyProvider) Signer(ctx context.Context, account common.Address) (*Signer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.locked {
		return nil, models.ErrUserRejected
	}
	key, ok := p.keys[account]
	if !ok {
		return nil, errors.Wrapf(models.ErrUserRejected, "account %s not managed by this wallet", account.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, p.chainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transactor")
	}
	sign := func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
		p.mu.RLock()
		locked := p.locked
		p.mu.RUnlock()
		if locked {
			return nil, models.ErrUserRejected
		}
		return opts.Signer(from, tx)
	}
	return NewSigner(account, p.backend, sign), nil
}

func (p *KeyProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Accounts lists managed accounts, active first. Locked wallets list nothing.
func (p *KeyProvider) Accounts() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.locked {
		return []common.Address{}
	}
	return p.accountsLocked()
}

// Select makes account the active one and notifies subscribers.
func (p *KeyProvider) Select(account common.Address) error {
	p.mu.Lock()
	if _, ok := p.keys[account]; !ok {
		p.mu.Unlock()
		return errors.Errorf("unknown account %s", account.Hex())
	}
	p.active = account
	p.mu.Unlock()

	p.feed.Send(p.Accounts())
	return nil
}

// Lock hides every account; subscribers receive an empty list.
func (p *KeyProvider) Lock() {
	p.mu.Lock()
	p.locked = true
	p.mu.Unlock()
	p.feed.Send([]common.Address{})
}

func (p *KeyProvider) Unlock() {
	p.mu.Lock()
	p.locked = false
	p.mu.Unlock()
	p.feed.Send(p.Accounts())
}

func (p *KeyProvider) accountsLocked() []common.Address {
	out := make([]common.Address, 0, len(p.order))
	out = append(out, p.active)
	for _, a := range p.order {
		if a != p.active {
			out = append(out, a)
		}
	}
	return out
}
