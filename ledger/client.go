// Package ledger specifies the out-of-scope ICRC-1/2 ledger collaborator
// (spec.md §1/§6) as the interface validator and executor call through,
// plus an in-memory Fake used across this repository's tests.
package ledger

import (
	"context"
	"sync"

	"github.com/CashierHQ/cashier-sub000/domain"
)

// Client is the subset of ICRC-1/2 ledger behavior the orchestration
// core depends on.
type Client interface {
	// Balance returns the current balance of account on asset's ledger.
	Balance(ctx context.Context, asset domain.Asset, account domain.Principal) (uint64, error)
	// Allowance returns the amount owner has approved spender to pull
	// on asset's ledger.
	Allowance(ctx context.Context, asset domain.Asset, owner, spender domain.Principal) (uint64, error)
	// Transfer moves amount of asset from the ledger-default account of
	// from (the caller's wallet or the link sub-account, depending on
	// who signs) to to. createdAtTimeNanos implements the ICRC-1
	// deduplication window.
	Transfer(ctx context.Context, asset domain.Asset, from, to domain.Principal, amount, fee uint64, memo []byte, createdAtTimeNanos uint64) error
	// Approve authorises spender to later pull amount of asset from owner.
	Approve(ctx context.Context, asset domain.Asset, owner, spender domain.Principal, amount, fee, createdAtTimeNanos uint64) error
	// TransferFrom pulls amount of asset from from to to, consuming a
	// prior Approve. Fails with ErrInsufficientAllowance if none exists.
	TransferFrom(ctx context.Context, asset domain.Asset, from, to domain.Principal, amount, fee uint64) error
}

// Fake is an in-memory ledger.Client used by every orchestration test in
// this repository, grounded on the teacher's htlcswitch/mock.go
// convention of hand-rolled in-package fakes over interface mocks.
type Fake struct {
	mu         sync.Mutex
	balances   map[string]uint64 // asset.LedgerPrincipal+"|"+account
	allowances map[string]uint64 // asset+"|"+owner+"|"+spender
	Fail       map[string]error  // keyed by the same balance/allowance keys, to force errors in tests
}

func NewFake() *Fake {
	return &Fake{
		balances:   make(map[string]uint64),
		allowances: make(map[string]uint64),
		Fail:       make(map[string]error),
	}
}

func balKey(asset domain.Asset, acct domain.Principal) string {
	return string(asset.LedgerPrincipal) + "|" + string(acct)
}

func allowKey(asset domain.Asset, owner, spender domain.Principal) string {
	return string(asset.LedgerPrincipal) + "|" + string(owner) + "|" + string(spender)
}

// SetBalance seeds an account's balance for a test scenario.
func (f *Fake) SetBalance(asset domain.Asset, account domain.Principal, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balKey(asset, account)] = amount
}

func (f *Fake) Balance(_ context.Context, asset domain.Asset, account domain.Principal) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[balKey(asset, account)]; err != nil {
		return 0, err
	}
	return f.balances[balKey(asset, account)], nil
}

func (f *Fake) Allowance(_ context.Context, asset domain.Asset, owner, spender domain.Principal) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[allowKey(asset, owner, spender)]; err != nil {
		return 0, err
	}
	return f.allowances[allowKey(asset, owner, spender)], nil
}

func (f *Fake) Transfer(_ context.Context, asset domain.Asset, from, to domain.Principal, amount, fee uint64, _ []byte, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[balKey(asset, from)]; err != nil {
		return err
	}
	total := amount + fee
	if f.balances[balKey(asset, from)] < total {
		return ErrInsufficientFunds
	}
	f.balances[balKey(asset, from)] -= total
	f.balances[balKey(asset, to)] += amount
	return nil
}

func (f *Fake) Approve(_ context.Context, asset domain.Asset, owner, spender domain.Principal, amount, _, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowKey(asset, owner, spender)] = amount
	return nil
}

func (f *Fake) TransferFrom(_ context.Context, asset domain.Asset, from, to domain.Principal, amount, fee uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := allowKey(asset, from, to)
	ak := string(asset.LedgerPrincipal) + "|" + string(from) + "|" + string(to)
	allowed := f.allowances[ak]
	if allowed < amount+fee {
		return ErrInsufficientAllowance
	}
	if f.balances[balKey(asset, from)] < amount+fee {
		return ErrInsufficientFunds
	}
	f.allowances[ak] = allowed - (amount + fee)
	f.balances[balKey(asset, from)] -= amount + fee
	f.balances[balKey(asset, to)] += amount
	_ = k
	return nil
}
