// Package icrc112 builds the batched wallet-call requests described in
// spec.md §4.3: filter an Action's wallet-side Transactions, topologically
// level them by Kahn's algorithm over the dependency DAG, and emit one
// group of canister-call descriptors per level.
package icrc112

import (
	"context"
	"fmt"
	"time"

	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/domain"
)

var log = build.NewSubLogger(build.SubsystemICRC112)

// TransactionTimeWindow is the ICRC_TRANSACTION_TIME_WINDOW of spec.md
// §4.3: Transactions whose CreatedAtTime predates this window get a
// fresh timestamp before being scheduled, so a retry's dedup window is
// current.
const TransactionTimeWindow = 24 * time.Hour

// Request is one canister-call descriptor the wallet executes.
type Request struct {
	CanisterID domain.Principal
	Method     string
	Arg        []byte
	Nonce      uint64
}

// Group is a batch of Requests the wallet may parallelize; groups
// execute strictly in the order the Builder returns them.
type Group []Request

// LedgerResolver resolves the asset (and so the ledger canister
// principal) of an Intent's Transactions. The Builder needs this to
// populate Request.CanisterID but has no ledger knowledge of its own, so
// callers provide it, keyed by Intent id.
type LedgerResolver func(intentID string) domain.Asset

// PersistTransaction is called by Build whenever a Transaction's
// CreatedAtTime is refreshed, so the caller can write the updated value
// back to storage (spec.md §4.3 step 5: "persist the updated value back
// into the Transaction record").
type PersistTransaction func(ctx context.Context, tx *domain.Transaction) error

// Builder assembles ICRC-112 request groups from an Action's Intents.
type Builder struct {
	encoder candid.Encoder
	now     func() time.Time
	persist PersistTransaction
}

// New constructs a Builder. nowFn defaults to time.Now when nil.
func New(encoder candid.Encoder, nowFn func() time.Time, persist PersistTransaction) *Builder {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Builder{encoder: encoder, now: nowFn, persist: persist}
}

// txNode is one Transaction plus the Intent context the Builder needs to
// encode its candid argument.
type txNode struct {
	tx     *domain.Transaction
	intent *domain.Intent
}

// NonceFromID derives the ICRC-112 nonce from a Transaction id (spec.md
// §4.3/§9): the nonce is not cryptographic, only a correlation token for
// icrc114_validate, so taking the low 64 bits of the UUID's trailing hex
// digits is sufficient.
func NonceFromID(id string) uint64 {
	var n uint64
	digits := 0
	for i := len(id) - 1; i >= 0 && digits < 16; i-- {
		c := id[i]
		var v uint64
		switch {
		case c >= '0' && c <= '9':
			v = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = uint64(c-'A') + 10
		default:
			continue
		}
		n |= v << (4 * uint(digits))
		digits++
	}
	return n
}

// Build filters action's wallet-side, schedulable Transactions, levels
// them topologically, and returns one Group per level in strict order.
func (b *Builder) Build(ctx context.Context, action *domain.Action, ledgerOf func(intentID string) domain.Asset, treasury, linkAccount domain.Principal) ([]Group, error) {
	nodes := b.collectWalletTxs(action)
	if len(nodes) == 0 {
		return nil, nil
	}

	levels, err := levelize(nodes)
	if err != nil {
		return nil, err
	}

	var groups []Group
	for _, level := range levels {
		group, err := b.buildGroup(ctx, level, ledgerOf)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// collectWalletTxs implements spec.md §4.3 step 1: Transactions with
// from_call_type = Wallet and state in {Created, Fail}.
func (b *Builder) collectWalletTxs(action *domain.Action) []*txNode {
	var nodes []*txNode
	for i := range action.Intents {
		intent := &action.Intents[i]
		for j := range intent.Transactions {
			tx := &intent.Transactions[j]
			if tx.FromCallType != domain.CallTypeWallet {
				continue
			}
			if tx.State != domain.StateCreated && tx.State != domain.StateFail {
				continue
			}
			nodes = append(nodes, &txNode{tx: tx, intent: intent})
		}
	}
	return nodes
}

// levelize implements spec.md §4.3 steps 2-3: build the dependency DAG
// over nodes and emit Kahn's-algorithm levels — each level holds every
// node with no remaining unresolved predecessor within the filtered set.
func levelize(nodes []*txNode) ([][]*txNode, error) {
	byID := make(map[string]*txNode, len(nodes))
	for _, n := range nodes {
		byID[n.tx.ID] = n
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string) // id -> ids that depend on it
	for _, n := range nodes {
		dep := n.tx.DependsOn
		if dep == "" {
			continue
		}
		if _, ok := byID[dep]; !ok {
			// The dependency isn't in this batch (already Success and
			// filtered out, or belongs to another Action) — treat it
			// as already resolved.
			continue
		}
		indegree[n.tx.ID]++
		dependents[dep] = append(dependents[dep], n.tx.ID)
	}

	var levels [][]*txNode
	remaining := len(nodes)
	frontier := make([]*txNode, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n.tx.ID] == 0 {
			frontier = append(frontier, n)
		}
	}

	visited := make(map[string]bool, len(nodes))
	for len(frontier) > 0 {
		level := frontier
		frontier = nil
		for _, n := range level {
			if visited[n.tx.ID] {
				continue
			}
			visited[n.tx.ID] = true
			remaining--
			for _, depID := range dependents[n.tx.ID] {
				indegree[depID]--
				if indegree[depID] == 0 {
					frontier = append(frontier, byID[depID])
				}
			}
		}
		levels = append(levels, level)
	}

	if remaining != 0 {
		return nil, fmt.Errorf("icrc112: dependency graph is not a DAG (%d unresolved transactions)", remaining)
	}
	return levels, nil
}

// buildGroup implements spec.md §4.3 steps 4-5 for a single level.
func (b *Builder) buildGroup(ctx context.Context, level []*txNode, ledgerOf func(intentID string) domain.Asset) (Group, error) {
	group := make(Group, 0, len(level))
	now := b.now()

	for _, n := range level {
		if now.Sub(n.tx.CreatedAtTime) > TransactionTimeWindow {
			n.tx.CreatedAtTime = now
			if b.persist != nil {
				if err := b.persist(ctx, n.tx); err != nil {
					return nil, err
				}
			}
		}

		asset := ledgerOf(n.intent.ID)
		createdAtNanos := uint64(n.tx.CreatedAtTime.UnixNano())

		var arg []byte
		var err error
		var method string
		switch n.tx.Protocol {
		case domain.ProtocolIcrc1Transfer:
			method = "icrc1_transfer"
			fee := n.intent.Payload.LedgerFee
			arg, err = b.encoder.EncodeTransfer(candid.TransferArg{
				To:            n.intent.Payload.To,
				Amount:        n.intent.Payload.Amount,
				Fee:           &fee,
				Memo:          []byte(n.tx.Memo),
				CreatedAtTime: createdAtNanos,
			})
		case domain.ProtocolIcrc2Approve:
			method = "icrc2_approve"
			fee := n.intent.Payload.LedgerFee
			arg, err = b.encoder.EncodeApprove(candid.ApproveArgs{
				Spender:       n.intent.Payload.To,
				Amount:        n.intent.Payload.ApproveAmount,
				Fee:           &fee,
				CreatedAtTime: createdAtNanos,
			})
		default:
			return nil, fmt.Errorf("icrc112: protocol %s is not a wallet-side ICRC-112 call", n.tx.Protocol)
		}
		if err != nil {
			return nil, err
		}

		log.Debugf("scheduling %s nonce=%d tx=%s", method, NonceFromID(n.tx.ID), n.tx.ID)
		group = append(group, Request{
			CanisterID: asset.LedgerPrincipal,
			Method:     method,
			Arg:        arg,
			Nonce:      NonceFromID(n.tx.ID),
		})
	}
	return group, nil
}
