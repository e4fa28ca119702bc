// Package executor drives canister-side Transactions (spec.md §4.4):
// the treasury Icrc2TransferFrom fee pull, and Icrc1Transfer out of a
// link's owned sub-account for Receive/Withdraw. Every call transitions
// the Transaction to Processing before the ledger call and resolves it
// to Success/Fail on return; an ambiguous ledger reply is left
// Processing and handed to the Validator/Timeout Supervisor.
package executor

import (
	"context"
	"errors"

	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/validator"
	"golang.org/x/sync/errgroup"
)

var log = build.NewSubLogger(build.SubsystemExecutor)

// Executor runs canister-side Transactions against a ledger.Client.
type Executor struct {
	ledger    ledger.Client
	validator *validator.Validator
}

func New(client ledger.Client, v *validator.Validator) *Executor {
	return &Executor{ledger: client, validator: v}
}

// Outcome is the per-Transaction result of an execution attempt.
type Outcome struct {
	Transaction *domain.Transaction
	State       domain.State // Success, Fail, or Processing (status unknown)
	Err         error
}

// ExecuteTransferFrom implements spec.md §4.4's Icrc2TransferFrom path:
// it pulls the treasury fee from Payload.From to Payload.To after the
// wallet has issued the matching Icrc2Approve. The ledger call consumes
// the allowance Payload.From granted to Payload.To (the treasury); the
// spender argument is not passed to the ledger.
func (e *Executor) ExecuteTransferFrom(ctx context.Context, tx *domain.Transaction, intent *domain.Intent, spender domain.Principal) Outcome {
	tx.State = domain.StateProcessing
	log.Debugf("executing transfer_from tx=%s intent=%s", tx.ID, intent.ID)

	fee := intent.Payload.LedgerFee
	err := e.ledger.TransferFrom(ctx, intent.Payload.Asset, intent.Payload.From, intent.Payload.To, intent.Payload.Amount, fee)
	return e.resolve(ctx, tx, intent, err)
}

// ExecuteLinkTransfer implements spec.md §4.4's Icrc1Transfer-from-the-
// link-sub-account path, used for Receive (link -> consumer).
func (e *Executor) ExecuteLinkTransfer(ctx context.Context, tx *domain.Transaction, intent *domain.Intent) Outcome {
	tx.State = domain.StateProcessing
	log.Debugf("executing link transfer tx=%s intent=%s", tx.ID, intent.ID)

	fee := intent.Payload.LedgerFee
	err := e.ledger.Transfer(ctx, intent.Payload.Asset, intent.Payload.From, intent.Payload.To,
		intent.Payload.Amount, fee, []byte(tx.Memo), uint64(tx.CreatedAtTime.UnixNano()))
	return e.resolve(ctx, tx, intent, err)
}

// ExecuteWithdraw implements Withdraw's link-sub-account transfer with
// the ledger balance as authoritative (SPEC_FULL.md §9 decided open
// question): rather than trusting intent.Payload.Amount, computed by
// the Assembler from the Link's cached amount_available at Action-create
// time, it re-queries the live balance immediately before transferring,
// so a balance change between create_action and update_action (another
// concurrent deposit, or drift from a prior partial failure) is not lost.
func (e *Executor) ExecuteWithdraw(ctx context.Context, tx *domain.Transaction, intent *domain.Intent) Outcome {
	tx.State = domain.StateProcessing
	log.Debugf("executing withdraw tx=%s intent=%s", tx.ID, intent.ID)

	bal, err := e.ledger.Balance(ctx, intent.Payload.Asset, intent.Payload.From)
	if err != nil {
		return e.resolve(ctx, tx, intent, err)
	}
	fee := intent.Payload.LedgerFee
	amount := uint64(0)
	if bal > fee {
		amount = bal - fee
	}
	intent.Payload.Amount = amount
	if amount == 0 {
		// Nothing above the fee is left to withdraw: no ledger call.
		tx.State = domain.StateSuccess
		return Outcome{Transaction: tx, State: domain.StateSuccess}
	}

	err = e.ledger.Transfer(ctx, intent.Payload.Asset, intent.Payload.From, intent.Payload.To,
		amount, fee, []byte(tx.Memo), uint64(tx.CreatedAtTime.UnixNano()))
	return e.resolve(ctx, tx, intent, err)
}

// resolve applies spec.md §4.4's error-path rule: on a ledger error, ask
// the Validator's ManualCheckStatus-backed tie-break to decide between
// "definitely failed" and "status unknown" before committing to Fail.
func (e *Executor) resolve(ctx context.Context, tx *domain.Transaction, intent *domain.Intent, err error) Outcome {
	if err == nil {
		tx.State = domain.StateSuccess
		return Outcome{Transaction: tx, State: domain.StateSuccess}
	}

	if isDefiniteFailure(err) {
		tx.State = domain.StateFail
		return Outcome{Transaction: tx, State: domain.StateFail, Err: err}
	}

	// Reply timed out or was otherwise inconclusive: consult the
	// Validator, armed with the real peer evidence from this Intent's
	// other Transactions, before giving up on this attempt.
	outcome := validator.SiblingOutcomeFrom(intent.Transactions, tx.ID)
	state := e.validator.ManualCheckStatus(ctx, tx, outcome)
	if state == domain.StateProcessing {
		log.Warnf("tx=%s status unknown after error, leaving Processing: %v", tx.ID, err)
	}
	tx.State = state
	return Outcome{Transaction: tx, State: state, Err: err}
}

// isDefiniteFailure reports whether err is a ledger-confirmed rejection
// (insufficient funds/allowance, dedup violation) as opposed to a
// transport-level failure whose outcome on-ledger is unknown.
func isDefiniteFailure(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientFunds) ||
		errors.Is(err, ledger.ErrInsufficientAllowance) ||
		errors.Is(err, ledger.ErrDuplicateTransaction) ||
		errors.Is(err, ledger.ErrCreatedAtTimeTooOld)
}

// BatchItem pairs a canister-side Transaction with its owning Intent so
// ExecuteCanisterTxsBatch can dispatch the right transfer kind uniformly.
type BatchItem struct {
	Tx         *domain.Transaction
	Intent     *domain.Intent
	IsFee      bool // true: Icrc2TransferFrom to treasury
	IsWithdraw bool // true: re-query live balance before transferring (ExecuteWithdraw)
	Spender    domain.Principal
}

// ExecuteCanisterTxsBatch drives items concurrently and collects one
// Outcome per item, preserving per-asset independence (spec.md §4.4
// "Batch execution preserves the per-asset independence required by
// partial-success accounting"): one item's failure never cancels or
// blocks its siblings.
func (e *Executor) ExecuteCanisterTxsBatch(ctx context.Context, items []BatchItem) []Outcome {
	outcomes := make([]Outcome, len(items))

	// A plain errgroup.Group (no WithContext) only aggregates
	// completion: since every goroutine below returns nil regardless of
	// its own outcome, one item's failure never cancels its siblings.
	var g errgroup.Group

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			switch {
			case item.IsFee:
				outcomes[i] = e.ExecuteTransferFrom(ctx, item.Tx, item.Intent, item.Spender)
			case item.IsWithdraw:
				outcomes[i] = e.ExecuteWithdraw(ctx, item.Tx, item.Intent)
			default:
				outcomes[i] = e.ExecuteLinkTransfer(ctx, item.Tx, item.Intent)
			}
			return nil // never propagate: errgroup would cancel siblings
		})
	}
	_ = g.Wait()
	return outcomes
}
