// Package validator reconciles server-recorded Transaction state with
// ledger truth for wallet-side Transactions dispatched via ICRC-112
// (spec.md §4.5). It never mutates state; every method returns a
// boolean or a resolved domain.State that the caller (statemachine)
// feeds into its own transition.
package validator

import (
	"context"

	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/ledger"
)

var log = build.NewSubLogger(build.SubsystemValidator)

// Validator queries a ledger.Client to confirm wallet-side transfers
// and approvals actually landed.
type Validator struct {
	ledger ledger.Client
}

func New(client ledger.Client) *Validator {
	return &Validator{ledger: client}
}

// ValidateBalanceTransfer implements spec.md §4.5's
// validate_balance_transfer: it queries the ledger balance of the
// transfer's destination and reports whether it reflects at least the
// expected cumulative inflow for intent's asset. expectedCumulative is
// the caller-computed "what should this account hold by now" figure
// (typically the sum of amounts for every Icrc1Transfer Intent into the
// same destination for this Action).
func (v *Validator) ValidateBalanceTransfer(ctx context.Context, intent *domain.Intent, expectedCumulative uint64) (bool, error) {
	bal, err := v.ledger.Balance(ctx, intent.Payload.Asset, intent.Payload.To)
	if err != nil {
		return false, err
	}
	ok := bal >= expectedCumulative
	log.Debugf("validate_balance_transfer intent=%s dest=%s balance=%d expected=%d ok=%v",
		intent.ID, intent.Payload.To, bal, expectedCumulative, ok)
	return ok, nil
}

// ValidateAllowance implements spec.md §4.5's validate_allowance: true
// iff the ledger-recorded allowance from intent.Payload.From to spender
// is at least intent.Payload.ApproveAmount.
func (v *Validator) ValidateAllowance(ctx context.Context, intent *domain.Intent, spender domain.Principal) (bool, error) {
	allowed, err := v.ledger.Allowance(ctx, intent.Payload.Asset, intent.Payload.From, spender)
	if err != nil {
		return false, err
	}
	ok := allowed >= intent.Payload.ApproveAmount
	log.Debugf("validate_allowance intent=%s owner=%s allowed=%d needed=%d ok=%v",
		intent.ID, intent.Payload.From, allowed, intent.Payload.ApproveAmount, ok)
	return ok, nil
}

// ManualCheckStatus implements spec.md §4.5's manual_check_status:
// given tx and its peer Transactions within the same Intent, derive a
// definitive state when the ledger query neither confirms nor denies
// the recorded state. peers excludes tx itself. It never returns
// domain.StateCreated: the tie-break either resolves to Success/Fail or
// leaves the caller with domain.StateProcessing (status still unknown,
// deferred to the timeout supervisor).
func (v *Validator) ManualCheckStatus(ctx context.Context, tx *domain.Transaction, siblingOutcome SiblingOutcome) domain.State {
	switch tx.Protocol {
	case domain.ProtocolIcrc2Approve:
		// A successful sibling TransferFrom could only have happened if
		// this approve had already succeeded.
		if siblingOutcome.TransferFromSucceeded {
			return domain.StateSuccess
		}
	case domain.ProtocolIcrc1Transfer:
		// LedgerBalanceConfirmed is set by SiblingOutcomeFrom when
		// another Icrc1Transfer in the same Intent is Success; that is
		// taken as this transfer's success, even if the wallet's reply
		// was lost.
		if siblingOutcome.LedgerBalanceConfirmed {
			return domain.StateSuccess
		}
	case domain.ProtocolIcrc2TransferFrom:
		// A successful sibling transfer implies the upstream approve
		// succeeded, but says nothing about this transfer_from itself.
	}
	return domain.StateProcessing
}

// SiblingOutcome summarizes the peer Transactions within the same
// Intent, the inputs ManualCheckStatus's tie-breaks need.
type SiblingOutcome struct {
	TransferFromSucceeded  bool
	LedgerBalanceConfirmed bool
}

// SiblingOutcomeFrom derives a SiblingOutcome from the real Transactions
// of the Intent tx belongs to, excluding tx itself by id (spec.md §4.5:
// "using the peer Transactions sharing the same Intent, derive the
// Transaction's definitive state").
func SiblingOutcomeFrom(transactions []domain.Transaction, excludeID string) SiblingOutcome {
	var out SiblingOutcome
	for i := range transactions {
		sib := &transactions[i]
		if sib.ID == excludeID {
			continue
		}
		switch sib.Protocol {
		case domain.ProtocolIcrc2TransferFrom:
			if sib.State == domain.StateSuccess {
				out.TransferFromSucceeded = true
			}
		case domain.ProtocolIcrc1Transfer:
			if sib.State == domain.StateSuccess {
				out.LedgerBalanceConfirmed = true
			}
		}
	}
	return out
}
